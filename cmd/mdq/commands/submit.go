package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// SubmitCmd creates a job from a job file and hands it to the scheduler.
var SubmitCmd = &cobra.Command{
	Use:   "submit <job-file.yaml>",
	Short: "Create a job from a job file and submit it to the scheduler",
	Long: `Create a job from a job file, validate it against cluster policy and
submit it to the scheduler.

Validation failure prints every issue and persists nothing. With
--create-only the job is stored locally without being submitted, for
review or later submission via re-running submit on the stored id.

Examples:
  mdq submit run.yaml                # Validate, create, submit
  mdq submit run.yaml --create-only  # Validate and store only`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		createOnly, _ := cmd.Flags().GetBool("create-only")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		name, req, simConfig, err := loadJobFile(args[0], a.catalog)
		if err != nil {
			return err
		}

		j, result, err := a.ctl.CreateJob(name, req, simConfig)
		if err != nil {
			return err
		}
		printResult(name, req, result)
		if j == nil {
			return fmt.Errorf("%d blocking issue(s); nothing was created", len(result.Issues))
		}
		printEstimates(req, a.catalog)

		if createOnly {
			pterm.Success.Printf("Created job %s (not submitted)\n", j.ID)
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		submitted, err := a.ctl.SubmitJob(ctx, j.ID)
		if err != nil {
			pterm.Error.Printf("Submission failed; job %s kept and can be resubmitted\n", j.ID)
			return err
		}

		pterm.Success.Printf("Submitted job %s as SLURM job %s\n", submitted.ID, submitted.RemoteID)
		return nil
	},
}

func init() {
	SubmitCmd.Flags().Bool("create-only", false, "Store the job locally without submitting it")
}
