package commands

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// DeleteCmd removes a job record, optionally cancelling it on the scheduler.
var DeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Remove a job record",
	Long: `Remove a job's local record.

By default only the local record is removed; a job still running on the
cluster keeps running. With --remote, the scheduler job is cancelled
first — if the cancel fails, the record is kept so the job is not left
running with no trace of it.

Examples:
  mdq delete 4f2a91c3           # Local record only
  mdq delete 4f2a91c3 --remote  # Cancel on the cluster, then delete`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		j, err := resolveJob(a, args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := a.ctl.DeleteJob(ctx, j.ID, remote); err != nil {
			return err
		}

		if remote && j.HasRemote() {
			pterm.Success.Printf("Cancelled SLURM job %s and deleted %s\n", j.RemoteID, j.Name)
		} else {
			pterm.Success.Printf("Deleted %s\n", j.Name)
		}
		return nil
	},
}

func init() {
	DeleteCmd.Flags().Bool("remote", false, "Cancel the job on the scheduler before deleting")
}
