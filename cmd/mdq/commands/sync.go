package commands

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// SyncCmd runs one reconciliation pass against the scheduler.
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local records against the scheduler",
	Long: `Poll the scheduler for every active job and commit what it reports.

Jobs the scheduler no longer knows are presumed terminal after two
consecutive passes. With --discover, scheduler jobs that have no local
record (submitted outside mdq) are imported as well.

Examples:
  mdq sync             # One pass
  mdq sync --discover  # Pass plus discovery`,
	RunE: func(cmd *cobra.Command, args []string) error {
		discover, _ := cmd.Flags().GetBool("discover")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if discover {
			created, supported, err := a.ctl.DiscoverJobs(ctx)
			if err != nil {
				return err
			}
			if !supported {
				pterm.Warning.Println("Gateway does not support discovery")
			}
			for _, j := range created {
				pterm.Info.Printf("Discovered %s (SLURM %s)\n", j.Name, j.RemoteID)
			}
		}

		outcome, err := a.ctl.SyncJobs(ctx)
		if err != nil {
			return err
		}

		for _, d := range outcome.Deltas {
			pterm.Info.Printf("%s: %s -> %s\n", shortID(d.JobID), d.From, d.To)
		}
		for _, f := range outcome.Failures {
			pterm.Warning.Printf("%s: %v\n", shortID(f.JobID), f.Err)
		}
		pterm.Success.Printf("Synced %d job(s), %d change(s), %d failure(s) in %s\n",
			outcome.Synced, len(outcome.Deltas), len(outcome.Failures),
			outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Millisecond))
		return nil
	},
}

func init() {
	SyncCmd.Flags().Bool("discover", false, "Also import scheduler jobs with no local record")
}
