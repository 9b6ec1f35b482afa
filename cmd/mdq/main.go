package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helicase/mdq/cmd/mdq/commands"
	"github.com/helicase/mdq/logger"
)

var rootCmd = &cobra.Command{
	Use:   "mdq",
	Short: "mdq - molecular dynamics job queue for SLURM clusters",
	Long: `mdq - submit and track molecular dynamics jobs on a SLURM cluster.

mdq validates resource requests against cluster policy before they reach
the scheduler, keeps a local record of every job, and reconciles that
record against the cluster on demand or on a timer.

Available commands:
  validate - Check a job file against cluster policy (no side effects)
  submit   - Create a job from a job file and hand it to the scheduler
  list     - List local jobs
  status   - Show one job in detail
  sync     - Reconcile local records against the scheduler
  delete   - Remove a job record (optionally cancelling it remotely)
  daemon   - Run the background sync loop in the foreground

Examples:
  mdq validate run.yaml        # Dry-run policy check
  mdq submit run.yaml          # Create and submit
  mdq sync --discover          # Sync and import unknown scheduler jobs
  mdq daemon                   # Periodic sync until interrupted`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")

	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.SubmitCmd)
	rootCmd.AddCommand(commands.ListCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.SyncCmd)
	rootCmd.AddCommand(commands.DeleteCmd)
	rootCmd.AddCommand(commands.DaemonCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
