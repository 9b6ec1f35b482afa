package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/helicase/mdq/job"
)

// ListCmd lists local job records.
var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local jobs",
	Long: `List local job records, newest first.

Examples:
  mdq list                  # All jobs
  mdq list --state running  # Only running jobs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stateFilter, _ := cmd.Flags().GetString("state")
		if stateFilter != "" && !job.IsValidState(stateFilter) {
			return fmt.Errorf("unknown state %q", stateFilter)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		jobs, err := a.ctl.GetAllJobs()
		if err != nil {
			return err
		}

		data := pterm.TableData{{"ID", "NAME", "STATE", "PARTITION", "CORES", "WALLTIME", "SLURM ID", "CREATED"}}
		shown := 0
		for _, j := range jobs {
			if stateFilter != "" && j.State != job.State(stateFilter) {
				continue
			}
			shown++
			data = append(data, []string{
				shortID(j.ID),
				j.Name,
				string(j.State),
				j.Request.Partition,
				fmt.Sprintf("%d", j.Request.Cores),
				job.FormatWalltime(j.Request.Walltime),
				orDash(j.RemoteID),
				j.CreatedAt.Format("2006-01-02 15:04"),
			})
		}

		if shown == 0 {
			pterm.Info.Println("No jobs found")
			return nil
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	ListCmd.Flags().String("state", "", "Filter by lifecycle state")
}

// shortID abbreviates a UUID for table display. Full ids appear in status.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
