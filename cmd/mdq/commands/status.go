package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/job"
)

// StatusCmd shows one job in detail.
var StatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one job in detail",
	Long: `Display a job's full record: request, lifecycle state, scheduler id,
exit code, runtime and sync history. Accepts a full job id or any unique
prefix of one (the abbreviated ids printed by 'mdq list' work).

Example:
  mdq status 4f2a91c3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		j, err := resolveJob(a, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Job:        %s\n", j.ID)
		fmt.Printf("Name:       %s\n", j.Name)
		fmt.Printf("State:      %s\n", j.State)
		fmt.Printf("Request:    %d cores, %.0f GB, %s on %s/%s",
			j.Request.Cores, j.Request.MemoryGB,
			job.FormatWalltime(j.Request.Walltime),
			j.Request.Partition, j.Request.Qos)
		if j.Request.Partial {
			fmt.Printf(" (partial, reconstructed from discovery)")
		}
		fmt.Println()
		fmt.Printf("SLURM ID:   %s\n", orDash(j.RemoteID))
		if j.ExitCode != nil {
			fmt.Printf("Exit code:  %d\n", *j.ExitCode)
		}
		if j.Runtime > 0 {
			fmt.Printf("Runtime:    %s\n", j.Runtime)
		}
		if len(j.SimConfig) > 0 {
			fmt.Printf("Sim config: %s\n", string(j.SimConfig))
		}
		fmt.Printf("Created:    %s\n", j.CreatedAt.Format(time.RFC3339))
		if j.SubmittedAt != nil {
			fmt.Printf("Submitted:  %s\n", j.SubmittedAt.Format(time.RFC3339))
		}
		if j.LastSyncedAt != nil {
			fmt.Printf("Last sync:  %s\n", j.LastSyncedAt.Format(time.RFC3339))
		}
		return nil
	},
}

// resolveJob finds a job by full id or unique id prefix.
func resolveJob(a *app, ref string) (*job.Job, error) {
	j, err := a.ctl.GetJob(ref)
	if err == nil {
		return j, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	all, err := a.ctl.GetAllJobs()
	if err != nil {
		return nil, err
	}
	var matches []*job.Job
	for _, candidate := range all {
		if strings.HasPrefix(candidate.ID, ref) {
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errors.NewNotFound("no job matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, errors.Newf("%q matches %d jobs; use more of the id", ref, len(matches))
	}
}
