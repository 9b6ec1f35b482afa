package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/helicase/mdq/admission"
	"github.com/helicase/mdq/config"
	"github.com/helicase/mdq/job"
	"github.com/helicase/mdq/policy"
)

// ValidateCmd checks a job file against cluster policy without touching the
// database or the scheduler.
var ValidateCmd = &cobra.Command{
	Use:   "validate <job-file.yaml>",
	Short: "Check a job file against cluster policy",
	Long: `Validate a job file against partition limits and QoS policy.

Nothing is persisted and nothing reaches the scheduler. The full set of
blocking issues, efficiency warnings and optimization suggestions is
printed, along with the cost and queue-time estimates a submit would show.

Exits non-zero when the request would be rejected.

Example:
  mdq validate run.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := policy.Load()
		if err != nil {
			return fmt.Errorf("failed to load policy catalog: %w", err)
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		name, req, _, err := loadJobFile(args[0], catalog)
		if err != nil {
			return err
		}

		result := admission.Validate(req, catalog, cfg.Advisory)
		printResult(name, req, result)
		printEstimates(req, catalog)

		if !result.Valid {
			return fmt.Errorf("%d blocking issue(s)", len(result.Issues))
		}
		return nil
	},
}

func printResult(name string, req job.ResourceRequest, result admission.Result) {
	pterm.Info.Printf("%s: %d cores, %.0f GB, %s on %s/%s\n",
		name, req.Cores, req.MemoryGB, job.FormatWalltime(req.Walltime), req.Partition, req.Qos)

	for _, issue := range result.Issues {
		pterm.Error.Printf("%s: %s\n", issue.Field, issue.Message)
	}
	for _, warning := range result.Warnings {
		pterm.Warning.Println(warning)
	}
	for _, suggestion := range result.Suggestions {
		pterm.Info.Println(suggestion)
	}
	if result.Valid {
		pterm.Success.Println("Request passes cluster policy")
	}
}

func printEstimates(req job.ResourceRequest, catalog *policy.Catalog) {
	p, ok := catalog.Partition(req.Partition)
	if !ok {
		return
	}
	hasGPU := p.Category == policy.CategoryGPU
	gpuCount := 0
	if hasGPU {
		gpuCount = 1
	}
	cost := admission.CalculateCost(req.Cores, req.WalltimeHours(), hasGPU, gpuCount, catalog.Rates())
	fmt.Printf("  Estimated cost:  %d SU\n", cost)
	fmt.Printf("  Estimated queue: %s\n", admission.EstimateQueueTime(req.Cores, req.Partition, catalog))
}
