// Package admission decides whether a resource request is legal and
// efficient under cluster policy, before anything touches the scheduler.
// Everything in this package is pure computation: no I/O, no clock, no
// partial failure. A call always returns a complete Result.
package admission

import (
	"fmt"

	"github.com/helicase/mdq/config"
	"github.com/helicase/mdq/job"
	"github.com/helicase/mdq/policy"
)

// Issue is a blocking policy violation, attributed to a request field so a
// form layer can place it next to the offending input.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result is the full outcome of validating one request. Warnings and
// suggestions are advisory and never affect validity.
type Result struct {
	Valid       bool     `json:"valid"`
	Issues      []Issue  `json:"issues,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (r *Result) block(field, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) suggest(format string, args ...interface{}) {
	r.Suggestions = append(r.Suggestions, fmt.Sprintf(format, args...))
}

// Validate checks a resource request against the catalog. Invalid input
// (non-positive cores, zero walltime) is reported as a blocking issue, never
// an error: the caller always gets the full issue list.
func Validate(req job.ResourceRequest, catalog *policy.Catalog, advisory config.Advisory) Result {
	var res Result

	// Numeric sanity first; limits below assume sane magnitudes.
	if req.Cores <= 0 {
		res.block("cores", "core count must be positive, got %d", req.Cores)
	}
	if req.MemoryGB <= 0 {
		res.block("memory_gb", "memory must be positive, got %.1f GB", req.MemoryGB)
	}
	if req.Walltime <= 0 {
		res.block("walltime", "walltime must be positive, got %s", job.FormatWalltime(req.Walltime))
	}

	partition, haveP := catalog.Partition(req.Partition)
	if !haveP {
		res.block("partition", "unknown partition %q", req.Partition)
	}
	qos, haveQ := catalog.Qos(req.Qos)
	if !haveQ {
		res.block("qos", "unknown QoS %q", req.Qos)
	}

	// Resolution or sanity failure short-circuits: limits and advisories
	// are meaningless against an unresolved or nonsensical request.
	if len(res.Issues) > 0 {
		return res
	}

	hours := req.WalltimeHours()

	if req.Cores > partition.MaxCores {
		res.block("cores", "requested %d cores but partition %s allows at most %d",
			req.Cores, partition.ID, partition.MaxCores)
	}

	memCeiling := float64(req.Cores) * partition.MaxMemPerCoreGB
	if req.MemoryGB > memCeiling {
		res.block("memory_gb", "requested %.1f GB but %d cores on %s allow at most %.1f GB (%.1f GB/core)",
			req.MemoryGB, req.Cores, partition.ID, memCeiling, partition.MaxMemPerCoreGB)
	}

	if hours > qos.MaxWalltimeHours {
		res.block("walltime", "requested %s exceeds QoS %s limit of %.0f hours",
			job.FormatWalltime(req.Walltime), qos.ID, qos.MaxWalltimeHours)
	}

	if qos.ID == policy.QosMemory && req.MemoryGB < policy.MemoryQosMinGB {
		res.block("memory_gb", "QoS %s requires at least %.0f GB of memory, got %.1f GB; use a compute partition instead",
			qos.ID, policy.MemoryQosMinGB, req.MemoryGB)
	}

	if !qos.AllowsPartition(partition.ID) {
		res.block("qos", "QoS %s is not valid on partition %s (valid: %v)",
			qos.ID, partition.ID, qos.Partitions)
	}

	// Efficiency warnings (non-blocking)
	if req.Cores < advisory.SmallJobCores {
		res.warn("jobs under %d cores often wait longer in queue than they run; consider batching work",
			advisory.SmallJobCores)
	}
	if partition.MinRecommendedCores > 0 && req.Cores < partition.MinRecommendedCores {
		res.warn("partition %s is intended for jobs of %d+ cores; the %s partition will schedule %d cores sooner",
			partition.ID, partition.MinRecommendedCores, policy.PartitionGeneral, req.Cores)
	}

	// Optimization suggestions (non-blocking)
	if qos.ID == policy.QosNormal && hours > advisory.LongQosHours {
		res.suggest("walltime over %.0fh: the %s QoS allows up to %.0fh at lower priority",
			advisory.LongQosHours, policy.QosLong, mustQosHours(catalog, policy.QosLong))
	}
	if heuristic := float64(req.Cores) * advisory.MemPerCoreGB; req.MemoryGB > 2*heuristic {
		res.suggest("%.1f GB is more than double the %.1f GB/core heuristic (%.1f GB for %d cores); lower requests queue faster",
			req.MemoryGB, advisory.MemPerCoreGB, heuristic, req.Cores)
	}

	res.Valid = len(res.Issues) == 0
	return res
}

func mustQosHours(catalog *policy.Catalog, id string) float64 {
	if q, ok := catalog.Qos(id); ok {
		return q.MaxWalltimeHours
	}
	return 0
}
