// Package policy holds the immutable cluster reference data: partitions,
// QoS classes, per-partition limits and billing rates.
package policy

import (
	_ "embed"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/job"
)

//go:embed catalog.toml
var catalogTOML []byte

// Partition categories
const (
	CategoryCompute = "compute"
	CategoryGPU     = "gpu"
	CategoryMemory  = "memory"
	CategoryTesting = "testing"
)

// Well-known ids the heuristics key on
const (
	PartitionGeneral = "general"
	PartitionCompile = "compile"

	QosNormal  = "normal"
	QosLong    = "long"
	QosMemory  = "memory"
	QosTesting = "testing"
	QosCompile = "compile"
)

// MemoryQosMinGB is the memory floor for the memory-class QoS. Requests
// below it belong on a compute partition, not bigmem.
const MemoryQosMinGB = 256.0

// PartitionSpec describes a named pool of nodes with shared limits.
type PartitionSpec struct {
	ID              string
	Category        string
	MaxCores        int
	MaxMemPerCoreGB float64
	MaxWalltime     time.Duration

	// MinRecommendedCores, when set, marks a partition meant for wide jobs;
	// requests below it draw an efficiency warning.
	MinRecommendedCores int
}

// QosSpec describes a quality-of-service class and the partitions it
// applies to.
type QosSpec struct {
	ID                string
	MaxWalltimeHours  float64
	MaxConcurrentJobs int
	NodeLimit         int
	Partitions        []string
	Priority          string
}

// AllowsPartition reports whether the QoS may be used with the partition.
func (q QosSpec) AllowsPartition(partitionID string) bool {
	for _, p := range q.Partitions {
		if p == partitionID {
			return true
		}
	}
	return false
}

// Rates are the cluster's billing constants in service units (SU).
type Rates struct {
	CPUSUPerCoreHour float64
	GPUSUPerGPUHour  float64
}

// Catalog is the loaded policy reference data. Read-only after Load; safe
// for concurrent use without locking.
type Catalog struct {
	partitions map[string]PartitionSpec
	qos        map[string]QosSpec
	qosOrder   []string
	rates      Rates
}

// raw mirrors catalog.toml
type rawCatalog struct {
	Rates struct {
		CPUSUPerCoreHour float64 `toml:"cpu_su_per_core_hour"`
		GPUSUPerGPUHour  float64 `toml:"gpu_su_per_gpu_hour"`
	} `toml:"rates"`
	Partitions []struct {
		ID                  string  `toml:"id"`
		Category            string  `toml:"category"`
		MaxCores            int     `toml:"max_cores"`
		MaxMemPerCoreGB     float64 `toml:"max_mem_per_core_gb"`
		MaxWalltime         string  `toml:"max_walltime"`
		MinRecommendedCores int     `toml:"min_recommended_cores"`
	} `toml:"partitions"`
	Qos []struct {
		ID                string   `toml:"id"`
		MaxWalltimeHours  float64  `toml:"max_walltime_hours"`
		MaxConcurrentJobs int      `toml:"max_concurrent_jobs"`
		NodeLimit         int      `toml:"node_limit"`
		Partitions        []string `toml:"partitions"`
		Priority          string   `toml:"priority"`
	} `toml:"qos"`
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return parse(catalogTOML)
}

// MustLoad is Load for callers that treat a broken embedded catalog as a
// build defect (the CLI, tests).
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func parse(data []byte) (*Catalog, error) {
	var raw rawCatalog
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse policy catalog")
	}

	c := &Catalog{
		partitions: make(map[string]PartitionSpec, len(raw.Partitions)),
		qos:        make(map[string]QosSpec, len(raw.Qos)),
		rates: Rates{
			CPUSUPerCoreHour: raw.Rates.CPUSUPerCoreHour,
			GPUSUPerGPUHour:  raw.Rates.GPUSUPerGPUHour,
		},
	}

	for _, p := range raw.Partitions {
		wall, err := job.ParseWalltime(p.MaxWalltime)
		if err != nil {
			return nil, errors.Wrapf(err, "partition %s max_walltime", p.ID)
		}
		if _, dup := c.partitions[p.ID]; dup {
			return nil, errors.Newf("duplicate partition id %q", p.ID)
		}
		c.partitions[p.ID] = PartitionSpec{
			ID:                  p.ID,
			Category:            p.Category,
			MaxCores:            p.MaxCores,
			MaxMemPerCoreGB:     p.MaxMemPerCoreGB,
			MaxWalltime:         wall,
			MinRecommendedCores: p.MinRecommendedCores,
		}
	}

	for _, q := range raw.Qos {
		if _, dup := c.qos[q.ID]; dup {
			return nil, errors.Newf("duplicate qos id %q", q.ID)
		}
		for _, pid := range q.Partitions {
			if _, ok := c.partitions[pid]; !ok {
				return nil, errors.Newf("qos %q references unknown partition %q", q.ID, pid)
			}
		}
		c.qos[q.ID] = QosSpec{
			ID:                q.ID,
			MaxWalltimeHours:  q.MaxWalltimeHours,
			MaxConcurrentJobs: q.MaxConcurrentJobs,
			NodeLimit:         q.NodeLimit,
			Partitions:        q.Partitions,
			Priority:          q.Priority,
		}
		c.qosOrder = append(c.qosOrder, q.ID)
	}

	return c, nil
}

// Partition looks up a partition by id.
func (c *Catalog) Partition(id string) (PartitionSpec, bool) {
	p, ok := c.partitions[id]
	return p, ok
}

// Qos looks up a QoS class by id.
func (c *Catalog) Qos(id string) (QosSpec, bool) {
	q, ok := c.qos[id]
	return q, ok
}

// QosOptions returns the closed set of QoS ids in catalog order.
func (c *Catalog) QosOptions() []string {
	out := make([]string, len(c.qosOrder))
	copy(out, c.qosOrder)
	return out
}

// Partitions returns all partition ids in no particular order.
func (c *Catalog) Partitions() []string {
	out := make([]string, 0, len(c.partitions))
	for id := range c.partitions {
		out = append(out, id)
	}
	return out
}

// Rates returns the billing constants.
func (c *Catalog) Rates() Rates {
	return c.rates
}
