package admission

import (
	"math"

	"github.com/helicase/mdq/policy"
)

// SuggestQos picks the QoS class a request of the given walltime on the
// given partition should use. Total over its inputs: unknown partitions get
// the normal QoS. Precedence is fixed — first matching rule wins:
//
//  1. memory partitions always take the memory QoS
//  2. testing-family partitions take the testing QoS
//  3. the compile partition takes the compile QoS
//  4. walltime over 24h takes the long QoS where the partition supports it
//  5. everything else takes normal
func SuggestQos(walltimeHours float64, partitionID string, catalog *policy.Catalog) string {
	partition, ok := catalog.Partition(partitionID)
	if !ok {
		return policy.QosNormal
	}

	switch {
	case partition.Category == policy.CategoryMemory:
		return policy.QosMemory
	case partition.Category == policy.CategoryTesting:
		return policy.QosTesting
	case partition.ID == policy.PartitionCompile:
		return policy.QosCompile
	}

	if walltimeHours > 24 {
		if long, ok := catalog.Qos(policy.QosLong); ok && long.AllowsPartition(partitionID) {
			return policy.QosLong
		}
	}
	return policy.QosNormal
}

// EstimateQueueTime returns a coarse, human-readable wait estimate for a
// request. This is advisory text derived from historical banding, not a
// guarantee of any kind — actual queue times depend on cluster load.
func EstimateQueueTime(cores int, partitionID string, catalog *policy.Catalog) string {
	partition, ok := catalog.Partition(partitionID)
	if !ok {
		return estimateComputeBand(cores)
	}

	if partition.Category == policy.CategoryTesting || partition.ID == policy.PartitionCompile {
		return "under 15 minutes"
	}

	if partition.Category == policy.CategoryGPU {
		switch {
		case cores <= 32:
			return "2-12 hours"
		case cores <= 64:
			return "12-48 hours"
		default:
			return "2-5 days"
		}
	}

	return estimateComputeBand(cores)
}

func estimateComputeBand(cores int) string {
	switch {
	case cores <= 24:
		return "under 1 hour"
	case cores <= 48:
		return "1-6 hours"
	case cores <= 128:
		return "6-24 hours"
	default:
		return "1-3 days"
	}
}

// CalculateCost returns the service-unit price of an allocation, rounded to
// the nearest whole SU. Rates come from the catalog, never from here.
func CalculateCost(cores int, walltimeHours float64, hasGPU bool, gpuCount int, rates policy.Rates) int {
	cost := float64(cores) * walltimeHours * rates.CPUSUPerCoreHour
	if hasGPU {
		cost += float64(gpuCount) * walltimeHours * rates.GPUSUPerGPUHour
	}
	return int(math.Round(cost))
}
