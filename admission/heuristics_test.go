package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helicase/mdq/policy"
)

func TestSuggestQosPrecedence(t *testing.T) {
	c := policy.MustLoad()

	cases := []struct {
		hours     float64
		partition string
		want      string
	}{
		{1, "bigmem", policy.QosMemory},
		{200, "bigmem", policy.QosMemory}, // memory beats walltime
		{1, "test", policy.QosTesting},
		{48, "test", policy.QosTesting},
		{1, "compile", policy.QosCompile},
		{72, "compile", policy.QosCompile}, // compile beats walltime
		{25, "general", policy.QosLong},
		{25, "highcore", policy.QosLong},
		{25, "gpu", policy.QosNormal}, // long QoS not valid on gpu
		{24, "general", policy.QosNormal},
		{1, "general", policy.QosNormal},
	}
	for _, tc := range cases {
		got := SuggestQos(tc.hours, tc.partition, c)
		assert.Equal(t, tc.want, got, "%.0fh on %s", tc.hours, tc.partition)
	}
}

func TestSuggestQosIsTotalAndDeterministic(t *testing.T) {
	c := policy.MustLoad()
	options := map[string]bool{}
	for _, id := range c.QosOptions() {
		options[id] = true
	}

	partitions := append(c.Partitions(), "no-such-partition", "")
	for _, p := range partitions {
		for _, hours := range []float64{0, 0.5, 24, 24.1, 48, 168, 10000} {
			first := SuggestQos(hours, p, c)
			assert.True(t, options[first], "suggestion %q for (%f, %q) outside QoS options", first, hours, p)
			assert.Equal(t, first, SuggestQos(hours, p, c), "must be deterministic")
		}
	}
}

func TestEstimateQueueTimeBands(t *testing.T) {
	c := policy.MustLoad()

	// Testing-family and compile always get the shortest band
	assert.Equal(t, "under 15 minutes", EstimateQueueTime(16, "test", c))
	assert.Equal(t, "under 15 minutes", EstimateQueueTime(8, "compile", c))

	// GPU banding at 32/64
	assert.Equal(t, "2-12 hours", EstimateQueueTime(32, "gpu", c))
	assert.Equal(t, "12-48 hours", EstimateQueueTime(64, "gpu", c))
	assert.Equal(t, "2-5 days", EstimateQueueTime(65, "gpu-a100", c))

	// Compute banding at 24/48/128
	assert.Equal(t, "under 1 hour", EstimateQueueTime(24, "general", c))
	assert.Equal(t, "1-6 hours", EstimateQueueTime(48, "general", c))
	assert.Equal(t, "6-24 hours", EstimateQueueTime(128, "general", c))
	assert.Equal(t, "1-3 days", EstimateQueueTime(129, "highcore", c))
}

func TestCalculateCost(t *testing.T) {
	rates := policy.MustLoad().Rates()

	assert.Equal(t, 1152, CalculateCost(48, 24, false, 0, rates))
	// 64*24*1.0 + 1*24*108.2 = 4132.8, rounds to 4133
	assert.Equal(t, 4133, CalculateCost(64, 24, true, 1, rates))
	assert.Equal(t, 0, CalculateCost(0, 0, false, 0, rates))
	// gpuCount ignored when hasGPU is false
	assert.Equal(t, 1152, CalculateCost(48, 24, false, 4, rates))
}
