package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helicase/mdq/job"
)

type plainGateway struct {
	submits int
	queries int
	cancels int
}

func (g *plainGateway) Submit(context.Context, *job.Job) (string, error) {
	g.submits++
	return "1", nil
}

func (g *plainGateway) QueryStatus(context.Context, string) (*StatusReport, error) {
	g.queries++
	return &StatusReport{RemoteID: "1", State: job.RemoteRunning}, nil
}

func (g *plainGateway) Cancel(context.Context, string) error {
	g.cancels++
	return nil
}

type discoveringGateway struct {
	plainGateway
	listings int
}

func (g *discoveringGateway) ListOwnedJobs(context.Context) ([]RemoteJob, error) {
	g.listings++
	return []RemoteJob{{RemoteID: "1"}}, nil
}

func TestThrottledPassesCallsThrough(t *testing.T) {
	inner := &plainGateway{}
	g := NewThrottled(inner, 600)

	ctx := context.Background()
	id, err := g.Submit(ctx, &job.Job{})
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	_, err = g.QueryStatus(ctx, "1")
	require.NoError(t, err)
	require.NoError(t, g.Cancel(ctx, "1"))

	assert.Equal(t, 1, inner.submits)
	assert.Equal(t, 1, inner.queries)
	assert.Equal(t, 1, inner.cancels)
}

func TestThrottledPreservesDiscoveryCapability(t *testing.T) {
	ctx := context.Background()

	withDiscovery := NewThrottled(&discoveringGateway{}, 600)
	jobs, supported, err := DiscoverOwned(ctx, withDiscovery)
	require.NoError(t, err)
	assert.True(t, supported)
	assert.Len(t, jobs, 1)

	withoutDiscovery := NewThrottled(&plainGateway{}, 600)
	_, supported, err = DiscoverOwned(ctx, withoutDiscovery)
	require.NoError(t, err)
	assert.False(t, supported)
}

func TestZeroBudgetDisablesThrottling(t *testing.T) {
	inner := &plainGateway{}
	assert.Equal(t, Gateway(inner), NewThrottled(inner, 0))
}

func TestThrottledWaitAbortsOnCancelledContext(t *testing.T) {
	g := NewThrottled(&plainGateway{}, 1) // burst of 1, then ~1 call/min

	ctx := context.Background()
	_, err := g.QueryStatus(ctx, "1") // consumes the burst
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.QueryStatus(cancelled, "1")
	assert.Error(t, err)
}
