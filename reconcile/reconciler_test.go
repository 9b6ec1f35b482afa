package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/gateway"
	mdqtesting "github.com/helicase/mdq/internal/testing"
	"github.com/helicase/mdq/internal/util"
	"github.com/helicase/mdq/job"
	"github.com/helicase/mdq/store"
)

// fakeGateway serves scripted status reports. It has no discovery
// capability; fakeDiscoveringGateway adds it.
type fakeGateway struct {
	mu        sync.Mutex
	statuses  map[string]*gateway.StatusReport
	statusErr map[string]error
	queries   int

	// When set, QueryStatus closes started once and then blocks until
	// release is closed. Used by the coalescing test.
	started chan struct{}
	release chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses:  make(map[string]*gateway.StatusReport),
		statusErr: make(map[string]error),
	}
}

func (g *fakeGateway) Submit(context.Context, *job.Job) (string, error) {
	return "", errors.New("not used in reconcile tests")
}

func (g *fakeGateway) QueryStatus(_ context.Context, remoteID string) (*gateway.StatusReport, error) {
	g.mu.Lock()
	g.queries++
	started, release := g.started, g.release
	g.started = nil
	err := g.statusErr[remoteID]
	report := g.statuses[remoteID]
	g.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, errors.NewNotFound("no stub for %s", remoteID)
	}
	cp := *report
	if cp.ObservedAt.IsZero() {
		cp.ObservedAt = time.Now()
	}
	return &cp, nil
}

func (g *fakeGateway) Cancel(context.Context, string) error { return nil }

func (g *fakeGateway) queryCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queries
}

type fakeDiscoveringGateway struct {
	*fakeGateway
	owned    []gateway.RemoteJob
	listings int
}

func (g *fakeDiscoveringGateway) ListOwnedJobs(context.Context) ([]gateway.RemoteJob, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listings++
	return g.owned, nil
}

// seedQueued walks a fresh job to queued with the given remote id attached.
func seedQueued(t *testing.T, s *store.Store, remoteID string) *job.Job {
	t.Helper()
	j, err := job.New("seed-"+remoteID, job.ResourceRequest{
		Cores:     48,
		MemoryGB:  96,
		Walltime:  24 * time.Hour,
		Partition: "general",
		Qos:       "normal",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Create(j))

	for _, to := range []job.State{job.StateValidated, job.StateSubmitted, job.StateQueued} {
		_, err = s.Update(j.ID, func(cur *job.Job) error {
			cur.State = to
			if to == job.StateSubmitted {
				cur.RemoteID = remoteID
				now := time.Now()
				cur.SubmittedAt = &now
			}
			return nil
		})
		require.NoError(t, err)
	}

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	return got
}

func TestSyncAppliesObservedState(t *testing.T) {
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	gw := newFakeGateway()
	j := seedQueued(t, s, "100")
	gw.statuses["100"] = &gateway.StatusReport{
		RemoteID: "100",
		State:    job.RemoteRunning,
		Runtime:  90 * time.Minute,
	}

	outcome, err := New(s, gw).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Synced)
	require.Len(t, outcome.Deltas, 1)
	assert.Equal(t, job.StateQueued, outcome.Deltas[0].From)
	assert.Equal(t, job.StateRunning, outcome.Deltas[0].To)

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateRunning, got.State)
	assert.Equal(t, 90*time.Minute, got.Runtime)
	require.NotNil(t, got.LastSyncedAt)
	assert.Zero(t, got.MissingStreak)
}

func TestSyncNonZeroExitBecomesFailed(t *testing.T) {
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	gw := newFakeGateway()
	j := seedQueued(t, s, "200")
	gw.statuses["200"] = &gateway.StatusReport{
		RemoteID: "200",
		State:    job.RemoteCompleted,
		ExitCode: util.Ptr(137),
	}

	_, err := New(s, gw).Sync(context.Background())
	require.NoError(t, err)

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, got.State)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 137, *got.ExitCode)
}

func TestVanishedJobBecomesUnknownAfterTwoPasses(t *testing.T) {
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	gw := newFakeGateway()
	j := seedQueued(t, s, "300")
	gw.statusErr["300"] = errors.NewNotFound("scheduler has no record of job 300")

	r := New(s, gw)

	// One absence: a hiccup, not a verdict.
	outcome, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcome.PresumedTerminal)
	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateQueued, got.State)
	assert.Equal(t, 1, got.MissingStreak)

	// Second consecutive absence: presumed terminal.
	outcome, err = r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{j.ID}, outcome.PresumedTerminal)
	got, err = s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateUnknown, got.State)
	assert.True(t, got.State.IsTerminal())
}

func TestReappearanceResetsMissingStreak(t *testing.T) {
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	gw := newFakeGateway()
	j := seedQueued(t, s, "310")
	gw.statusErr["310"] = errors.NewNotFound("gone")

	r := New(s, gw)
	_, err := r.Sync(context.Background())
	require.NoError(t, err)

	// Job shows up again before the second strike.
	gw.mu.Lock()
	delete(gw.statusErr, "310")
	gw.statuses["310"] = &gateway.StatusReport{RemoteID: "310", State: job.RemoteRunning}
	gw.mu.Unlock()

	_, err = r.Sync(context.Background())
	require.NoError(t, err)
	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateRunning, got.State)
	assert.Zero(t, got.MissingStreak)
}

func TestTransportFailureIsIsolatedPerJob(t *testing.T) {
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	gw := newFakeGateway()
	broken := seedQueued(t, s, "400")
	healthy := seedQueued(t, s, "401")
	gw.statusErr["400"] = errors.Wrap(errors.ErrTransport, "controller unreachable")
	gw.statuses["401"] = &gateway.StatusReport{RemoteID: "401", State: job.RemoteRunning}

	outcome, err := New(s, gw).Sync(context.Background())
	require.NoError(t, err, "a per-job failure must not fail the pass")
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, broken.ID, outcome.Failures[0].JobID)
	assert.True(t, errors.IsTransport(outcome.Failures[0].Err))

	// The broken job is untouched, the healthy one advanced.
	gotBroken, err := s.Get(broken.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateQueued, gotBroken.State)
	assert.Zero(t, gotBroken.MissingStreak, "transport failure is not evidence of vanishing")

	gotHealthy, err := s.Get(healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateRunning, gotHealthy.State)
}

func TestStaleObservationIsDiscarded(t *testing.T) {
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	gw := newFakeGateway()
	j := seedQueued(t, s, "500")

	// Move the record forward with a fresh observation first.
	gw.statuses["500"] = &gateway.StatusReport{RemoteID: "500", State: job.RemoteRunning}
	r := New(s, gw)
	_, err := r.Sync(context.Background())
	require.NoError(t, err)

	// Now serve an observation stamped before the last sync.
	gw.mu.Lock()
	gw.statuses["500"] = &gateway.StatusReport{
		RemoteID:   "500",
		State:      job.RemotePending,
		ObservedAt: time.Now().Add(-time.Hour),
	}
	gw.mu.Unlock()

	outcome, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcome.Deltas)

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateRunning, got.State, "stale observation must not roll state back")
}

func TestDiscoverCreatesOnlyUnseenJobs(t *testing.T) {
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	gw := &fakeDiscoveringGateway{fakeGateway: newFakeGateway(), owned: []gateway.RemoteJob{
		{RemoteID: "600", Name: "prod-npt", State: job.RemoteRunning, Cores: 128, Partition: "highcore"},
		{RemoteID: "601", State: job.RemotePending},
	}}

	known := seedQueued(t, s, "600")

	created, supported, err := New(s, gw).Discover(context.Background())
	require.NoError(t, err)
	assert.True(t, supported)
	require.Len(t, created, 1)

	d := created[0]
	assert.Equal(t, "601", d.RemoteID)
	assert.Equal(t, job.StateDiscovered, d.State)
	assert.Equal(t, "discovered-601", d.Name)
	assert.True(t, d.Request.Partial)
	assert.NotEqual(t, known.ID, d.ID)

	// Idempotent: a second discovery finds nothing new.
	created, _, err = New(s, gw).Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestDiscoverWithoutCapability(t *testing.T) {
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	created, supported, err := New(s, newFakeGateway()).Discover(context.Background())
	require.NoError(t, err)
	assert.False(t, supported)
	assert.Empty(t, created)
}

func TestFirstSyncBootstrapsDiscoveryOnce(t *testing.T) {
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	gw := &fakeDiscoveringGateway{fakeGateway: newFakeGateway(), owned: []gateway.RemoteJob{
		{RemoteID: "700", State: job.RemoteRunning},
	}}
	gw.statuses["700"] = &gateway.StatusReport{RemoteID: "700", State: job.RemoteRunning}

	r := New(s, gw)

	outcome, err := r.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, outcome.Discovered, 1)
	assert.Equal(t, 1, gw.listings)

	// Later passes never re-run the bootstrap.
	outcome, err = r.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcome.Discovered)
	assert.Equal(t, 1, gw.listings)
}

func TestConcurrentSyncsCoalesce(t *testing.T) {
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	gw := newFakeGateway()
	seedQueued(t, s, "800")
	gw.statuses["800"] = &gateway.StatusReport{RemoteID: "800", State: job.RemoteRunning}

	started := make(chan struct{})
	release := make(chan struct{})
	gw.started = started
	gw.release = release

	r := New(s, gw)

	type result struct {
		outcome *Outcome
		err     error
	}
	results := make(chan result, 2)
	go func() {
		o, err := r.Sync(context.Background())
		results <- result{o, err}
	}()

	<-started // the first pass is mid-flight

	go func() {
		o, err := r.Sync(context.Background())
		results <- result{o, err}
	}()
	// Give the second caller time to reach the coalescing wait.
	time.Sleep(50 * time.Millisecond)
	close(release)

	a := <-results
	b := <-results
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Same(t, a.outcome, b.outcome, "both callers must share one pass")
	assert.Equal(t, 1, gw.queryCount(), "one job, one pass, one scheduler call")
}
