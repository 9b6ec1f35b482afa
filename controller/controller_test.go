package controller

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helicase/mdq/config"
	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/gateway"
	mdqtesting "github.com/helicase/mdq/internal/testing"
	"github.com/helicase/mdq/job"
	"github.com/helicase/mdq/policy"
	"github.com/helicase/mdq/reconcile"
	"github.com/helicase/mdq/store"
)

type fakeGateway struct {
	mu         sync.Mutex
	submits    int
	cancels    []string
	nextID     int
	submitErr  error
	cancelErr  error
	lastSubmit *job.Job
}

func (g *fakeGateway) Submit(_ context.Context, j *job.Job) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits++
	g.lastSubmit = j
	if g.submitErr != nil {
		return "", g.submitErr
	}
	g.nextID++
	return strconv.Itoa(9000 + g.nextID), nil
}

func (g *fakeGateway) QueryStatus(context.Context, string) (*gateway.StatusReport, error) {
	return nil, errors.NewNotFound("not used")
}

func (g *fakeGateway) Cancel(_ context.Context, remoteID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancels = append(g.cancels, remoteID)
	return nil
}

func newController(t *testing.T) (*Controller, *fakeGateway, *store.Store) {
	t.Helper()
	s := store.NewStore(mdqtesting.CreateTestDB(t))
	gw := &fakeGateway{}
	rec := reconcile.New(s, gw)
	advisory := config.Advisory{SmallJobCores: 16, MemPerCoreGB: 2.0, LongQosHours: 48.0}
	return New(s, gw, rec, policy.MustLoad(), advisory), gw, s
}

func validRequest() job.ResourceRequest {
	return job.ResourceRequest{
		Cores:     48,
		MemoryGB:  96,
		Walltime:  24 * time.Hour,
		Partition: "general",
		Qos:       "normal",
	}
}

func TestCreateJobPersistsValidRequest(t *testing.T) {
	c, _, s := newController(t)

	j, result, err := c.CreateJob("membrane-eq", validRequest(), nil)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.NotNil(t, j)
	assert.Equal(t, job.StateCreated, j.State)

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, "membrane-eq", got.Name)
}

func TestCreateJobInvalidPersistsNothing(t *testing.T) {
	c, _, s := newController(t)

	req := validRequest()
	req.Partition = "nonesuch"
	j, result, err := c.CreateJob("doomed", req, nil)
	require.NoError(t, err)
	assert.Nil(t, j)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Issues)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n, "invalid request must persist nothing")
}

func TestSubmitJobHappyPath(t *testing.T) {
	c, gw, _ := newController(t)
	j, _, err := c.CreateJob("eq", validRequest(), nil)
	require.NoError(t, err)

	submitted, err := c.SubmitJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateSubmitted, submitted.State)
	assert.True(t, submitted.HasRemote())
	require.NotNil(t, submitted.SubmittedAt)

	// The gateway saw the job after re-validation moved it to validated.
	require.NotNil(t, gw.lastSubmit)
	assert.Equal(t, job.StateValidated, gw.lastSubmit.State)
}

func TestSubmitJobRejectionLeavesJobSubmittable(t *testing.T) {
	c, gw, s := newController(t)
	j, _, err := c.CreateJob("eq", validRequest(), nil)
	require.NoError(t, err)

	gw.submitErr = errors.Wrap(errors.ErrSubmissionRejected, "sbatch: quota exceeded")
	_, err = c.SubmitJob(context.Background(), j.ID)
	require.Error(t, err)
	assert.True(t, errors.IsSubmissionRejected(err))

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateValidated, got.State)
	assert.False(t, got.HasRemote())

	// Retry after the quota clears.
	gw.submitErr = nil
	submitted, err := c.SubmitJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateSubmitted, submitted.State)
}

func TestSubmitJobTwiceIsConsistencyError(t *testing.T) {
	c, gw, _ := newController(t)
	j, _, err := c.CreateJob("eq", validRequest(), nil)
	require.NoError(t, err)

	_, err = c.SubmitJob(context.Background(), j.ID)
	require.NoError(t, err)

	_, err = c.SubmitJob(context.Background(), j.ID)
	require.Error(t, err)
	assert.True(t, errors.IsConsistency(err))
	assert.Equal(t, 1, gw.submits, "second submit must never reach the scheduler")
}

func TestConcurrentSubmitsExactlyOneWins(t *testing.T) {
	c, gw, _ := newController(t)
	j, _, err := c.CreateJob("contended", validRequest(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.SubmitJob(context.Background(), j.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, consistency int
	for err := range errs {
		if err == nil {
			wins++
		} else if errors.IsConsistency(err) {
			consistency++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, consistency)
	assert.Equal(t, 1, gw.submits)
}

func TestSubmitUnknownJob(t *testing.T) {
	c, _, _ := newController(t)
	_, err := c.SubmitJob(context.Background(), "no-such-id")
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteJobLocalOnly(t *testing.T) {
	c, gw, s := newController(t)
	j, _, err := c.CreateJob("local", validRequest(), nil)
	require.NoError(t, err)
	_, err = c.SubmitJob(context.Background(), j.ID)
	require.NoError(t, err)

	require.NoError(t, c.DeleteJob(context.Background(), j.ID, false))
	assert.Empty(t, gw.cancels, "local delete must not touch the scheduler")

	_, err = s.Get(j.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteJobWithRemoteCancels(t *testing.T) {
	c, gw, s := newController(t)
	j, _, err := c.CreateJob("remote", validRequest(), nil)
	require.NoError(t, err)
	submitted, err := c.SubmitJob(context.Background(), j.ID)
	require.NoError(t, err)

	require.NoError(t, c.DeleteJob(context.Background(), j.ID, true))
	assert.Equal(t, []string{submitted.RemoteID}, gw.cancels)

	_, err = s.Get(j.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteJobCancelFailureKeepsRecord(t *testing.T) {
	c, gw, s := newController(t)
	j, _, err := c.CreateJob("stuck", validRequest(), nil)
	require.NoError(t, err)
	_, err = c.SubmitJob(context.Background(), j.ID)
	require.NoError(t, err)

	gw.cancelErr = errors.Wrap(errors.ErrTransport, "controller unreachable")
	err = c.DeleteJob(context.Background(), j.ID, true)
	require.Error(t, err)

	// The record survives so the job is not orphaned on the cluster.
	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.True(t, got.HasRemote())
}

func TestDeleteRemoteWithoutRemoteIDIsConsistencyError(t *testing.T) {
	c, _, _ := newController(t)
	j, _, err := c.CreateJob("never-submitted", validRequest(), nil)
	require.NoError(t, err)

	err = c.DeleteJob(context.Background(), j.ID, true)
	require.Error(t, err)
	assert.True(t, errors.IsConsistency(err))
}

func TestDeleteTerminalJobSkipsCancel(t *testing.T) {
	c, gw, s := newController(t)
	j, _, err := c.CreateJob("done", validRequest(), nil)
	require.NoError(t, err)
	_, err = c.SubmitJob(context.Background(), j.ID)
	require.NoError(t, err)

	for _, to := range []job.State{job.StateQueued, job.StateRunning, job.StateCompleted} {
		_, err = s.Update(j.ID, func(cur *job.Job) error {
			cur.State = to
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, c.DeleteJob(context.Background(), j.ID, true))
	assert.Empty(t, gw.cancels, "terminal jobs are never cancelled remotely")
}

func TestEstimateSubmission(t *testing.T) {
	c, _, _ := newController(t)

	cost, band := c.EstimateSubmission(validRequest())
	assert.Equal(t, 1152, cost)
	assert.Equal(t, "1-6 hours", band)

	gpuReq := job.ResourceRequest{
		Cores: 64, MemoryGB: 128, Walltime: 24 * time.Hour,
		Partition: "gpu", Qos: "normal",
	}
	cost, band = c.EstimateSubmission(gpuReq)
	assert.Equal(t, 4133, cost)
	assert.Equal(t, "12-48 hours", band)
}
