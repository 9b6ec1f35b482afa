// Package controller implements the job lifecycle operations: create,
// submit, delete, plus the query and sync entry points the CLI calls. It
// owns the ordering of validation, persistence and gateway calls; the store
// enforces what it persists, the gateway talks to the scheduler.
package controller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/helicase/mdq/admission"
	"github.com/helicase/mdq/config"
	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/gateway"
	"github.com/helicase/mdq/job"
	"github.com/helicase/mdq/logger"
	"github.com/helicase/mdq/policy"
	"github.com/helicase/mdq/reconcile"
	"github.com/helicase/mdq/store"
)

// Controller wires the store, gateway and reconciler into the lifecycle
// operations.
type Controller struct {
	store    *store.Store
	gw       gateway.Gateway
	rec      *reconcile.Reconciler
	catalog  *policy.Catalog
	advisory config.Advisory

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a controller.
func New(s *store.Store, gw gateway.Gateway, rec *reconcile.Reconciler, catalog *policy.Catalog, advisory config.Advisory) *Controller {
	return &Controller{
		store:    s,
		gw:       gw,
		rec:      rec,
		catalog:  catalog,
		advisory: advisory,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockJob serializes lifecycle operations on one job. The store has its own
// per-job section for commits; this lock additionally covers the gateway
// call inside submit and delete, so two submits of the same job cannot both
// reach the scheduler.
func (c *Controller) lockJob(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Validate checks a request against cluster policy without touching any
// state. The dry-run behind the validate verb.
func (c *Controller) Validate(req job.ResourceRequest) admission.Result {
	return admission.Validate(req, c.catalog, c.advisory)
}

// CreateJob validates a request and, if it passes, persists a new job in
// the created state. On validation failure nothing is persisted and the
// full result (every issue, warning and suggestion) comes back with a nil
// job.
func (c *Controller) CreateJob(name string, req job.ResourceRequest, simConfig json.RawMessage) (*job.Job, admission.Result, error) {
	result := admission.Validate(req, c.catalog, c.advisory)
	if !result.Valid {
		return nil, result, nil
	}

	j, err := job.New(name, req, simConfig)
	if err != nil {
		return nil, result, err
	}
	if err := c.store.Create(j); err != nil {
		return nil, result, err
	}

	logger.Logger.Infow("Created job",
		"job_id", j.ID,
		"name", name,
		"partition", req.Partition,
		"qos", req.Qos,
		"cores", req.Cores)
	return j, result, nil
}

// SubmitJob hands a created or validated job to the scheduler. The request
// is re-validated first: policy may have changed since the job was created.
// On scheduler rejection or transport failure the job stays validated and
// can be submitted again. Success commits the remote id, the submitted
// state and the submission time in one write.
func (c *Controller) SubmitJob(ctx context.Context, id string) (*job.Job, error) {
	unlock := c.lockJob(id)
	defer unlock()

	j, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if j.State != job.StateCreated && j.State != job.StateValidated {
		return nil, errors.NewConsistency("job %s is %s; only created or validated jobs can be submitted", id, j.State)
	}

	result := admission.Validate(j.Request, c.catalog, c.advisory)
	if !result.Valid {
		err := errors.Newf("job %s no longer passes validation", id)
		for _, issue := range result.Issues {
			err = errors.WithDetailf(err, "%s: %s", issue.Field, issue.Message)
		}
		return nil, err
	}

	j, err = c.store.Update(id, func(cur *job.Job) error {
		cur.State = job.StateValidated
		return nil
	})
	if err != nil {
		return nil, err
	}

	remoteID, err := c.gw.Submit(ctx, j)
	if err != nil {
		// Rejected or unreachable: the job keeps its validated state and
		// stays submittable.
		logger.Logger.Warnw("Submission failed", "job_id", id, "error", err)
		return nil, err
	}

	j, err = c.store.Update(id, func(cur *job.Job) error {
		cur.State = job.StateSubmitted
		cur.RemoteID = remoteID
		now := time.Now()
		cur.SubmittedAt = &now
		return nil
	})
	if err != nil {
		// The scheduler accepted but the commit failed; the next sync pass
		// will surface the job through its remote id.
		return nil, errors.Wrapf(err, "job %s submitted as %s but the local commit failed", id, remoteID)
	}

	logger.Logger.Infow("Submitted job", "job_id", id, "remote_id", remoteID)
	return j, nil
}

// DeleteJob removes a job's local record. With deleteRemote, the remote job
// is cancelled first; if that cancel fails the record is kept so the job is
// not orphaned on the cluster. Deleting a terminal job never touches the
// scheduler.
func (c *Controller) DeleteJob(ctx context.Context, id string, deleteRemote bool) error {
	unlock := c.lockJob(id)
	defer unlock()

	j, err := c.store.Get(id)
	if err != nil {
		return err
	}

	if deleteRemote {
		if !j.HasRemote() {
			return errors.NewConsistency("job %s has no remote id; nothing to cancel on the scheduler", id)
		}
		if !j.State.IsTerminal() {
			if err := c.gw.Cancel(ctx, j.RemoteID); err != nil {
				return errors.Wrapf(err, "job %s not deleted; cancel %s failed", id, j.RemoteID)
			}
		}
	}

	if err := c.store.Delete(id); err != nil {
		return err
	}
	logger.Logger.Infow("Deleted job", "job_id", id, "remote_delete", deleteRemote)
	return nil
}

// GetJob returns one job by local id.
func (c *Controller) GetJob(id string) (*job.Job, error) {
	return c.store.Get(id)
}

// GetAllJobs returns every local job, newest first.
func (c *Controller) GetAllJobs() ([]*job.Job, error) {
	return c.store.List()
}

// SyncJobs runs (or joins) one reconciliation pass.
func (c *Controller) SyncJobs(ctx context.Context) (*reconcile.Outcome, error) {
	return c.rec.Sync(ctx)
}

// DiscoverJobs imports scheduler jobs that have no local record. The bool
// reports whether the gateway supports discovery.
func (c *Controller) DiscoverJobs(ctx context.Context) ([]*job.Job, bool, error) {
	return c.rec.Discover(ctx)
}

// EstimateSubmission returns the advisory cost and queue-time estimates
// shown before a submit is confirmed.
func (c *Controller) EstimateSubmission(req job.ResourceRequest) (costSU int, queueTime string) {
	p, ok := c.catalog.Partition(req.Partition)
	hasGPU := ok && p.Category == policy.CategoryGPU
	gpuCount := 0
	if hasGPU {
		// One GPU per allocation until requests carry an explicit count.
		gpuCount = 1
	}
	costSU = admission.CalculateCost(req.Cores, req.WalltimeHours(), hasGPU, gpuCount, c.catalog.Rates())
	queueTime = admission.EstimateQueueTime(req.Cores, req.Partition, c.catalog)
	return costSU, queueTime
}
