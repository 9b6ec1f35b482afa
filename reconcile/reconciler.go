// Package reconcile keeps the local job store consistent with the remote
// scheduler. A sync pass polls every active job, commits observed state
// through the store, and isolates per-job failures so one unreachable job
// never blocks the rest. Passes are single-flight: concurrent callers
// coalesce onto the pass already running and share its outcome.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/gateway"
	"github.com/helicase/mdq/job"
	"github.com/helicase/mdq/logger"
	"github.com/helicase/mdq/store"
)

// missingPassesBeforeUnknown is how many consecutive passes a job's remote
// id must be absent from the scheduler before the job is presumed lost. One
// absence can be a scheduler hiccup; two in a row is a verdict.
const missingPassesBeforeUnknown = 2

// Delta records one state change committed during a pass.
type Delta struct {
	JobID    string
	RemoteID string
	From     job.State
	To       job.State
}

// Failure records one job the pass could not reconcile. The pass itself
// still succeeds; failed jobs are retried next time.
type Failure struct {
	JobID string
	Err   error
}

// Outcome summarizes one completed sync pass.
type Outcome struct {
	Synced           int
	Deltas           []Delta
	Discovered       []string
	PresumedTerminal []string
	Failures         []Failure
	StartedAt        time.Time
	FinishedAt       time.Time
}

type pass struct {
	done    chan struct{}
	outcome *Outcome
	err     error
}

// Reconciler drives sync and discovery against one store/gateway pair.
type Reconciler struct {
	store *store.Store
	gw    gateway.Gateway

	mu            sync.Mutex
	inflight      *pass
	bootstrapDone bool
}

// New creates a reconciler.
func New(s *store.Store, gw gateway.Gateway) *Reconciler {
	return &Reconciler{store: s, gw: gw}
}

// Sync runs one reconciliation pass. If a pass is already running, the call
// waits for it and returns that pass's outcome instead of starting another:
// back-to-back triggers (timer firing during a manual sync) do one pass's
// worth of scheduler traffic, not two.
func (r *Reconciler) Sync(ctx context.Context) (*Outcome, error) {
	r.mu.Lock()
	if p := r.inflight; p != nil {
		r.mu.Unlock()
		select {
		case <-p.done:
			return p.outcome, p.err
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "abandoned wait for in-flight sync")
		}
	}
	p := &pass{done: make(chan struct{})}
	r.inflight = p
	r.mu.Unlock()

	p.outcome, p.err = r.runPass(ctx)

	r.mu.Lock()
	r.inflight = nil
	r.mu.Unlock()
	close(p.done)

	return p.outcome, p.err
}

func (r *Reconciler) runPass(ctx context.Context) (*Outcome, error) {
	outcome := &Outcome{StartedAt: time.Now()}

	// A fresh installation starts with discovery so jobs submitted outside
	// mdq show up without anyone asking. Once only; after that, discovery
	// is explicit.
	if !r.bootstrapped() {
		n, err := r.store.Count()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			discovered, _, err := r.Discover(ctx)
			if err != nil {
				logger.Logger.Warnw("Bootstrap discovery failed", "error", err)
			}
			for _, d := range discovered {
				outcome.Discovered = append(outcome.Discovered, d.ID)
			}
		}
		r.markBootstrapped()
	}

	active, err := r.store.ListActive()
	if err != nil {
		return nil, err
	}

	for _, j := range active {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "sync pass interrupted")
		}
		if !j.HasRemote() {
			continue
		}

		report, err := r.gw.QueryStatus(ctx, j.RemoteID)
		switch {
		case err == nil:
			delta, aerr := r.apply(j, report)
			if aerr != nil {
				outcome.Failures = append(outcome.Failures, Failure{JobID: j.ID, Err: aerr})
				continue
			}
			outcome.Synced++
			if delta != nil {
				outcome.Deltas = append(outcome.Deltas, *delta)
			}

		case errors.IsNotFound(err):
			presumed, merr := r.markMissing(j)
			if merr != nil {
				outcome.Failures = append(outcome.Failures, Failure{JobID: j.ID, Err: merr})
				continue
			}
			outcome.Synced++
			if presumed {
				outcome.PresumedTerminal = append(outcome.PresumedTerminal, j.ID)
				outcome.Deltas = append(outcome.Deltas, Delta{
					JobID:    j.ID,
					RemoteID: j.RemoteID,
					From:     j.State,
					To:       job.StateUnknown,
				})
			}

		default:
			// Transport or parse trouble for this one job. Leave it alone;
			// the next pass retries.
			outcome.Failures = append(outcome.Failures, Failure{JobID: j.ID, Err: err})
			logger.Logger.Debugw("Sync skipped job",
				"job_id", j.ID,
				"remote_id", j.RemoteID,
				"error", err)
		}
	}

	outcome.FinishedAt = time.Now()
	logger.Logger.Infow("Sync pass complete",
		"synced", outcome.Synced,
		"deltas", len(outcome.Deltas),
		"discovered", len(outcome.Discovered),
		"presumed_terminal", len(outcome.PresumedTerminal),
		"failures", len(outcome.Failures),
		"elapsed", outcome.FinishedAt.Sub(outcome.StartedAt))
	return outcome, nil
}

// apply commits one status observation. The store discards observations
// older than what it has already seen, and the transition table decides
// whether the observed state may be committed; an observation the table
// rejects (a scheduler-side requeue, say) still stamps the sync time so
// the record shows it was seen.
func (r *Reconciler) apply(j *job.Job, report *gateway.StatusReport) (*Delta, error) {
	var delta *Delta

	_, err := r.store.Update(j.ID, func(cur *job.Job) error {
		if cur.LastSyncedAt != nil && report.ObservedAt.Before(*cur.LastSyncedAt) {
			return nil // superseded by a later pass
		}

		to := job.StateForRemote(report.State, report.ExitCode)
		if to != cur.State && job.CanTransition(cur.State, to) {
			delta = &Delta{JobID: cur.ID, RemoteID: cur.RemoteID, From: cur.State, To: to}
			cur.State = to
		}

		if report.ExitCode != nil {
			cur.ExitCode = report.ExitCode
		}
		if report.Runtime > 0 {
			cur.Runtime = report.Runtime
		}
		cur.MissingStreak = 0
		observed := report.ObservedAt
		cur.LastSyncedAt = &observed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if delta != nil {
		logger.Logger.Infow("Job state changed",
			"job_id", delta.JobID,
			"remote_id", delta.RemoteID,
			"from", delta.From,
			"to", delta.To)
	}
	return delta, nil
}

// markMissing records that the scheduler has no trace of the job's remote
// id. After missingPassesBeforeUnknown consecutive absences the job is
// moved to the unknown state; the local record and its history survive.
func (r *Reconciler) markMissing(j *job.Job) (presumed bool, err error) {
	_, err = r.store.Update(j.ID, func(cur *job.Job) error {
		cur.MissingStreak++
		if cur.MissingStreak >= missingPassesBeforeUnknown && cur.State != job.StateUnknown {
			presumed = true
			cur.State = job.StateUnknown
		}
		now := time.Now()
		cur.LastSyncedAt = &now
		return nil
	})
	if err != nil {
		return false, err
	}

	if presumed {
		logger.Logger.Warnw("Job vanished from scheduler, presumed terminal",
			"job_id", j.ID,
			"remote_id", j.RemoteID)
	}
	return presumed, nil
}

// Discover lists the account's jobs on the scheduler and creates local
// records for the ones we have never seen. Returns the new records and
// whether the gateway supports discovery at all.
func (r *Reconciler) Discover(ctx context.Context) ([]*job.Job, bool, error) {
	remotes, supported, err := gateway.DiscoverOwned(ctx, r.gw)
	if !supported {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, errors.Wrap(err, "discovery listing failed")
	}

	var created []*job.Job
	for _, remote := range remotes {
		existing, err := r.store.GetByRemoteID(remote.RemoteID)
		if err != nil {
			return created, true, err
		}
		if existing != nil {
			continue
		}

		j, err := job.NewDiscovered(remote.RemoteID, remote.Name, job.ResourceRequest{
			Cores:     remote.Cores,
			Partition: remote.Partition,
			Walltime:  remote.Walltime,
		})
		if err != nil {
			return created, true, err
		}
		if err := r.store.Create(j); err != nil {
			// A concurrent pass may have created the record between the
			// lookup and the insert; the unique remote-id index catches it.
			if dup, derr := r.store.GetByRemoteID(remote.RemoteID); derr == nil && dup != nil {
				continue
			}
			return created, true, err
		}
		created = append(created, j)
		logger.Logger.Infow("Discovered scheduler job",
			"job_id", j.ID,
			"remote_id", remote.RemoteID,
			"name", j.Name)
	}
	return created, true, nil
}

func (r *Reconciler) bootstrapped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bootstrapDone
}

func (r *Reconciler) markBootstrapped() {
	r.mu.Lock()
	r.bootstrapDone = true
	r.mu.Unlock()
}
