// Package gateway is the capability boundary to the remote batch scheduler.
// Everything the rest of mdq knows about the cluster passes through the
// Gateway interface; implementations own command invocation, wire formats
// and state-vocabulary translation.
package gateway

import (
	"context"
	"time"

	"github.com/helicase/mdq/job"
)

// StatusReport is one observation of a remote job, stamped with the time it
// was taken so the store can discard observations superseded by a later pass.
type StatusReport struct {
	RemoteID   string
	State      job.RemoteState
	ExitCode   *int
	Runtime    time.Duration
	Reason     string
	ObservedAt time.Time
}

// RemoteJob is a scheduler-side record surfaced by discovery. Resource
// fields carry whatever the scheduler reported; discovery listings are
// often partial.
type RemoteJob struct {
	RemoteID  string
	Name      string
	State     job.RemoteState
	Cores     int
	Partition string
	Walltime  time.Duration
}

// Gateway issues commands against the remote scheduler. Implementations
// report failures through the error taxonomy: ErrSubmissionRejected when
// the scheduler refused a job, ErrNotFound when it no longer knows a remote
// id, ErrTransport/ErrTimeout when it could not be reached at all.
type Gateway interface {
	// Submit hands a job to the scheduler and returns its remote id.
	Submit(ctx context.Context, j *job.Job) (string, error)

	// QueryStatus reports the current remote state of one job.
	QueryStatus(ctx context.Context, remoteID string) (*StatusReport, error)

	// Cancel asks the scheduler to stop a job. Cancelling a job the
	// scheduler has already forgotten is not an error.
	Cancel(ctx context.Context, remoteID string) error
}

// Discoverer is the optional discovery capability: listing every job the
// configured account owns on the scheduler, whether or not mdq submitted it.
type Discoverer interface {
	ListOwnedJobs(ctx context.Context) ([]RemoteJob, error)
}

// DiscoverOwned lists the account's scheduler jobs if the gateway supports
// discovery. The second return reports whether the capability exists at all,
// so callers can distinguish "nothing found" from "cannot look".
func DiscoverOwned(ctx context.Context, g Gateway) ([]RemoteJob, bool, error) {
	d, ok := g.(Discoverer)
	if !ok {
		return nil, false, nil
	}
	jobs, err := d.ListOwnedJobs(ctx)
	return jobs, true, err
}
