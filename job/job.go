package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/helicase/mdq/errors"
)

// ResourceRequest describes the allocation a job asks the scheduler for.
// It is a value object: once a Job is created from it, it is never mutated.
// Resubmission requires a new Job.
type ResourceRequest struct {
	Cores     int           `json:"cores"`
	MemoryGB  float64       `json:"memory_gb"`
	Walltime  time.Duration `json:"walltime"`
	Partition string        `json:"partition"`
	Qos       string        `json:"qos"`

	// Partial marks requests reconstructed from discovery, where the
	// scheduler could not report every resource field.
	Partial bool `json:"partial,omitempty"`
}

// WalltimeHours returns the requested walltime in fractional hours.
func (r ResourceRequest) WalltimeHours() float64 {
	return r.Walltime.Hours()
}

// Job is the local record of a simulation job. JobStore owns every Job;
// other components reference jobs but never copy-and-mutate them.
type Job struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	State   State           `json:"state"`
	Request ResourceRequest `json:"request"`

	// RemoteID is the scheduler's job id. Absent until submission, or
	// absent permanently for discovered-but-unidentifiable jobs. A job has
	// at most one live remote id at a time.
	RemoteID string `json:"remote_id,omitempty"`

	// SimConfig is the simulation configuration (engine, input deck, ...),
	// opaque to the lifecycle engine.
	SimConfig json.RawMessage `json:"sim_config,omitempty"`

	// Observations from the scheduler
	ExitCode      *int          `json:"exit_code,omitempty"`
	Runtime       time.Duration `json:"runtime,omitempty"`
	MissingStreak int           `json:"missing_streak,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// New creates a Created job with a fresh local id.
func New(name string, req ResourceRequest, simConfig json.RawMessage) (*Job, error) {
	if name == "" {
		return nil, errors.New("job name cannot be empty")
	}
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Name:      name,
		State:     StateCreated,
		Request:   req,
		SimConfig: simConfig,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewDiscovered creates a job record for a scheduler job that has no local
// record. The resource request is reconstructed from whatever the gateway
// reported and is marked partial.
func NewDiscovered(remoteID, name string, req ResourceRequest) (*Job, error) {
	if remoteID == "" {
		return nil, errors.New("discovered job requires a remote id")
	}
	if name == "" {
		name = "discovered-" + remoteID
	}
	req.Partial = true
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Name:      name,
		State:     StateDiscovered,
		Request:   req,
		RemoteID:  remoteID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasRemote reports whether the job is linked to a scheduler record.
func (j *Job) HasRemote() bool {
	return j.RemoteID != ""
}
