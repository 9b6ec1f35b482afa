// Package store persists jobs to SQLite and is the single writer of job
// state. Other components propose transitions; the store commits them,
// enforcing the lifecycle's monotonicity. A per-job exclusive section
// serializes writers on the same job while updates to different jobs
// proceed concurrently.
package store

import (
	"database/sql"
	"sync"
	"time"

	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/job"
)

// Store handles persistence of simulation jobs
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockJob acquires the per-job exclusive section and returns the unlock.
// Lock entries are kept for the life of the process; the set of jobs an
// installation touches is small.
func (s *Store) lockJob(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

const jobColumns = `id, name, state, cores, memory_gb, walltime_seconds, partition, qos,
	request_partial, remote_id, sim_config, exit_code, runtime_seconds, missing_streak,
	created_at, submitted_at, last_synced_at, updated_at`

// Create inserts a new job record.
func (s *Store) Create(j *job.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		j.ID,
		j.Name,
		j.State,
		j.Request.Cores,
		j.Request.MemoryGB,
		int64(j.Request.Walltime/time.Second),
		j.Request.Partition,
		j.Request.Qos,
		j.Request.Partial,
		nullString(j.RemoteID),
		nullString(string(j.SimConfig)),
		nullIntPtr(j.ExitCode),
		nullDuration(j.Runtime),
		j.MissingStreak,
		j.CreatedAt,
		nullTimePtr(j.SubmittedAt),
		nullTimePtr(j.LastSyncedAt),
		j.UpdatedAt,
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create job")
		err = errors.WithDetailf(err, "Job ID: %s", j.ID)
		err = errors.WithDetailf(err, "Name: %s", j.Name)
		return err
	}
	return nil
}

// Get retrieves a job by local id.
func (s *Store) Get(id string) (*job.Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return j, nil
}

// GetByRemoteID retrieves a job by its scheduler id. Returns nil, nil when
// no record matches — discovery uses this for de-duplication, and absence
// is the expected case there.
func (s *Store) GetByRemoteID(remoteID string) (*job.Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE remote_id = ?`, remoteID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job by remote id")
	}
	return j, nil
}

// List returns all jobs, newest first.
func (s *Store) List() ([]*job.Job, error) {
	rows, err := s.db.Query(`SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListActive returns jobs the scheduler may still act on: non-terminal
// records with a remote id, plus discovered entries.
func (s *Store) ListActive() ([]*job.Job, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs
		WHERE state IN (?, ?, ?, ?, ?)
		ORDER BY created_at ASC`,
		job.StateSubmitted, job.StateQueued, job.StateRunning,
		job.StateCompleting, job.StateDiscovered)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active jobs")
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Count returns the number of job records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count jobs")
	}
	return n, nil
}

// Delete removes a job record unconditionally (hard local delete).
func (s *Store) Delete(id string) error {
	unlock := s.lockJob(id)
	defer unlock()

	result, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return errors.NewNotFound("job %s", id)
	}
	return nil
}

// Update runs fn on the current record inside the job's exclusive section
// and commits the result. A state change that violates the lifecycle table
// rejects the whole update with a consistency error. This is the only
// mutation path; callers never write job rows directly.
func (s *Store) Update(id string, fn func(*job.Job) error) (*job.Job, error) {
	unlock := s.lockJob(id)
	defer unlock()
	return s.updateLocked(id, fn)
}

func (s *Store) updateLocked(id string, fn func(*job.Job) error) (*job.Job, error) {
	j, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	before := j.State
	if err := fn(j); err != nil {
		return nil, err
	}

	if j.State != before && !job.CanTransition(before, j.State) {
		err := errors.NewConsistency("illegal transition %s -> %s for job %s", before, j.State, id)
		err = errors.WithDetailf(err, "Job ID: %s", id)
		err = errors.WithDetailf(err, "Current state: %s", before)
		return nil, err
	}

	j.UpdatedAt = time.Now()
	if err := s.write(j); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *Store) write(j *job.Job) error {
	query := `
		UPDATE jobs
		SET name = ?,
		    state = ?,
		    request_partial = ?,
		    remote_id = ?,
		    sim_config = ?,
		    exit_code = ?,
		    runtime_seconds = ?,
		    missing_streak = ?,
		    submitted_at = ?,
		    last_synced_at = ?,
		    updated_at = ?
		WHERE id = ?
	`
	_, err := s.db.Exec(query,
		j.Name,
		j.State,
		j.Request.Partial,
		nullString(j.RemoteID),
		nullString(string(j.SimConfig)),
		nullIntPtr(j.ExitCode),
		nullDuration(j.Runtime),
		j.MissingStreak,
		nullTimePtr(j.SubmittedAt),
		nullTimePtr(j.LastSyncedAt),
		j.UpdatedAt,
		j.ID,
	)
	if err != nil {
		err = errors.Wrap(err, "failed to update job")
		err = errors.WithDetailf(err, "Job ID: %s", j.ID)
		err = errors.WithDetailf(err, "State: %s", j.State)
		return err
	}
	return nil
}
