package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/job"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j               job.Job
		state           string
		walltimeSeconds int64
		remoteID        sql.NullString
		simConfig       sql.NullString
		exitCode        sql.NullInt64
		runtimeSeconds  sql.NullInt64
		submittedAt     sql.NullTime
		lastSyncedAt    sql.NullTime
	)

	err := row.Scan(
		&j.ID,
		&j.Name,
		&state,
		&j.Request.Cores,
		&j.Request.MemoryGB,
		&walltimeSeconds,
		&j.Request.Partition,
		&j.Request.Qos,
		&j.Request.Partial,
		&remoteID,
		&simConfig,
		&exitCode,
		&runtimeSeconds,
		&j.MissingStreak,
		&j.CreatedAt,
		&submittedAt,
		&lastSyncedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(state)
	j.Request.Walltime = time.Duration(walltimeSeconds) * time.Second
	if remoteID.Valid {
		j.RemoteID = remoteID.String
	}
	if simConfig.Valid {
		j.SimConfig = json.RawMessage(simConfig.String)
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		j.ExitCode = &code
	}
	if runtimeSeconds.Valid {
		j.Runtime = time.Duration(runtimeSeconds.Int64) * time.Second
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		j.SubmittedAt = &t
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		j.LastSyncedAt = &t
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job row")
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate job rows")
	}
	return jobs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullIntPtr(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullDuration(d time.Duration) sql.NullInt64 {
	if d == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(d / time.Second), Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
