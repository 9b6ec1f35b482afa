// Package slurmcli implements the scheduler gateway on top of the SLURM
// command-line tools (sbatch, squeue, sacct, scancel). Commands run through
// an injectable Runner so tests never need a cluster.
package slurmcli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/helicase/mdq/config"
	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/gateway"
	"github.com/helicase/mdq/job"
	"github.com/helicase/mdq/logger"
)

// Client talks to SLURM through its CLI tools. It implements both
// gateway.Gateway and gateway.Discoverer.
type Client struct {
	runner  Runner
	account string
	timeout time.Duration
}

var _ gateway.Gateway = (*Client)(nil)
var _ gateway.Discoverer = (*Client)(nil)

// New creates a client that shells out to the local SLURM tools.
func New(cfg config.Gateway) *Client {
	return NewWithRunner(cfg, execRunner{})
}

// NewWithRunner creates a client with a custom command runner.
func NewWithRunner(cfg config.Gateway, r Runner) *Client {
	timeout := time.Duration(cfg.CommandTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		runner:  r,
		account: cfg.Account,
		timeout: timeout,
	}
}

// run executes one scheduler command under the configured timeout.
func (c *Client) run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stdout, stderr, err = c.runner.Run(cctx, name, args...)
	if err != nil && cctx.Err() == context.DeadlineExceeded {
		return stdout, stderr, errors.Wrapf(errors.ErrTimeout, "%s did not return within %s", name, c.timeout)
	}
	return stdout, stderr, err
}

// Submit submits a job via sbatch and returns the scheduler's job id.
func (c *Client) Submit(ctx context.Context, j *job.Job) (string, error) {
	wrapped := shellquote.Join("mdq-run", "--job", j.ID)

	args := []string{
		"--parsable",
		"--job-name=" + j.Name,
		"--partition=" + j.Request.Partition,
		"--qos=" + j.Request.Qos,
		fmt.Sprintf("--ntasks=%d", j.Request.Cores),
		fmt.Sprintf("--mem=%dM", int(j.Request.MemoryGB*1024)),
		"--time=" + job.FormatWalltime(j.Request.Walltime),
	}
	if c.account != "" {
		args = append(args, "--account="+c.account)
	}
	args = append(args, "--wrap", wrapped)

	stdout, stderr, err := c.run(ctx, "sbatch", args...)
	if err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			return "", err
		}
		// sbatch ran and refused: the scheduler's complaint is on stderr.
		if msg := strings.TrimSpace(stderr); msg != "" {
			rerr := errors.Wrapf(errors.ErrSubmissionRejected, "sbatch: %s", msg)
			rerr = errors.WithDetailf(rerr, "Job: %s (%s)", j.Name, j.ID)
			return "", rerr
		}
		return "", errors.Wrap(errors.ErrTransport, err.Error())
	}

	// --parsable prints "jobid" or "jobid;cluster"
	remoteID := strings.TrimSpace(stdout)
	if i := strings.IndexByte(remoteID, ';'); i > 0 {
		remoteID = remoteID[:i]
	}
	if remoteID == "" {
		return "", errors.Wrap(errors.ErrTransport, "sbatch returned no job id")
	}

	logger.Logger.Infow("Submitted job to SLURM",
		"job_id", j.ID,
		"remote_id", remoteID,
		"partition", j.Request.Partition)
	return remoteID, nil
}

// QueryStatus reports the current state of one remote job. Jobs still in
// the queue come from squeue; jobs squeue no longer knows are looked up in
// the sacct accounting history.
func (c *Client) QueryStatus(ctx context.Context, remoteID string) (*gateway.StatusReport, error) {
	observed := time.Now()

	stdout, stderr, err := c.run(ctx, "squeue",
		"--noheader", "--format=%T|%M", "--jobs", remoteID)
	if err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			return nil, err
		}
		if !isUnknownJob(stderr) {
			return nil, errors.Wrapf(errors.ErrTransport, "squeue: %s", firstLine(stderr, err))
		}
		// Fall through: squeue forgets jobs quickly after completion.
	}

	if line := strings.TrimSpace(stdout); line != "" {
		state, elapsed, perr := parseSqueueLine(line)
		if perr != nil {
			return nil, perr
		}
		return &gateway.StatusReport{
			RemoteID:   remoteID,
			State:      state,
			Runtime:    elapsed,
			ObservedAt: observed,
		}, nil
	}

	return c.queryAccounting(ctx, remoteID, observed)
}

func (c *Client) queryAccounting(ctx context.Context, remoteID string, observed time.Time) (*gateway.StatusReport, error) {
	stdout, stderr, err := c.run(ctx, "sacct",
		"--noheader", "--parsable2",
		"--format=JobID,State,ExitCode,Elapsed",
		"--jobs", remoteID)
	if err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			return nil, err
		}
		return nil, errors.Wrapf(errors.ErrTransport, "sacct: %s", firstLine(stderr, err))
	}

	report, found, perr := parseSacctOutput(stdout, remoteID)
	if perr != nil {
		return nil, perr
	}
	if !found {
		return nil, errors.NewNotFound("scheduler has no record of job %s", remoteID)
	}
	report.ObservedAt = observed
	return report, nil
}

// Cancel stops a remote job. A job the scheduler has already forgotten
// counts as cancelled.
func (c *Client) Cancel(ctx context.Context, remoteID string) error {
	_, stderr, err := c.run(ctx, "scancel", remoteID)
	if err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			return err
		}
		if isUnknownJob(stderr) {
			return nil
		}
		return errors.Wrapf(errors.ErrTransport, "scancel: %s", firstLine(stderr, err))
	}
	logger.Logger.Infow("Cancelled remote job", "remote_id", remoteID)
	return nil
}

// ListOwnedJobs lists every queued or running job the configured account
// owns, for discovery.
func (c *Client) ListOwnedJobs(ctx context.Context) ([]gateway.RemoteJob, error) {
	args := []string{"--noheader", "--format=%i|%j|%T|%C|%P|%l"}
	if c.account != "" {
		args = append(args, "--account="+c.account)
	} else {
		args = append(args, "--me")
	}

	stdout, stderr, err := c.run(ctx, "squeue", args...)
	if err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			return nil, err
		}
		return nil, errors.Wrapf(errors.ErrTransport, "squeue: %s", firstLine(stderr, err))
	}

	return parseOwnedJobs(stdout)
}
