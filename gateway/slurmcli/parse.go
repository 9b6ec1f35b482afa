package slurmcli

import (
	"strconv"
	"strings"
	"time"

	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/gateway"
	"github.com/helicase/mdq/job"
)

// isUnknownJob recognizes the stderr SLURM tools emit for ids they no
// longer (or never) knew.
func isUnknownJob(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "invalid job id") ||
		strings.Contains(s, "job has no record")
}

// firstLine picks the most useful single line out of a failed command:
// stderr when present, the exec error otherwise.
func firstLine(stderr string, err error) string {
	if msg := strings.TrimSpace(stderr); msg != "" {
		if i := strings.IndexByte(msg, '\n'); i > 0 {
			msg = msg[:i]
		}
		return msg
	}
	return err.Error()
}

// parseSqueueLine parses one "%T|%M" squeue row: state and elapsed time.
func parseSqueueLine(line string) (job.RemoteState, time.Duration, error) {
	fields := strings.Split(line, "|")
	if len(fields) != 2 {
		return "", 0, errors.Newf("malformed squeue row %q", line)
	}
	return job.NormalizeSlurmState(fields[0]), parseElapsed(fields[1]), nil
}

// parseSacctOutput picks the parent row (JobID equal to the remote id, not
// a ".batch"/".extern" step) out of --parsable2 sacct output.
func parseSacctOutput(out, remoteID string) (*gateway.StatusReport, bool, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 4 || fields[0] != remoteID {
			continue
		}

		report := &gateway.StatusReport{
			RemoteID: remoteID,
			State:    job.NormalizeSlurmState(fields[1]),
			Reason:   fields[1],
			Runtime:  parseElapsed(fields[3]),
		}
		if code, ok := parseExitCode(fields[2]); ok {
			report.ExitCode = &code
		}
		return report, true, nil
	}
	return nil, false, nil
}

// parseOwnedJobs parses "%i|%j|%T|%C|%P|%l" squeue rows into discovery
// records. A malformed row is skipped rather than failing the listing.
func parseOwnedJobs(out string) ([]gateway.RemoteJob, error) {
	var jobs []gateway.RemoteJob
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 6 || fields[0] == "" {
			continue
		}

		cores, _ := strconv.Atoi(fields[3])
		jobs = append(jobs, gateway.RemoteJob{
			RemoteID:  fields[0],
			Name:      fields[1],
			State:     job.NormalizeSlurmState(fields[2]),
			Cores:     cores,
			Partition: fields[4],
			Walltime:  parseElapsed(fields[5]),
		})
	}
	return jobs, nil
}

// parseElapsed parses SLURM's elapsed/limit notation ([D-]HH:MM:SS and
// shorter forms). Unparseable values ("UNLIMITED", "INVALID") become zero;
// elapsed time is advisory, never load-bearing.
func parseElapsed(s string) time.Duration {
	d, err := job.ParseWalltime(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d
}

// parseExitCode parses sacct's "exit:signal" pair, e.g. "0:0" or "137:9".
func parseExitCode(s string) (int, bool) {
	part := s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		part = s[:i]
	}
	code, err := strconv.Atoi(strings.TrimSpace(part))
	if err != nil {
		return 0, false
	}
	return code, true
}
