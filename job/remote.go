package job

import "strings"

// RemoteState is the normalized scheduler-side state vocabulary. Gateway
// implementations translate their scheduler's wording into these values so
// the reconciler stays scheduler-agnostic.
type RemoteState string

const (
	RemotePending    RemoteState = "pending"
	RemoteRunning    RemoteState = "running"
	RemoteCompleting RemoteState = "completing"
	RemoteCompleted  RemoteState = "completed"
	RemoteFailed     RemoteState = "failed"
	RemoteCancelled  RemoteState = "cancelled"
)

// NormalizeSlurmState maps SLURM state strings (squeue/sacct vocabulary,
// including the "CANCELLED by uid" form) onto RemoteState. Unrecognized
// states map to RemoteFailed: if SLURM reports something we cannot place,
// treating the job as still healthy would be the worse lie.
func NormalizeSlurmState(s string) RemoteState {
	state := strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexByte(state, ' '); i > 0 {
		state = state[:i]
	}
	switch state {
	case "PENDING", "CONFIGURING", "REQUEUED", "RESIZING", "SUSPENDED":
		return RemotePending
	case "RUNNING":
		return RemoteRunning
	case "COMPLETING", "STAGE_OUT":
		return RemoteCompleting
	case "COMPLETED":
		return RemoteCompleted
	case "CANCELLED", "PREEMPTED", "DEADLINE", "REVOKED":
		return RemoteCancelled
	default: // FAILED, TIMEOUT, OUT_OF_MEMORY, NODE_FAIL, BOOT_FAIL, ...
		return RemoteFailed
	}
}

// StateForRemote maps an observed remote state (plus exit code, when the
// scheduler reports a terminal state) onto the local lifecycle state.
func StateForRemote(rs RemoteState, exitCode *int) State {
	switch rs {
	case RemotePending:
		return StateQueued
	case RemoteRunning:
		return StateRunning
	case RemoteCompleting:
		return StateCompleting
	case RemoteCancelled:
		return StateCancelled
	case RemoteCompleted:
		if exitCode != nil && *exitCode != 0 {
			return StateFailed
		}
		return StateCompleted
	default:
		return StateFailed
	}
}
