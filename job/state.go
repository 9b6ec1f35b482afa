// Package job defines the local job model and its lifecycle state machine.
package job

// State represents the lifecycle state of a job
type State string

const (
	StateCreated    State = "created"
	StateValidated  State = "validated"
	StateSubmitted  State = "submitted"
	StateQueued     State = "queued"
	StateRunning    State = "running"
	StateCompleting State = "completing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"

	// StateDiscovered is the entry point for jobs found on the scheduler
	// with no local record. The first observation moves them to the state
	// the scheduler reports.
	StateDiscovered State = "discovered"

	// StateUnknown is terminal-by-inference: the remote record vanished from
	// the scheduler's listing for more than one sync cycle and no exit code
	// could be retrieved.
	StateUnknown State = "unknown"
)

// IsValidState returns true if the string is a known State
func IsValidState(s string) bool {
	switch State(s) {
	case StateCreated, StateValidated, StateSubmitted, StateQueued,
		StateRunning, StateCompleting, StateCompleted, StateFailed,
		StateCancelled, StateDiscovered, StateUnknown:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state accepts no further transitions
// (except local deletion).
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateUnknown:
		return true
	default:
		return false
	}
}

// IsActive reports whether the scheduler may still act on the job.
func (s State) IsActive() bool {
	switch s {
	case StateSubmitted, StateQueued, StateRunning, StateCompleting, StateDiscovered:
		return true
	default:
		return false
	}
}

// rank orders states along the lifecycle graph. Transitions never move to a
// lower rank; Cancelled and Unknown are reachable from any non-terminal rank.
var rank = map[State]int{
	StateCreated:    0,
	StateValidated:  1,
	StateDiscovered: 2, // enters the graph at the submitted tier
	StateSubmitted:  2,
	StateQueued:     3,
	StateRunning:    4,
	StateCompleting: 5,
	StateCompleted:  6,
	StateFailed:     6,
	StateCancelled:  6,
	StateUnknown:    6,
}

// CanTransition reports whether moving from -> to is legal under the
// lifecycle rules. Same-state "transitions" are allowed so repeated
// observations of an unchanged remote state commit cleanly.
func CanTransition(from, to State) bool {
	if from == to {
		return !from.IsTerminal()
	}
	if from.IsTerminal() {
		return false
	}
	// Any non-terminal state may be cancelled (user-initiated) or inferred
	// unknown (remote record vanished).
	if to == StateCancelled || to == StateUnknown {
		return true
	}
	// Discovered is an entry state, never a destination for existing jobs.
	if to == StateDiscovered {
		return false
	}
	// Everything past Submitted implies the job reached the scheduler.
	if rank[from] < rank[StateSubmitted] && rank[to] > rank[StateSubmitted] {
		return false
	}
	return rank[to] > rank[from]
}
