package pipeline

// State is a run's position in the release lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateBuilding   State = "building"
	StateAssembling State = "assembling"
	StateSlimming   State = "slimming"
	StatePublishing State = "publishing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether the state is final. A run in a terminal state
// never transitions again.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Reports whether a run may move from one state to the next.
//
// The lifecycle is linear: pending, building, assembling, optionally
// slimming, publishing, done. Assembling skips straight to publishing when
// slimming is disabled. Any non-terminal state may fail.
func allowedTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}

	switch from {
	case StatePending:
		return to == StateBuilding
	case StateBuilding:
		return to == StateAssembling
	case StateAssembling:
		return to == StateSlimming || to == StatePublishing
	case StateSlimming:
		return to == StatePublishing
	case StatePublishing:
		return to == StateDone
	default:
		return false
	}
}
