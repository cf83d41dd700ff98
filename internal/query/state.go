package query

// State is the lifecycle stage of one Execution
type State int32

// Execution lifecycle: Created -> Dispatching -> (Aggregating | Exclusive) -> Completing
// -> Done. Cancelled and Superseded may interrupt any non-terminal state.
const (
	Created State = iota
	Dispatching
	Aggregating // Global handlers are being merged
	Exclusive   // A single triggered handler answers
	Completing
	Done
	Cancelled
	Superseded // Abandoned because newer input arrived
)

var stateNames = [...]string{
	Created:     "created",
	Dispatching: "dispatching",
	Aggregating: "aggregating",
	Exclusive:   "exclusive",
	Completing:  "completing",
	Done:        "done",
	Cancelled:   "cancelled",
	Superseded:  "superseded",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions happen
func (s State) Terminal() bool {
	return s == Done || s == Cancelled || s == Superseded
}

// EventKind identifies what changed in an Execution
type EventKind int

// Event kinds
const (
	// EventAdded appends Items to the visible results
	EventAdded EventKind = iota
	// EventReset replaces the visible results with Items
	EventReset
	// EventState reports a state change
	EventState
)

// Event is delivered to the Observer on the owner goroutine
type Event struct {
	Execution *Execution
	Kind      EventKind
	Items     []Result
	State     State
}

// Observer receives execution events. Events of superseded executions are dropped
// except for their final state change.
type Observer func(Event)
