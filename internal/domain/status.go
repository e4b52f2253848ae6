package domain

// Task status codes reported for each raster.
const (
	StatusOK      = 200
	StatusTimeout = 408
	// StatusFailed covers tool failures, unreadable output and any other
	// unexpected error inside a raster task.
	StatusFailed = -99
)

// State is a scenario's position in the publishing lifecycle.
type State int

const (
	StatePending State = iota
	StateFetching
	StateAggregating
	StatePackaging
	StateMerged
	StatePackaged
	StatePublishing
	StateDone
	StateSkipped
	StateFailed
)

var stateNames = [...]string{
	StatePending:     "pending",
	StateFetching:    "fetching",
	StateAggregating: "aggregating",
	StatePackaging:   "packaging",
	StateMerged:      "merged",
	StatePackaged:    "packaged",
	StatePublishing:  "publishing",
	StateDone:        "done",
	StateSkipped:     "skipped",
	StateFailed:      "failed",
}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}
