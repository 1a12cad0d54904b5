package worker

// State is the claim state of a worker slot.
type State int32

// Slot states.
const (
	StateFree State = iota // No job bound, reusable
	StateBusy              // Job running
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name      string `json:"name"`
	Slots     int    `json:"slots"`
	Busy      int    `json:"busy"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Closed    bool   `json:"closed"`
}
