package lifecycle

// State is the manager's position in the open sequence.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateMigrating
	StateReady
	StateDegraded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateMigrating:
		return "migrating"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
