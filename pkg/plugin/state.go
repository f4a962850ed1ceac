package plugin

// State is the lifecycle position of one registered module.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateLinked
	StateConfigured
	StateStarted
	StateStopped
	StateDestroyed
	// StateFailed marks a module whose link, configure or start hook failed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateLinked:
		return "linked"
	case StateConfigured:
		return "configured"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateDestroyed:
		return "destroyed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	StateUnregistered: {StateRegistered},
	StateRegistered:   {StateLinked, StateFailed, StateDestroyed},
	StateLinked:       {StateConfigured, StateFailed, StateDestroyed},
	StateConfigured:   {StateStarted, StateFailed, StateDestroyed},
	StateStarted:      {StateStopped},
	// Stopped -> Started is the restart path.
	StateStopped: {StateStarted, StateFailed, StateDestroyed},
	StateFailed:  {StateStopped, StateDestroyed},
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s State) CanTransitionTo(next State) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Phase is the registry-wide lifecycle position. Phases only move forward,
// except Stopped -> Started on restart.
type Phase int

const (
	PhaseRegistering Phase = iota
	PhaseLinking
	PhaseLinked
	PhaseConfigured
	PhaseStarted
	PhaseStopped
	PhaseDestroyed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseRegistering:
		return "registering"
	case PhaseLinking:
		return "linking"
	case PhaseLinked:
		return "linked"
	case PhaseConfigured:
		return "configured"
	case PhaseStarted:
		return "started"
	case PhaseStopped:
		return "stopped"
	case PhaseDestroyed:
		return "destroyed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// hook names used in errors and logs
const (
	hookLink      = "link"
	hookConfigure = "configure"
	hookStart     = "start"
	hookStop      = "stop"
	hookDestroy   = "destroy"
)
