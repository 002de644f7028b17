package session

import "fmt"

// Phase tracks the lifecycle of one client's room membership as an explicit
// state machine rather than ad hoc flags.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseJoining
	PhaseInRoom
	PhaseLeaving
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseJoining:
		return "joining"
	case PhaseInRoom:
		return "in_room"
	case PhaseLeaving:
		return "leaving"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type phaseEvent int

const (
	evJoin phaseEvent = iota
	evJoined
	evJoinFailed
	evLeave
	evLeft
)

// transition is the pure step function; anything not listed is rejected.
func transition(p Phase, ev phaseEvent) (Phase, error) {
	switch {
	case p == PhaseDisconnected && ev == evJoin:
		return PhaseJoining, nil
	case p == PhaseJoining && ev == evJoined:
		return PhaseInRoom, nil
	case p == PhaseJoining && ev == evJoinFailed:
		return PhaseDisconnected, nil
	case p == PhaseInRoom && ev == evLeave:
		return PhaseLeaving, nil
	case p == PhaseLeaving && ev == evLeft:
		return PhaseDisconnected, nil
	default:
		return p, fmt.Errorf("session: invalid transition from %s", p)
	}
}
