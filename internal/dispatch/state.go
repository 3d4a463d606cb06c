package dispatch

import "fmt"

// State is a step in one invocation's lifecycle.
type State int

const (
	StatePending State = iota
	StateValidating
	StateRejected
	StateExecuting
	StateCompleted
	StateTimedOut
	StateFailed
	StatePublished
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateValidating:
		return "validating"
	case StateRejected:
		return "rejected"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	case StatePublished:
		return "published"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StatePending:    {StateValidating},
	StateValidating: {StateRejected, StateExecuting},
	StateExecuting:  {StateCompleted, StateTimedOut, StateFailed},
	StateRejected:   {StatePublished},
	StateCompleted:  {StatePublished},
	StateTimedOut:   {StatePublished},
	StateFailed:     {StatePublished},
}

// lifecycle tracks one invocation. There is exactly one attempt: once
// Published, nothing moves.
type lifecycle struct {
	state State
	trail []State
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StatePending, trail: []State{StatePending}}
}

func (l *lifecycle) advance(to State) error {
	for _, next := range transitions[l.state] {
		if next == to {
			l.state = to
			l.trail = append(l.trail, to)
			return nil
		}
	}
	return fmt.Errorf("invalid invocation transition %s -> %s", l.state, to)
}

// must advances and panics on an illegal move; transitions are driven by
// the dispatcher alone so a failure is a programming error.
func (l *lifecycle) must(to State) {
	if err := l.advance(to); err != nil {
		panic(err)
	}
}
