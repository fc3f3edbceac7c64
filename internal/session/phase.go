package session

import "fmt"

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
	PhaseCommitted
	PhaseFailed
	PhaseCancelled
)

var phaseNames = map[Phase]string{
	PhaseIdle:      "idle",
	PhaseStreaming: "streaming",
	PhaseCommitted: "committed",
	PhaseFailed:    "failed",
	PhaseCancelled: "cancelled",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// allowed lists every legal transition. Terminal phases have no entry.
var allowed = map[Phase][]Phase{
	PhaseIdle:      {PhaseStreaming},
	PhaseStreaming: {PhaseCommitted, PhaseFailed, PhaseCancelled},
}

func (p Phase) CanTransition(to Phase) bool {
	for _, next := range allowed[p] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether p is absorbing.
func (p Phase) Terminal() bool {
	return p == PhaseCommitted || p == PhaseFailed || p == PhaseCancelled
}
