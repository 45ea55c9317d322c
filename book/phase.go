// Package book defines the domain types for book projects: phases, outlines,
// chapters, and progress accounting.
package book

import "fmt"

// Phase is a stage in the book production lifecycle.
type Phase string

const (
	PhaseCreated   Phase = "created"
	PhasePlanning  Phase = "planning"
	PhaseResearch  Phase = "research"
	PhaseWriting   Phase = "writing"
	PhaseEditing   Phase = "editing"
	PhaseRefining  Phase = "refining"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseStopped   Phase = "stopped"
)

// phaseOrder is the canonical forward progression.
var phaseOrder = map[Phase]Phase{
	PhaseCreated:  PhasePlanning,
	PhasePlanning: PhaseResearch,
	PhaseResearch: PhaseWriting,
	PhaseWriting:  PhaseEditing,
	PhaseEditing:  PhaseRefining,
	PhaseRefining: PhaseCompleted,
}

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseCreated, PhasePlanning, PhaseResearch, PhaseWriting,
		PhaseEditing, PhaseRefining, PhaseCompleted, PhaseFailed, PhaseStopped:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from p.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseStopped
}

// Next returns the canonical successor phase. Terminal phases return
// themselves.
func (p Phase) Next() Phase {
	if next, ok := phaseOrder[p]; ok {
		return next
	}
	return p
}

// CanTransition reports whether moving from p to target is allowed.
// The working phases advance strictly in order with no skips; failed and
// stopped are reachable from any non-terminal phase.
func (p Phase) CanTransition(target Phase) bool {
	if p.IsTerminal() {
		return false
	}
	if target == PhaseFailed || target == PhaseStopped {
		return true
	}
	return phaseOrder[p] == target
}

// Transition validates and returns the target phase.
func (p Phase) Transition(target Phase) (Phase, error) {
	if !target.IsValid() {
		return p, fmt.Errorf("unknown phase: %s", target)
	}
	if !p.CanTransition(target) {
		return p, fmt.Errorf("invalid phase transition: %s -> %s", p, target)
	}
	return target, nil
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}
