package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseNext(t *testing.T) {
	tests := []struct {
		phase Phase
		want  Phase
	}{
		{PhaseCreated, PhasePlanning},
		{PhasePlanning, PhaseResearch},
		{PhaseResearch, PhaseWriting},
		{PhaseWriting, PhaseEditing},
		{PhaseEditing, PhaseRefining},
		{PhaseRefining, PhaseCompleted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.phase.Next(), "next of %s", tt.phase)
	}
}

func TestPhaseTransitionStrictOrder(t *testing.T) {
	// Forward jumps that skip a phase are rejected.
	_, err := PhaseCreated.Transition(PhaseResearch)
	require.Error(t, err)

	_, err = PhasePlanning.Transition(PhaseEditing)
	require.Error(t, err)

	// Backward moves are rejected.
	_, err = PhaseEditing.Transition(PhaseWriting)
	require.Error(t, err)

	// The immediate successor is allowed.
	next, err := PhaseWriting.Transition(PhaseEditing)
	require.NoError(t, err)
	assert.Equal(t, PhaseEditing, next)
}

func TestPhaseTransitionToFailureStates(t *testing.T) {
	// Any non-terminal phase can fail or stop.
	for _, from := range []Phase{PhaseCreated, PhasePlanning, PhaseResearch, PhaseWriting, PhaseEditing, PhaseRefining} {
		next, err := from.Transition(PhaseFailed)
		require.NoError(t, err, "from %s", from)
		assert.Equal(t, PhaseFailed, next)

		next, err = from.Transition(PhaseStopped)
		require.NoError(t, err, "from %s", from)
		assert.Equal(t, PhaseStopped, next)
	}
}

func TestPhaseTerminalStates(t *testing.T) {
	for _, terminal := range []Phase{PhaseCompleted, PhaseFailed, PhaseStopped} {
		assert.True(t, terminal.IsTerminal())

		_, err := terminal.Transition(PhasePlanning)
		assert.Error(t, err, "transition out of %s", terminal)

		_, err = terminal.Transition(PhaseFailed)
		assert.Error(t, err, "re-failing %s", terminal)
	}

	assert.False(t, PhaseWriting.IsTerminal())
}

func TestPhaseIsValid(t *testing.T) {
	assert.True(t, PhaseWriting.IsValid())
	assert.True(t, PhaseStopped.IsValid())
	assert.False(t, Phase("drafting").IsValid())
	assert.False(t, Phase("").IsValid())
}
