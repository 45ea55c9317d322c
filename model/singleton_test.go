package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalDefaultsOnFirstUse(t *testing.T) {
	ResetGlobal()
	t.Cleanup(ResetGlobal)

	r := Global()
	require.NotNil(t, r)
	assert.Same(t, r, Global())
	assert.NotEmpty(t, r.Resolve(CapabilityDrafting))
}

func TestInitGlobalWinsWhenFirst(t *testing.T) {
	ResetGlobal()
	t.Cleanup(ResetGlobal)

	custom := newTestRegistry()
	InitGlobal(custom)
	assert.Same(t, custom, Global())

	InitGlobal(newTestRegistry())
	assert.Same(t, custom, Global(), "only the first init takes effect")
}
