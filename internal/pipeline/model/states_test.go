package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	s, err := ParseState("EXTRACTING")
	require.NoError(t, err)
	assert.Equal(t, StateExtracting, s)

	_, err = ParseState("extracting")
	assert.Error(t, err)

	_, err = ParseState("NOT_A_STATE")
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StateFinalized.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())

	assert.False(t, StateInit.IsTerminal())
	assert.False(t, StateUserIntentSelection.IsTerminal())
	assert.False(t, StateArchiving.IsTerminal())
}

func TestIsPause(t *testing.T) {
	assert.True(t, StateUserIntentSelection.IsPause())
	assert.True(t, StateUserMetadataSelection.IsPause())

	assert.False(t, StateSearching.IsPause())
	assert.False(t, StateCancelled.IsPause())
}
