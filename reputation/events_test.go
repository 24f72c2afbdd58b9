package reputation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeltas(t *testing.T) {
	require.Equal(t, -50, Delta(SwapMisbehavior))
	require.Equal(t, -100, Delta(SwapAbuse))
	require.Equal(t, -10, Delta(WireProtocolErr))
	require.Equal(t, -20, Delta(InvalidAuth))
	require.Equal(t, 1, Delta(SwapSuccess))
	require.True(t, Delta(ManualBan) < BanThreshold)
}

func TestValid(t *testing.T) {
	require.True(t, Valid(SwapSuccess))
	require.False(t, Valid(Event("bogus")))
}
