package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medportal/internal/identity"
)

func TestMintAddress(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		addr, err := MintAddress()
		require.NoError(t, err)
		assert.Len(t, addr, MintLength)
		assert.NoError(t, identity.ValidateAddress(addr))
		assert.False(t, seen[addr], "duplicate address %q", addr)
		seen[addr] = true
	}
}

func TestSimulatedMintAddress(t *testing.T) {
	addr, err := SimulatedMintAddress()
	require.NoError(t, err)
	assert.Len(t, addr, MintLength)
	assert.True(t, strings.HasPrefix(addr, SimulatedPrefix))
	assert.NoError(t, identity.ValidateAddress(addr))
}
