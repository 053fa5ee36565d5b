package session

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionCacheRoundTrip(t *testing.T) {
	c := NewSelectionCache(t.TempDir())

	_, ok := c.Load()
	assert.False(t, ok)

	want := Selection{
		Wallet:      "alice",
		Network:     "sepolia",
		Account:     aliceAddr.Hex(),
		ChainID:     11155111,
		RPC:         "https://rpc.example",
		ConnectedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, c.Save(want))

	got, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, c.Clear())
	require.NoError(t, c.Clear())
	_, ok = c.Load()
	assert.False(t, ok)
}

func TestSelectionCacheIgnoresGarbage(t *testing.T) {
	c := NewSelectionCache(t.TempDir())
	require.NoError(t, os.WriteFile(c.Path(), []byte("{not json"), 0o600))
	_, ok := c.Load()
	assert.False(t, ok)
}
