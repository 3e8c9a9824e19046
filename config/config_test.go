package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsAlreadySane(t *testing.T) {
	c := Default()
	reps := c.Sanitize()
	require.Empty(t, reps, "Default() should need no sanitizing")
}

func TestSanitizeReplacesOutOfRangeFields(t *testing.T) {
	c := Default()
	c.ChunkSize = -1
	c.UnicastBasePort = 99999
	c.MulticastGroup = ""

	reps := c.Sanitize()
	require.Len(t, reps, 3)

	def := Default()
	require.Equal(t, def.ChunkSize, c.ChunkSize)
	require.Equal(t, def.UnicastBasePort, c.UnicastBasePort)
	require.Equal(t, def.MulticastGroup, c.MulticastGroup)
}

func TestSanitizeIsIdempotent(t *testing.T) {
	c := Default()
	c.NumberOfDownloader = 0
	first := c.Sanitize()
	require.Len(t, first, 1)
	second := c.Sanitize()
	require.Empty(t, second)
}
