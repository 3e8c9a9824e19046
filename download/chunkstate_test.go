package download

import (
	"testing"

	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/stretchr/testify/require"
)

func TestChunkDownloadStateTransitions(t *testing.T) {
	cd := NewChunkDownload(0, chunkstore.Digest{}, nil)
	require.Equal(t, StateWaiting, cd.State())

	cd.Activate("peerA")
	require.Equal(t, StateActive, cd.State())
	require.Equal(t, "peerA", cd.Donor())

	cd.Complete()
	require.Equal(t, StateDone, cd.State())
}

func TestChunkDownloadCorruptionReturnsToWaiting(t *testing.T) {
	cd := NewChunkDownload(0, chunkstore.Digest{}, nil)
	cd.Activate("peerA")
	cd.Corrupted()
	require.Equal(t, StateWaiting, cd.State())
	require.Equal(t, "", cd.Donor())
}
