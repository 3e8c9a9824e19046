package chunkstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewFileChunkCount(t *testing.T) {
	root := NewRootDirectory(&SharedEntry{ID: "r", AbsPath: "/tmp/r"})
	f := NewFile(root, "big.bin", 2*(2<<20)+100, time.Now(), 2<<20)
	require.Len(t, f.Chunks(), 3)
	require.Equal(t, int64(2<<20), f.Chunks()[0].Size())
	require.Equal(t, int64(2<<20), f.Chunks()[1].Size())
	require.Equal(t, int64(2*(2<<20)+100-2*(2<<20)), f.Chunks()[2].Size())
}

func TestChunkDigestInvariant(t *testing.T) {
	root := NewRootDirectory(&SharedEntry{ID: "r", AbsPath: "/tmp/r"})
	f := NewFile(root, "small.bin", 10, time.Now(), 2<<20)
	c := f.Chunks()[0]

	_, ok := c.Digest()
	require.False(t, ok)

	c.SetKnownBytes(10)
	d := HashBytes([]byte("0123456789"))
	c.SetDigest(d)

	got, ok := c.Digest()
	require.True(t, ok)
	require.Equal(t, d, got)
	require.True(t, c.IsComplete())
}

func TestClearDigestResetsKnownBytes(t *testing.T) {
	root := NewRootDirectory(&SharedEntry{ID: "r", AbsPath: "/tmp/r"})
	f := NewFile(root, "small.bin", 10, time.Now(), 2<<20)
	c := f.Chunks()[0]
	c.SetKnownBytes(10)
	c.SetDigest(HashBytes([]byte("0123456789")))

	c.ClearDigest()
	require.Equal(t, int64(0), c.KnownBytes())
	_, ok := c.Digest()
	require.False(t, ok)
}
