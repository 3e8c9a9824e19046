package chunkstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIndexAddRemoveGetChunk(t *testing.T) {
	idx := NewIndex()
	root := NewRootDirectory(&SharedEntry{ID: "r", AbsPath: "/tmp/r"})
	f := NewFile(root, "a.bin", 10, time.Now(), 2<<20)
	c := f.Chunks()[0]
	d := HashBytes([]byte("0123456789"))

	_, ok := idx.GetChunk(d)
	require.False(t, ok)

	idx.Add(d, c)
	got, ok := idx.GetChunk(d)
	require.True(t, ok)
	require.Same(t, c, got)

	idx.Remove(d, c)
	_, ok = idx.GetChunk(d)
	require.False(t, ok)
}

func TestIndexBloomFilterKicksInAtThreshold(t *testing.T) {
	idx := NewIndex()
	root := NewRootDirectory(&SharedEntry{ID: "r", AbsPath: "/tmp/r"})

	for i := 0; i < bloomRebuildThreshold+1; i++ {
		f := NewFile(root, "f", int64(i+1), time.Now(), 2<<20)
		c := f.Chunks()[0]
		d := HashBytes([]byte{byte(i), byte(i >> 8)})
		idx.Add(d, c)
	}

	require.NotNil(t, idx.filter)
	require.Equal(t, bloomRebuildThreshold+1, idx.Len())
}
