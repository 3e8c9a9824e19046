package chunkstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddRootMergesNestedRoots(t *testing.T) {
	m := NewMirror(2 << 20)
	outer := m.AddRoot("/shared/music")
	inner := m.AddRoot("/shared/music/rock")
	require.Equal(t, outer.ID, inner.ID, "nested root should merge into the existing one")
	require.Len(t, m.Roots(), 1)

	wider := m.AddRoot("/shared")
	require.Equal(t, outer.ID, wider.ID)
	require.Equal(t, "/shared", wider.AbsPath)
}

func TestNewFileRequiresWritableRoot(t *testing.T) {
	m := NewMirror(2 << 20)
	_, err := m.NewFile(RemoteEntry{Path: "a/b.txt", Size: 10})
	require.ErrorIs(t, err, ErrNoWritableRoot)
}

func TestNewFileInsufficientSpace(t *testing.T) {
	m := NewMirror(2 << 20)
	se := m.AddRoot("/shared")
	se.SetFreeBytes(5, time.Now())

	_, err := m.NewFile(RemoteEntry{Path: "a/b.txt", Size: 1000})
	require.ErrorIs(t, err, ErrInsufficientSpace)
}

func TestNewFileCreatesIntermediateDirectories(t *testing.T) {
	m := NewMirror(2 << 20)
	se := m.AddRoot("/shared")
	se.SetFreeBytes(1<<30, time.Now())

	f, err := m.NewFile(RemoteEntry{Path: "movies/sci-fi/movie.mkv", Size: 123})
	require.NoError(t, err)
	require.True(t, f.IsUnfinished())
	require.Equal(t, filepath.ToSlash(f.Path()), "movies/sci-fi/movie.mkv")

	sub, ok := se.Root().Directory("movies")
	require.True(t, ok)
	_, ok = sub.Directory("sci-fi")
	require.True(t, ok)
}

func TestScanDiscoversNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("nested"), 0o644))

	m := NewMirror(2 << 20)
	se := m.AddRoot(dir)
	sc := NewScanner(2 << 20)

	found, err := sc.Scan(context.Background(), se)
	require.NoError(t, err)
	require.Len(t, found, 2)

	f, ok := se.Root().File("a.txt")
	require.True(t, ok)
	require.Equal(t, int64(len("hello world")), f.Size())

	sub, ok := se.Root().Directory("sub")
	require.True(t, ok)
	_, ok = sub.File("b.txt")
	require.True(t, ok)
}
