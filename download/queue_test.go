package download

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/stretchr/testify/require"
)

func TestQueueSaveLoadResetsActiveToWaiting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "FILE_QUEUE")

	q := NewQueue(path, time.Hour)
	d := NewDownload("dl1", FileDescriptor{Name: "a.bin", Size: 10, NbChunks: 1, Digests: []chunkstore.Digest{chunkstore.HashBytes([]byte("x"))}}, "peerA", 0)
	d.SetStatus(StatusActive)
	q.Add(d)

	require.NoError(t, q.Save())

	q2 := NewQueue(path, time.Hour)
	require.NoError(t, q2.Load(nil))

	loaded := q2.Downloads()
	require.Len(t, loaded, 1)
	require.Equal(t, StatusQueued, loaded[0].Status())
}

func TestMoveDownloadsPreservesRelativeOrder(t *testing.T) {
	q := NewQueue("", time.Hour)
	a := NewDownload("a", FileDescriptor{}, "", 0)
	b := NewDownload("b", FileDescriptor{}, "", 1)
	c := NewDownload("c", FileDescriptor{}, "", 2)
	d := NewDownload("d", FileDescriptor{}, "", 3)
	q.Add(a)
	q.Add(b)
	q.Add(c)
	q.Add(d)

	q.MoveDownloads("a", []string{"c", "d"}, MoveAfter)

	ids := make([]string, 0)
	for _, dl := range q.Downloads() {
		ids = append(ids, dl.ID)
	}
	require.Equal(t, []string{"a", "c", "d", "b"}, ids)
}
