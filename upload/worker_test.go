package upload

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/stretchr/testify/require"
)

func TestStreamChunkSendsExactBytes(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte{'a'}, 1000)
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	root := chunkstore.NewRootDirectory(&chunkstore.SharedEntry{ID: "r", AbsPath: dir})
	f := chunkstore.NewFile(root, "f.bin", int64(len(content)), time.Now(), 2<<20)
	root.AddFile(f)
	c := f.Chunks()[0]
	c.SetKnownBytes(int64(len(content)))
	c.SetDigest(chunkstore.HashBytes(content))

	server, client := net.Pipe()
	defer server.Close()

	received := make(chan []byte, 1)
	go func() {
		buf, _ := io.ReadAll(server)
		received <- buf
	}()

	err := StreamChunk(context.Background(), client, c, 0, time.Second)
	client.Close()
	require.NoError(t, err)

	got := <-received
	require.Equal(t, content, got)
}
