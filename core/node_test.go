package core_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/dlan-project/dlan-core/config"
	"github.com/dlan-project/dlan-core/core"
	"github.com/dlan-project/dlan-core/encoding"
	"github.com/dlan-project/dlan-core/peer"
	"github.com/dlan-project/dlan-core/persist"
)

// newTestNode builds a Node whose listener binds to loopback with a
// short presence period, suitable for deterministic two-node tests of
// the scenarios in spec.md §8.
func newTestNode(t *testing.T, id string, basePort int) *core.Node {
	t.Helper()
	dataDir := t.TempDir()

	log, err := persist.NewLogger(filepath.Join(dataDir, "node.log"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	cfg := config.Default()
	cfg.ListenAddress = "127.0.0.1"
	cfg.UnicastBasePort = basePort
	cfg.MulticastGroup = "239.255.76.67"
	cfg.MulticastPort = 30987
	cfg.MulticastTTL = 1
	cfg.PeerIMAlivePeriod = 40 * time.Millisecond
	cfg.PeerTimeoutFactor = 3
	cfg.FileQueuePath = filepath.Join(dataDir, "queue.json")
	cfg.ChunkSize = 2 << 20
	cfg.SearchLifetime = time.Second
	cfg.MaxNumberOfResultShown = 50
	cfg.GetHashesTimeout = 5 * time.Second
	cfg.BlockDurationCorruptedData = 2 * time.Second

	n, err := core.NewNode(id, cfg, dataDir, log)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() { n.Stop() })
	return n
}

func writeSharedFile(t *testing.T, root, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

// TestPresence is scenario S1: within 2*peer_imalive_period each node
// discovers the other via its presence beacon.
func TestPresence(t *testing.T) {
	a := newTestNode(t, "node-a", 32000)
	b := newTestNode(t, "node-b", 32100)

	require.Eventually(t, func() bool {
		p, ok := a.Peers.GetPeer("node-b")
		return ok && p.IsAlive()
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		p, ok := b.Peers.GetPeer("node-a")
		return ok && p.IsAlive()
	}, 2*time.Second, 10*time.Millisecond)
}

// TestSearch is scenario S2: A shares hello.txt; B's search for
// "hello" receives a FindResult naming it with the right size.
func TestSearch(t *testing.T) {
	a := newTestNode(t, "node-a", 32200)
	b := newTestNode(t, "node-b", 32300)

	sharedDir := t.TempDir()
	content := bytes.Repeat([]byte{'x'}, 1<<20)
	writeSharedFile(t, sharedDir, "hello.txt", content)

	ctx := context.Background()
	se, err := a.AddSharedRoot(ctx, sharedDir)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f, ok := se.Root().File("hello.txt")
		return ok && f.HasAllHashes()
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := b.Peers.GetPeer("node-a")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	search, err := b.StartSearch("hello")
	require.NoError(t, err)

	select {
	case r := <-search.Results():
		require.Equal(t, "hello.txt", r.Name)
		require.EqualValues(t, 1<<20, r.Size)
	case <-time.After(2 * time.Second):
		t.Fatal("no FindResult received")
	}
}

// TestSingleChunkDownload is scenario S3: with a chunk size larger
// than the file, B downloads hello.txt from A and ends up with
// matching bytes, a matching digest, and no leftover ".unfinished"
// file.
func TestSingleChunkDownload(t *testing.T) {
	a := newTestNode(t, "node-a", 32400)
	b := newTestNode(t, "node-b", 32500)

	sharedDir := t.TempDir()
	content := make([]byte, 100*1024)
	_, err := rand.Read(content)
	require.NoError(t, err)
	writeSharedFile(t, sharedDir, "hello.txt", content)

	ctx := context.Background()
	seA, err := a.AddSharedRoot(ctx, sharedDir)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f, ok := seA.Root().File("hello.txt")
		return ok && f.HasAllHashes()
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		p, ok := b.Peers.GetPeer("node-a")
		return ok && p.IsAlive()
	}, 2*time.Second, 10*time.Millisecond)

	destDir := t.TempDir()
	_, err = b.AddSharedRoot(ctx, destDir)
	require.NoError(t, err)

	f, err := b.DownloadFile(ctx, []string{"node-a"}, seA.ID, "hello.txt", "hello.txt", int64(len(content)))
	require.NoError(t, err)
	require.True(t, f.IsComplete())

	got, err := os.ReadFile(f.AbsDiskPath())
	require.NoError(t, err)
	require.Equal(t, content, got)
	require.NoFileExists(t, f.AbsDiskPath()+".unfinished")

	srcFile, ok := seA.Root().File("hello.txt")
	require.True(t, ok)
	wantDigest, ok := srcFile.Chunks()[0].Digest()
	require.True(t, ok)
	gotDigest, ok := f.Chunks()[0].Digest()
	require.True(t, ok)
	require.Equal(t, wantDigest, gotDigest)
}

// TestMultiChunkDownload is scenario S4: a 5 MiB file split into three
// chunks (2, 2 and 1 MiB) downloads correctly and populates B's chunk
// index.
func TestMultiChunkDownload(t *testing.T) {
	a := newTestNode(t, "node-a", 32600)
	b := newTestNode(t, "node-b", 32700)

	sharedDir := t.TempDir()
	content := make([]byte, 5*1024*1024)
	_, err := rand.Read(content)
	require.NoError(t, err)
	writeSharedFile(t, sharedDir, "big.bin", content)

	ctx := context.Background()
	seA, err := a.AddSharedRoot(ctx, sharedDir)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f, ok := seA.Root().File("big.bin")
		return ok && f.HasAllHashes()
	}, 10*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		p, ok := b.Peers.GetPeer("node-a")
		return ok && p.IsAlive()
	}, 2*time.Second, 10*time.Millisecond)

	destDir := t.TempDir()
	_, err = b.AddSharedRoot(ctx, destDir)
	require.NoError(t, err)

	f, err := b.DownloadFile(ctx, []string{"node-a"}, seA.ID, "big.bin", "big.bin", int64(len(content)))
	require.NoError(t, err)
	require.Len(t, f.Chunks(), 3)
	require.True(t, f.IsComplete())

	got, err := os.ReadFile(f.AbsDiskPath())
	require.NoError(t, err)
	require.Equal(t, content, got)

	for _, c := range f.Chunks() {
		d, ok := c.Digest()
		require.True(t, ok)
		require.True(t, b.ChunkIndex.Has(d))
	}
}

// TestPeerDeath is scenario S5: after A stops beaconing, B's peer
// directory stops reporting it alive within peer_timeout_factor *
// peer_imalive_period, and its pool sockets are closed.
func TestPeerDeath(t *testing.T) {
	a := newTestNode(t, "node-a", 32800)
	b := newTestNode(t, "node-b", 32900)

	require.Eventually(t, func() bool {
		p, ok := b.Peers.GetPeer("node-a")
		return ok && p.IsAlive()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Stop())

	require.Eventually(t, func() bool {
		p, ok := b.Peers.GetPeer("node-a")
		return ok && !p.IsAlive()
	}, 2*time.Second, 10*time.Millisecond)

	p, _ := b.Peers.GetPeer("node-a")
	require.Equal(t, 0, p.Pool().IdleCount())
}

// TestCorruptionFailover is scenario S6: a donor that serves corrupted
// chunk bytes is blocked on the hash mismatch, and the download
// automatically retries against the next candidate donor, succeeding
// with the right bytes.
func TestCorruptionFailover(t *testing.T) {
	a := newTestNode(t, "node-a", 33000)
	b := newTestNode(t, "node-b", 33100)

	sharedDir := t.TempDir()
	content := make([]byte, 64*1024)
	_, err := rand.Read(content)
	require.NoError(t, err)
	writeSharedFile(t, sharedDir, "hello.txt", content)

	ctx := context.Background()
	seA, err := a.AddSharedRoot(ctx, sharedDir)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f, ok := seA.Root().File("hello.txt")
		return ok && f.HasAllHashes()
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		p, ok := b.Peers.GetPeer("node-a")
		return ok && p.IsAlive()
	}, 2*time.Second, 10*time.Millisecond)

	realDigest := chunkstore.HashBytes(content)
	corrupted := append([]byte(nil), content...)
	corrupted[0] ^= 0xff

	evilAddr := startCorruptingDonor(t, realDigest, corrupted)
	b.Peers.UpdatePeer("node-evil", evilAddr.IP.String(), evilAddr.Port, "evil", 0, 1, peer.Rates{})

	destDir := t.TempDir()
	_, err = b.AddSharedRoot(ctx, destDir)
	require.NoError(t, err)

	f, err := b.DownloadFile(ctx, []string{"node-evil", "node-a"}, seA.ID, "hello.txt", "hello.txt", int64(len(content)))
	require.NoError(t, err)
	require.True(t, f.IsComplete())

	got, err := os.ReadFile(f.AbsDiskPath())
	require.NoError(t, err)
	require.Equal(t, content, got)

	evil, ok := b.Peers.GetPeer("node-evil")
	require.True(t, ok)
	require.True(t, evil.IsBlocked())
}

// startCorruptingDonor runs a minimal fake peer server that answers
// GET_HASHES truthfully with digest but serves corruptedBytes in
// response to GET_CHUNK, simulating a donor that has altered chunk
// bytes on disk without a full core.Node.
func startCorruptingDonor(t *testing.T, digest chunkstore.Digest, corruptedBytes []byte) *net.TCPAddr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveCorruptingConn(conn, digest, corruptedBytes)
		}
	}()

	return ln.Addr().(*net.TCPAddr)
}

func serveCorruptingConn(conn net.Conn, digest chunkstore.Digest, corruptedBytes []byte) {
	defer conn.Close()

	msgType, body, err := peer.ReadFrame(conn, 1<<20)
	if err != nil {
		return
	}

	switch msgType {
	case peer.MsgGetHashesRequest:
		var req peer.GetHashesRequest
		if encoding.Unmarshal(body, &req) != nil {
			return
		}
		peer.WriteFrame(conn, peer.MsgHashResult, peer.HashResult{Num: 0, Digest: digest, Status: peer.StatusOK})

	case peer.MsgGetChunkRequest:
		var req peer.GetChunkRequest
		if encoding.Unmarshal(body, &req) != nil {
			return
		}
		if err := peer.WriteFrame(conn, peer.MsgChunkStatus, peer.ChunkStatus{Status: peer.StatusOK, ChunkSize: int64(len(corruptedBytes))}); err != nil {
			return
		}
		conn.Write(corruptedBytes)
	}
}
