package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/dlan-project/dlan-core/encoding"
	"github.com/dlan-project/dlan-core/peer"
)

// maxClientFrame bounds a single response frame read by the client
// side of the core-to-core protocol.
const maxClientFrame = 1 << 20

// ErrHashMismatchRemote is returned by FetchChunk when the bytes
// streamed by a donor don't hash to the digest that was requested —
// the client-side half of spec.md §7's "donor serves altered bytes"
// corruption case.
var ErrHashMismatchRemote = errors.New("download: received chunk does not match its digest")

// FetchHashes performs a client-side GET_HASHES request over a socket
// drawn from pool, returning nbChunks digests in chunk-number order.
// It blocks until every chunk's HashResult has arrived or ctx/timeout
// elapses.
func FetchHashes(ctx context.Context, pool *peer.Pool, sharedRootID, path string, nbChunks int, timeout time.Duration) ([]chunkstore.Digest, error) {
	conn, err := pool.GetASocket()
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if ok {
			pool.Release(conn)
		} else {
			pool.Discard(conn)
		}
	}()

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline || time.Until(deadline) > timeout {
		deadline = time.Now().Add(timeout)
	}
	conn.SetDeadline(deadline)

	req := peer.GetHashesRequest{SharedRootID: sharedRootID, Path: path, NbChunks: nbChunks}
	if err := peer.WriteFrame(conn, peer.MsgGetHashesRequest, req); err != nil {
		return nil, fmt.Errorf("download: send GET_HASHES: %w", err)
	}

	digests := make([]chunkstore.Digest, nbChunks)
	received := make([]bool, nbChunks)
	count := 0
	for count < nbChunks {
		msgType, body, err := peer.ReadFrame(conn, maxClientFrame)
		if err != nil {
			return nil, fmt.Errorf("download: read HashResult: %w", err)
		}
		if msgType != peer.MsgHashResult {
			return nil, peer.ErrMalformedFrame
		}
		var hr peer.HashResult
		if err := encoding.Unmarshal(body, &hr); err != nil {
			return nil, err
		}
		if hr.Status != peer.StatusOK {
			return nil, fmt.Errorf("download: remote hash status %d for chunk %d", hr.Status, hr.Num)
		}
		if hr.Num < 0 || hr.Num >= nbChunks || received[hr.Num] {
			continue
		}
		digests[hr.Num] = hr.Digest
		received[hr.Num] = true
		count++
	}
	ok = true
	return digests, nil
}

// FetchChunk performs a client-side GET_CHUNK request over a socket
// drawn from pool for the chunk identified by digest, writing its bytes
// to dst as they arrive. The number of bytes read is the remote's
// ChunkStatus.ChunkSize; the digest is checked only after all of them
// have been written, and ErrHashMismatchRemote is returned on mismatch.
func FetchChunk(ctx context.Context, pool *peer.Pool, digest chunkstore.Digest, dst io.Writer, timeout time.Duration) error {
	conn, err := pool.GetASocket()
	if err != nil {
		return err
	}
	ok := false
	defer func() {
		if ok {
			pool.Release(conn)
		} else {
			pool.Discard(conn)
		}
	}()

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline || time.Until(deadline) > timeout {
		deadline = time.Now().Add(timeout)
	}
	conn.SetDeadline(deadline)

	req := peer.GetChunkRequest{Digest: digest}
	if err := peer.WriteFrame(conn, peer.MsgGetChunkRequest, req); err != nil {
		return fmt.Errorf("download: send GET_CHUNK: %w", err)
	}

	msgType, body, err := peer.ReadFrame(conn, maxClientFrame)
	if err != nil {
		return fmt.Errorf("download: read ChunkStatus: %w", err)
	}
	if msgType != peer.MsgChunkStatus {
		return peer.ErrMalformedFrame
	}
	var status peer.ChunkStatus
	if err := encoding.Unmarshal(body, &status); err != nil {
		return err
	}
	if status.Status != peer.StatusOK {
		return fmt.Errorf("download: remote chunk status %d", status.Status)
	}

	hs, err := chunkstore.NewIncrementalHasher()
	if err != nil {
		return err
	}

	buf := make([]byte, 64*1024)
	remaining := status.ChunkSize
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		rn, rerr := io.ReadFull(conn, buf[:n])
		if rn > 0 {
			hs.Write(buf[:rn])
			if _, werr := dst.Write(buf[:rn]); werr != nil {
				return werr
			}
			remaining -= int64(rn)
		}
		if rerr != nil {
			return fmt.Errorf("download: read chunk bytes: %w", rerr)
		}
	}

	if hs.Sum() != digest {
		ok = true // the socket itself is fine; only the payload was bad
		return ErrHashMismatchRemote
	}
	ok = true
	return nil
}
