package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/dlan-project/dlan-core/download"
	"github.com/dlan-project/dlan-core/peer"
	"github.com/dlan-project/dlan-core/searchindex"
)

// schedulerPollInterval is how often DownloadFile retries the capacity
// gate while number_of_downloader is saturated.
const schedulerPollInterval = 20 * time.Millisecond

// ErrNoAvailableDonor is returned when none of the candidate donors
// for a download are currently alive, unblocked, and
// protocol-compatible.
var ErrNoAvailableDonor = errors.New("core: no available donor")

// DownloadFile fetches remotePath (sharedRootID-relative, size bytes)
// from the first available peer in donorIDs into a newly materialized
// local file under the mirror, verifying every chunk's bytes against
// its advertised digest as it arrives. The transfer is routed through
// the queue and scheduler of spec.md §4.6: each download is registered
// on n.Queue, each chunk's ChunkDownload state machine tracks its
// WAITING/ACTIVE/DONE transitions, and n.Scheduler gates overall
// concurrency at number_of_downloader. On a hash mismatch the serving
// donor is blocked for block_duration_corrupted_data, the chunk is
// marked Corrupted, and the next candidate in donorIDs is tried
// automatically — the S6 failover behavior of spec.md §8.
func (n *Node) DownloadFile(ctx context.Context, donorIDs []string, sharedRootID, remotePath, localPath string, size int64) (*chunkstore.File, error) {
	if len(donorIDs) == 0 {
		return nil, fmt.Errorf("core: %s: %w", remotePath, ErrNoAvailableDonor)
	}

	nbChunks := int((size + n.cfg.ChunkSize - 1) / n.cfg.ChunkSize)
	if size == 0 {
		nbChunks = 1
	}

	firstDonor, firstPool, err := n.firstAvailableDonor(donorIDs)
	if err != nil {
		return nil, err
	}

	digests, err := download.FetchHashes(ctx, firstPool, sharedRootID, remotePath, nbChunks, n.cfg.GetHashesTimeout)
	if err != nil {
		return nil, fmt.Errorf("core: fetch hashes from %s: %w", firstDonor.ID, err)
	}

	dl := download.NewDownload(remotePath, download.FileDescriptor{
		Name:     localPath,
		Size:     size,
		NbChunks: nbChunks,
		Digests:  digests,
	}, firstDonor.ID, 0)
	n.Queue.Add(dl)

	if err := dl.Materialize(n.Mirror); err != nil {
		return nil, fmt.Errorf("core: materialize %s: %w", localPath, err)
	}
	f := dl.File()

	if err := os.MkdirAll(filepath.Dir(f.AbsDiskPath()), 0o755); err != nil {
		dl.SetStatus(download.StatusErrorDisk)
		return f, err
	}
	file, err := os.OpenFile(f.AbsDiskPath(), os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		dl.SetStatus(download.StatusErrorDisk)
		return f, err
	}
	defer file.Close()

	chunkOffsets := make([]int64, len(f.Chunks()))
	var off int64
	for i, c := range f.Chunks() {
		chunkOffsets[i] = off
		off += c.Size()
	}

	for i, cd := range dl.Chunks() {
		if err := ctx.Err(); err != nil {
			dl.SetStatus(download.StatusPaused)
			return f, err
		}

		if err := n.acquireSlot(ctx); err != nil {
			dl.SetStatus(download.StatusPaused)
			return f, err
		}
		err := n.downloadChunk(ctx, cd, donorIDs, file, chunkOffsets[i])
		n.Scheduler.Release()
		if err != nil {
			dl.SetStatus(download.StatusErrorDisk)
			return f, err
		}

		c := f.Chunks()[i]
		c.SetKnownBytes(c.Size())
		c.SetDigest(digests[i])
		n.ChunkIndex.Add(digests[i], c)
	}

	if dl.IsComplete() {
		dl.SetStatus(download.StatusComplete)
	}

	finalPath := f.AbsPath()
	unfinishedPath := f.AbsDiskPath()
	f.SetUnfinished(false)
	if unfinishedPath != finalPath {
		if err := os.Rename(unfinishedPath, finalPath); err != nil {
			return f, err
		}
	}

	n.SearchIndex.Add(searchindex.EntryFromFile(f))
	return f, nil
}

// firstAvailableDonor returns the first peer in donorIDs that is
// currently available, used to pull GET_HASHES from — hashes don't
// depend on which donor serves them.
func (n *Node) firstAvailableDonor(donorIDs []string) (*peer.Peer, *peer.Pool, error) {
	for _, id := range donorIDs {
		p, ok := n.Peers.GetPeer(id)
		if ok && p.IsAvailable() {
			return p, p.Pool(), nil
		}
	}
	return nil, nil, fmt.Errorf("core: %w among %v", ErrNoAvailableDonor, donorIDs)
}

// acquireSlot blocks until the scheduler grants a download slot or ctx
// is done.
func (n *Node) acquireSlot(ctx context.Context) error {
	for {
		if n.Scheduler.TryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(schedulerPollInterval):
		}
	}
}

// downloadChunk drives cd through ACTIVE against successive candidates
// in donorIDs until one serves it successfully. A corrupted transfer
// blocks its donor and moves on to the next candidate; any other
// transfer failure reassigns the chunk and also moves on, unless ctx
// is done. A seek error on the local file is returned immediately.
func (n *Node) downloadChunk(ctx context.Context, cd *download.ChunkDownload, donorIDs []string, file *os.File, offset int64) error {
	var lastErr error
	tried := false
	for _, id := range donorIDs {
		donor, ok := n.Peers.GetPeer(id)
		if !ok || !donor.IsAvailable() {
			continue
		}
		tried = true

		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("core: seek chunk %d: %w", cd.Num, err)
		}

		cd.Activate(id)
		err := download.FetchChunk(ctx, donor.Pool(), cd.Digest, chunkOffsetWriter{file}, n.cfg.GetHashesTimeout)
		if err == nil {
			cd.Complete()
			return nil
		}

		lastErr = err
		if errors.Is(err, download.ErrHashMismatchRemote) {
			donor.Block(n.cfg.BlockDurationCorruptedData, "corrupted chunk "+cd.Digest.String())
			cd.Corrupted()
			continue
		}
		cd.Reassign()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if !tried {
		return fmt.Errorf("core: chunk %d: %w among %v", cd.Num, ErrNoAvailableDonor, donorIDs)
	}
	return fmt.Errorf("core: chunk %d: all donors failed: %w", cd.Num, lastErr)
}

// chunkOffsetWriter writes sequentially into file from its current
// seek position; FetchChunk writes one chunk's bytes per call, and
// downloadChunk seeks the file to each chunk's start offset before
// every attempt (including retries against a different donor).
type chunkOffsetWriter struct {
	file *os.File
}

func (w chunkOffsetWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

var _ io.Writer = chunkOffsetWriter{}
