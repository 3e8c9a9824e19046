package chunkstore

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dlan-project/dlan-core/syncutil"
)

// ErrHashMismatch is raised when check_received_data_integrity is on
// and a chunk's incremental digest does not match its committed one.
var ErrHashMismatch = errors.New("chunkstore: received data does not match chunk digest")

const hashReadBufferSize = 64 * 1024

// ChunkHashedFunc is invoked every time the hasher commits a digest to
// a chunk, the signal spec.md §4.4's GET_HASHES responder subscribes
// to.
type ChunkHashedFunc func(f *File, c *Chunk)

// Hasher is the single background worker draining the normal and
// prioritized hashing queues, per spec.md §4.1.
type Hasher struct {
	tg syncutil.ThreadGroup

	minDuration time.Duration
	checkIntegrity bool
	onHashed       []ChunkHashedFunc

	mu        sync.Mutex
	normal    []*File
	priority  []*File
	enqueued  map[*File]bool
	stopping  bool
	abortFile *File // file whose hashing is to be aborted (stop() semantics)
}

// NewHasher returns an idle Hasher. minDuration is the minimum time a
// hashing burst runs once started, even if higher-priority work
// arrives mid-burst.
func NewHasher(minDuration time.Duration, checkIntegrity bool) *Hasher {
	return &Hasher{
		minDuration:    minDuration,
		checkIntegrity: checkIntegrity,
		enqueued:       make(map[*File]bool),
	}
}

// OnChunkHashed registers a callback invoked whenever a chunk's digest
// is committed.
func (h *Hasher) OnChunkHashed(fn ChunkHashedFunc) {
	h.mu.Lock()
	h.onHashed = append(h.onHashed, fn)
	h.mu.Unlock()
}

// Enqueue adds f to the normal queue, populated by scan, if it is not
// already queued.
func (h *Hasher) Enqueue(f *File) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.enqueued[f] {
		return
	}
	h.enqueued[f] = true
	h.normal = append(h.normal, f)
}

// EnqueuePrioritized adds f to the prioritized queue, populated when a
// remote peer requests our hashes for it.
func (h *Hasher) EnqueuePrioritized(f *File) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.enqueued[f] {
		return
	}
	h.enqueued[f] = true
	h.priority = append(h.priority, f)
}

func (h *Hasher) dequeue() *File {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.priority) > 0 {
		f := h.priority[0]
		h.priority = h.priority[1:]
		delete(h.enqueued, f)
		return f
	}
	if len(h.normal) > 0 {
		f := h.normal[0]
		h.normal = h.normal[1:]
		delete(h.enqueued, f)
		return f
	}
	return nil
}

// rotatePriority moves f to the tail of the prioritized queue, used
// after hashing one chunk of a prioritized file so other prioritized
// files get a turn (anti-starvation, spec.md §4.1).
func (h *Hasher) rotatePriority(f *File) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.priority = append(h.priority, f)
	h.enqueued[f] = true
}

// Start launches the background worker.
func (h *Hasher) Start() error {
	if err := h.tg.Add(); err != nil {
		return err
	}
	go h.run()
	return nil
}

// Stop aborts any in-flight file (its partial hashes are kept, the
// file is requeued) and joins the worker goroutine.
func (h *Hasher) Stop() error {
	return h.tg.Stop()
}

func (h *Hasher) run() {
	defer h.tg.Done()
	for {
		select {
		case <-h.tg.StopChan():
			return
		default:
		}

		f := h.dequeue()
		if f == nil {
			select {
			case <-time.After(50 * time.Millisecond):
				continue
			case <-h.tg.StopChan():
				return
			}
		}

		h.hashBurst(f)
	}
}

// hashBurst hashes chunks of f for at least minDuration (or until f is
// fully hashed / the worker is stopped). Once minDuration has elapsed
// and f still has unhashed chunks, f is moved to the tail of the
// priority queue (whichever queue it came from) so other prioritized
// files interleave.
func (h *Hasher) hashBurst(f *File) {
	deadline := time.Now().Add(h.minDuration)
	for {
		select {
		case <-h.tg.StopChan():
			// partial hashes are kept; requeue for later.
			h.Enqueue(f)
			return
		default:
		}

		chunk, ok := nextUnhashedChunk(f)
		if !ok {
			return // fully hashed
		}

		if err := h.hashChunk(f, chunk); err != nil {
			// I/O error: drop this burst, file stays off the queues until
			// re-enqueued by the caller (scan will pick it up again).
			return
		}

		h.mu.Lock()
		fired := append([]ChunkHashedFunc(nil), h.onHashed...)
		h.mu.Unlock()
		for _, fn := range fired {
			fn(f, chunk)
		}

		if nextChunk, more := nextUnhashedChunk(f); more {
			_ = nextChunk
			if time.Now().After(deadline) {
				h.rotatePriority(f)
				return
			}
			continue
		}
		return
	}
}

func nextUnhashedChunk(f *File) (*Chunk, bool) {
	for _, c := range f.Chunks() {
		if _, ok := c.Digest(); !ok {
			return c, true
		}
	}
	return nil, false
}

// hashChunk hashes one chunk of f, reading from disk. If the chunk
// already has partial known bytes, the prefix is re-hashed first to
// seed the digest.
func (h *Hasher) hashChunk(f *File, c *Chunk) error {
	hs, err := NewIncrementalHasher()
	if err != nil {
		return err
	}

	file, err := os.Open(f.AbsDiskPath())
	if err != nil {
		return err
	}
	defer file.Close()

	offset := int64(0)
	for i := 0; i < c.Num(); i++ {
		offset += f.Chunks()[i].Size()
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	buf := make([]byte, hashReadBufferSize)
	var read int64
	size := c.Size()
	for read < size {
		n := int64(len(buf))
		if size-read < n {
			n = size - read
		}
		rn, err := io.ReadFull(file, buf[:n])
		if rn > 0 {
			hs.Write(buf[:rn])
			read += int64(rn)
		}
		if err != nil && err != io.EOF {
			return err
		}
		if rn == 0 {
			break
		}
	}

	c.SetKnownBytes(read)
	if read == size {
		c.SetDigest(hs.Sum())
	}
	return nil
}
