package download

import (
	"errors"
	"sync"

	"github.com/dlan-project/dlan-core/chunkstore"
)

// Status is a Download's overall lifecycle status.
type Status int

const (
	StatusQueued Status = iota
	StatusActive
	StatusPaused
	StatusComplete
	StatusErrorDisk
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusComplete:
		return "complete"
	case StatusErrorDisk:
		return "error_disk"
	default:
		return "unknown"
	}
}

// ErrHashesIncomplete is returned by Materialize when the Download has not
// yet learned every chunk digest via GET_HASHES.
var ErrHashesIncomplete = errors.New("download: chunk digests not fully known yet")

// FileDescriptor is the immutable description of what is being
// downloaded: name, size, and (once known) per-chunk digests.
type FileDescriptor struct {
	Name     string
	Size     int64
	NbChunks int
	Digests  []chunkstore.Digest // len == NbChunks once hashes are known; entries zero until received
}

// Download is one item in the download queue: its immutable file
// descriptor, target materialization, and per-chunk state machines.
type Download struct {
	mu sync.RWMutex

	ID         string
	Descriptor FileDescriptor
	DonorID    string // the peer this download was created from

	QueuePosition int
	status        Status

	chunks []*ChunkDownload
	file   *chunkstore.File
}

// NewDownload returns a queued Download for desc, sourced from
// donorID. Its chunk state machines are not created until hashes are
// known (RecordHash, or Digests set in desc) and the file is
// materialized (Materialize).
func NewDownload(id string, desc FileDescriptor, donorID string, queuePosition int) *Download {
	return &Download{
		ID:            id,
		Descriptor:    desc,
		DonorID:       donorID,
		QueuePosition: queuePosition,
		status:        StatusQueued,
	}
}

// Status returns the download's current overall status.
func (d *Download) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// SetStatus updates the download's overall status.
func (d *Download) SetStatus(s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// RecordHash records the digest learned for chunk num via GET_HASHES.
func (d *Download) RecordHash(num int, digest chunkstore.Digest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if num >= 0 && num < len(d.Descriptor.Digests) {
		d.Descriptor.Digests[num] = digest
	}
}

// HasAllHashes reports whether every chunk digest has been recorded.
func (d *Download) HasAllHashes() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, dg := range d.Descriptor.Digests {
		if dg == chunkstore.ZeroDigest {
			return false
		}
	}
	return len(d.Descriptor.Digests) == d.Descriptor.NbChunks
}

// Materialize allocates the file's in-memory mirror entry via
// mirror.NewFile (nothing is created on disk) and a ChunkDownload state
// machine per chunk, once every hash is known.
func (d *Download) Materialize(mirror *chunkstore.Mirror) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, dg := range d.Descriptor.Digests {
		if dg == chunkstore.ZeroDigest {
			return ErrHashesIncomplete
		}
	}

	f, err := mirror.NewFile(chunkstore.RemoteEntry{Path: d.Descriptor.Name, Size: d.Descriptor.Size})
	if err != nil {
		return err
	}
	d.file = f

	chunks := f.Chunks()
	d.chunks = make([]*ChunkDownload, len(chunks))
	for i, c := range chunks {
		d.chunks[i] = NewChunkDownload(i, d.Descriptor.Digests[i], c)
	}
	d.status = StatusActive
	return nil
}

// Chunks returns the download's per-chunk state machines.
func (d *Download) Chunks() []*ChunkDownload {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.chunks
}

// File returns the materialized target file, if any.
func (d *Download) File() *chunkstore.File {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.file
}

// IsComplete reports whether every chunk has reached DONE.
func (d *Download) IsComplete() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.chunks) == 0 {
		return false
	}
	for _, c := range d.chunks {
		if c.State() != StateDone {
			return false
		}
	}
	return true
}
