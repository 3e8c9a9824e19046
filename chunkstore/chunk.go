package chunkstore

import (
	"errors"
	"sync"

	"github.com/dlan-project/dlan-core/build"
)

// ErrReadPastKnownBytes is returned when reading a partial chunk past
// the region it has confirmed bytes for.
var ErrReadPastKnownBytes = errors.New("chunkstore: read past known bytes of a partial chunk")

// Chunk is a fixed-size contiguous region of a File. Once knownBytes
// reaches the chunk's size, its digest is committed and the chunk is
// immutable.
type Chunk struct {
	mu sync.RWMutex

	num        int // chunk number within its owning file
	size       int64
	knownBytes int64
	digest     Digest
	hasDigest  bool

	owner *File // weak back-reference, resolved via lookup only

	refs int // outstanding transfer/hash handles
}

// NewChunk returns a chunk belonging to owner at position num with
// capacity size bytes.
func NewChunk(owner *File, num int, size int64) *Chunk {
	return &Chunk{owner: owner, num: num, size: size}
}

// Num returns the chunk's position within its file.
func (c *Chunk) Num() int {
	return c.num
}

// Size returns the chunk's total capacity in bytes.
func (c *Chunk) Size() int64 {
	return c.size
}

// KnownBytes returns how many bytes of the chunk are currently known.
func (c *Chunk) KnownBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.knownBytes
}

// IsComplete reports whether the chunk has all its bytes.
func (c *Chunk) IsComplete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.knownBytes == c.size
}

// Digest returns the chunk's committed digest and whether one exists.
// A chunk with knownBytes == size always has a digest; see SetDigest.
func (c *Chunk) Digest() (Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.digest, c.hasDigest
}

// SetKnownBytes advances the chunk's known-byte count. It is used by
// the hashing worker and by the download manager as bytes arrive.
func (c *Chunk) SetKnownBytes(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.knownBytes = n
}

// SetDigest commits d as the chunk's digest. Callers must only do this
// once knownBytes == size.
func (c *Chunk) SetDigest(d Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.digest = d
	c.hasDigest = true
}

// ClearDigest resets a chunk's digest and known bytes, used when an
// integrity check fails (HashMismatch) and the chunk must be
// re-acquired.
func (c *Chunk) ClearDigest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasDigest = false
	c.digest = Digest{}
	c.knownBytes = 0
}

// Owner returns the file this chunk belongs to.
func (c *Chunk) Owner() *File {
	return c.owner
}

// AddRef increments the chunk's outstanding-handle count.
func (c *Chunk) AddRef() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

// Release decrements the chunk's outstanding-handle count. Releasing a
// chunk with no outstanding handles means some caller's AddRef/Release
// pairing is broken, which is a programmer error rather than something
// a user can cause.
func (c *Chunk) Release() {
	c.mu.Lock()
	if c.refs <= 0 {
		c.mu.Unlock()
		build.Critical("chunkstore: Release called with no outstanding refs")
		return
	}
	c.refs--
	c.mu.Unlock()
}

// RefCount returns the number of outstanding handles on this chunk.
func (c *Chunk) RefCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refs
}
