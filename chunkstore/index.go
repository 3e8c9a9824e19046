package chunkstore

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// bloomRebuildThreshold is the map size at or above which Index maintains a
// Bloom filter to accelerate negative getChunk lookups; below it the
// map itself is cheap enough to probe directly (spec.md §4.1: "an
// optional Bloom filter accelerates negative lookups when the map
// size is small" is read here as: once the map is no longer small,
// the filter starts paying for itself).
const bloomRebuildThreshold = 256

// Index is the chunk store's digest -> chunk multi-map. getChunk
// returns any matching chunk; for uploads the first whose owning file
// is still present wins.
type Index struct {
	mu      sync.Mutex
	byHash  map[Digest][]*Chunk
	filter  *bloom.BloomFilter
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{byHash: make(map[Digest][]*Chunk)}
}

// Add registers c under d.
func (idx *Index) Add(d Digest, c *Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byHash[d] = append(idx.byHash[d], c)
	idx.maybeRebuildLocked()
}

// Remove drops c's association with d.
func (idx *Index) Remove(d Digest, c *Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	chunks := idx.byHash[d]
	for i, existing := range chunks {
		if existing == c {
			chunks = append(chunks[:i], chunks[i+1:]...)
			break
		}
	}
	if len(chunks) == 0 {
		delete(idx.byHash, d)
	} else {
		idx.byHash[d] = chunks
	}
	idx.maybeRebuildLocked()
}

// GetChunk returns a chunk matching d whose owning file is still
// present, if any.
func (idx *Index) GetChunk(d Digest) (*Chunk, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.filter != nil && !idx.filter.Test(d[:]) {
		return nil, false
	}

	for _, c := range idx.byHash[d] {
		if c.Owner() != nil {
			return c, true
		}
	}
	return nil, false
}

// Has reports whether any chunk is indexed under d, using the Bloom
// filter to short-circuit the common negative case when present.
func (idx *Index) Has(d Digest) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.filter != nil && !idx.filter.Test(d[:]) {
		return false
	}
	_, ok := idx.byHash[d]
	return ok
}

// Len returns the number of distinct digests currently indexed.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.byHash)
}

// Digests returns every digest currently indexed, in unspecified
// order. Callers that need a stable rotation (the presence beacon)
// must track their own cursor across calls.
func (idx *Index) Digests() []Digest {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]Digest, 0, len(idx.byHash))
	for d := range idx.byHash {
		out = append(out, d)
	}
	return out
}

func (idx *Index) maybeRebuildLocked() {
	if len(idx.byHash) < bloomRebuildThreshold {
		idx.filter = nil
		return
	}
	f := bloom.NewWithEstimates(uint(len(idx.byHash))*2, 0.01)
	for d := range idx.byHash {
		f.Add(d[:])
	}
	idx.filter = f
}
