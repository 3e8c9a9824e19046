// Package searchindex maintains word/extension/size-range lookups
// over the entries shared by the chunk store, consumed by the network
// listener's search responder.
package searchindex

import (
	"sort"
	"strings"
	"sync"

	"github.com/dlan-project/dlan-core/chunkstore"
)

// Entry is the minimal information the index needs about a searchable
// item; Payload carries whatever the caller wants back from a match
// (typically a *chunkstore.File).
type Entry struct {
	ID      string
	Name    string
	Size    int64
	Payload interface{}
}

type sizedEntry struct {
	size int64
	id   string
}

// Index is the combined word/extension/size-range search index.
// find(pattern) intersects all three, ranks by token coverage then
// total size, and caps the result at maxResults.
type Index struct {
	mu sync.RWMutex

	trie *wordTrie
	exts map[string]map[string]bool // extension -> entry IDs
	byID map[string]Entry

	sizes []sizedEntry // kept sorted by size via sort.Search on insert; Find checks each candidate's Size directly

	maxResults int
}

// NewIndex returns an empty Index capping find() results at
// maxResults.
func NewIndex(maxResults int) *Index {
	return &Index{
		trie:       newWordTrie(),
		exts:       make(map[string]map[string]bool),
		byID:       make(map[string]Entry),
		maxResults: maxResults,
	}
}

// Add indexes e, replacing any prior entry with the same ID.
func (idx *Index) Add(e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.byID[e.ID]; exists {
		idx.removeLocked(e.ID)
	}

	idx.byID[e.ID] = e
	for _, tok := range tokenize(e.Name) {
		idx.trie.Add(tok, e.ID)
	}
	ext := extensionOf(e.Name)
	if ext != "" {
		set, ok := idx.exts[ext]
		if !ok {
			set = make(map[string]bool)
			idx.exts[ext] = set
		}
		set[e.ID] = true
	}

	i := sort.Search(len(idx.sizes), func(i int) bool { return idx.sizes[i].size >= e.Size })
	idx.sizes = append(idx.sizes, sizedEntry{})
	copy(idx.sizes[i+1:], idx.sizes[i:])
	idx.sizes[i] = sizedEntry{size: e.Size, id: e.ID}
}

// Remove drops the entry with the given ID from every sub-index.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id string) {
	e, ok := idx.byID[id]
	if !ok {
		return
	}
	for _, tok := range tokenize(e.Name) {
		idx.trie.Remove(tok, id)
	}
	ext := extensionOf(e.Name)
	if set, ok := idx.exts[ext]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(idx.exts, ext)
		}
	}
	for i, se := range idx.sizes {
		if se.id == id {
			idx.sizes = append(idx.sizes[:i], idx.sizes[i+1:]...)
			break
		}
	}
	delete(idx.byID, id)
}

func extensionOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// Query describes a search: a free-text pattern tokenized into words,
// an optional extension filter, and an optional inclusive size range.
type Query struct {
	Pattern  string
	Ext      string // empty = no filter
	MinSize  int64
	MaxSize  int64 // 0 = no upper bound
}

// result pairs an entry with its ranking signal (token coverage).
type result struct {
	entry    Entry
	coverage int
}

// Find runs q against the index and returns matches ranked by number
// of matched words then total size descending, capped at
// Index.maxResults, per spec.md §4.2.
func (idx *Index) Find(q Query) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	queryTokens := tokenize(q.Pattern)

	var candidateSets []map[string]bool
	coverage := make(map[string]int)
	if len(queryTokens) > 0 {
		for _, tok := range queryTokens {
			matches := idx.trie.SearchPrefix(tok)
			if len(matches) == 0 {
				continue
			}
			candidateSets = append(candidateSets, matches)
			for id := range matches {
				coverage[id]++
			}
		}
		if len(candidateSets) == 0 {
			return nil
		}
	}

	// start from the universe, then intersect filters in.
	var ids map[string]bool
	if len(queryTokens) > 0 {
		ids = make(map[string]bool)
		for id := range coverage {
			ids[id] = true
		}
	} else {
		ids = make(map[string]bool, len(idx.byID))
		for id := range idx.byID {
			ids[id] = true
		}
	}

	if q.Ext != "" {
		allowed := idx.exts[strings.ToLower(q.Ext)]
		for id := range ids {
			if !allowed[id] {
				delete(ids, id)
			}
		}
	}

	if q.MinSize > 0 || q.MaxSize > 0 {
		lo, hi := q.MinSize, q.MaxSize
		if hi == 0 {
			hi = int64(1) << 62
		}
		for id := range ids {
			e := idx.byID[id]
			if e.Size < lo || e.Size > hi {
				delete(ids, id)
			}
		}
	}

	out := make([]result, 0, len(ids))
	for id := range ids {
		out = append(out, result{entry: idx.byID[id], coverage: coverage[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].coverage != out[j].coverage {
			return out[i].coverage > out[j].coverage
		}
		return out[i].entry.Size > out[j].entry.Size
	})

	if len(out) > idx.maxResults {
		out = out[:idx.maxResults]
	}
	entries := make([]Entry, len(out))
	for i, r := range out {
		entries[i] = r.entry
	}
	return entries
}

// EntryFromFile builds a search Entry for a chunkstore.File, ID'd by
// its full path.
func EntryFromFile(f *chunkstore.File) Entry {
	return Entry{ID: f.Path(), Name: f.Name(), Size: f.Size(), Payload: f}
}
