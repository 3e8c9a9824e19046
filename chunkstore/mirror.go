package chunkstore

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors raised by newFile, per spec.md §4.1.
var (
	ErrNoWritableRoot     = errors.New("chunkstore: no writable shared root available")
	ErrInsufficientSpace  = errors.New("chunkstore: insufficient free space on target root")
	ErrSuperDirectoryExists = errors.New("chunkstore: a directory exists at a prefix of the target path")
)

// RemoteEntry describes a file entry received from a peer, the
// minimal information newFile needs to materialize local storage for
// a new download.
type RemoteEntry struct {
	Path string // slash-separated, relative to whatever root it is placed under
	Size int64
}

// Mirror holds the in-memory tree for every shared root and is the
// chunk store's single entry point. All writer operations observe the
// "tree-rooted mutex; no nested acquisitions" discipline of spec.md §5:
// mutation always locks exactly one root's tree at a time.
type Mirror struct {
	chunkSize int64

	mu    sync.RWMutex
	roots map[string]*SharedEntry // by ID
	order []string                // insertion order, for stable FreeBytes polling etc
}

// NewMirror returns an empty Mirror using chunkSize for new files.
func NewMirror(chunkSize int64) *Mirror {
	return &Mirror{
		chunkSize: chunkSize,
		roots:     make(map[string]*SharedEntry),
	}
}

// AddRoot registers absPath as a shared root. Per spec.md §3, no
// shared root may be a proper prefix of another: if absPath is nested
// inside an existing root, that root is returned and no new ID is
// created; if absPath contains an existing root, that root is widened
// in place to absPath and keeps its ID. Only the first existing root
// with a prefix relationship is considered.
func (m *Mirror) AddRoot(absPath string) *SharedEntry {
	absPath = filepath.Clean(absPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		existing := m.roots[id]
		if isPrefixPath(existing.AbsPath, absPath) {
			// absPath nests inside an existing root; nothing new to add.
			return existing
		}
		if isPrefixPath(absPath, existing.AbsPath) {
			// existing root nests inside the new, wider absPath: merge by
			// widening existing in place, dropping nothing else since only
			// one inner root can exist for a given path.
			existing.mu.Lock()
			existing.AbsPath = absPath
			existing.mu.Unlock()
			return existing
		}
	}

	se := &SharedEntry{ID: uuid.NewString(), AbsPath: absPath}
	se.root = NewRootDirectory(se)
	m.roots[se.ID] = se
	m.order = append(m.order, se.ID)
	return se
}

// Root returns the shared root with the given ID.
func (m *Mirror) Root(id string) (*SharedEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	se, ok := m.roots[id]
	return se, ok
}

// Roots returns a snapshot of every shared root.
func (m *Mirror) Roots() []*SharedEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SharedEntry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.roots[id])
	}
	return out
}

func isPrefixPath(prefix, full string) bool {
	if prefix == full {
		return true
	}
	return strings.HasPrefix(full, prefix+string(filepath.Separator))
}

// NewFile allocates the ordered chunk handles for a newly discovered
// download target. Among the shared roots whose free space suffices,
// the one with the longest AbsPath wins; re.Path is not compared with
// the root paths, and roots are not checked for writability. The
// returned File carries the ".unfinished" suffix until completion.
func (m *Mirror) NewFile(re RemoteEntry) (*File, error) {
	m.mu.RLock()
	roots := make([]*SharedEntry, len(m.order))
	for i, id := range m.order {
		roots[i] = m.roots[id]
	}
	m.mu.RUnlock()

	if len(roots) == 0 {
		return nil, ErrNoWritableRoot
	}

	var best *SharedEntry
	for _, se := range roots {
		if se.FreeBytes() < re.Size {
			continue
		}
		if best == nil {
			best = se
			continue
		}
		// the longest shared root path wins among candidates with
		// sufficient space.
		if len(se.AbsPath) > len(best.AbsPath) {
			best = se
		}
	}
	if best == nil {
		if len(roots) > 0 {
			return nil, ErrInsufficientSpace
		}
		return nil, ErrNoWritableRoot
	}

	dir := best.Root()
	parts := strings.Split(filepath.ToSlash(re.Path), "/")
	for _, part := range parts[:len(parts)-1] {
		if part == "" {
			continue
		}
		if existingFile, ok := dir.File(part); ok {
			_ = existingFile
			return nil, ErrSuperDirectoryExists
		}
		sub, ok := dir.Directory(part)
		if !ok {
			sub = NewDirectory(dir, part)
			dir.AddDirectory(sub)
		}
		dir = sub
	}

	name := parts[len(parts)-1]
	if _, ok := dir.Directory(name); ok {
		return nil, ErrSuperDirectoryExists
	}

	f := NewFile(dir, name, re.Size, time.Now(), m.chunkSize)
	f.SetUnfinished(true)
	dir.AddFile(f)
	return f, nil
}
