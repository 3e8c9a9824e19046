package chunkstore

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// unfinishedSuffix marks a file on disk whose bytes are not yet
// complete, per spec.md §3.
const unfinishedSuffix = ".unfinished"

// File is a shared entry representing a single file: its chunk list,
// size, and modification time.
type File struct {
	entry

	size    int64
	modTime time.Time
	chunks  []*Chunk

	unfinished bool
}

// NewFile allocates a File with ⌈size/chunkSize⌉ chunks, the last one
// possibly short (spec.md §3 invariant).
func NewFile(parent *Directory, name string, size int64, modTime time.Time, chunkSize int64) *File {
	f := &File{
		entry:   entry{parent: parent, name: name},
		size:    size,
		modTime: modTime,
	}
	if parent != nil {
		f.root = parent.root
	}
	nChunks := int((size + chunkSize - 1) / chunkSize)
	if size == 0 {
		nChunks = 1
	}
	f.chunks = make([]*Chunk, nChunks)
	remaining := size
	for i := 0; i < nChunks; i++ {
		cs := chunkSize
		if remaining < cs {
			cs = remaining
		}
		f.chunks[i] = NewChunk(f, i, cs)
		remaining -= cs
	}
	return f
}

// Size returns the file's total size in bytes.
func (f *File) Size() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.size
}

// ModTime returns the file's last known modification time.
func (f *File) ModTime() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.modTime
}

// SetModTime updates the cached modification time, used when a scan
// detects an on-disk change.
func (f *File) SetModTime(t time.Time) {
	f.mu.Lock()
	f.modTime = t
	f.mu.Unlock()
}

// Chunks returns the file's ordered chunk list. The slice itself must
// not be mutated by callers.
func (f *File) Chunks() []*Chunk {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.chunks
}

// IsComplete reports whether every chunk is fully known.
func (f *File) IsComplete() bool {
	for _, c := range f.Chunks() {
		if !c.IsComplete() {
			return false
		}
	}
	return true
}

// HasAllHashes reports whether every chunk has a committed digest.
func (f *File) HasAllHashes() bool {
	for _, c := range f.Chunks() {
		if _, ok := c.Digest(); !ok {
			return false
		}
	}
	return true
}

// InvalidateHashes clears every chunk's known bytes and digest; used
// by scan when a file's size or mtime no longer matches the mirror.
func (f *File) InvalidateHashes() {
	for _, c := range f.Chunks() {
		c.ClearDigest()
	}
}

// IsUnfinished reports whether the file still carries the
// ".unfinished" suffix on disk.
func (f *File) IsUnfinished() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.unfinished
}

// SetUnfinished marks whether the file still carries the suffix.
func (f *File) SetUnfinished(v bool) {
	f.mu.Lock()
	f.unfinished = v
	f.mu.Unlock()
}

// DiskName returns the name the file should have on disk, including
// the ".unfinished" suffix while incomplete.
func (f *File) DiskName() string {
	name := f.Name()
	if f.IsUnfinished() && !strings.HasSuffix(name, unfinishedSuffix) {
		return name + unfinishedSuffix
	}
	return name
}

// AbsDiskPath returns the file's actual absolute path on disk, which
// carries the ".unfinished" suffix while the file is incomplete. Byte
// I/O against a File must always go through this, not AbsPath, since a
// download in progress is not yet reachable under its final name.
func (f *File) AbsDiskPath() string {
	dir := ""
	if parent := f.Parent(); parent != nil {
		dir = parent.Path()
	}
	rel := path.Join(dir, f.DiskName())
	root := f.Root()
	if root == nil {
		return rel
	}
	return filepath.Join(root.AbsPath, rel)
}
