package chunkstore

import "sync"

// Directory is a shared entry representing a filesystem directory: a
// set of child files and subdirectories. Lifecycle per spec.md §3:
// created by scan or by receiving a remote entry for a new download,
// destroyed on removal from the filesystem or from shared roots.
type Directory struct {
	entry

	scanned bool

	childMu sync.RWMutex
	files   map[string]*File
	dirs    map[string]*Directory
}

// NewDirectory returns an empty Directory named name under parent.
func NewDirectory(parent *Directory, name string) *Directory {
	d := &Directory{
		entry: entry{parent: parent, name: name},
		files: make(map[string]*File),
		dirs:  make(map[string]*Directory),
	}
	if parent != nil {
		d.root = parent.root
	}
	return d
}

// NewRootDirectory returns the top-level Directory for a shared root.
func NewRootDirectory(root *SharedEntry) *Directory {
	d := NewDirectory(nil, "")
	d.root = root
	return d
}

// Scanned reports whether this node has been visited by at least one
// completed scan.
func (d *Directory) Scanned() bool {
	d.childMu.RLock()
	defer d.childMu.RUnlock()
	return d.scanned
}

// SetScanned marks this node as having been visited by a scan.
func (d *Directory) SetScanned(v bool) {
	d.childMu.Lock()
	d.scanned = v
	d.childMu.Unlock()
}

// AddFile registers f as a child of d.
func (d *Directory) AddFile(f *File) {
	d.childMu.Lock()
	d.files[f.Name()] = f
	d.childMu.Unlock()
	f.setParent(d)
	if d.root != nil {
		d.root.addSize(f.Size())
	}
}

// RemoveFile drops the file named name from d, if present.
func (d *Directory) RemoveFile(name string) (*File, bool) {
	d.childMu.Lock()
	f, ok := d.files[name]
	if ok {
		delete(d.files, name)
	}
	d.childMu.Unlock()
	if ok && d.root != nil {
		d.root.addSize(-f.Size())
	}
	return f, ok
}

// File returns the child file named name, if present.
func (d *Directory) File(name string) (*File, bool) {
	d.childMu.RLock()
	defer d.childMu.RUnlock()
	f, ok := d.files[name]
	return f, ok
}

// Files returns a snapshot of d's child files.
func (d *Directory) Files() []*File {
	d.childMu.RLock()
	defer d.childMu.RUnlock()
	out := make([]*File, 0, len(d.files))
	for _, f := range d.files {
		out = append(out, f)
	}
	return out
}

// AddDirectory registers sub as a child directory of d.
func (d *Directory) AddDirectory(sub *Directory) {
	d.childMu.Lock()
	d.dirs[sub.Name()] = sub
	d.childMu.Unlock()
	sub.setParent(d)
}

// RemoveDirectory drops the subdirectory named name from d, if present.
func (d *Directory) RemoveDirectory(name string) (*Directory, bool) {
	d.childMu.Lock()
	defer d.childMu.Unlock()
	sub, ok := d.dirs[name]
	if ok {
		delete(d.dirs, name)
	}
	return sub, ok
}

// Directory returns the child subdirectory named name, if present.
func (d *Directory) Directory(name string) (*Directory, bool) {
	d.childMu.RLock()
	defer d.childMu.RUnlock()
	sub, ok := d.dirs[name]
	return sub, ok
}

// Directories returns a snapshot of d's child subdirectories.
func (d *Directory) Directories() []*Directory {
	d.childMu.RLock()
	defer d.childMu.RUnlock()
	out := make([]*Directory, 0, len(d.dirs))
	for _, sub := range d.dirs {
		out = append(out, sub)
	}
	return out
}

// Walk visits d and every descendant entry, files before
// subdirectories at each level, depth-first.
func (d *Directory) Walk(visitFile func(*File), visitDir func(*Directory)) {
	if visitDir != nil {
		visitDir(d)
	}
	for _, f := range d.Files() {
		if visitFile != nil {
			visitFile(f)
		}
	}
	for _, sub := range d.Directories() {
		sub.Walk(visitFile, visitDir)
	}
}
