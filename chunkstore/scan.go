package chunkstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Scanner performs a cancellable BFS diff of a shared root against its
// mirror. At most one scan runs per root at a time, per spec.md §4.1.
type Scanner struct {
	chunkSize int64

	mu       sync.Mutex
	running  map[string]context.CancelFunc // root ID -> cancel of the in-flight scan
	doneChan map[string]chan struct{}      // root ID -> closed when the in-flight scan yields
}

// NewScanner returns a Scanner producing chunks of chunkSize for newly
// discovered files.
func NewScanner(chunkSize int64) *Scanner {
	return &Scanner{
		chunkSize: chunkSize,
		running:   make(map[string]context.CancelFunc),
		doneChan:  make(map[string]chan struct{}),
	}
}

// Scan walks se's filesystem subtree breadth-first, diffing it against
// the in-memory mirror: new files are added with an empty digest list,
// missing files/directories are removed, and files whose size or
// modification time no longer match the mirror have their hashes
// invalidated. The returned slice lists every file that needs
// (re-)hashing as a result, for the caller to enqueue on the hasher's
// normal queue.
func (s *Scanner) Scan(ctx context.Context, se *SharedEntry) ([]*File, error) {
	s.mu.Lock()
	if _, already := s.running[se.ID]; already {
		s.mu.Unlock()
		<-s.waitChan(se.ID)
		return nil, context.Canceled
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running[se.ID] = cancel
	s.doneChan[se.ID] = done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, se.ID)
		delete(s.doneChan, se.ID)
		close(done)
		cancel()
		s.mu.Unlock()
	}()

	var mu sync.Mutex
	var needsHashing []*File

	var walk func(dirPath string, dir *Directory) error
	walk = func(dirPath string, dir *Directory) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ents, err := os.ReadDir(dirPath)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(ents))
		g, gctx := errgroup.WithContext(ctx)
		for _, de := range ents {
			de := de
			seen[de.Name()] = true
			if de.IsDir() {
				sub, ok := dir.Directory(de.Name())
				if !ok {
					sub = NewDirectory(dir, de.Name())
					dir.AddDirectory(sub)
				}
				childPath := filepath.Join(dirPath, de.Name())
				g.Go(func() error {
					select {
					case <-gctx.Done():
						return gctx.Err()
					default:
					}
					return walk(childPath, sub)
				})
				continue
			}

			info, err := de.Info()
			if err != nil {
				continue
			}
			existing, ok := dir.File(de.Name())
			if !ok {
				f := NewFile(dir, de.Name(), info.Size(), info.ModTime(), s.chunkSize)
				dir.AddFile(f)
				mu.Lock()
				needsHashing = append(needsHashing, f)
				mu.Unlock()
				continue
			}
			if existing.Size() != info.Size() || !existing.ModTime().Equal(info.ModTime()) {
				existing.InvalidateHashes()
				mu.Lock()
				needsHashing = append(needsHashing, existing)
				mu.Unlock()
			}
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, f := range dir.Files() {
			if !seen[f.Name()] {
				dir.RemoveFile(f.Name())
			}
		}
		for _, sub := range dir.Directories() {
			if !seen[sub.Name()] {
				dir.RemoveDirectory(sub.Name())
			}
		}
		dir.SetScanned(true)
		return nil
	}

	if err := walk(se.AbsPath, se.Root()); err != nil {
		return needsHashing, err
	}
	return needsHashing, nil
}

func (s *Scanner) waitChan(rootID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.doneChan[rootID]
	if !ok {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return ch
}

// StopScanning blocks until any in-flight scan of se yields.
func (s *Scanner) StopScanning(se *SharedEntry) {
	s.mu.Lock()
	cancel, ok := s.running[se.ID]
	ch := s.doneChan[se.ID]
	s.mu.Unlock()
	if !ok {
		return
	}
	cancel()
	<-ch
}
