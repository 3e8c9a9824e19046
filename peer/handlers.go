package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dlan-project/dlan-core/chunkstore"
)

// ErrChunkGoneMidStream is returned when a chunk being streamed for
// GET_CHUNK becomes unknown (its owning file was deleted) before the
// stream completes.
var ErrChunkGoneMidStream = errors.New("peer: chunk became unavailable mid-stream")

// Handlers implements the core-to-core request handlers of spec.md
// §4.4, wired against the local chunk store.
type Handlers struct {
	Mirror *chunkstore.Mirror
	Hasher *chunkstore.Hasher
	Index  *chunkstore.Index

	GetHashesTimeout time.Duration

	OnChatMessages func(ChatMessages)
}

// HandleGetEntries answers GET_ENTRIES: the children of the directory
// named by req.Path under req.SharedRootID (the root's own children if
// req.Path is empty), or the shared-root list if req.SharedRootID is
// empty.
func (h *Handlers) HandleGetEntries(req GetEntriesRequest) (GetEntriesResponse, error) {
	if req.SharedRootID == "" {
		var out []EntryInfo
		for _, se := range h.Mirror.Roots() {
			out = append(out, EntryInfo{Name: se.ID, IsDir: true, Size: se.TotalSize()})
		}
		return GetEntriesResponse{Entries: out}, nil
	}

	se, ok := h.Mirror.Root(req.SharedRootID)
	if !ok {
		return GetEntriesResponse{}, fmt.Errorf("peer: unknown shared root %q", req.SharedRootID)
	}

	dir := se.Root()
	if req.Path != "" {
		for _, part := range splitPath(req.Path) {
			sub, ok := dir.Directory(part)
			if !ok {
				return GetEntriesResponse{}, fmt.Errorf("peer: %w", ErrUnknownEntry)
			}
			dir = sub
		}
	}

	var out []EntryInfo
	for _, f := range dir.Files() {
		out = append(out, EntryInfo{Name: f.Name(), Size: f.Size(), ModTime: f.ModTime().Unix()})
	}
	for _, sub := range dir.Directories() {
		out = append(out, EntryInfo{Name: sub.Name(), IsDir: true})
	}
	return GetEntriesResponse{Entries: out}, nil
}

// ErrUnknownEntry is the protocol-level status raised when a
// GET_ENTRIES path does not resolve.
var ErrUnknownEntry = errors.New("unknown entry")

func splitPath(p string) []string {
	var out []string
	cur := ""
	for _, r := range p {
		if r == '/' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// HandleGetHashes streams one HashResult per chunk of the named file,
// in chunk-number order, to w. Chunks already hashed are emitted
// immediately; others subscribe to the hasher's "chunk hashed" signal
// and are simultaneously prioritized, per spec.md §4.4.
func (h *Handlers) HandleGetHashes(ctx context.Context, w io.Writer, req GetHashesRequest) error {
	se, ok := h.Mirror.Root(req.SharedRootID)
	if !ok {
		return WriteFrame(w, MsgHashResult, HashResult{Status: StatusUnknownEntry})
	}

	dir := se.Root()
	parts := splitPath(req.Path)
	name := parts[len(parts)-1]
	for _, part := range parts[:len(parts)-1] {
		sub, ok := dir.Directory(part)
		if !ok {
			return WriteFrame(w, MsgHashResult, HashResult{Status: StatusUnknownEntry})
		}
		dir = sub
	}
	f, ok := dir.File(name)
	if !ok {
		return WriteFrame(w, MsgHashResult, HashResult{Status: StatusUnknownEntry})
	}

	ctx, cancel := context.WithTimeout(ctx, h.GetHashesTimeout)
	defer cancel()

	signal := make(chan *chunkstore.Chunk, len(f.Chunks()))
	unsubscribe := h.subscribe(f, signal)
	defer unsubscribe()

	h.Hasher.EnqueuePrioritized(f)

	remaining := make(map[int]*chunkstore.Chunk)
	for _, c := range f.Chunks() {
		if d, ok := c.Digest(); ok {
			if err := WriteFrame(w, MsgHashResult, HashResult{Num: c.Num(), Digest: d, Status: StatusOK}); err != nil {
				return err
			}
		} else {
			remaining[c.Num()] = c
		}
	}

	for len(remaining) > 0 {
		select {
		case c := <-signal:
			if _, pending := remaining[c.Num()]; !pending {
				continue
			}
			d, ok := c.Digest()
			if !ok {
				continue
			}
			if err := WriteFrame(w, MsgHashResult, HashResult{Num: c.Num(), Digest: d, Status: StatusOK}); err != nil {
				return err
			}
			delete(remaining, c.Num())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *Handlers) subscribe(f *chunkstore.File, signal chan *chunkstore.Chunk) func() {
	cb := func(hashedFile *chunkstore.File, c *chunkstore.Chunk) {
		if hashedFile != f {
			return
		}
		select {
		case signal <- c:
		default:
		}
	}
	h.Hasher.OnChunkHashed(cb)
	// The teacher's Hasher has no unsubscribe primitive (callbacks are
	// additive for the process lifetime); returning a no-op keeps the
	// call site symmetric if that changes.
	return func() {}
}

// HandleGetChunk streams the raw bytes of the chunk identified by
// req.Digest to w, honoring backpressure via plain blocking Write
// calls. If the chunk becomes unknown mid-stream the stream is
// aborted.
func (h *Handlers) HandleGetChunk(ctx context.Context, w io.Writer, req GetChunkRequest) error {
	c, ok := h.Index.GetChunk(req.Digest)
	if !ok {
		return WriteFrame(w, MsgChunkStatus, ChunkStatus{Status: StatusDontHaveIt})
	}

	f := c.Owner()
	if f == nil {
		return WriteFrame(w, MsgChunkStatus, ChunkStatus{Status: StatusDontHaveIt})
	}

	if err := WriteFrame(w, MsgChunkStatus, ChunkStatus{Status: StatusOK, ChunkSize: c.Size() - req.Offset}); err != nil {
		return err
	}

	c.AddRef()
	defer c.Release()

	file, err := os.Open(f.AbsDiskPath())
	if err != nil {
		return err
	}
	defer file.Close()

	offset := req.Offset
	for i := 0; i < c.Num(); i++ {
		offset += f.Chunks()[i].Size()
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	buf := make([]byte, 64*1024)
	remaining := c.Size() - req.Offset
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if c.Owner() == nil {
			return ErrChunkGoneMidStream
		}
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		rn, err := file.Read(buf[:n])
		if rn > 0 {
			if _, werr := w.Write(buf[:rn]); werr != nil {
				return werr
			}
			remaining -= int64(rn)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	return nil
}

// HandleChatMessages forwards an unopened chat payload to
// OnChatMessages, if set; the core does not interpret it.
func (h *Handlers) HandleChatMessages(msg ChatMessages) {
	if h.OnChatMessages != nil {
		h.OnChatMessages(msg)
	}
}
