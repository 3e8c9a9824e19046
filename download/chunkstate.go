// Package download implements the download manager: per-file chunk
// state machines, peer scheduling, and queue persistence, per
// spec.md §4.6.
package download

import (
	"sync"
	"time"

	"github.com/dlan-project/dlan-core/chunkstore"
)

// State is a chunk's position in the state machine of spec.md §4.6.
type State int

const (
	StateWaiting State = iota
	StateNoSrc
	StateActive
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateNoSrc:
		return "NO_SRC"
	case StateActive:
		return "ACTIVE"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// ChunkDownload tracks one chunk's download state, the donor currently
// serving it (if ACTIVE), and its observed transfer rate for the
// peer-switch comparison.
type ChunkDownload struct {
	mu sync.Mutex

	Num    int
	Digest chunkstore.Digest
	Chunk  *chunkstore.Chunk

	state State

	donorPeerID    string
	bytesAtSwitch  int64
	observedRate   float64
	activeSince    time.Time
	lastRetry      time.Time
}

// NewChunkDownload returns a chunk download starting in WAITING.
func NewChunkDownload(num int, digest chunkstore.Digest, c *chunkstore.Chunk) *ChunkDownload {
	return &ChunkDownload{Num: num, Digest: digest, Chunk: c, state: StateWaiting}
}

// State returns the chunk's current state.
func (cd *ChunkDownload) State() State {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.state
}

// MarkNoSrc transitions WAITING -> NO_SRC: a source was sought but
// none is currently available.
func (cd *ChunkDownload) MarkNoSrc() {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if cd.state == StateWaiting {
		cd.state = StateNoSrc
	}
}

// Activate transitions to ACTIVE with donorPeerID serving the chunk.
func (cd *ChunkDownload) Activate(donorPeerID string) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.state = StateActive
	cd.donorPeerID = donorPeerID
	cd.activeSince = time.Now()
	cd.observedRate = 0
}

// Donor returns the peer ID currently serving this chunk, if ACTIVE.
func (cd *ChunkDownload) Donor() string {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.donorPeerID
}

// UpdateRate records the chunk's currently observed transfer rate
// (bytes/sec), used by the switch-to-another-peer comparison.
func (cd *ChunkDownload) UpdateRate(bytesPerSec float64) {
	cd.mu.Lock()
	cd.observedRate = bytesPerSec
	cd.mu.Unlock()
}

// ObservedRate returns the chunk's last observed transfer rate.
func (cd *ChunkDownload) ObservedRate() float64 {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.observedRate
}

// Complete transitions ACTIVE -> DONE once the chunk's bytes and
// digest are confirmed.
func (cd *ChunkDownload) Complete() {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.state = StateDone
}

// Reassign cancels the current donor (without blocking it) and
// returns the chunk to WAITING so the scheduler can pick a new
// source.
func (cd *ChunkDownload) Reassign() {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.state = StateWaiting
	cd.donorPeerID = ""
}

// Corrupted handles a HashMismatch: the chunk's known bytes are
// cleared by the caller (chunkstore.Chunk.ClearDigest), the donor is
// blocked by the caller, and the chunk returns to WAITING to be
// retried from elsewhere.
func (cd *ChunkDownload) Corrupted() {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.state = StateWaiting
	cd.donorPeerID = ""
	cd.lastRetry = time.Now()
}
