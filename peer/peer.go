// Package peer implements the peer directory and per-peer connection
// pool: presence tracking, liveness timeouts, compatibility marking,
// and the framed request/response protocol carried over pooled TCP
// sockets.
package peer

import (
	"sync"
	"time"
)

// Compatibility describes how a peer's advertised protocol version
// relates to ours.
type Compatibility int

const (
	CompatibleVersion Compatibility = iota
	VersionOutdated
	MoreRecentVersion
)

// Rates is a pair of observed transfer rates, in bytes/second.
type Rates struct {
	Download float64
	Upload   float64
}

// Peer is a remote node: its advertised identity, liveness state, and
// connection pool.
type Peer struct {
	ID string

	mu            sync.RWMutex
	nick          string
	ip            string
	port          int
	sharedBytes   int64
	rates         Rates
	version       uint32
	compatibility Compatibility

	alive      bool
	blockedUntil time.Time
	deadline     time.Time
	timer        *time.Timer

	pool *Pool

	onDead func(*Peer)
}

// NewPeer returns a Peer for id, wired to call onDead (if non-nil)
// when its liveness timer expires.
func NewPeer(id string, onDead func(*Peer)) *Peer {
	p := &Peer{ID: id, onDead: onDead}
	p.pool = NewPool(p)
	return p
}

// Update upserts presence fields and (re)arms the liveness timer for
// timeout, per spec.md §4.3's updatePeer contract.
func (p *Peer) Update(ip string, port int, nick string, sharedBytes int64, version uint32, rates Rates, timeout time.Duration, protocolVersion uint32) {
	p.mu.Lock()
	p.ip = ip
	p.port = port
	p.nick = nick
	p.sharedBytes = sharedBytes
	p.version = version
	p.rates = rates
	p.alive = true

	switch {
	case version < protocolVersion:
		p.compatibility = VersionOutdated
	case version > protocolVersion:
		p.compatibility = MoreRecentVersion
	default:
		p.compatibility = CompatibleVersion
	}

	p.deadline = time.Now().Add(timeout)
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(timeout, p.expire)
	p.mu.Unlock()
}

func (p *Peer) expire() {
	p.mu.Lock()
	p.alive = false
	p.mu.Unlock()
	p.pool.CloseAll()
	if p.onDead != nil {
		p.onDead(p)
	}
}

// IsAlive reports whether the peer's liveness deadline has not yet
// passed.
func (p *Peer) IsAlive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.alive
}

// Block marks the peer unavailable (but still alive) for duration.
// reason is not stored.
func (p *Peer) Block(duration time.Duration, reason string) {
	p.mu.Lock()
	p.blockedUntil = time.Now().Add(duration)
	p.mu.Unlock()
}

// IsBlocked reports whether the peer is currently within a block
// window.
func (p *Peer) IsBlocked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Now().Before(p.blockedUntil)
}

// IsAvailable reports alive, not blocked, and protocol-compatible —
// the selection criterion used by the download scheduler.
func (p *Peer) IsAvailable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.alive && time.Now().After(p.blockedUntil) && p.compatibility == CompatibleVersion
}

// Compatibility returns the peer's protocol-version relationship to
// ours.
func (p *Peer) Compatibility() Compatibility {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.compatibility
}

// Address returns the peer's last known (ip, port).
func (p *Peer) Address() (string, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ip, p.port
}

// Nick returns the peer's advertised nickname.
func (p *Peer) Nick() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nick
}

// SharedBytes returns the peer's advertised total shared bytes.
func (p *Peer) SharedBytes() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sharedBytes
}

// Rates returns the peer's last observed transfer rates.
func (p *Peer) Rates() Rates {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rates
}

// Pool returns the peer's pooled-connection manager.
func (p *Peer) Pool() *Pool {
	return p.pool
}
