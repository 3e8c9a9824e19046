package peer

import (
	"sync"
	"time"
)

// Directory is the peer-list half of the peer manager: it upserts
// peers on presence updates and answers lookups for the scheduler and
// the GUI state emitter.
type Directory struct {
	timeout         time.Duration
	protocolVersion uint32

	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewDirectory returns an empty Directory. timeout is
// peer_timeout_factor * peer_imalive_period, per spec.md §4.3.
func NewDirectory(timeout time.Duration, protocolVersion uint32) *Directory {
	return &Directory{
		timeout:         timeout,
		protocolVersion: protocolVersion,
		peers:           make(map[string]*Peer),
	}
}

// UpdatePeer upserts the peer with id, creating it if unseen, and
// (re)arms its liveness timer.
func (d *Directory) UpdatePeer(id, ip string, port int, nick string, sharedBytes int64, version uint32, rates Rates) *Peer {
	d.mu.Lock()
	p, ok := d.peers[id]
	if !ok {
		p = NewPeer(id, d.onPeerDead)
		d.peers[id] = p
	}
	d.mu.Unlock()

	p.Update(ip, port, nick, sharedBytes, version, rates, d.timeout, d.protocolVersion)
	return p
}

func (d *Directory) onPeerDead(p *Peer) {
	// The peer remains in the directory (callers still want its last
	// known identity for history/GUI), only its liveness flips.
}

// GetPeer returns the peer with id, if known.
func (d *Directory) GetPeer(id string) (*Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[id]
	return p, ok
}

// Peers returns a snapshot of every known peer.
func (d *Directory) Peers() []*Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	return out
}

// AvailablePeers returns every peer currently IsAvailable().
func (d *Directory) AvailablePeers() []*Peer {
	var out []*Peer
	for _, p := range d.Peers() {
		if p.IsAvailable() {
			out = append(out, p)
		}
	}
	return out
}

// Block marks the peer id unavailable for duration.
func (d *Directory) Block(id string, duration time.Duration, reason string) {
	if p, ok := d.GetPeer(id); ok {
		p.Block(duration, reason)
	}
}
