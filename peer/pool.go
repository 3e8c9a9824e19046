package peer

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrPoolClosed is returned by getASocket once the peer has been
// marked dead and its pool closed.
var ErrPoolClosed = errors.New("peer: connection pool is closed")

type pooledConn struct {
	conn  net.Conn
	timer *time.Timer // idle-timeout closer, armed while the conn sits idle
}

// Pool is a per-peer queue of warm TCP sockets, bounded by
// maxIdle, grounded on the teacher's gateway peer-session bookkeeping
// generalized from one multiplexed session to a pool of plain
// net.Conns (spec.md §4.4).
type Pool struct {
	peer *Peer

	mu     sync.Mutex
	idle   []*pooledConn
	closed bool

	maxIdle             int
	idleSocketTimeout   time.Duration
	pendingSocketTimeout time.Duration
}

// NewPool returns an empty Pool for peer, using package defaults until
// Configure is called.
func NewPool(peer *Peer) *Pool {
	return &Pool{
		peer:                 peer,
		maxIdle:              5,
		idleSocketTimeout:    30 * time.Second,
		pendingSocketTimeout: 10 * time.Second,
	}
}

// Configure sets the pool's tunables, normally called once at
// construction from config.Config.
func (p *Pool) Configure(maxIdle int, idleTimeout, pendingTimeout time.Duration) {
	p.mu.Lock()
	p.maxIdle = maxIdle
	p.idleSocketTimeout = idleTimeout
	p.pendingSocketTimeout = pendingTimeout
	p.mu.Unlock()
}

// GetASocket returns an idle connection if one exists, otherwise dials
// (ip, port) with pendingSocketTimeout. The caller must call Release
// (or Discard on error) when done with the connection.
func (p *Pool) GetASocket() (net.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if len(p.idle) > 0 {
		pc := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.mu.Unlock()
		pc.timer.Stop()
		return pc.conn, nil
	}
	ip, port := p.peer.Address()
	pending := p.pendingSocketTimeout
	p.mu.Unlock()

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", ip, port), pending)
	if err != nil {
		return nil, fmt.Errorf("peer: dial %s:%d: %w", ip, port, err)
	}
	return conn, nil
}

// Release returns conn to the idle queue, arming idleSocketTimeout to
// close it if it isn't reused in time. If the idle queue is already
// at maxIdle, conn is closed immediately.
func (p *Pool) Release(conn net.Conn) {
	p.mu.Lock()
	if p.closed || len(p.idle) >= p.maxIdle {
		p.mu.Unlock()
		conn.Close()
		return
	}
	pc := &pooledConn{conn: conn}
	pc.timer = time.AfterFunc(p.idleSocketTimeout, func() {
		p.evict(pc)
	})
	p.idle = append(p.idle, pc)
	p.mu.Unlock()
}

// Discard closes conn without returning it to the pool, for use after
// a protocol error.
func (p *Pool) Discard(conn net.Conn) {
	conn.Close()
}

func (p *Pool) evict(pc *pooledConn) {
	p.mu.Lock()
	for i, c := range p.idle {
		if c == pc {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	pc.conn.Close()
}

// CloseAll closes every idle socket and marks the pool closed; called
// when the peer's liveness deadline expires.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, pc := range idle {
		pc.timer.Stop()
		pc.conn.Close()
	}
}

// IdleCount returns the number of currently idle sockets, for tests
// and diagnostics.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
