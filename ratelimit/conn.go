// Package ratelimit wraps a net.Conn so that writes to it are capped to a
// configurable byte rate, used by the upload manager to avoid saturating a
// peer's link.
package ratelimit

import (
	"context"
	"net"
	"time"

	"golang.org/x/time/rate"
)

// RLConnection is a net.Conn whose Write calls are throttled by a token
// bucket. Read, and every other net.Conn method, passes straight through to
// the wrapped connection.
type RLConnection struct {
	conn    net.Conn
	limiter *rate.Limiter
}

// NewRLConn wraps conn in an RLConnection that caps writes to
// bytesPerSecond. A bytesPerSecond of zero disables rate limiting entirely.
func NewRLConn(conn net.Conn, bytesPerSecond int64) net.Conn {
	if bytesPerSecond <= 0 {
		return conn
	}
	burst := int(bytesPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &RLConnection{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
	}
}

// Read calls the underlying connection's Read method.
func (rlc *RLConnection) Read(b []byte) (int, error) {
	return rlc.conn.Read(b)
}

// Write writes data to the underlying connection without exceeding the rate
// limit, blocking as necessary.
func (rlc *RLConnection) Write(b []byte) (int, error) {
	burst := rlc.limiter.Burst()
	var written int
	for len(b) > 0 {
		chunk := b
		if len(chunk) > burst {
			chunk = chunk[:burst]
		}
		if err := rlc.limiter.WaitN(context.Background(), len(chunk)); err != nil {
			return written, err
		}
		n, err := rlc.conn.Write(chunk)
		written += n
		b = b[n:]
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Close calls the underlying connection's Close method.
func (rlc *RLConnection) Close() error {
	return rlc.conn.Close()
}

// LocalAddr calls the underlying connection's LocalAddr method.
func (rlc *RLConnection) LocalAddr() net.Addr {
	return rlc.conn.LocalAddr()
}

// RemoteAddr calls the underlying connection's RemoteAddr method.
func (rlc *RLConnection) RemoteAddr() net.Addr {
	return rlc.conn.RemoteAddr()
}

// SetDeadline calls the underlying connection's SetDeadline method.
func (rlc *RLConnection) SetDeadline(t time.Time) error {
	return rlc.conn.SetDeadline(t)
}

// SetReadDeadline calls the underlying connection's SetReadDeadline method.
func (rlc *RLConnection) SetReadDeadline(t time.Time) error {
	return rlc.conn.SetReadDeadline(t)
}

// SetWriteDeadline calls the underlying connection's SetWriteDeadline method.
func (rlc *RLConnection) SetWriteDeadline(t time.Time) error {
	return rlc.conn.SetWriteDeadline(t)
}
