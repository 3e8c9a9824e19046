package peer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolReleaseAndReuse(t *testing.T) {
	p := NewPool(NewPeer("x", nil))
	p.Configure(2, time.Second, time.Second)

	c1, c2 := net.Pipe()
	defer c2.Close()

	p.Release(c1)
	require.Equal(t, 1, p.IdleCount())

	got, err := p.GetASocket()
	require.NoError(t, err)
	require.Same(t, c1, got)
	require.Equal(t, 0, p.IdleCount())
}

func TestPoolEvictsOnIdleTimeout(t *testing.T) {
	p := NewPool(NewPeer("x", nil))
	p.Configure(2, 10*time.Millisecond, time.Second)

	c1, c2 := net.Pipe()
	defer c2.Close()
	p.Release(c1)

	require.Eventually(t, func() bool { return p.IdleCount() == 0 }, time.Second, 2*time.Millisecond)
}

func TestPoolCloseAllClosesIdleSockets(t *testing.T) {
	p := NewPool(NewPeer("x", nil))
	c1, c2 := net.Pipe()
	defer c2.Close()
	p.Release(c1)

	p.CloseAll()
	require.Equal(t, 0, p.IdleCount())

	_, err := p.GetASocket()
	require.ErrorIs(t, err, ErrPoolClosed)
}
