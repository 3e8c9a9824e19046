// Package netlistener implements the UDP presence beacon and
// broadcast search fan-out described in spec.md §4.5.
package netlistener

import (
	"bytes"
	"errors"
	"fmt"
	"net"

	"github.com/dlan-project/dlan-core/peer"
)

// ErrMessageTooLarge is raised when an outgoing datagram would exceed
// maxDatagramSize; it fails fast rather than being sent truncated.
var ErrMessageTooLarge = errors.New("netlistener: message exceeds max UDP datagram size")

// Listener owns the node's unicast and multicast UDP sockets.
type Listener struct {
	unicast   *net.UDPConn
	multicast *net.UDPConn

	unicastPort int

	multicastAddr *net.UDPAddr
	maxDatagram   int
}

// NewListener opens a unicast socket starting at basePort
// (auto-incrementing on EADDRINUSE) and joins multicastGroup:
// multicastPort. ttl is accepted but not applied to either socket:
// multicast datagrams go out with the system's default TTL.
func NewListener(listenAddress string, basePort int, multicastGroup string, multicastPort, ttl, maxDatagram int) (*Listener, error) {
	var uconn *net.UDPConn
	var port int
	var lastErr error
	for port = basePort; port < basePort+1000; port++ {
		addr := &net.UDPAddr{IP: net.ParseIP(listenAddress), Port: port}
		c, err := net.ListenUDP("udp", addr)
		if err == nil {
			uconn = c
			break
		}
		lastErr = err
	}
	if uconn == nil {
		return nil, fmt.Errorf("netlistener: exhausted port range starting at %d: %w", basePort, lastErr)
	}

	mAddr := &net.UDPAddr{IP: net.ParseIP(multicastGroup), Port: multicastPort}
	mconn, err := net.ListenMulticastUDP("udp", multicastInterface(), mAddr)
	if err != nil {
		uconn.Close()
		return nil, fmt.Errorf("netlistener: join multicast %s:%d: %w", multicastGroup, multicastPort, err)
	}
	mconn.SetReadBuffer(maxDatagram * 8)

	return &Listener{
		unicast:       uconn,
		multicast:     mconn,
		unicastPort:   port,
		multicastAddr: mAddr,
		maxDatagram:   maxDatagram,
	}, nil
}

// multicastInterface picks the first up, multicast-capable non-loopback
// interface to join the group on, falling back to the first such
// loopback interface (the case in a loopback-only test environment with
// no default multicast route), and to nil (the kernel default route)
// when there is neither.
func multicastInterface() *net.Interface {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var loopback *net.Interface
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			if loopback == nil {
				loopback = &iface
			}
			continue
		}
		return &iface
	}
	return loopback
}

// UnicastPort returns the port the unicast socket actually bound to,
// after any EADDRINUSE auto-increment.
func (l *Listener) UnicastPort() int {
	return l.unicastPort
}

// Close closes both sockets.
func (l *Listener) Close() error {
	err1 := l.unicast.Close()
	err2 := l.multicast.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// SendUnicast frames msgType/payload and sends it to dst over the
// unicast socket.
func (l *Listener) SendUnicast(dst *net.UDPAddr, msgType peer.MessageType, payload interface{}) error {
	return l.send(l.unicast, dst, msgType, payload)
}

// SendMulticast frames msgType/payload and broadcasts it to the
// multicast group.
func (l *Listener) SendMulticast(msgType peer.MessageType, payload interface{}) error {
	return l.send(l.unicast, l.multicastAddr, msgType, payload)
}

func (l *Listener) send(conn *net.UDPConn, dst *net.UDPAddr, msgType peer.MessageType, payload interface{}) error {
	var buf bytes.Buffer
	if err := peer.WriteFrame(&buf, msgType, payload); err != nil {
		return err
	}
	if buf.Len() > l.maxDatagram {
		return ErrMessageTooLarge
	}
	_, err := conn.WriteToUDP(buf.Bytes(), dst)
	return err
}

// Datagram is one received, framed UDP message.
type Datagram struct {
	From    *net.UDPAddr
	Type    peer.MessageType
	Payload []byte
}

// ReadUnicast blocks for the next datagram on the unicast socket.
func (l *Listener) ReadUnicast() (Datagram, error) {
	return readFrom(l.unicast, l.maxDatagram)
}

// ReadMulticast blocks for the next datagram on the multicast socket.
func (l *Listener) ReadMulticast() (Datagram, error) {
	return readFrom(l.multicast, l.maxDatagram)
}

func readFrom(conn *net.UDPConn, maxDatagram int) (Datagram, error) {
	buf := make([]byte, maxDatagram)
	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		return Datagram{}, err
	}
	msgType, body, err := peer.ReadFrame(bytes.NewReader(buf[:n]), uint32(maxDatagram))
	if err != nil {
		return Datagram{}, err
	}
	return Datagram{From: from, Type: msgType, Payload: body}, nil
}
