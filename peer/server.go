package peer

import (
	"context"
	"net"
	"time"

	"github.com/dlan-project/dlan-core/encoding"
	"github.com/dlan-project/dlan-core/syncutil"
)

// maxFramePayload bounds a single TCP frame body; larger requests are
// protocol errors, not a file-size limit (chunk bytes stream as their
// own frame-less payload after a ChunkStatus header).
const maxFramePayload = 1 << 20

// Server accepts inbound peer connections and, for each connection,
// reads one request frame, dispatches it to Handlers and then closes
// the connection, per spec.md §4.4's core-to-core TCP wire. Grounded on
// gateway/peers.go's accept loop.
type Server struct {
	ln             net.Listener
	tg             syncutil.ThreadGroup
	handlers       *Handlers
	pendingTimeout time.Duration
}

// NewServer starts listening on addr (host:port, or ":0" for an
// ephemeral port) without yet accepting connections; call Start for
// that.
func NewServer(addr string, handlers *Handlers, pendingTimeout time.Duration) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, handlers: handlers, pendingTimeout: pendingTimeout}, nil
}

// Addr returns the server's bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Start launches the accept loop.
func (s *Server) Start() error {
	if err := s.tg.Add(); err != nil {
		return err
	}
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.tg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.tg.StopChan():
				return
			default:
				continue
			}
		}
		if s.tg.Add() != nil {
			conn.Close()
			return
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.tg.Done()
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(s.pendingTimeout))
	msgType, body, err := ReadFrame(conn, maxFramePayload)
	if err != nil {
		return
	}
	conn.SetDeadline(time.Time{})

	ctx, cancel := context.WithTimeout(context.Background(), s.pendingTimeout)
	defer cancel()

	switch msgType {
	case MsgGetEntriesRequest:
		var req GetEntriesRequest
		if encoding.Unmarshal(body, &req) != nil {
			return
		}
		resp, err := s.handlers.HandleGetEntries(req)
		if err != nil {
			return
		}
		WriteFrame(conn, MsgGetEntriesResponse, resp)

	case MsgGetHashesRequest:
		var req GetHashesRequest
		if encoding.Unmarshal(body, &req) != nil {
			return
		}
		s.handlers.HandleGetHashes(ctx, conn, req)

	case MsgGetChunkRequest:
		var req GetChunkRequest
		if encoding.Unmarshal(body, &req) != nil {
			return
		}
		s.handlers.HandleGetChunk(ctx, conn, req)

	case MsgChatMessages:
		var msg ChatMessages
		if encoding.Unmarshal(body, &msg) != nil {
			return
		}
		s.handlers.HandleChatMessages(msg)
	}
}

// Stop closes the listener and waits for in-flight connections to
// finish.
func (s *Server) Stop() error {
	err := s.ln.Close()
	s.tg.Stop()
	return err
}
