package netlistener

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"time"

	"github.com/dlan-project/dlan-core/peer"
	"github.com/dlan-project/dlan-core/searchindex"
)

// MsgFindRequest and MsgFindResult extend peer's message-type space
// for the UDP broadcast search protocol of spec.md §4.5.
const (
	MsgFindRequest peer.MessageType = 101
	MsgFindResult  peer.MessageType = 102
)

// FindRequest is broadcast to every peer on the multicast group.
type FindRequest struct {
	Tag     uint64
	Pattern string
}

// FindResult is one match, tagged so the requester can discard
// replies to searches it no longer cares about.
type FindResult struct {
	Tag          uint64
	PeerID       string
	SharedRootID string
	Path         string
	Name         string
	Size         int64
}

// Search represents one outstanding broadcast search.
type Search struct {
	listener *Listener
	tag      uint64

	lifetime   time.Duration
	maxResults int

	results chan FindResult
	done    chan struct{}
}

// NewSearch prepares a new tagged search over listener.
func NewSearch(listener *Listener, lifetime time.Duration, maxResults int) *Search {
	return &Search{
		listener:   listener,
		tag:        randomTag(),
		lifetime:   lifetime,
		maxResults: maxResults,
		results:    make(chan FindResult, maxResults),
		done:       make(chan struct{}),
	}
}

func randomTag() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Tag returns this search's random 64-bit correlation tag.
func (s *Search) Tag() uint64 {
	return s.tag
}

// Results returns the channel results are delivered on. It is closed
// only when Search fails to send the request; when the search ends,
// Done is closed and Results stays open.
func (s *Search) Results() <-chan FindResult {
	return s.results
}

// Search broadcasts pattern and runs for up to s.lifetime, delivering
// up to s.maxResults results; Done is closed when either limit is
// reached, and the Results channel is left open.
func (s *Search) Search(pattern string) error {
	if err := s.listener.SendMulticast(MsgFindRequest, FindRequest{Tag: s.tag, Pattern: pattern}); err != nil {
		close(s.results)
		return err
	}
	go func() {
		<-time.After(s.lifetime)
		select {
		case <-s.done: // already closed by Deliver at maxResults
		default:
			close(s.done)
		}
	}()
	return nil
}

// Deliver is called by the listener's incoming-datagram dispatcher for
// every FindResult whose Tag matches this search. Returns false once
// the search is no longer accepting results.
func (s *Search) Deliver(r FindResult) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.results <- r:
		if len(s.results) >= s.maxResults {
			close(s.done)
		}
		return true
	default:
		return false
	}
}

// Done returns the channel closed when this search stops accepting
// results.
func (s *Search) Done() <-chan struct{} {
	return s.done
}

// RespondToFind answers an incoming FindRequest against the local
// search index, sending one FindResult datagram per match directly
// back to the requester.
func RespondToFind(listener *Listener, idx *searchindex.Index, localPeerID string, from *net.UDPAddr, req FindRequest) error {
	matches := idx.Find(searchindex.Query{Pattern: req.Pattern})
	for _, e := range matches {
		result := FindResult{
			Tag:    req.Tag,
			PeerID: localPeerID,
			Path:   e.ID,
			Name:   e.Name,
			Size:   e.Size,
		}
		if err := listener.SendUnicast(from, MsgFindResult, result); err != nil {
			return err
		}
	}
	return nil
}
