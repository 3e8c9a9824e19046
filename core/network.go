package core

import (
	"github.com/dlan-project/dlan-core/encoding"
	"github.com/dlan-project/dlan-core/netlistener"
	"github.com/dlan-project/dlan-core/peer"
)

// receiveLoop repeatedly calls read (ReadMulticast or ReadUnicast) and
// dispatches each datagram by message type until the listener is
// closed (observed as a read error once n.stopNet is signalled).
func (n *Node) receiveLoop(read func() (netlistener.Datagram, error)) {
	defer n.netWG.Done()
	for {
		dg, err := read()
		if err != nil {
			select {
			case <-n.stopNet:
				return
			default:
				continue
			}
		}
		n.dispatch(dg)
	}
}

func (n *Node) dispatch(dg netlistener.Datagram) {
	switch dg.Type {
	case netlistener.MsgIMAlive:
		var im netlistener.IMAlive
		if encoding.Unmarshal(dg.Payload, &im) != nil {
			return
		}
		n.Peers.UpdatePeer(im.ID, dg.From.IP.String(), im.Port, im.Nick, im.SharedBytes, im.ProtocolVersion, peer.Rates{Download: im.DownloadRate, Upload: im.UploadRate})

	case netlistener.MsgFindRequest:
		var req netlistener.FindRequest
		if encoding.Unmarshal(dg.Payload, &req) != nil {
			return
		}
		_ = netlistener.RespondToFind(n.Listener, n.SearchIndex, n.ID, dg.From, req)

	case netlistener.MsgFindResult:
		var res netlistener.FindResult
		if encoding.Unmarshal(dg.Payload, &res) != nil {
			return
		}
		n.searchMu.Lock()
		s, ok := n.searches[res.Tag]
		n.searchMu.Unlock()
		if ok {
			s.Deliver(res)
		}
	}
}

// StartSearch broadcasts pattern over the network listener and
// registers the returned Search to receive matching FindResults until
// its lifetime expires or it is explicitly stopped with StopSearch.
func (n *Node) StartSearch(pattern string) (*netlistener.Search, error) {
	s := netlistener.NewSearch(n.Listener, n.cfg.SearchLifetime, n.cfg.MaxNumberOfResultShown)
	n.searchMu.Lock()
	n.searches[s.Tag()] = s
	n.searchMu.Unlock()

	if err := s.Search(pattern); err != nil {
		n.StopSearch(s)
		return nil, err
	}
	go func() {
		<-s.Done()
		n.StopSearch(s)
	}()
	return s, nil
}

// StopSearch unregisters a search so late FindResults carrying its tag
// are dropped instead of routed.
func (n *Node) StopSearch(s *netlistener.Search) {
	n.searchMu.Lock()
	delete(n.searches, s.Tag())
	n.searchMu.Unlock()
}
