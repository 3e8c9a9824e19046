// Package core wires the chunk store, peer directory, network
// listener, download manager, and upload manager into one running
// node, per SPEC_FULL.md §2.
package core

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dlan-project/dlan-core/build"
	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/dlan-project/dlan-core/config"
	"github.com/dlan-project/dlan-core/download"
	"github.com/dlan-project/dlan-core/netlistener"
	"github.com/dlan-project/dlan-core/peer"
	"github.com/dlan-project/dlan-core/persist"
	"github.com/dlan-project/dlan-core/searchindex"
	"github.com/dlan-project/dlan-core/upload"
)

// Node is one running D-LAN core instance.
type Node struct {
	ID  string
	cfg *config.Config
	log *persist.Logger

	Mirror      *chunkstore.Mirror
	Scanner     *chunkstore.Scanner
	Hasher      *chunkstore.Hasher
	ChunkIndex  *chunkstore.Index
	SearchIndex *searchindex.Index

	Peers    *peer.Directory
	Handlers *peer.Handlers

	Listener *netlistener.Listener
	Beacon   *netlistener.Beacon
	Server   *peer.Server

	Queue     *download.Queue
	Scheduler *download.Scheduler

	UploadPool *upload.Pool

	watchers []*chunkstore.Watcher

	searchMu sync.Mutex
	searches map[uint64]*netlistener.Search

	stopOnce sync.Once
	stopNet  chan struct{}
	netWG    sync.WaitGroup
}

// digestSampler feeds the presence beacon a rotating sample of known
// chunk digests, the Open Question (a) resolution recorded in
// DESIGN.md: digests are taken in sorted order, and each call advances
// past the digests returned by the previous one instead of always
// sampling from the front of the set.
type digestSampler struct {
	idx    *chunkstore.Index
	cursor int
}

func (s *digestSampler) SampleDigests(n int) []chunkstore.Digest {
	all := s.idx.Digests()
	if len(all) == 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i][:], all[j][:]) < 0 })
	if n > len(all) {
		n = len(all)
	}
	out := make([]chunkstore.Digest, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, all[(s.cursor+i)%len(all)])
	}
	s.cursor = (s.cursor + n) % len(all)
	return out
}

// NewNode constructs a Node from cfg. It does not start any
// background workers; call Start for that.
func NewNode(id string, cfg *config.Config, dataDir string, log *persist.Logger) (*Node, error) {
	n := &Node{
		ID:  id,
		cfg: cfg,
		log: log,

		Mirror:      chunkstore.NewMirror(cfg.ChunkSize),
		Scanner:     chunkstore.NewScanner(cfg.ChunkSize),
		Hasher:      chunkstore.NewHasher(cfg.MinHashingDuration, cfg.CheckReceivedDataIntegrity),
		ChunkIndex:  chunkstore.NewIndex(),
		SearchIndex: searchindex.NewIndex(cfg.MaxNumberOfSearchResultToSend),

		Peers: peer.NewDirectory(time.Duration(cfg.PeerTimeoutFactor)*cfg.PeerIMAlivePeriod, cfg.ProtocolVersion),

		Queue:     download.NewQueue(cfg.FileQueuePath, cfg.SaveQueuePeriod),
		Scheduler: download.NewScheduler(cfg.NumberOfDownloader),

		UploadPool: upload.NewPool(cfg.UploadMinNbThread, cfg.UploadMinNbThread*4, cfg.UploadThreadLifetime),

		searches: make(map[uint64]*netlistener.Search),
		stopNet:  make(chan struct{}),
	}

	n.Hasher.OnChunkHashed(func(f *chunkstore.File, c *chunkstore.Chunk) {
		if d, ok := c.Digest(); ok {
			n.ChunkIndex.Add(d, c)
			n.SearchIndex.Add(searchindex.EntryFromFile(f))
		}
	})

	n.Handlers = &peer.Handlers{
		Mirror:           n.Mirror,
		Hasher:           n.Hasher,
		Index:            n.ChunkIndex,
		GetHashesTimeout: cfg.GetHashesTimeout,
	}

	listener, err := netlistener.NewListener(cfg.ListenAddress, cfg.UnicastBasePort, cfg.MulticastGroup, cfg.MulticastPort, cfg.MulticastTTL, cfg.MaxUDPDatagramSize)
	if err != nil {
		return nil, fmt.Errorf("core: open network listener: %w", err)
	}
	n.Listener = listener

	n.Beacon = netlistener.NewBeacon(
		listener,
		id, id,
		cfg.ProtocolVersion,
		cfg.PeerIMAlivePeriod,
		cfg.NumberOfHashesSentIMAlive,
		cfg.MaxIMAliveThroughput,
		&digestSampler{idx: n.ChunkIndex},
		func() (float64, float64) { return 0, 0 },
	)

	server, err := peer.NewServer(fmt.Sprintf("%s:%d", cfg.ListenAddress, listener.UnicastPort()), n.Handlers, cfg.PendingSocketTimeout)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("core: open peer server: %w", err)
	}
	n.Server = server

	_ = dataDir
	return n, nil
}

// Start launches every background worker: hasher, beacon, queue
// auto-save, upload pool, peer server, and the UDP receive loops that
// feed IMAlive beacons into the peer directory and FindRequests into
// the search responder.
func (n *Node) Start() error {
	if err := n.Hasher.Start(); err != nil {
		return err
	}
	if err := n.Queue.StartAutoSave(); err != nil {
		return err
	}
	if err := n.UploadPool.Start(); err != nil {
		return err
	}
	if err := n.Server.Start(); err != nil {
		return err
	}
	if err := n.Beacon.Start(); err != nil {
		return err
	}

	n.netWG.Add(2)
	go n.receiveLoop(n.Listener.ReadMulticast)
	go n.receiveLoop(n.Listener.ReadUnicast)
	return nil
}

// Stop halts every background worker, composing any shutdown errors
// from its subsystems into one returned error. Safe to call more than
// once; only the first call has any effect.
func (n *Node) Stop() error {
	var err error
	n.stopOnce.Do(func() {
		var errs []error
		for _, w := range n.watchers {
			errs = append(errs, w.Stop())
		}
		errs = append(errs,
			n.Beacon.Stop(),
			n.Server.Stop(),
			n.UploadPool.Stop(),
			n.Queue.Stop(),
			n.Hasher.Stop(),
			n.Listener.Close(),
		)
		close(n.stopNet)
		n.netWG.Wait()
		err = build.ComposeErrors(errs...)
	})
	return err
}

// AddSharedRoot registers absPath as a shared root, performs its
// initial scan, enqueues discovered files for hashing, and starts a
// filesystem watcher to keep the mirror current.
func (n *Node) AddSharedRoot(ctx context.Context, absPath string) (*chunkstore.SharedEntry, error) {
	se := n.Mirror.AddRoot(absPath)
	found, err := n.Scanner.Scan(ctx, se)
	if err != nil {
		return se, err
	}
	for _, f := range found {
		n.Hasher.Enqueue(f)
		n.SearchIndex.Add(searchindex.EntryFromFile(f))
	}

	w := chunkstore.NewWatcher(se, n.cfg.ScanPeriodUnwatchableDirs, n.log)
	if err := w.Start(); err != nil {
		return se, err
	}
	n.watchers = append(n.watchers, w)
	return se, nil
}
