package netlistener

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/dlan-project/dlan-core/peer"
	"github.com/dlan-project/dlan-core/syncutil"
)

// MsgIMAlive carries a presence beacon, an extension of peer's
// core-to-core message-type space into the UDP-only vocabulary of
// spec.md §4.5.
const MsgIMAlive peer.MessageType = 100

// IMAlive is the presence beacon payload broadcast every
// peer_imalive_period.
type IMAlive struct {
	ID              string
	Nick            string
	Port            int
	SharedBytes     int64
	DownloadRate    float64
	UploadRate      float64
	ProtocolVersion uint32
	Timestamp       int64 // unix nanoseconds when built; receivers do not compare it with earlier beacons
	Digests         [][32]byte
}

// DigestSource supplies the rotating sample of owned digests a beacon
// advertises.
type DigestSource interface {
	// SampleDigests returns up to n digests, rotating deterministically
	// through the full set across successive calls (Open Question (a):
	// resolved as a deterministic rotating cursor over the digest
	// multiset, see DESIGN.md).
	SampleDigests(n int) []chunkstore.Digest
}

// Beacon periodically broadcasts IMAlive, rate-limited to
// maxThroughput bytes/sec.
type Beacon struct {
	listener *Listener
	tg       syncutil.ThreadGroup

	id              string
	nick            string
	protocolVersion uint32
	period          time.Duration
	samplesPerBeacon int

	source DigestSource
	rates  func() (download, upload float64)

	limiter *rate.Limiter
}

// NewBeacon returns a Beacon broadcasting over listener every period,
// capped at maxThroughput bytes/sec.
func NewBeacon(listener *Listener, id, nick string, protocolVersion uint32, period time.Duration, samplesPerBeacon int, maxThroughput int64, source DigestSource, rates func() (float64, float64)) *Beacon {
	burst := int(maxThroughput)
	if burst < 1 {
		burst = 1
	}
	return &Beacon{
		listener:         listener,
		id:               id,
		nick:             nick,
		protocolVersion:  protocolVersion,
		period:           period,
		samplesPerBeacon: samplesPerBeacon,
		source:           source,
		rates:            rates,
		limiter:          rate.NewLimiter(rate.Limit(maxThroughput), burst),
	}
}

// Start begins the periodic broadcast loop.
func (b *Beacon) Start() error {
	if err := b.tg.Add(); err != nil {
		return err
	}
	go b.run()
	return nil
}

// Stop halts the broadcast loop.
func (b *Beacon) Stop() error {
	return b.tg.Stop()
}

func (b *Beacon) run() {
	defer b.tg.Done()
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.broadcastOnce()
		case <-b.tg.StopChan():
			return
		}
	}
}

func (b *Beacon) broadcastOnce() {
	var digests [][32]byte
	if b.source != nil {
		for _, d := range b.source.SampleDigests(b.samplesPerBeacon) {
			digests = append(digests, [32]byte(d))
		}
	}
	var dlRate, ulRate float64
	if b.rates != nil {
		dlRate, ulRate = b.rates()
	}

	msg := IMAlive{
		ID:              b.id,
		Nick:            b.nick,
		Port:            b.listener.UnicastPort(),
		DownloadRate:    dlRate,
		UploadRate:      ulRate,
		ProtocolVersion: b.protocolVersion,
		Timestamp:       time.Now().UnixNano(),
		Digests:         digests,
	}

	// Throughput cap: wait for enough tokens before emitting, per
	// spec.md §4.5.
	approxSize := 64 + len(digests)*32
	_ = b.limiter.WaitN(context.Background(), approxSize)

	b.listener.SendMulticast(MsgIMAlive, msg)
}
