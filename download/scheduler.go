package download

import (
	"hash/fnv"
	"sort"
	"sync"
)

// PeerCandidate is the scheduler's view of a peer that might serve a
// given chunk: its stable ID, observed round-trip time, and how long
// ago it was last used (for least-recent-use tie-breaking).
type PeerCandidate struct {
	ID          string
	RTT         float64 // milliseconds
	LastUsedAgo float64 // seconds; larger = less recently used
}

// Scheduler selects, for each ACTIVE-eligible chunk, the best peer
// candidate and gates overall concurrency at number_of_downloader.
type Scheduler struct {
	mu       sync.Mutex
	capacity int
	inFlight int
}

// NewScheduler returns a Scheduler capped at capacity concurrent
// chunk downloads.
func NewScheduler(capacity int) *Scheduler {
	return &Scheduler{capacity: capacity}
}

// TryAcquire reserves one of the scheduler's download slots; returns
// false if the capacity gate (number_of_downloader) is saturated.
func (s *Scheduler) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight >= s.capacity {
		return false
	}
	s.inFlight++
	return true
}

// Release frees a previously acquired slot.
func (s *Scheduler) Release() {
	s.mu.Lock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.mu.Unlock()
}

// SetCapacity updates number_of_downloader.
func (s *Scheduler) SetCapacity(n int) {
	s.mu.Lock()
	s.capacity = n
	s.mu.Unlock()
}

// SelectPeer picks the candidate with lowest RTT; ties are broken by
// least-recent-use (largest LastUsedAgo), and remaining ties by a
// stable hash of the peer ID, per spec.md §4.6.
func SelectPeer(candidates []PeerCandidate) (PeerCandidate, bool) {
	if len(candidates) == 0 {
		return PeerCandidate{}, false
	}
	sorted := append([]PeerCandidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.RTT != b.RTT {
			return a.RTT < b.RTT
		}
		if a.LastUsedAgo != b.LastUsedAgo {
			return a.LastUsedAgo > b.LastUsedAgo
		}
		return peerIDHash(a.ID) < peerIDHash(b.ID)
	})
	return sorted[0], true
}

func peerIDHash(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}

// ShouldSwitchPeer implements the switch_to_another_peer_factor rule:
// the current chunk transfer is cancelled if another available peer's
// observed rate exceeds currentRate * factor.
func ShouldSwitchPeer(currentRate float64, candidateRates []float64, factor float64) bool {
	for _, r := range candidateRates {
		if r > currentRate*factor {
			return true
		}
	}
	return false
}
