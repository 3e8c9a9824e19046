package download

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectPeerPrefersLowestRTT(t *testing.T) {
	best, ok := SelectPeer([]PeerCandidate{
		{ID: "a", RTT: 50},
		{ID: "b", RTT: 10},
		{ID: "c", RTT: 30},
	})
	require.True(t, ok)
	require.Equal(t, "b", best.ID)
}

func TestSelectPeerTieBreaksByLeastRecentUse(t *testing.T) {
	best, ok := SelectPeer([]PeerCandidate{
		{ID: "a", RTT: 10, LastUsedAgo: 5},
		{ID: "b", RTT: 10, LastUsedAgo: 50},
	})
	require.True(t, ok)
	require.Equal(t, "b", best.ID)
}

func TestSchedulerCapacityGate(t *testing.T) {
	s := NewScheduler(2)
	require.True(t, s.TryAcquire())
	require.True(t, s.TryAcquire())
	require.False(t, s.TryAcquire())

	s.Release()
	require.True(t, s.TryAcquire())
}

func TestShouldSwitchPeer(t *testing.T) {
	require.True(t, ShouldSwitchPeer(100, []float64{300}, 1.5))
	require.False(t, ShouldSwitchPeer(100, []float64{120}, 1.5))
}
