package judge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
	"github.com/toneloc/ldkboss/internal/tracker"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testCfg() config.JudgeConfig {
	return config.JudgeConfig{
		MinAgeDays:              30,
		EvaluationWindowDays:    30,
		EstimatedReopenCostSats: 5_000,
		CooperativeClose:        true,
	}
}

func seedChannel(t *testing.T, st *store.Store, channelID, peerID string, capacitySats uint64, ageDays float64) {
	t.Helper()
	now := store.Now()
	require.NoError(t, st.UpsertChannelHistory(store.ChannelHistoryRow{
		ChannelID:          channelID,
		UserChannelID:      channelID,
		CounterpartyNodeID: peerID,
		ChannelValueSats:   capacitySats,
		FirstSeenAt:        now - ageDays*86400,
		LastSeenAt:         now,
		IsOpen:             true,
	}))
}

func TestGatherSkipsPeersWithNoUsableChannels(t *testing.T) {
	st := newTestStore(t)
	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c1", CounterpartyNodeID: "peer1", CapacitySats: 1_000_000, Usable: false},
	}}

	infos, err := Gather(testCfg(), st, s)
	require.NoError(t, err)
	require.Empty(t, infos)
}

func TestGatherSkipsChannelsYoungerThanMinAge(t *testing.T) {
	st := newTestStore(t)
	seedChannel(t, st, "c1", "peer1", 1_000_000, 1)
	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c1", CounterpartyNodeID: "peer1", CapacitySats: 1_000_000, Usable: true},
	}}

	infos, err := Gather(testCfg(), st, s)
	require.NoError(t, err)
	require.Empty(t, infos)
}

func TestGatherIncludesEligiblePeer(t *testing.T) {
	st := newTestStore(t)
	seedChannel(t, st, "c1", "peer1", 1_000_000, 100)
	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c1", CounterpartyNodeID: "peer1", CapacitySats: 1_000_000, Usable: true},
	}}

	now := store.Now()
	require.NoError(t, st.UpsertEarnings(store.EarningsRow{
		ChannelID: "c1", DayBucket: store.DayBucket(int64(now)), Direction: "in",
		CounterpartyNodeID: "peer1", FeeEarnedMsat: 10_000,
	}))

	infos, err := Gather(testCfg(), st, s)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "peer1", infos[0].CounterpartyNodeID)
	require.Equal(t, uint64(1_000_000), infos[0].TotalChannelSats)
	require.Equal(t, int64(10_000), infos[0].TotalEarnedMsat)

	age, ok, err := tracker.AgeDays(st, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Greater(t, age, testCfg().MinAgeDays)
}

func TestGatherSumsMultipleChannelsForSamePeer(t *testing.T) {
	st := newTestStore(t)
	seedChannel(t, st, "c1", "peer1", 1_000_000, 100)
	seedChannel(t, st, "c2", "peer1", 2_000_000, 100)
	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c1", CounterpartyNodeID: "peer1", CapacitySats: 1_000_000, Usable: true},
		{ChannelID: "c2", CounterpartyNodeID: "peer1", CapacitySats: 2_000_000, Usable: true},
	}}

	infos, err := Gather(testCfg(), st, s)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, uint64(3_000_000), infos[0].TotalChannelSats)
}
