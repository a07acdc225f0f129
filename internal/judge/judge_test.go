package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
)

func TestRunSkipsWithFewerThanThreePeers(t *testing.T) {
	st := newTestStore(t)
	mock := rpcclient.NewMockClient()
	seedChannel(t, st, "c1", "peer1", 1_000_000, 100)
	seedChannel(t, st, "c2", "peer2", 1_000_000, 100)
	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c1", CounterpartyNodeID: "peer1", CapacitySats: 1_000_000, Usable: true},
		{ChannelID: "c2", CounterpartyNodeID: "peer2", CapacitySats: 1_000_000, Usable: true},
	}}

	require.NoError(t, Run(context.Background(), testCfg(), false, mock, st, s))
	require.Empty(t, mock.CallsTo("CloseChannel"))
}

func TestRunClosesWorstPeerAmongThree(t *testing.T) {
	st := newTestStore(t)
	mock := rpcclient.NewMockClient()
	for _, id := range []string{"peer1", "peer2", "peer3"} {
		seedChannel(t, st, "c-"+id, id, 1_000_000, 100)
	}
	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c-peer1", UserChannelID: "u1", CounterpartyNodeID: "peer1", CapacitySats: 1_000_000, Usable: true},
		{ChannelID: "c-peer2", UserChannelID: "u2", CounterpartyNodeID: "peer2", CapacitySats: 1_000_000, Usable: true},
		{ChannelID: "c-peer3", UserChannelID: "u3", CounterpartyNodeID: "peer3", CapacitySats: 1_000_000, Usable: true},
	}}

	now := store.Now()
	for _, id := range []string{"peer1", "peer2"} {
		require.NoError(t, st.UpsertEarnings(store.EarningsRow{
			ChannelID: "c-" + id, DayBucket: store.DayBucket(int64(now)), Direction: "in",
			CounterpartyNodeID: id, FeeEarnedMsat: 10_000_000,
		}))
	}

	require.NoError(t, Run(context.Background(), testCfg(), false, mock, st, s))
	calls := mock.CallsTo("CloseChannel")
	require.Len(t, calls, 1)
	require.Equal(t, "u3", calls[0].Args[0])
}

func TestRunClosesNothingWhenNoImprovement(t *testing.T) {
	st := newTestStore(t)
	mock := rpcclient.NewMockClient()
	for _, id := range []string{"peer1", "peer2", "peer3"} {
		seedChannel(t, st, "c-"+id, id, 1_000_000, 100)
	}
	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c-peer1", CounterpartyNodeID: "peer1", CapacitySats: 1_000_000, Usable: true},
		{ChannelID: "c-peer2", CounterpartyNodeID: "peer2", CapacitySats: 1_000_000, Usable: true},
		{ChannelID: "c-peer3", CounterpartyNodeID: "peer3", CapacitySats: 1_000_000, Usable: true},
	}}

	require.NoError(t, Run(context.Background(), testCfg(), false, mock, st, s))
	require.Empty(t, mock.CallsTo("CloseChannel"))
}
