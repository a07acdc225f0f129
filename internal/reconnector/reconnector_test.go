package reconnector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/autopilot"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRunAllConnectedIsNoop(t *testing.T) {
	st := newTestStore(t)
	mock := rpcclient.NewMockClient()
	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c1", CounterpartyNodeID: "peer_a", Ready: true, Usable: true},
	}}

	require.NoError(t, Run(context.Background(), config.GeneralConfig{}, config.AutopilotConfig{}, false, mock, st, s))
	require.Empty(t, mock.CallsTo("ConnectPeer"))
}

func TestRunReconnectsDisconnectedPeer(t *testing.T) {
	st := newTestStore(t)
	mock := rpcclient.NewMockClient()
	require.NoError(t, st.UpsertPeerAddress(store.PeerAddress{NodeID: "peer_a", Address: "1.2.3.4:9735", Source: "test"}))

	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c1", CounterpartyNodeID: "peer_a", Ready: true, Usable: false},
	}}

	require.NoError(t, Run(context.Background(), config.GeneralConfig{}, config.AutopilotConfig{}, false, mock, st, s))
	calls := mock.CallsTo("ConnectPeer")
	require.Len(t, calls, 1)
	require.Equal(t, "peer_a", calls[0].Args[0])
	require.Equal(t, "1.2.3.4:9735", calls[0].Args[1])
}

func TestRunSkipsUnknownAddress(t *testing.T) {
	st := newTestStore(t)
	mock := rpcclient.NewMockClient()
	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c1", CounterpartyNodeID: "peer_a", Ready: true, Usable: false},
	}}

	require.NoError(t, Run(context.Background(), config.GeneralConfig{}, config.AutopilotConfig{}, false, mock, st, s))
	require.Empty(t, mock.CallsTo("ConnectPeer"))
}

func TestRunRespectsDryRun(t *testing.T) {
	st := newTestStore(t)
	mock := rpcclient.NewMockClient()
	require.NoError(t, st.UpsertPeerAddress(store.PeerAddress{NodeID: "peer_a", Address: "1.2.3.4:9735", Source: "test"}))

	s := &state.NodeState{Channels: []types.Channel{
		{ChannelID: "c1", CounterpartyNodeID: "peer_a", Ready: true, Usable: false},
	}}

	require.NoError(t, Run(context.Background(), config.GeneralConfig{}, config.AutopilotConfig{}, true, mock, st, s))
	require.Empty(t, mock.CallsTo("ConnectPeer"))
}

func TestSeedAddressesFromConfig(t *testing.T) {
	st := newTestStore(t)
	cfg := config.GeneralConfig{SeedNodes: []string{"03abc@1.2.3.4:9735"}}

	require.NoError(t, seedAddresses(cfg, st))

	addr, found, err := st.PeerAddressFor("03abc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1.2.3.4:9735", addr.Address)
}

func TestSeedAddressesHardcoded(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, seedAddresses(config.GeneralConfig{}, st))

	for _, hc := range autopilot.HardcodedCandidates() {
		_, found, err := st.PeerAddressFor(hc.NodeID)
		require.NoError(t, err)
		require.True(t, found)
	}
}

func TestSeedAddressesIdempotent(t *testing.T) {
	st := newTestStore(t)
	cfg := config.GeneralConfig{SeedNodes: []string{"03abc@1.2.3.4:9735"}}

	require.NoError(t, seedAddresses(cfg, st))
	require.NoError(t, seedAddresses(cfg, st))

	addr, found, err := st.PeerAddressFor("03abc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1.2.3.4:9735", addr.Address)
}
