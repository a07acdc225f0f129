package feecontroller

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/pricetheory"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testFeesCfg() config.FeesConfig {
	return config.FeesConfig{
		Enabled:              true,
		DefaultBaseMsat:      0,
		DefaultPPM:           100,
		BalanceModderEnabled: true,
		PreferredBinSizeSats: 200_000,
	}
}

func TestTargetFeesClampsPPMToMaximum(t *testing.T) {
	st := newTestStore(t)
	c := types.Channel{
		CounterpartyNodeID: "peer1",
		CapacitySats:       1_000_000,
		OutboundMsat:       0, // fully drained -> high multiplier
	}
	cfg := testFeesCfg()
	cfg.DefaultPPM = 40_000
	_, ppm, err := TargetFees(st, c, cfg)
	require.NoError(t, err)
	require.Equal(t, uint32(maxFeePPM), ppm)
}

func TestTargetFeesClampsPPMToMinimum(t *testing.T) {
	st := newTestStore(t)
	c := types.Channel{
		CounterpartyNodeID: "peer1",
		CapacitySats:       1_000_000,
		OutboundMsat:       1_000_000_000, // fully outbound -> low multiplier
	}
	cfg := testFeesCfg()
	cfg.DefaultPPM = 1
	_, ppm, err := TargetFees(st, c, cfg)
	require.NoError(t, err)
	require.Equal(t, uint32(minFeePPM), ppm)
}

func TestTargetFeesScalesBaseByCombinedMultiplier(t *testing.T) {
	st := newTestStore(t)
	c := types.Channel{
		CounterpartyNodeID: "peer1",
		CapacitySats:       1_000_000,
		OutboundMsat:       500_000_000, // balanced -> balance multiplier ~1
	}
	cfg := testFeesCfg()
	cfg.DefaultBaseMsat = 1000
	base, _, err := TargetFees(st, c, cfg)
	require.NoError(t, err)
	require.InDelta(t, 1000, float64(base), 500)
}

func TestTargetFeesDisabledModifiersAreNeutral(t *testing.T) {
	st := newTestStore(t)
	c := types.Channel{
		CounterpartyNodeID: "peer1",
		CapacitySats:       1_000_000,
		OutboundMsat:       0, // heavily skewed, but modder is off
	}
	cfg := testFeesCfg()
	cfg.BalanceModderEnabled = false
	cfg.DefaultBaseMsat = 1000
	base, ppm, err := TargetFees(st, c, cfg)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), base)
	require.Equal(t, uint32(100), ppm)
}

func TestApplyOnlyUpdatesChangedChannels(t *testing.T) {
	st := newTestStore(t)
	mock := rpcclient.NewMockClient()
	cfg := testFeesCfg()
	channels := []types.Channel{
		{
			UserChannelID:      "uc1",
			CounterpartyNodeID: "peer1",
			CapacitySats:       1_000_000,
			OutboundMsat:       500_000_000,
			Config:             types.ChannelConfig{FeeRatePPM: 49_999},
		},
	}
	updated, err := Apply(context.Background(), st, mock, channels, cfg, false)
	require.NoError(t, err)
	require.Equal(t, 1, updated)
	require.Len(t, mock.CallsTo("UpdateChannelConfig"), 1)

	baseMsat, ppm, err := TargetFees(st, channels[0], cfg)
	require.NoError(t, err)
	channels[0].Config.BaseMsat = baseMsat
	channels[0].Config.FeeRatePPM = ppm
	updated, err = Apply(context.Background(), st, mock, channels, cfg, false)
	require.NoError(t, err)
	require.Equal(t, 0, updated)
	require.Len(t, mock.CallsTo("UpdateChannelConfig"), 1)
}

func TestAdvanceGameTicksAndRecordsEarnings(t *testing.T) {
	st := newTestStore(t)
	rng := rand.New(rand.NewSource(1))
	channels := []types.Channel{
		{CounterpartyNodeID: "peer1"},
		{CounterpartyNodeID: "peer2"},
	}

	// First tick puts a card in play; the second tick's earnings land
	// on that card.
	require.NoError(t, AdvanceGame(st, channels, nil, 5, 2, rng))
	require.NoError(t, AdvanceGame(st, channels, map[string]uint64{"peer1": 5000}, 5, 2, rng))

	modifier, err := pricetheory.GetFeeModifier(st, "peer1")
	require.NoError(t, err)
	require.Greater(t, modifier, 0.0)

	var card store.PriceTheoryCard
	require.NoError(t, st.DB().Where("counterparty_node_id = ? AND position = ?", "peer1", "in_play").First(&card).Error)
	require.Equal(t, uint64(5000), card.EarningsMsat)
}
