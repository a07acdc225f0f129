package autopilot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/state"
)

func baseCfg() config.AutopilotConfig {
	return config.AutopilotConfig{
		Enabled:              true,
		MinChannelsToBackoff: 4,
		MaxProposals:         3,
		MinChannelSats:       100_000,
		MaxChannelSats:       5_000_000,
		OnchainReserveSats:   30_000,
		MinOnchainPercent:    10,
		MaxOnchainPercent:    25,
	}
}

func TestDecideDisabled(t *testing.T) {
	cfg := baseCfg()
	cfg.Enabled = false
	d := Decide(cfg, &state.NodeState{}, RegimeLow)
	assert.False(t, d.ShouldOpen)
}

func TestDecideBacksOffBelowReserve(t *testing.T) {
	s := &state.NodeState{
		Balances: types.Balances{SpendableOnchainSats: 1_000, TotalOnchainSats: 1_000},
	}
	d := Decide(baseCfg(), s, RegimeLow)
	assert.False(t, d.ShouldOpen)
}

func TestDecideBacksOffBelowMinOnchainPercent(t *testing.T) {
	s := &state.NodeState{
		Balances: types.Balances{
			SpendableOnchainSats: 200_000,
			TotalOnchainSats:     200_000,
			TotalLightningMsat:   10_000_000_000, // ~2% on-chain
		},
	}
	d := Decide(baseCfg(), s, RegimeLow)
	assert.False(t, d.ShouldOpen)
}

func TestDecideOpensInLowRegimeRegardlessOfBand(t *testing.T) {
	s := &state.NodeState{
		Balances: types.Balances{
			SpendableOnchainSats: 500_000,
			TotalOnchainSats:     500_000,
			TotalLightningMsat:   500_000_000, // 50% on-chain
		},
	}
	d := Decide(baseCfg(), s, RegimeLow)
	assert.True(t, d.ShouldOpen)
	assert.Greater(t, d.BudgetSats, uint64(0))
}

func TestDecideHighRegimeOpensOnlyAboveBand(t *testing.T) {
	s := &state.NodeState{
		Balances: types.Balances{
			SpendableOnchainSats: 500_000,
			TotalOnchainSats:     500_000,
			TotalLightningMsat:   500_000_000, // 50% on-chain, above the band
		},
	}
	d := Decide(baseCfg(), s, RegimeHigh)
	assert.True(t, d.ShouldOpen)
}

func TestDecideHighRegimeRefusesWithinBand(t *testing.T) {
	s := &state.NodeState{
		Balances: types.Balances{
			SpendableOnchainSats: 200_000,
			TotalOnchainSats:     200_000,
			TotalLightningMsat:   800_000_000, // 20% on-chain, inside the band
		},
	}
	d := Decide(baseCfg(), s, RegimeHigh)
	assert.False(t, d.ShouldOpen)
}

func TestDecideBudgetIsSpendableMinusReserve(t *testing.T) {
	cfg := baseCfg()
	s := &state.NodeState{
		Balances: types.Balances{
			SpendableOnchainSats: 10_000_000,
			TotalOnchainSats:     10_000_000,
			TotalLightningMsat:   100_000_000,
		},
	}
	d := Decide(cfg, s, RegimeLow)
	assert.True(t, d.ShouldOpen)
	assert.Equal(t, uint64(10_000_000-30_000), d.BudgetSats)
}

func TestEffectiveMaxProposalsCollapsesWhenEnoughChannels(t *testing.T) {
	cfg := baseCfg()
	assert.Equal(t, 1, EffectiveMaxProposals(cfg, 4))
	assert.Equal(t, 1, EffectiveMaxProposals(cfg, 5))
	assert.Equal(t, 3, EffectiveMaxProposals(cfg, 3))
}
