// Package autopilot decides whether, and how much, to open new
// channels, picks counterparties, and executes the opens.
package autopilot

import (
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/state"
)

// Decision is the decider's verdict for one cycle.
type Decision struct {
	ShouldOpen bool
	Reason     string
	BudgetSats uint64
}

// Decide applies the autopilot budget gates. Once the reserve, minimum
// channel size, and minimum on-chain percent gates pass, a Low fee
// regime permits opening (on-chain fees are cheap, so the node should
// put idle funds to work); a High regime only permits opening once the on-chain
// percentage has drifted above the target band, since paying to open a
// channel is expensive while fees are high. Either way, opening never
// dips into the configured on-chain reserve. Backing off once enough
// usable channels are already open is the opener's job, not the
// decider's: it collapses the proposal count rather than refusing to
// open at all.
func Decide(cfg config.AutopilotConfig, s *state.NodeState, regime FeeRegime) Decision {
	if !cfg.Enabled {
		return Decision{ShouldOpen: false, Reason: "autopilot disabled"}
	}

	spendable := s.Balances.SpendableOnchainSats
	if spendable <= cfg.OnchainReserveSats {
		return Decision{ShouldOpen: false, Reason: "on-chain reserve not exceeded"}
	}
	available := spendable - cfg.OnchainReserveSats
	if available < cfg.MinChannelSats {
		return Decision{ShouldOpen: false, Reason: "available budget below minimum channel size"}
	}

	if s.TotalFundsSats() == 0 {
		return Decision{ShouldOpen: false, Reason: "no funds to allocate"}
	}

	onchainPct := s.OnchainPercent()
	if onchainPct < cfg.MinOnchainPercent {
		return Decision{ShouldOpen: false, Reason: "on-chain percent below minimum"}
	}

	if regime == RegimeLow {
		return Decision{ShouldOpen: true, Reason: "on-chain fees are low", BudgetSats: available}
	}

	if onchainPct > cfg.MaxOnchainPercent {
		return Decision{ShouldOpen: true, Reason: "on-chain percent above target band", BudgetSats: available}
	}
	return Decision{ShouldOpen: false, Reason: "on-chain fees high and percent within target band"}
}

// EffectiveMaxProposals collapses the configured proposal ceiling to 1
// once the node already has enough usable channels open, so the
// autopilot keeps trickling in a single well-chosen peer rather than
// opening none at all.
func EffectiveMaxProposals(cfg config.AutopilotConfig, usableChannelCount int) int {
	if usableChannelCount >= cfg.MinChannelsToBackoff {
		return 1
	}
	return cfg.MaxProposals
}
