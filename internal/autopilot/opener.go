package autopilot

import (
	"context"
	"fmt"
	"log"

	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/store"
)

// PlannedOpen is one candidate the planner has committed budget to.
type PlannedOpen struct {
	Candidate  Candidate
	AmountSats uint64
}

// PlanOpens divides budgetSats across up to maxProposals candidates in
// ranked order. Each candidate's slice is the remaining budget split
// evenly over the slots left, clamped to [min_channel_sats,
// max_channel_sats] and additionally capped at 50% of the starting
// budget so a single early candidate can't consume everything meant for
// the rest of the batch. Only the first maxProposals candidates are
// examined; one with no known address is skipped but still uses up its
// slot, and the next candidate is not examined in its place. Planning
// stops as soon as the remaining
// budget can no longer fund the minimum channel size.
func PlanOpens(cfg config.AutopilotConfig, candidates []Candidate, budgetSats uint64) []PlannedOpen {
	numToOpen := len(candidates)
	if cfg.MaxProposals < numToOpen {
		numToOpen = cfg.MaxProposals
	}

	var plan []PlannedOpen
	remaining := budgetSats
	for i := 0; i < numToOpen; i++ {
		if remaining < cfg.MinChannelSats {
			break
		}
		c := candidates[i]
		if c.Address == "" {
			continue
		}

		slotsLeft := numToOpen - i
		if slotsLeft < 1 {
			slotsLeft = 1
		}
		amount := remaining / uint64(slotsLeft)
		if amount < cfg.MinChannelSats {
			amount = cfg.MinChannelSats
		}
		if amount > cfg.MaxChannelSats {
			amount = cfg.MaxChannelSats
		}
		if amount > remaining {
			amount = remaining
		}

		halfInitialBudget := budgetSats / 2
		if amount > halfInitialBudget {
			amount = halfInitialBudget
		}
		if amount < cfg.MinChannelSats {
			break
		}

		plan = append(plan, PlannedOpen{Candidate: c, AmountSats: amount})
		remaining -= amount
	}
	return plan
}

// Execute carries out a plan in order: connecting to each peer (a
// connect failure is logged and does not abort the batch, since the
// node may already be connected), then opening the channel. An open
// failure is propagated immediately, aborting any remaining planned
// opens for this cycle. Every successful open is recorded as an
// autopilot_opens audit row and refreshes the peer's known address.
func Execute(ctx context.Context, st *store.Store, client rpcclient.NodeClient, plan []PlannedOpen, announce bool) ([]string, error) {
	var opened []string
	for _, p := range plan {
		c := p.Candidate
		if err := client.ConnectPeer(ctx, c.NodeID, c.Address, true); err != nil {
			log.Printf("autopilot: connect peer %s (may already be connected): %v", c.NodeID, err)
		}

		userChannelID, err := client.OpenChannel(ctx, c.NodeID, c.Address, p.AmountSats, announce)
		if err != nil {
			return opened, fmt.Errorf("open channel to %s: %w", c.NodeID, err)
		}

		now := store.Now()
		if err := st.UpsertPeerAddress(store.PeerAddress{
			NodeID:          c.NodeID,
			Address:         c.Address,
			LastConnectedAt: &now,
			Source:          "autopilot",
		}); err != nil {
			return opened, fmt.Errorf("persist peer address %s: %w", c.NodeID, err)
		}

		reason := fmt.Sprintf("source=%s, score=%.2f", c.Source, c.Score)
		if err := st.AppendAutopilotOpen(store.AutopilotOpen{
			ChannelID:          &userChannelID,
			CounterpartyNodeID: c.NodeID,
			AmountSats:         p.AmountSats,
			OpenedAt:           now,
			Reason:             &reason,
		}); err != nil {
			return opened, fmt.Errorf("record autopilot open %s: %w", c.NodeID, err)
		}

		opened = append(opened, userChannelID)
	}
	return opened, nil
}
