package autopilot

import (
	"context"
	"fmt"
	"log"

	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
)

// Run decides whether to open channels this cycle, selects
// counterparties, plans a budget split across them, and executes the
// opens -- skipping straight through (no error) whenever any phase
// finds nothing to do.
func Run(ctx context.Context, generalCfg config.GeneralConfig, cfg config.AutopilotConfig, dryRun bool, client rpcclient.NodeClient, st *store.Store, s *state.NodeState, regime FeeRegime) error {
	decision := Decide(cfg, s, regime)
	if !decision.ShouldOpen {
		log.Printf("autopilot: conditions not met for channel opening (%s)", decision.Reason)
		return nil
	}

	log.Printf("autopilot: budget of %d sats available for new channels", decision.BudgetSats)

	candidates, err := Candidates(ctx, generalCfg, cfg, st, s)
	if err != nil {
		return fmt.Errorf("select candidates: %w", err)
	}
	if len(candidates) == 0 {
		log.Printf("autopilot: no suitable candidates found")
		return nil
	}

	effectiveCfg := cfg
	effectiveCfg.MaxProposals = EffectiveMaxProposals(cfg, len(s.UsableChannels()))

	plan := PlanOpens(effectiveCfg, candidates, decision.BudgetSats)
	if len(plan) == 0 {
		log.Printf("autopilot: no viable opens planned")
		return nil
	}

	log.Printf("autopilot: planning %d channel opens", len(plan))

	if dryRun {
		for _, p := range plan {
			log.Printf("autopilot: dry-run, would open %d sats to %s", p.AmountSats, p.Candidate.NodeID)
		}
		return nil
	}

	_, err = Execute(ctx, st, client, plan, cfg.AnnounceChannels)
	return err
}
