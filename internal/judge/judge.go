package judge

import (
	"context"
	"log"

	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
)

// minPeersToJudge is the smallest peer set the weighted-median
// comparison is meaningful over; below this, one bad peer would skew
// the median against itself.
const minPeersToJudge = 3

// Run evaluates every peer's earning rate, and if any peer recommends
// positive-improvement closure, closes the single worst one.
func Run(ctx context.Context, cfg config.JudgeConfig, dryRun bool, client rpcclient.NodeClient, st *store.Store, s *state.NodeState) error {
	peerInfos, err := Gather(cfg, st, s)
	if err != nil {
		return err
	}

	if len(peerInfos) < minPeersToJudge {
		log.Printf("judge: need at least %d peers to evaluate (have %d)", minPeersToJudge, len(peerInfos))
		return nil
	}

	recommendations := Judge(peerInfos, cfg.EstimatedReopenCostSats)
	if len(recommendations) == 0 {
		log.Printf("judge: no channels recommended for closure")
		return nil
	}

	log.Printf("judge: %d channels recommended for closure", len(recommendations))
	return executeClosure(ctx, cfg, dryRun, client, st, s, recommendations[0])
}
