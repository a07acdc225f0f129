package judge

import (
	"context"
	"fmt"
	"log"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
)

// executeClosure closes the smallest usable channel held with the
// recommended peer, either cooperatively or via force-close per
// cfg.CooperativeClose. At most one channel is ever closed per call --
// the safety rail lives in the caller, which passes only the single
// worst recommendation.
func executeClosure(ctx context.Context, cfg config.JudgeConfig, dryRun bool, client rpcclient.NodeClient, st *store.Store, s *state.NodeState, rec CloseRecommendation) error {
	var peerChannels []types.Channel
	for _, c := range s.Channels {
		if c.CounterpartyNodeID == rec.CounterpartyNodeID && c.Usable {
			peerChannels = append(peerChannels, c)
		}
	}
	if len(peerChannels) == 0 {
		log.Printf("judge: peer %s has no usable channels to close", rec.CounterpartyNodeID)
		return nil
	}

	channel := peerChannels[0]
	for _, c := range peerChannels[1:] {
		if c.CapacitySats < channel.CapacitySats {
			channel = c
		}
	}

	log.Printf("judge: closing channel %s with peer %s (%d sat) -- %s",
		channel.ChannelID, rec.CounterpartyNodeID, channel.CapacitySats, rec.Reason)

	if dryRun {
		log.Printf("judge: dry-run, not executing")
		return nil
	}

	var closeErr error
	if cfg.CooperativeClose {
		closeErr = client.CloseChannel(ctx, channel.UserChannelID, channel.CounterpartyNodeID)
	} else {
		closeErr = client.ForceCloseChannel(ctx, channel.UserChannelID, channel.CounterpartyNodeID, rec.Reason)
	}

	if closeErr != nil {
		log.Printf("judge: failed to close channel %s with %s: %v", channel.ChannelID, rec.CounterpartyNodeID, closeErr)
		return nil
	}

	log.Printf("judge: successfully closed channel %s with %s", channel.ChannelID, rec.CounterpartyNodeID)

	if err := st.AppendJudgeClosure(store.JudgeClosure{
		ChannelID:          channel.ChannelID,
		CounterpartyNodeID: rec.CounterpartyNodeID,
		ClosedAt:           store.Now(),
		Reason:             rec.Reason,
	}); err != nil {
		return fmt.Errorf("record judge closure: %w", err)
	}
	return nil
}
