package judge

import (
	"fmt"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
	"github.com/toneloc/ldkboss/internal/tracker"
)

// Gather builds one PeerInfo per peer with at least one usable channel
// old enough to evaluate (min_age_days, measured from the oldest
// channel shared with that peer), summing capacity and net earnings
// over the configured evaluation window.
func Gather(cfg config.JudgeConfig, st *store.Store, s *state.NodeState) ([]PeerInfo, error) {
	since := store.Now() - cfg.EvaluationWindowDays*86400.0

	var infos []PeerInfo
	for peerID, channels := range s.ChannelsByPeer() {
		usable := usableChannels(channels)
		if len(usable) == 0 {
			continue
		}

		var oldestAge float64
		for _, c := range usable {
			age, ok, err := tracker.AgeDays(st, c.ChannelID)
			if err != nil {
				return nil, fmt.Errorf("channel age for %s: %w", c.ChannelID, err)
			}
			if ok && age > oldestAge {
				oldestAge = age
			}
		}
		if oldestAge < cfg.MinAgeDays {
			continue
		}

		var totalSats uint64
		for _, c := range usable {
			totalSats += c.CapacitySats
		}

		peerEarnings, err := st.PeerEarningsSince(peerID, store.DayBucket(int64(since)))
		if err != nil {
			return nil, fmt.Errorf("peer earnings since for %s: %w", peerID, err)
		}

		infos = append(infos, PeerInfo{
			CounterpartyNodeID: peerID,
			TotalChannelSats:   totalSats,
			TotalEarnedMsat:    peerEarnings.TotalNet(),
		})
	}

	return infos, nil
}

func usableChannels(channels []types.Channel) []types.Channel {
	var out []types.Channel
	for _, c := range channels {
		if c.Usable {
			out = append(out, c)
		}
	}
	return out
}
