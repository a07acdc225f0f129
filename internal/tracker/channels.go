// Package tracker persists what the node-server doesn't remember
// across restarts: channel lifecycle, paginated earnings, and on-chain
// fee samples.
package tracker

import (
	"fmt"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/store"
)

// SyncChannels reconciles the live channel list against channel_history:
// new channels are inserted, known-open channels are touched, and
// channels present in history but absent from the live list are marked
// closed. It returns the set of channel IDs newly observed as closed
// this call.
func SyncChannels(st *store.Store, channels []types.Channel) ([]string, error) {
	now := store.Now()
	live := make(map[string]struct{}, len(channels))

	for _, c := range channels {
		if c.ChannelID == "" {
			continue // pending channel, not yet assigned a confirmed ID
		}
		live[c.ChannelID] = struct{}{}
		row := store.ChannelHistoryRow{
			ChannelID:          c.ChannelID,
			UserChannelID:      c.UserChannelID,
			CounterpartyNodeID: c.CounterpartyNodeID,
			ChannelValueSats:   c.CapacitySats,
			FirstSeenAt:        now,
			LastSeenAt:         now,
			IsOpen:             true,
		}
		if err := st.UpsertChannelHistory(row); err != nil {
			return nil, fmt.Errorf("upsert channel history %s: %w", c.ChannelID, err)
		}
	}

	known, err := st.KnownOpenChannels()
	if err != nil {
		return nil, fmt.Errorf("list known open channels: %w", err)
	}

	var newlyClosed []string
	for _, row := range known {
		if _, stillOpen := live[row.ChannelID]; stillOpen {
			continue
		}
		if err := st.MarkChannelClosed(row.ChannelID, now); err != nil {
			return nil, fmt.Errorf("mark channel closed %s: %w", row.ChannelID, err)
		}
		newlyClosed = append(newlyClosed, row.ChannelID)
	}

	return newlyClosed, nil
}

// AgeDays returns how many days old the given channel is, based on its
// first_seen_at history row.
func AgeDays(st *store.Store, channelID string) (float64, bool, error) {
	age, ok, err := st.ChannelAgeDays(channelID, store.Now())
	if err != nil {
		return 0, false, fmt.Errorf("channel age %s: %w", channelID, err)
	}
	return age, ok, nil
}
