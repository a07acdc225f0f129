package tracker

import (
	"context"
	"fmt"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/store"
)

const maxEarningsPages = 50

// IngestEarnings pages through newly forwarded payments since the last
// persisted cursor, additively recording fee income per channel per day
// on both the inbound and outbound side of each forward. It returns the
// number of payments ingested plus the newly attributed fee income per
// counterparty, which the fee controller credits to the price-theory
// game.
func IngestEarnings(ctx context.Context, st *store.Store, client rpcclient.NodeClient, channels []types.Channel) (int, map[string]uint64, error) {
	byChannelID := make(map[string]types.Channel, len(channels))
	for _, c := range channels {
		byChannelID[c.ChannelID] = c
	}
	perPeerFeeMsat := make(map[string]uint64)

	var page *types.PageToken
	if idx, tok, ok, err := st.LoadPageToken(); err == nil && ok {
		page = &types.PageToken{Index: idx, Token: tok}
	}

	ingested := 0
	for i := 0; i < maxEarningsPages; i++ {
		payments, next, err := client.ListForwardedPayments(ctx, page)
		if err != nil {
			return ingested, perPeerFeeMsat, fmt.Errorf("list forwarded payments: %w", err)
		}
		if len(payments) == 0 {
			break
		}

		for _, p := range payments {
			day := store.DayBucket(p.Timestamp.Unix())
			if in, ok := byChannelID[p.PrevChannelID]; ok {
				if err := st.UpsertEarnings(store.EarningsRow{
					ChannelID:           p.PrevChannelID,
					DayBucket:           day,
					Direction:           "in",
					CounterpartyNodeID:  in.CounterpartyNodeID,
					FeeEarnedMsat:       p.FeeEarnedMsat,
					AmountForwardedMsat: p.AmountForwardedMsat,
				}); err != nil {
					return ingested, perPeerFeeMsat, fmt.Errorf("upsert inbound earnings: %w", err)
				}
				perPeerFeeMsat[in.CounterpartyNodeID] += p.FeeEarnedMsat
			}
			if out, ok := byChannelID[p.NextChannelID]; ok {
				if err := st.UpsertEarnings(store.EarningsRow{
					ChannelID:           p.NextChannelID,
					DayBucket:           day,
					Direction:           "out",
					CounterpartyNodeID:  out.CounterpartyNodeID,
					FeeEarnedMsat:       p.FeeEarnedMsat,
					AmountForwardedMsat: p.AmountForwardedMsat,
				}); err != nil {
					return ingested, perPeerFeeMsat, fmt.Errorf("upsert outbound earnings: %w", err)
				}
				perPeerFeeMsat[out.CounterpartyNodeID] += p.FeeEarnedMsat
			}
			ingested++
		}

		if next == nil {
			break
		}
		page = next
		if err := st.SavePageToken(next.Index, next.Token); err != nil {
			return ingested, perPeerFeeMsat, fmt.Errorf("save page token: %w", err)
		}
	}

	return ingested, perPeerFeeMsat, nil
}
