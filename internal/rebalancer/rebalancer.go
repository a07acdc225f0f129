// Package rebalancer identifies imbalanced channels and attempts
// circular rebalancing between them via self-invoices, spending routing
// fees only on channels whose earnings history justifies the cost.
package rebalancer

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
)

// absMaxRebalanceFeeSats hard-caps total fee spend per cycle,
// independent of any configured budget.
const absMaxRebalanceFeeSats = 50_000

// topRebalancingPercentile is the fraction of eligible source/destination
// pairs actually rebalanced each cycle.
const topRebalancingPercentile = 20.0

// rebalanceInvoiceExpirySecs bounds how long a self-invoice stays valid.
const rebalanceInvoiceExpirySecs = 600

// rebalanceWindowDays is how far back net earnings are evaluated when
// classifying and ranking channels.
const rebalanceWindowDays = 30

type channelBalance struct {
	counterpartyNodeID string
	channelID          string
	spendableMsat      uint64
	totalMsat          uint64
	spendablePercent   float64
}

type ranked struct {
	index   int
	netMsat int64
}

// Run rebalances liquidity between usable channels when at least two
// are open: channels below max_spendable_percent become destinations,
// channels above max_spendable_percent+source_gap_percent become
// sources, and the top 20th percentile of pairs (by net earnings) are
// rebalanced via a self-paid Bolt11 invoice.
func Run(ctx context.Context, cfg config.RebalancerConfig, dryRun bool, client rpcclient.NodeClient, st *store.Store, s *state.NodeState) error {
	usable := s.UsableChannels()
	if len(usable) < 2 {
		return nil
	}
	return runEarnings(ctx, cfg, dryRun, client, st, usable)
}

func runEarnings(ctx context.Context, cfg config.RebalancerConfig, dryRun bool, client rpcclient.NodeClient, st *store.Store, channels []types.Channel) error {
	balances := make([]channelBalance, 0, len(channels))
	for _, c := range channels {
		totalMsat := c.CapacitySats * 1000
		if totalMsat == 0 {
			continue
		}
		spendableMsat := c.OutboundMsat
		balances = append(balances, channelBalance{
			counterpartyNodeID: c.CounterpartyNodeID,
			channelID:          c.ChannelID,
			spendableMsat:      spendableMsat,
			totalMsat:          totalMsat,
			spendablePercent:   float64(spendableMsat) / float64(totalMsat) * 100,
		})
	}

	sinceDayBucket := store.DayBucket(int64(store.Now()) - rebalanceWindowDays*86400)

	var destinations, sources []ranked
	for i, bal := range balances {
		earnings, err := st.PeerEarningsSince(bal.counterpartyNodeID, sinceDayBucket)
		if err != nil {
			return fmt.Errorf("peer earnings since for %s: %w", bal.counterpartyNodeID, err)
		}

		if bal.spendablePercent < cfg.MaxSpendablePercent {
			destinations = append(destinations, ranked{index: i, netMsat: earnings.OutNet()})
		} else if bal.spendablePercent > cfg.MaxSpendablePercent+cfg.SourceGapPercent {
			sources = append(sources, ranked{index: i, netMsat: earnings.InNet()})
		}
	}

	if len(destinations) == 0 || len(sources) == 0 {
		return nil
	}

	sort.SliceStable(destinations, func(i, j int) bool { return destinations[i].netMsat > destinations[j].netMsat })
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].netMsat > sources[j].netMsat })

	num := len(destinations)
	if len(sources) < num {
		num = len(sources)
	}
	numRebalance := int(float64(num) * topRebalancingPercentile / 100.0)
	if numRebalance < 1 {
		numRebalance = 1
	}

	maxTotalFeeSats := cfg.MaxTotalFeeSats
	if maxTotalFeeSats > absMaxRebalanceFeeSats {
		maxTotalFeeSats = absMaxRebalanceFeeSats
	}
	var totalFeeSpentMsat uint64

	for i := 0; i < numRebalance && i < len(destinations) && i < len(sources); i++ {
		dst := balances[destinations[i].index]
		src := balances[sources[i].index]
		dstEarnings := destinations[i].netMsat

		if dstEarnings <= 0 {
			log.Printf("rebalancer: peer %s has non-positive net earnings (%d msat), stopping", dst.counterpartyNodeID, dstEarnings)
			break
		}

		destTargetMsat := uint64(float64(dst.totalMsat) * cfg.TargetSpendablePercent / 100.0)
		destNeededMsat := saturatingSub(destTargetMsat, dst.spendableMsat)

		srcMinAllowedMsat := uint64(float64(src.totalMsat) * (cfg.MaxSpendablePercent + cfg.SourceGapPercent) / 100.0)
		srcBudgetMsat := saturatingSub(src.spendableMsat, srcMinAllowedMsat)

		amountMsat := destNeededMsat
		if srcBudgetMsat < amountMsat {
			amountMsat = srcBudgetMsat
		}
		if amountMsat == 0 {
			continue
		}

		feeBudgetMsat := uint64(float64(amountMsat) * float64(cfg.MaxFeePPM) / 1_000_000.0)
		if feeBudgetMsat > uint64(dstEarnings) {
			feeBudgetMsat = uint64(dstEarnings)
		}
		remainingBudgetMsat := saturatingSub(maxTotalFeeSats*1000, totalFeeSpentMsat)
		if feeBudgetMsat > remainingBudgetMsat {
			feeBudgetMsat = remainingBudgetMsat
		}
		if feeBudgetMsat == 0 {
			continue
		}

		log.Printf("rebalancer: %s -> %s (%d msat), max fee %d msat", src.counterpartyNodeID, dst.counterpartyNodeID, amountMsat, feeBudgetMsat)

		if dryRun {
			log.Printf("rebalancer: dry-run, not executing")
			continue
		}

		feePaid, err := executeRebalance(ctx, client, amountMsat, feeBudgetMsat)
		if err != nil {
			log.Printf("rebalancer: failed: %v", err)
			continue
		}
		totalFeeSpentMsat += feePaid
		log.Printf("rebalancer: success, fee paid: %d msat", feePaid)

		now := store.Now()
		if err := st.UpsertRebalanceCost(store.RebalanceCostRow{
			ChannelID:           src.channelID,
			DayBucket:           store.DayBucket(int64(now)),
			Direction:           "out",
			CounterpartyNodeID:  src.counterpartyNodeID,
			FeeEarnedMsat:       feePaid,
			AmountForwardedMsat: amountMsat,
		}); err != nil {
			return fmt.Errorf("record rebalance cost for %s: %w", src.counterpartyNodeID, err)
		}
	}

	return nil
}

// executeRebalance pays a self-issued invoice across the network to
// circularly rebalance liquidity. The actual routing fee paid is not
// reported back by Bolt11Send, so the fee budget itself is recorded as
// the cost; this slightly overstates spend and keeps the rebalancer
// conservative.
func executeRebalance(ctx context.Context, client rpcclient.NodeClient, amountMsat, maxFeeMsat uint64) (uint64, error) {
	invoice, err := client.Bolt11Receive(ctx, amountMsat, "ldkboss rebalance", rebalanceInvoiceExpirySecs)
	if err != nil {
		return 0, fmt.Errorf("create self-invoice: %w", err)
	}

	params := types.RouteParameters{
		MaxTotalRoutingFeeMsat:          maxFeeMsat,
		MaxTotalCltvExpiryDelta:         1008,
		MaxPathCount:                    3,
		MaxChannelSaturationPowerOfHalf: 2,
	}
	if _, err := client.Bolt11Send(ctx, invoice, amountMsat, params); err != nil {
		return 0, fmt.Errorf("pay self-invoice: %w", err)
	}
	return maxFeeMsat, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
