// Package feecontroller combines the balance modder's liquidity-skew
// multiplier with the price theory game's explore/exploit multiplier
// into a single outbound fee rate (base + ppm) per channel, and pushes
// it to the node server only when it actually changes.
package feecontroller

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/balancemodder"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/pricetheory"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/store"
)

const (
	minFeePPM = 1
	maxFeePPM = 50_000
)

// TargetFees computes the desired outbound fee rate for a channel: the
// configured base rate and ppm rate both scaled by the combined
// liquidity and price-theory multiplier, with ppm clamped to
// [1, 50000]. The base fee is allowed to floor to zero; a free base
// fee is valid on Lightning and is never padded back up.
func TargetFees(st *store.Store, c types.Channel, cfg config.FeesConfig) (baseMsat uint64, ppm uint32, err error) {
	balanceMult := 1.0
	if cfg.BalanceModderEnabled {
		balanceMult = balancemodder.MultiplierForChannel(c.OutboundMsat, c.CapacitySats, cfg.PreferredBinSizeSats)
	}

	priceMult := 1.0
	if cfg.PriceTheoryEnabled {
		priceMult, err = pricetheory.GetFeeModifier(st, c.CounterpartyNodeID)
		if err != nil {
			return 0, 0, fmt.Errorf("fee modifier for %s: %w", c.CounterpartyNodeID, err)
		}
	}

	combined := balanceMult * priceMult
	baseMsat = uint64(math.Floor(float64(cfg.DefaultBaseMsat) * combined))
	ppm = clampPPM(float64(cfg.DefaultPPM) * combined)
	return baseMsat, ppm, nil
}

func clampPPM(ppm float64) uint32 {
	rounded := math.Round(ppm)
	if rounded < minFeePPM {
		return minFeePPM
	}
	if rounded > maxFeePPM {
		return maxFeePPM
	}
	return uint32(rounded)
}

// Apply computes the target fees for every given channel and pushes an
// UpdateChannelConfig call only for channels whose computed base or ppm
// rate differs from what is currently reported, preserving every other
// field of the channel's existing config unchanged. In dry-run mode the
// difference is logged but never pushed.
func Apply(ctx context.Context, st *store.Store, client rpcclient.NodeClient, channels []types.Channel, cfg config.FeesConfig, dryRun bool) (int, error) {
	updated := 0
	for _, c := range channels {
		baseMsat, ppm, err := TargetFees(st, c, cfg)
		if err != nil {
			return updated, fmt.Errorf("compute target fees for %s: %w", c.CounterpartyNodeID, err)
		}
		if baseMsat == c.Config.BaseMsat && ppm == c.Config.FeeRatePPM {
			continue
		}

		log.Printf("feecontroller: channel %s with %s -- base: %d->%d msat, ppm: %d->%d",
			c.ChannelID, c.CounterpartyNodeID, c.Config.BaseMsat, baseMsat, c.Config.FeeRatePPM, ppm)

		if dryRun {
			continue
		}

		newConfig := c.Config
		newConfig.BaseMsat = baseMsat
		newConfig.FeeRatePPM = ppm
		if err := client.UpdateChannelConfig(ctx, c.UserChannelID, c.CounterpartyNodeID, newConfig); err != nil {
			return updated, fmt.Errorf("update channel config for %s: %w", c.CounterpartyNodeID, err)
		}
		updated++
	}
	return updated, nil
}

// Run evaluates and pushes fees for every usable channel, then advances
// the price-theory game by one tick. peerEarningsMsat carries the fee
// income newly ingested this cycle per counterparty; it is credited to
// each peer's in-play card before the tick advances, so a card only
// ever sees earnings that arrived during its own lifetime.
func Run(ctx context.Context, st *store.Store, client rpcclient.NodeClient, channels []types.Channel, cfg config.FeesConfig, dryRun bool, peerEarningsMsat map[string]uint64, rng *rand.Rand) (int, error) {
	var usable []types.Channel
	for _, c := range channels {
		if c.Usable {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return 0, nil
	}

	updated, err := Apply(ctx, st, client, usable, cfg, dryRun)
	if err != nil {
		return updated, err
	}

	if !cfg.PriceTheoryEnabled {
		return updated, nil
	}

	if err := AdvanceGame(st, usable, peerEarningsMsat, cfg.PriceTheoryCardLifetimeTicks, cfg.PriceTheoryMaxStep, rng); err != nil {
		return updated, fmt.Errorf("advance price theory game: %w", err)
	}
	return updated, nil
}

// AdvanceGame credits each counterparty's in-play card with the fee
// income newly attributed to it, then advances every connected peer's
// card one tick.
func AdvanceGame(st *store.Store, channels []types.Channel, earningsMsat map[string]uint64, cardLifetimeTicks, step int, rng *rand.Rand) error {
	for peerID, earned := range earningsMsat {
		if err := pricetheory.RecordEarnings(st, peerID, earned); err != nil {
			return fmt.Errorf("record earnings for %s: %w", peerID, err)
		}
	}

	peers := make([]string, 0, len(channels))
	for _, c := range channels {
		peers = append(peers, c.CounterpartyNodeID)
	}
	if err := pricetheory.UpdateTick(st, peers, cardLifetimeTicks, step, rng); err != nil {
		return fmt.Errorf("update price theory tick: %w", err)
	}
	return nil
}
