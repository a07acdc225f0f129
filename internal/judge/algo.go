// Package judge evaluates peer performance against a capacity-weighted
// median benchmark and recommends closing the worst underperforming
// channel.
package judge

import (
	"fmt"
	"sort"
)

// PeerInfo is one peer's channel performance over the evaluation window.
type PeerInfo struct {
	CounterpartyNodeID string
	TotalChannelSats   uint64
	TotalEarnedMsat    int64
}

// CloseRecommendation is a candidate channel closure with its
// justification and the msat improvement expected from reopening the
// capital elsewhere at the median earning rate.
type CloseRecommendation struct {
	CounterpartyNodeID      string
	Reason                  string
	ExpectedImprovementMsat int64
}

type rated struct {
	index int
	rate  float64
}

// Judge computes each peer's earning rate (earned msat per msat of
// channel capacity), finds the capacity-weighted median rate, and
// recommends closing any peer below that median whose expected
// improvement after the estimated reopen cost is positive.
// Recommendations are sorted by expected improvement, largest first.
func Judge(peers []PeerInfo, reopenCostSats uint64) []CloseRecommendation {
	if len(peers) == 0 {
		return nil
	}

	var ratedPeers []rated
	for i, p := range peers {
		if p.TotalChannelSats == 0 {
			continue
		}
		rate := float64(p.TotalEarnedMsat) / (float64(p.TotalChannelSats) * 1000.0)
		ratedPeers = append(ratedPeers, rated{index: i, rate: rate})
	}
	if len(ratedPeers) == 0 {
		return nil
	}

	sort.Slice(ratedPeers, func(i, j int) bool { return ratedPeers[i].rate < ratedPeers[j].rate })

	pairs := make([]weightedValue, len(ratedPeers))
	for i, r := range ratedPeers {
		pairs[i] = weightedValue{value: r.rate, weight: float64(peers[r.index].TotalChannelSats)}
	}
	medianRate := weightedMedian(pairs)

	reopenCostMsat := int64(reopenCostSats * 1000)

	var recommendations []CloseRecommendation
	for _, r := range ratedPeers {
		if r.rate >= medianRate {
			continue
		}

		peer := peers[r.index]
		expectedEarnings := int64(medianRate * float64(peer.TotalChannelSats) * 1000.0)
		improvement := expectedEarnings - peer.TotalEarnedMsat - reopenCostMsat
		if improvement <= 0 {
			continue
		}

		recommendations = append(recommendations, CloseRecommendation{
			CounterpartyNodeID:      peer.CounterpartyNodeID,
			Reason:                  formatReason(peer.TotalEarnedMsat, expectedEarnings, improvement, reopenCostSats),
			ExpectedImprovementMsat: improvement,
		})
	}

	sort.Slice(recommendations, func(i, j int) bool {
		return recommendations[i].ExpectedImprovementMsat > recommendations[j].ExpectedImprovementMsat
	})
	return recommendations
}

type weightedValue struct {
	value  float64
	weight float64
}

// weightedMedian returns the value at which cumulative weight first
// reaches half of the total weight. data must be sorted ascending by value.
func weightedMedian(data []weightedValue) float64 {
	if len(data) == 0 {
		return 0
	}
	if len(data) == 1 {
		return data[0].value
	}

	var totalWeight float64
	for _, d := range data {
		totalWeight += d.weight
	}
	half := totalWeight / 2.0

	var cumulative float64
	for _, d := range data {
		cumulative += d.weight
		if cumulative >= half {
			return d.value
		}
	}
	return data[len(data)-1].value
}

func formatReason(actualMsat, expectedMsat, improvementMsat int64, reopenCostSats uint64) string {
	return fmt.Sprintf("underperforming: earned %d msat vs expected %d msat (improvement: %d msat after %d sat reopen cost)",
		actualMsat, expectedMsat, improvementMsat, reopenCostSats)
}
