// Package feeregime classifies current on-chain conditions into a
// coarse Low/High regime with hysteresis.
package feeregime

import (
	"fmt"

	"github.com/toneloc/ldkboss/internal/autopilot"
	"github.com/toneloc/ldkboss/internal/store"
	"github.com/toneloc/ldkboss/internal/tracker"
)

// Classify reads the stored feerate samples and the persisted prior
// regime, and returns the current regime. Both thresholds are recomputed
// fresh from the current sample set on every call: if the latest sample
// falls at or below the lower (hiToLo) percentile, the regime is Low; at
// or above the higher (loToHi) percentile, it is High; in the band
// between the two, the previously persisted regime sticks. This
// hysteresis band prevents rapid oscillation when the feerate hovers
// near a boundary.
func Classify(st *store.Store, hiToLoPercentile, loToHiPercentile float64) (autopilot.FeeRegime, error) {
	samples, err := st.AllFeeSamples()
	if err != nil {
		return "", fmt.Errorf("load fee samples: %w", err)
	}
	if len(samples) == 0 {
		// Blind: no recent fee observations at all. High is the
		// conservative answer, since it keeps the autopilot from
		// opening channels at unknown cost.
		return autopilot.RegimeHigh, nil
	}
	prior := autopilot.FeeRegime(st.LoadFeeRegime())

	latest := samples[len(samples)-1].FeerateSatPerVB
	lo, _ := tracker.Percentile(samples, hiToLoPercentile)
	hi, _ := tracker.Percentile(samples, loToHiPercentile)

	var next autopilot.FeeRegime
	switch {
	case latest <= lo:
		next = autopilot.RegimeLow
	case latest >= hi:
		next = autopilot.RegimeHigh
	default:
		next = prior
	}

	if next != prior {
		if err := st.SaveFeeRegime(string(next)); err != nil {
			return "", fmt.Errorf("save fee regime: %w", err)
		}
	}
	return next, nil
}
