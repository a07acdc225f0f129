// Package balancemodder computes a fee-rate multiplier from a channel's
// outbound liquidity fraction.
// Channels skewed towards inbound liquidity get a high multiplier to
// discourage further draining; channels skewed towards outbound
// liquidity get a low multiplier to encourage more routing out. Binning
// the ratio before evaluating the curve prevents observers from
// inferring a channel's precise balance from its published fee rate.
package balancemodder

import "math"

const minBins = 4
const maxBins = 50

// Ratio returns the raw (unbinned) exponential multiplier for an
// outbound-liquidity fraction in [0, 1]: 1.0 at 50%, ~7.07 at 0%, ~0.14
// at 100%.
func Ratio(ourFraction float64) float64 {
	log50 := math.Log(50.0)
	return math.Exp(log50 * (0.5 - ourFraction))
}

// numBins picks the bin count for a channel's capacity: larger channels
// get finer-grained bins, clamped to [4, 50]. A zero preferred size
// always yields the minimum (4 bins).
func numBins(capacitySats, preferredBinSizeSats uint64) int {
	if preferredBinSizeSats == 0 {
		return minBins
	}
	raw := int(math.Round(float64(capacitySats) / float64(preferredBinSizeSats)))
	if raw < minBins {
		return minBins
	}
	if raw > maxBins {
		return maxBins
	}
	return raw
}

// RatioByBin returns the exponential multiplier at the center of the
// given bin out of numBins total bins.
func RatioByBin(bin, bins int) float64 {
	ourPercentage := float64(2*bin+1) / float64(2*bins)
	return Ratio(ourPercentage)
}

// Multiplier computes the binned fee-rate multiplier for a channel:
// outboundFraction is clamped to [0,1], quantized into a bin sized by
// capacitySats/preferredBinSizeSats, then evaluated at the bin center.
func Multiplier(outboundFraction float64, capacitySats, preferredBinSizeSats uint64) float64 {
	if outboundFraction < 0 {
		outboundFraction = 0
	}
	if outboundFraction > 1 {
		outboundFraction = 1
	}

	bins := numBins(capacitySats, preferredBinSizeSats)
	bin := int(math.Floor(outboundFraction * float64(bins)))
	if bin >= bins {
		bin = bins - 1
	}
	return RatioByBin(bin, bins)
}

// MultiplierForChannel is the combined binning + curve evaluation used
// by the fee controller, taking outbound msat and capacity in satoshi.
func MultiplierForChannel(outboundMsat uint64, capacitySats, preferredBinSizeSats uint64) float64 {
	if capacitySats == 0 {
		return 1.0
	}
	fraction := float64(outboundMsat) / (float64(capacitySats) * 1000)
	return Multiplier(fraction, capacitySats, preferredBinSizeSats)
}
