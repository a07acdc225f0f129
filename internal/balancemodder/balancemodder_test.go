package balancemodder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatioAtHalfIsOne(t *testing.T) {
	assert.InDelta(t, 1.0, Ratio(0.5), 0.0001)
}

func TestRatioAtFullOutboundIsLow(t *testing.T) {
	r := Ratio(1.0)
	assert.Greater(t, r, 0.1)
	assert.Less(t, r, 0.2)
}

func TestRatioAtNoOutboundIsHigh(t *testing.T) {
	r := Ratio(0.0)
	assert.Greater(t, r, 6.0)
	assert.Less(t, r, 8.0)
}

func TestRatioIsMonotonicallyDecreasing(t *testing.T) {
	prev := Ratio(0.0)
	for f := 0.1; f <= 1.0; f += 0.1 {
		cur := Ratio(f)
		assert.Less(t, cur, prev)
		prev = cur
	}
}

func TestMultiplierClampsOutOfRangeInputs(t *testing.T) {
	assert.Equal(t, Multiplier(0.0, 1_000_000, 200_000), Multiplier(-0.5, 1_000_000, 200_000))
	assert.Equal(t, Multiplier(1.0, 1_000_000, 200_000), Multiplier(1.5, 1_000_000, 200_000))
}

func TestNumBinsClampsToRange(t *testing.T) {
	assert.Equal(t, minBins, numBins(100_000, 200_000))  // below min -> clamped up
	assert.Equal(t, 5, numBins(1_000_000, 200_000))
	assert.Equal(t, maxBins, numBins(10_000_000, 200_000))
	assert.Equal(t, maxBins, numBins(20_000_000, 200_000)) // above max -> clamped down
}

func TestNumBinsZeroPreferredSizeIsFloor(t *testing.T) {
	assert.Equal(t, minBins, numBins(10_000_000, 0))
}

func TestMultiplierAtCenterBinIsNearOne(t *testing.T) {
	m := Multiplier(0.5, 1_000_000, 200_000)
	assert.InDelta(t, 1.0, m, 0.5)
}

func TestMultiplierForChannelZeroCapacityIsNeutral(t *testing.T) {
	assert.Equal(t, 1.0, MultiplierForChannel(0, 0, 200_000))
}

func TestMultiplierForChannelMatchesFractionPath(t *testing.T) {
	got := MultiplierForChannel(500_000_000, 1_000_000, 200_000)
	want := Multiplier(0.5, 1_000_000, 200_000)
	assert.InDelta(t, want, got, 0.0001)
}
