package feeregime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toneloc/ldkboss/internal/autopilot"
	"github.com/toneloc/ldkboss/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seed(t *testing.T, st *store.Store, rates ...float64) {
	t.Helper()
	for i, r := range rates {
		require.NoError(t, st.InsertFeeSample(r, float64(i)))
	}
}

func TestClassifyDefaultsToHighWithNoSamples(t *testing.T) {
	st := newTestStore(t)
	regime, err := Classify(st, 17, 23)
	require.NoError(t, err)
	require.Equal(t, autopilot.RegimeHigh, regime)
}

func TestClassifyIgnoresPriorRegimeWithNoSamples(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveFeeRegime("low"))
	regime, err := Classify(st, 17, 23)
	require.NoError(t, err)
	require.Equal(t, autopilot.RegimeHigh, regime)
}

func TestClassifyStaysHighUntilBelowLowerThreshold(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveFeeRegime("high"))
	seed(t, st, 10, 10, 10, 10, 50)
	regime, err := Classify(st, 17, 23)
	require.NoError(t, err)
	require.Equal(t, autopilot.RegimeHigh, regime)
}

func TestClassifyDropsToLowBelowLowerThreshold(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveFeeRegime("high"))
	seed(t, st, 1, 1, 1, 1, 1)
	regime, err := Classify(st, 50, 90)
	require.NoError(t, err)
	require.Equal(t, autopilot.RegimeLow, regime)
}

func TestClassifyRisesToHighAboveUpperThreshold(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveFeeRegime("low"))
	seed(t, st, 1, 1, 1, 1, 100)
	regime, err := Classify(st, 10, 20)
	require.NoError(t, err)
	require.Equal(t, autopilot.RegimeHigh, regime)
}
