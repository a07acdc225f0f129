package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/toneloc/ldkboss/internal/store"
)

const sampleRetentionSecs = 7 * 86400

// SampleOnchainFees fetches the current recommended feerate from the
// configured estimator and records it, pruning samples older than 7 days.
func SampleOnchainFees(ctx context.Context, st *store.Store, httpClient *http.Client, apiURL string) error {
	feerate, err := fetchMempoolFeerate(ctx, httpClient, apiURL)
	if err != nil {
		return fmt.Errorf("fetch feerate: %w", err)
	}

	now := store.Now()
	if err := st.InsertFeeSample(feerate, now); err != nil {
		return fmt.Errorf("insert fee sample: %w", err)
	}
	if err := st.PruneOldFeeSamples(now - sampleRetentionSecs); err != nil {
		return fmt.Errorf("prune fee samples: %w", err)
	}
	return nil
}

func fetchMempoolFeerate(ctx context.Context, httpClient *http.Client, apiURL string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/v1/fees/recommended", nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}

	var payload struct {
		HourFee float64 `json:"hourFee"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}
	return payload.HourFee, nil
}

// Percentile returns the sample at the given percentile (0-100) using
// nearest-rank indexing: samples sorted ascending, index = floor(pct *
// n / 100), clamped to the last index.
func Percentile(samples []store.OnchainFeeSample, pct float64) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	vals := make([]float64, len(samples))
	for i, s := range samples {
		vals[i] = s.FeerateSatPerVB
	}
	sort.Float64s(vals)

	idx := int(pct * float64(len(vals)) / 100)
	if idx >= len(vals) {
		idx = len(vals) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return vals[idx], true
}
