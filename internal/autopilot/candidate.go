package autopilot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
)

// hardcodedCandidates are ten well-known, well-connected Lightning
// routing nodes. They are always added to the candidate list with low
// scores, so there are targets even before any earnings history or seed
// configuration exists.
var hardcodedCandidates = []Candidate{
	{NodeID: "03864ef025fde8fb587d989186ce6a4a186895ee44a926bfc370e2c366597a3f8f", Address: "3.33.236.230:9735", Score: 10, Source: SourceHardcoded},           // ACINQ
	{NodeID: "02f1a8c87607f415c8f22c00571c93e301a0ab6e73e38bfa3eb97ee71f96aab5f6", Address: "52.13.118.208:9735", Score: 9, Source: SourceHardcoded},          // Kraken
	{NodeID: "03037dc08e9ac63b82581f79b662a4d0ceca8a8ca162b1af3551595b8f2d97b70a", Address: "104.196.249.140:9735", Score: 9, Source: SourceHardcoded},        // River Financial
	{NodeID: "035e4ff418fc8b5554c5d9eea66396c227bd3a1a07c54c2b7b8d8dfdfc0e0a941b", Address: "170.75.163.209:9735", Score: 8, Source: SourceHardcoded},         // Wallet of Satoshi
	{NodeID: "033d8656219478701227199cbd6f670335c8d408a92ae88b962c49d4dc0e83e025", Address: "3.33.236.230:9735", Score: 8, Source: SourceHardcoded},          // Bitfinex
	{NodeID: "028d98b9969fbed53784a36617eb489a59ab6dc9b9d77571a4a3e5cba4a0c71284", Address: "18.221.23.28:9735", Score: 7, Source: SourceHardcoded},           // OpenNode
	{NodeID: "02816caed43171d3c9854e3b0ab2dee0a029c7290e2dd04cf4a68df1e8a0586cac", Address: "35.238.153.25:9735", Score: 7, Source: SourceHardcoded},          // Fold
	{NodeID: "026165850492521f4ac8abd9bd8088123446d126f648ca35e60f88177dc149ceb2", Address: "24.249.146.89:9735", Score: 6, Source: SourceHardcoded},         // Boltz
	{NodeID: "038863cf8ab91046230f561cd5b386cbff8309fa02e3f0c3ed161a3aeb64a643b9", Address: "203.132.95.10:9735", Score: 6, Source: SourceHardcoded},          // Zero Fee Routing
	{NodeID: "0331f80652fb840239df8dc99205792bba2e559a05469915804c08420230e23c7c", Address: "138.68.14.104:9735", Score: 5, Source: SourceHardcoded},         // LNBig
}

// externalCandidateTimeout bounds how long the optional external
// ranking service is given to respond; a slow or unreachable endpoint
// must never stall a cycle.
const externalCandidateTimeout = 5 * time.Second

// Candidates assembles and ranks channel-open targets from four
// sources: peers the daemon has already earned from, configured seed
// nodes, the hardcoded fallback list, and an optional external ranking
// endpoint, excluding any node already a direct peer or on the
// blacklist. The caller truncates to however many proposals it intends
// to open; this function does not cap the result itself.
func Candidates(ctx context.Context, cfg config.GeneralConfig, autopilotCfg config.AutopilotConfig, st *store.Store, s *state.NodeState) ([]Candidate, error) {
	existing := s.ChannelByCounterparty()
	blacklisted := make(map[string]struct{}, len(cfg.Blacklist))
	for _, b := range cfg.Blacklist {
		blacklisted[b] = struct{}{}
	}
	blocked := func(nodeID string) bool {
		if _, isPeer := existing[nodeID]; isPeer {
			return true
		}
		_, isBlocked := blacklisted[nodeID]
		return isBlocked
	}

	var out []Candidate

	earningsCandidates, err := getEarningsCandidates(st, blocked)
	if err != nil {
		return nil, fmt.Errorf("earnings candidates: %w", err)
	}
	out = append(out, earningsCandidates...)

	for _, seedAddr := range cfg.SeedNodes {
		nodeID, addr := SplitSeedNode(seedAddr)
		if nodeID == "" || blocked(nodeID) {
			continue
		}
		out = append(out, Candidate{NodeID: nodeID, Address: addr, Score: 100, Source: SourceSeedNode})
	}

	for _, hc := range hardcodedCandidates {
		if blocked(hc.NodeID) {
			continue
		}
		out = append(out, hc)
	}

	external := fetchExternalCandidates(ctx, autopilotCfg.ExternalRankingURL)
	for _, ec := range external {
		if blocked(ec.NodeID) {
			continue
		}
		ec.Source = SourceExternal
		out = append(out, ec)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// getEarningsCandidates scores peers the daemon has already earned
// routing fees from by sqrt(total_earned_msat)/100: earnings matter,
// but with diminishing weight so a single outlier payment doesn't
// dominate the ranking.
func getEarningsCandidates(st *store.Store, blocked func(string) bool) ([]Candidate, error) {
	earningsCandidates, err := st.TopEarningsCandidates()
	if err != nil {
		return nil, fmt.Errorf("top earnings candidates: %w", err)
	}

	var out []Candidate
	for _, ec := range earningsCandidates {
		if blocked(ec.CounterpartyNodeID) {
			continue
		}
		addr, _, _ := st.PeerAddressFor(ec.CounterpartyNodeID)
		out = append(out, Candidate{
			NodeID:  ec.CounterpartyNodeID,
			Address: addr.Address,
			Score:   math.Sqrt(float64(ec.TotalEarnedMsat)) / 100.0,
			Source:  SourceEarnings,
		})
	}
	return out, nil
}

// externalCandidate mirrors the JSON shape returned by an external
// ranking service: a flat list of {node_id, address, score} objects.
type externalCandidate struct {
	NodeID  string  `json:"node_id"`
	Address string  `json:"address"`
	Score   float64 `json:"score"`
}

// fetchExternalCandidates queries an optional third-party node-ranking
// service. Any failure (no URL configured, network error, bad JSON) is
// logged and treated as an empty candidate list rather than aborting
// the cycle.
func fetchExternalCandidates(ctx context.Context, url string) []Candidate {
	if url == "" {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, externalCandidateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("autopilot: build external ranking request: %v", err)
		return nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("autopilot: fetch external ranking candidates: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("autopilot: external ranking service returned status %d", resp.StatusCode)
		return nil
	}

	var parsed []externalCandidate
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Printf("autopilot: decode external ranking response: %v", err)
		return nil
	}

	out := make([]Candidate, 0, len(parsed))
	for _, c := range parsed {
		out = append(out, Candidate{NodeID: c.NodeID, Address: c.Address, Score: c.Score})
	}
	return out
}

// SplitSeedNode splits a "nodeid@host:port" seed string into its
// pubkey and address parts. Returns two empty strings if malformed.
func SplitSeedNode(seed string) (nodeID, address string) {
	for i := 0; i < len(seed); i++ {
		if seed[i] == '@' {
			return seed[:i], seed[i+1:]
		}
	}
	return "", ""
}

// HardcodedCandidates returns the fallback list of well-known routing
// nodes, for callers outside the package (the reconnector seeds
// addresses from the same list).
func HardcodedCandidates() []Candidate {
	return hardcodedCandidates
}
