package autopilot

// FeeRegime is the coarse on-chain fee classifier.
type FeeRegime string

const (
	RegimeLow  FeeRegime = "low"
	RegimeHigh FeeRegime = "high"
)

// CandidateSource tags where an autopilot candidate came from.
type CandidateSource string

const (
	SourceHardcoded CandidateSource = "hardcoded"
	SourceSeedNode  CandidateSource = "seed_node"
	SourceEarnings  CandidateSource = "earnings"
	SourceExternal  CandidateSource = "external"
)

// Candidate is a scored autopilot channel-open target.
type Candidate struct {
	NodeID  string
	Address string
	Score   float64
	Source  CandidateSource
}
