// Package config loads and validates the daemon's TOML configuration
// file. Every field is optional and falls back to a documented default;
// only the node-server connection section is required.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Absolute hard limits, independent of any configurable default.
const (
	AbsMinChannelSats = 20_000
	AbsMaxChannelSats = 16_777_215
	AbsMaxFeePPM      = 50_000
	AbsMaxProposals   = 5
)

// ServerConfig is the node-server connection section.
type ServerConfig struct {
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	TLSCertPath string `toml:"tls_cert_path"`
}

// GeneralConfig is the top-level daemon behavior section.
type GeneralConfig struct {
	DatabasePath       string   `toml:"database_path"`
	LogLevel           string   `toml:"log_level"`
	Network            string   `toml:"network"`
	LoopIntervalSecs   int      `toml:"loop_interval_secs"`
	DryRun             bool     `toml:"dry_run"`
	ReconnectorEnabled bool     `toml:"reconnector_enabled"`
	SeedNodes          []string `toml:"seed_nodes"`
	Blacklist          []string `toml:"blacklist"`
}

// AutopilotConfig controls channel-opening behavior.
type AutopilotConfig struct {
	Enabled              bool    `toml:"enabled"`
	MinChannelsToBackoff int     `toml:"min_channels_to_backoff"`
	MaxProposals         int     `toml:"max_proposals"`
	MinChannelSats       uint64  `toml:"min_channel_sats"`
	MaxChannelSats       uint64  `toml:"max_channel_sats"`
	OnchainReserveSats   uint64  `toml:"onchain_reserve_sats"`
	MinOnchainPercent    float64 `toml:"min_onchain_percent"`
	MaxOnchainPercent    float64 `toml:"max_onchain_percent"`
	ExternalRankingURL   string  `toml:"external_ranking_url"`
	AnnounceChannels     bool    `toml:"announce_channels"`
}

// FeesConfig controls the fee controller, balance modder, and price theory game.
type FeesConfig struct {
	Enabled                      bool   `toml:"enabled"`
	DefaultBaseMsat              uint64 `toml:"default_base_msat"`
	DefaultPPM                   uint32 `toml:"default_ppm"`
	BalanceModderEnabled         bool   `toml:"balance_modder_enabled"`
	PreferredBinSizeSats         uint64 `toml:"preferred_bin_size_sats"`
	PriceTheoryEnabled           bool   `toml:"price_theory_enabled"`
	PriceTheoryCardLifetimeTicks int    `toml:"price_theory_card_lifetime_ticks"`
	PriceTheoryMaxStep           int    `toml:"price_theory_max_step"`
}

// RebalancerConfig controls the earnings-driven rebalancer.
type RebalancerConfig struct {
	Enabled                bool    `toml:"enabled"`
	TriggerProbability     float64 `toml:"trigger_probability"`
	MaxSpendablePercent    float64 `toml:"max_spendable_percent"`
	SourceGapPercent       float64 `toml:"source_gap_percent"`
	TargetSpendablePercent float64 `toml:"target_spendable_percent"`
	MaxFeePPM              uint32  `toml:"max_fee_ppm"`
	MaxTotalFeeSats        uint64  `toml:"max_total_fee_sats"`
}

// JudgeConfig controls the peer-performance judge.
type JudgeConfig struct {
	Enabled                 bool    `toml:"enabled"`
	MinAgeDays              float64 `toml:"min_age_days"`
	EvaluationWindowDays    float64 `toml:"evaluation_window_days"`
	EstimatedReopenCostSats uint64  `toml:"estimated_reopen_cost_sats"`
	CooperativeClose        bool    `toml:"cooperative_close"`
}

// OnchainFeesConfig controls the fee-sample poller and regime detector.
type OnchainFeesConfig struct {
	Provider         string  `toml:"provider"`
	MempoolAPIURL    string  `toml:"mempool_api_url"`
	HiToLoPercentile float64 `toml:"hi_to_lo_percentile"`
	LoToHiPercentile float64 `toml:"lo_to_hi_percentile"`
}

// Config is the full TOML configuration document.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	General     GeneralConfig     `toml:"general"`
	Autopilot   AutopilotConfig   `toml:"autopilot"`
	Fees        FeesConfig        `toml:"fees"`
	Rebalancer  RebalancerConfig  `toml:"rebalancer"`
	Judge       JudgeConfig       `toml:"judge"`
	OnchainFees OnchainFeesConfig `toml:"onchain_fees"`
}

// Default returns a Config populated with every documented default.
func Default() Config {
	return Config{
		General: GeneralConfig{
			DatabasePath:       "ldkboss.db",
			LogLevel:           "info",
			Network:            "bitcoin",
			LoopIntervalSecs:   600,
			ReconnectorEnabled: true,
		},
		Autopilot: AutopilotConfig{
			Enabled:              true,
			MinChannelsToBackoff: 4,
			MaxProposals:         5,
			MinChannelSats:       100_000,
			MaxChannelSats:       16_777_215,
			OnchainReserveSats:   30_000,
			MinOnchainPercent:    10.0,
			MaxOnchainPercent:    25.0,
		},
		Fees: FeesConfig{
			Enabled:                      true,
			DefaultBaseMsat:              1_000,
			DefaultPPM:                   100,
			BalanceModderEnabled:         true,
			PreferredBinSizeSats:         200_000,
			PriceTheoryEnabled:           true,
			PriceTheoryCardLifetimeTicks: 288,
			PriceTheoryMaxStep:           2,
		},
		Rebalancer: RebalancerConfig{
			Enabled:                true,
			TriggerProbability:     0.5,
			MaxSpendablePercent:    25.0,
			SourceGapPercent:       2.5,
			TargetSpendablePercent: 75.0,
			MaxFeePPM:              1_000,
			MaxTotalFeeSats:        10_000,
		},
		Judge: JudgeConfig{
			Enabled:                 false,
			MinAgeDays:              90,
			EvaluationWindowDays:    30,
			EstimatedReopenCostSats: 5_000,
			CooperativeClose:        true,
		},
		OnchainFees: OnchainFeesConfig{
			Provider:         "mempool",
			MempoolAPIURL:    "https://mempool.space/api",
			HiToLoPercentile: 17.0,
			LoToHiPercentile: 23.0,
		},
	}
}

// Load reads and parses the TOML file at path over the defaults, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate enforces the absolute hard limits and required fields.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Server.APIKey == "" {
		return fmt.Errorf("server.api_key is required")
	}
	if c.Server.TLSCertPath == "" {
		return fmt.Errorf("server.tls_cert_path is required")
	}
	if _, err := os.Stat(c.Server.TLSCertPath); err != nil {
		return fmt.Errorf("server.tls_cert_path does not exist: %s", c.Server.TLSCertPath)
	}

	if c.Autopilot.MinChannelSats < AbsMinChannelSats {
		return fmt.Errorf("autopilot.min_channel_sats must be >= %d", AbsMinChannelSats)
	}
	if c.Autopilot.MaxChannelSats > AbsMaxChannelSats {
		return fmt.Errorf("autopilot.max_channel_sats must be <= %d", AbsMaxChannelSats)
	}
	if c.Autopilot.MinChannelSats > c.Autopilot.MaxChannelSats {
		return fmt.Errorf("autopilot.min_channel_sats must be <= max_channel_sats")
	}
	if c.Autopilot.MaxProposals > AbsMaxProposals {
		return fmt.Errorf("autopilot.max_proposals must be <= %d", AbsMaxProposals)
	}
	if c.Fees.DefaultPPM > AbsMaxFeePPM {
		return fmt.Errorf("fees.default_ppm must be <= %d", AbsMaxFeePPM)
	}
	if c.Rebalancer.TriggerProbability < 0 || c.Rebalancer.TriggerProbability > 1 {
		return fmt.Errorf("rebalancer.trigger_probability must be in [0,1]")
	}
	if c.Rebalancer.MaxSpendablePercent <= 0 || c.Rebalancer.MaxSpendablePercent >= 100 {
		return fmt.Errorf("rebalancer.max_spendable_percent must be in (0,100)")
	}

	return nil
}
