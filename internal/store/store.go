// Package store is the daemon's history store: earnings, rebalance
// costs, channel lifecycle, price-theory state, fee samples, audit
// trails, and small key-value sync/run state tables.
package store

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EarningsRow is keyed by (channel, day bucket, direction); additive
// upserts accumulate fee income and forwarded volume per channel per day.
type EarningsRow struct {
	ChannelID           string `gorm:"primaryKey;column:channel_id"`
	DayBucket           int64  `gorm:"primaryKey;column:day_bucket"`
	Direction           string `gorm:"primaryKey;column:direction"` // "in" | "out"
	CounterpartyNodeID  string `gorm:"column:counterparty_node_id"`
	FeeEarnedMsat       uint64 `gorm:"column:fee_earned_msat"`
	AmountForwardedMsat uint64 `gorm:"column:amount_forwarded_msat"`
}

func (EarningsRow) TableName() string { return "earnings" }

// RebalanceCostRow has the same shape as EarningsRow, written by the
// rebalancer when it pays a self-invoice.
type RebalanceCostRow struct {
	ChannelID           string `gorm:"primaryKey;column:channel_id"`
	DayBucket           int64  `gorm:"primaryKey;column:day_bucket"`
	Direction           string `gorm:"primaryKey;column:direction"`
	CounterpartyNodeID  string `gorm:"column:counterparty_node_id"`
	FeeEarnedMsat       uint64 `gorm:"column:fee_earned_msat"`
	AmountForwardedMsat uint64 `gorm:"column:amount_forwarded_msat"`
}

func (RebalanceCostRow) TableName() string { return "rebalance_costs" }

// ChannelHistoryRow is the one-row-per-channel lifecycle record.
type ChannelHistoryRow struct {
	ChannelID          string  `gorm:"primaryKey;column:channel_id"`
	UserChannelID      string  `gorm:"column:user_channel_id"`
	CounterpartyNodeID string  `gorm:"column:counterparty_node_id"`
	ChannelValueSats   uint64  `gorm:"column:channel_value_sats"`
	FirstSeenAt        float64 `gorm:"column:first_seen_at"`
	LastSeenAt         float64 `gorm:"column:last_seen_at"`
	IsOpen             bool    `gorm:"column:is_open"`
}

func (ChannelHistoryRow) TableName() string { return "channel_history" }

// PriceTheoryCenter holds the current center price for a peer's card game.
type PriceTheoryCenter struct {
	CounterpartyNodeID string `gorm:"primaryKey;column:counterparty_node_id"`
	Price              int    `gorm:"column:price"`
}

func (PriceTheoryCenter) TableName() string { return "price_theory_center" }

// PriceTheoryCard is one card in a peer's deck.
type PriceTheoryCard struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement;column:id"`
	CounterpartyNodeID string `gorm:"column:counterparty_node_id;index"`
	Position           string `gorm:"column:position"` // "deck" | "in_play" | "discarded"
	DeckOrder          int    `gorm:"column:deck_order"`
	Price              int    `gorm:"column:price"`
	Lifetime           int    `gorm:"column:lifetime"`
	EarningsMsat       uint64 `gorm:"column:earnings_msat"`
}

func (PriceTheoryCard) TableName() string { return "price_theory_cards" }

// OnchainFeeSample is a single feerate observation.
type OnchainFeeSample struct {
	ID              uint    `gorm:"primaryKey;autoIncrement;column:id"`
	FeerateSatPerVB float64 `gorm:"column:feerate_sat_per_vb"`
	SampledAt       float64 `gorm:"column:sampled_at;index"`
}

func (OnchainFeeSample) TableName() string { return "onchain_fee_samples" }

// AutopilotOpen is an append-only audit row for each successful autopilot open.
type AutopilotOpen struct {
	ID                 uint    `gorm:"primaryKey;autoIncrement;column:id"`
	ChannelID          *string `gorm:"column:channel_id"`
	CounterpartyNodeID string  `gorm:"column:counterparty_node_id"`
	AmountSats         uint64  `gorm:"column:amount_sats"`
	OpenedAt           float64 `gorm:"column:opened_at"`
	Reason             *string `gorm:"column:reason"`
}

func (AutopilotOpen) TableName() string { return "autopilot_opens" }

// JudgeClosure is an append-only audit row for each judge-executed closure.
type JudgeClosure struct {
	ID                 uint    `gorm:"primaryKey;autoIncrement;column:id"`
	ChannelID          string  `gorm:"column:channel_id"`
	CounterpartyNodeID string  `gorm:"column:counterparty_node_id"`
	ClosedAt           float64 `gorm:"column:closed_at"`
	Reason             string  `gorm:"column:reason"`
}

func (JudgeClosure) TableName() string { return "judge_closures" }

// SyncState is a small key-value table, used for the forwarded-payments
// pagination cursor.
type SyncState struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (SyncState) TableName() string { return "sync_state" }

// PeerAddress remembers the last known address for a node, sourced from
// seed config, hardcoded candidates, or autopilot opens.
type PeerAddress struct {
	NodeID          string   `gorm:"primaryKey;column:node_id"`
	Address         string   `gorm:"column:address"`
	LastConnectedAt *float64 `gorm:"column:last_connected_at"`
	Source          string   `gorm:"column:source"`
}

func (PeerAddress) TableName() string { return "peer_addresses" }

// RunState is a small key-value table, used for the persisted fee
// regime (hysteresis memory).
type RunState struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (RunState) TableName() string { return "run_state" }

// Store wraps a GORM handle onto a single-file SQLite database opened
// in WAL mode with foreign keys enabled. The control loop is the only
// writer.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the database at path and runs
// AutoMigrate for every table in the schema.
func Open(path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.AutoMigrate(
		&EarningsRow{},
		&RebalanceCostRow{},
		&ChannelHistoryRow{},
		&PriceTheoryCenter{},
		&PriceTheoryCard{},
		&OnchainFeeSample{},
		&AutopilotOpen{},
		&JudgeClosure{},
		&SyncState{},
		&PeerAddress{},
		&RunState{},
	); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral database for tests.
func OpenInMemory() (*Store, error) {
	return Open("file::memory:?cache=shared")
}

// DB returns the underlying GORM handle for package-internal queries
// that need access beyond the typed helpers below.
func (s *Store) DB() *gorm.DB { return s.db }

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying db: %w", err)
	}
	return sqlDB.Close()
}

// Now is the store's notion of the current time, expressed as
// floating-point UNIX seconds (matching the schema's timestamp columns).
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// DayBucket truncates a UNIX timestamp to its 86400-second boundary (UTC).
func DayBucket(unixSeconds int64) int64 {
	const day = 86400
	return unixSeconds - (unixSeconds % day)
}
