package store

import (
	"fmt"

	"gorm.io/gorm/clause"
)

// UpsertEarnings additively records fee income and forwarded volume for
// a (channel, day bucket, direction) key.
func (s *Store) UpsertEarnings(row EarningsRow) error {
	return s.upsertAdditive(&row)
}

// UpsertRebalanceCost records the rebalancer's budgeted fee spend using
// the same additive-upsert shape as earnings.
func (s *Store) UpsertRebalanceCost(row RebalanceCostRow) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "channel_id"}, {Name: "day_bucket"}, {Name: "direction"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"fee_earned_msat":       gormExprAdd("rebalance_costs.fee_earned_msat", row.FeeEarnedMsat),
			"amount_forwarded_msat": gormExprAdd("rebalance_costs.amount_forwarded_msat", row.AmountForwardedMsat),
		}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("upsert rebalance cost: %w", result.Error)
	}
	return nil
}

func (s *Store) upsertAdditive(row *EarningsRow) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "channel_id"}, {Name: "day_bucket"}, {Name: "direction"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"fee_earned_msat":       gormExprAdd("earnings.fee_earned_msat", row.FeeEarnedMsat),
			"amount_forwarded_msat": gormExprAdd("earnings.amount_forwarded_msat", row.AmountForwardedMsat),
		}),
	}).Create(row)
	if result.Error != nil {
		return fmt.Errorf("upsert earnings: %w", result.Error)
	}
	return nil
}

func gormExprAdd(column string, delta uint64) clause.Expr {
	return clause.Expr{SQL: column + " + ?", Vars: []interface{}{delta}}
}

// EarningsSince returns total fee earned and amount forwarded for a
// channel (both directions) since a given day bucket.
func (s *Store) EarningsSince(channelID string, sinceDayBucket int64) (feeMsat uint64, amountMsat uint64, err error) {
	var rows []EarningsRow
	if err := s.db.Where("channel_id = ? AND day_bucket >= ?", channelID, sinceDayBucket).Find(&rows).Error; err != nil {
		return 0, 0, fmt.Errorf("earnings since: %w", err)
	}
	for _, r := range rows {
		feeMsat += r.FeeEarnedMsat
		amountMsat += r.AmountForwardedMsat
	}
	return feeMsat, amountMsat, nil
}

// PeerEarnings is the earnings/expenditure breakdown for a counterparty
// over a time window, used by the rebalancer and the peer judge.
type PeerEarnings struct {
	InEarningsMsat      uint64
	OutEarningsMsat     uint64
	InExpendituresMsat  uint64
	OutExpendituresMsat uint64
}

// InNet is net earnings on the inbound side (earnings minus rebalance spend).
func (p PeerEarnings) InNet() int64 {
	return int64(p.InEarningsMsat) - int64(p.InExpendituresMsat)
}

// OutNet is net earnings on the outbound side.
func (p PeerEarnings) OutNet() int64 {
	return int64(p.OutEarningsMsat) - int64(p.OutExpendituresMsat)
}

// TotalNet sums both directions.
func (p PeerEarnings) TotalNet() int64 {
	return p.InNet() + p.OutNet()
}

// PeerEarningsSince aggregates earnings and rebalance expenditures for
// every channel with the given counterparty since a day bucket.
func (s *Store) PeerEarningsSince(counterpartyNodeID string, sinceDayBucket int64) (PeerEarnings, error) {
	var earningsRows []EarningsRow
	if err := s.db.Where("counterparty_node_id = ? AND day_bucket >= ?", counterpartyNodeID, sinceDayBucket).Find(&earningsRows).Error; err != nil {
		return PeerEarnings{}, fmt.Errorf("peer earnings since: %w", err)
	}
	var costRows []RebalanceCostRow
	if err := s.db.Where("counterparty_node_id = ? AND day_bucket >= ?", counterpartyNodeID, sinceDayBucket).Find(&costRows).Error; err != nil {
		return PeerEarnings{}, fmt.Errorf("peer expenditures since: %w", err)
	}

	var pe PeerEarnings
	for _, r := range earningsRows {
		switch r.Direction {
		case "in":
			pe.InEarningsMsat += r.FeeEarnedMsat
		case "out":
			pe.OutEarningsMsat += r.FeeEarnedMsat
		}
	}
	for _, r := range costRows {
		switch r.Direction {
		case "in":
			pe.InExpendituresMsat += r.FeeEarnedMsat
		case "out":
			pe.OutExpendituresMsat += r.FeeEarnedMsat
		}
	}
	return pe, nil
}

// KnownOpenChannels returns every channel_history row currently marked open.
func (s *Store) KnownOpenChannels() ([]ChannelHistoryRow, error) {
	var rows []ChannelHistoryRow
	if err := s.db.Where("is_open = ?", true).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("known open channels: %w", err)
	}
	return rows, nil
}

// UpsertChannelHistory inserts a channel as newly open, or updates
// last_seen_at if already known.
func (s *Store) UpsertChannelHistory(row ChannelHistoryRow) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "is_open"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("upsert channel history: %w", result.Error)
	}
	return nil
}

// MarkChannelClosed sets is_open = false and bumps last_seen_at.
func (s *Store) MarkChannelClosed(channelID string, at float64) error {
	result := s.db.Model(&ChannelHistoryRow{}).Where("channel_id = ?", channelID).
		Updates(map[string]interface{}{"is_open": false, "last_seen_at": at})
	if result.Error != nil {
		return fmt.Errorf("mark channel closed: %w", result.Error)
	}
	return nil
}

// ChannelAgeDays returns the channel's age in days since first_seen_at,
// or false if the channel is unknown.
func (s *Store) ChannelAgeDays(channelID string, nowUnix float64) (float64, bool, error) {
	var row ChannelHistoryRow
	err := s.db.Where("channel_id = ?", channelID).First(&row).Error
	if err != nil {
		return 0, false, nil
	}
	return (nowUnix - row.FirstSeenAt) / 86400.0, true, nil
}

// LoadPageToken reads the persisted forwarded-payments pagination cursor.
func (s *Store) LoadPageToken() (index int64, token string, ok bool, err error) {
	var row SyncState
	result := s.db.Where("key = ?", "forwarded_payments_cursor").First(&row)
	if result.Error != nil {
		return 0, "", false, nil
	}
	var idx int64
	var tok string
	_, scanErr := fmt.Sscanf(row.Value, "%d:%s", &idx, &tok)
	if scanErr != nil {
		return 0, "", false, nil
	}
	return idx, tok, true, nil
}

// SavePageToken persists the forwarded-payments pagination cursor.
func (s *Store) SavePageToken(index int64, token string) error {
	row := SyncState{Key: "forwarded_payments_cursor", Value: fmt.Sprintf("%d:%s", index, token)}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("save page token: %w", result.Error)
	}
	return nil
}

// SaveFeeRegime persists the last-observed fee regime for hysteresis.
func (s *Store) SaveFeeRegime(regime string) error {
	row := RunState{Key: "fee_regime", Value: regime}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("save fee regime: %w", result.Error)
	}
	return nil
}

// LoadFeeRegime reads the last-persisted fee regime, defaulting to "high".
func (s *Store) LoadFeeRegime() string {
	var row RunState
	if err := s.db.Where("key = ?", "fee_regime").First(&row).Error; err != nil {
		return "high"
	}
	return row.Value
}

// SaveTickCount persists the scheduler's completed tick count, so the
// status subcommand (a separate process from the running daemon) can
// report it.
func (s *Store) SaveTickCount(tick uint64) error {
	row := RunState{Key: "tick_count", Value: fmt.Sprintf("%d", tick)}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("save tick count: %w", result.Error)
	}
	return nil
}

// LoadTickCount reads the last-persisted tick count, defaulting to 0.
func (s *Store) LoadTickCount() uint64 {
	var row RunState
	if err := s.db.Where("key = ?", "tick_count").First(&row).Error; err != nil {
		return 0
	}
	var tick uint64
	if _, err := fmt.Sscanf(row.Value, "%d", &tick); err != nil {
		return 0
	}
	return tick
}

// PruneOldFeeSamples deletes feerate samples older than the given cutoff.
func (s *Store) PruneOldFeeSamples(cutoffUnix float64) error {
	return s.db.Where("sampled_at < ?", cutoffUnix).Delete(&OnchainFeeSample{}).Error
}

// InsertFeeSample writes one feerate observation.
func (s *Store) InsertFeeSample(feerate float64, sampledAt float64) error {
	return s.db.Create(&OnchainFeeSample{FeerateSatPerVB: feerate, SampledAt: sampledAt}).Error
}

// AllFeeSamples returns every stored feerate sample, oldest first.
func (s *Store) AllFeeSamples() ([]OnchainFeeSample, error) {
	var rows []OnchainFeeSample
	if err := s.db.Order("sampled_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("all fee samples: %w", err)
	}
	return rows, nil
}

// UpsertPeerAddress records a peer's last known connect address.
func (s *Store) UpsertPeerAddress(row PeerAddress) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "node_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "source"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("upsert peer address: %w", result.Error)
	}
	return nil
}

// PeerAddressFor looks up a peer's last known address.
func (s *Store) PeerAddressFor(nodeID string) (PeerAddress, bool, error) {
	var row PeerAddress
	err := s.db.Where("node_id = ?", nodeID).First(&row).Error
	if err != nil {
		return PeerAddress{}, false, nil
	}
	return row, true, nil
}

// TouchPeerLastConnected updates last_connected_at after a successful ConnectPeer.
func (s *Store) TouchPeerLastConnected(nodeID string, at float64) error {
	return s.db.Model(&PeerAddress{}).Where("node_id = ?", nodeID).Update("last_connected_at", at).Error
}

// AppendAutopilotOpen appends one audit row.
func (s *Store) AppendAutopilotOpen(row AutopilotOpen) error {
	return s.db.Create(&row).Error
}

// AppendJudgeClosure appends one audit row.
func (s *Store) AppendJudgeClosure(row JudgeClosure) error {
	return s.db.Create(&row).Error
}

// EarningsCandidate is a counterparty ranked by total fee earned.
type EarningsCandidate struct {
	CounterpartyNodeID string
	TotalEarnedMsat    uint64
}

// TopEarningsCandidates returns up to 20 counterparties ranked by total
// fee earned descending, excluding zero earners. Current peers are not
// excluded by the query: they count toward the 20, and removing them is
// left to the caller, so fewer than 20 non-peers may remain.
func (s *Store) TopEarningsCandidates() ([]EarningsCandidate, error) {
	var rows []EarningsCandidate
	err := s.db.Model(&EarningsRow{}).
		Select("counterparty_node_id, SUM(fee_earned_msat) as total_earned_msat").
		Group("counterparty_node_id").
		Having("SUM(fee_earned_msat) > 0").
		Order("total_earned_msat DESC").
		Limit(20).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top earnings candidates: %w", err)
	}
	return rows, nil
}

// LatestAutopilotOpen returns the most recent autopilot-opened channel, if any.
func (s *Store) LatestAutopilotOpen() (AutopilotOpen, bool, error) {
	var row AutopilotOpen
	err := s.db.Order("opened_at DESC").First(&row).Error
	if err != nil {
		return AutopilotOpen{}, false, nil
	}
	return row, true, nil
}

// LatestJudgeClosure returns the most recent judge-closed channel, if any.
func (s *Store) LatestJudgeClosure() (JudgeClosure, bool, error) {
	var row JudgeClosure
	err := s.db.Order("closed_at DESC").First(&row).Error
	if err != nil {
		return JudgeClosure{}, false, nil
	}
	return row, true, nil
}
