package types

import "time"

// ChannelConfig carries the fee-related fields the daemon manages plus
// opaque pass-through fields it must preserve unmodified.
type ChannelConfig struct {
	BaseMsat                      uint64 `json:"base_msat"`
	FeeRatePPM                    uint32 `json:"fee_rate_ppm"`
	CltvExpiryDelta               uint32 `json:"cltv_expiry_delta"`
	ForceCloseAvoidanceMaxFeeSats uint64 `json:"force_close_avoidance_max_fee_satoshis"`
	AcceptUnderpayingHTLCs        bool   `json:"accept_underpaying_htlcs"`
	MaxDustHTLCExposureMsat       uint64 `json:"max_dust_htlc_exposure_msat"`
}

// Channel is the per-cycle snapshot view of a channel as reported by
// the node server. It is never persisted in full; only lifecycle
// metadata survives across cycles (see ChannelHistoryRow).
type Channel struct {
	ChannelID          string
	UserChannelID      string
	CounterpartyNodeID string
	CapacitySats       uint64
	OutboundMsat       uint64
	InboundMsat        uint64
	Ready              bool
	Usable             bool
	Config             ChannelConfig
}

// SpendablePercent returns the outbound liquidity as a percentage of
// capacity. Zero-capacity channels report 0.
func (c Channel) SpendablePercent() float64 {
	if c.CapacitySats == 0 {
		return 0
	}
	return float64(c.OutboundMsat) / (float64(c.CapacitySats) * 1000) * 100
}

// NodeInfo is the node identity returned by GetNodeInfo.
type NodeInfo struct {
	NodeID  string
	Alias   string
	Network string
}

// Balances is the on-chain/off-chain balance split returned by GetBalances.
type Balances struct {
	SpendableOnchainSats uint64
	TotalOnchainSats     uint64
	TotalLightningMsat   uint64
}

// ForwardedPayment is a single routed payment as returned by
// ListForwardedPayments.
type ForwardedPayment struct {
	PrevChannelID       string
	NextChannelID       string
	PrevNodeID          string
	NextNodeID          string
	FeeEarnedMsat       uint64
	AmountForwardedMsat uint64
	Timestamp           time.Time
}

// PageToken is the opaque pagination cursor for ListForwardedPayments,
// persisted in sync_state as "index:token".
type PageToken struct {
	Index int64
	Token string
}

// RouteParameters caps a Bolt11Send payment attempt.
type RouteParameters struct {
	MaxTotalRoutingFeeMsat          uint64
	MaxTotalCltvExpiryDelta         uint32
	MaxPathCount                    int
	MaxChannelSaturationPowerOfHalf int
}
