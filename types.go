package ldkboss

import "github.com/toneloc/ldkboss/internal/types"

// ChannelConfig carries the fee-related fields the daemon manages plus
// opaque pass-through fields it must preserve unmodified.
type ChannelConfig = types.ChannelConfig

// Channel is the per-cycle snapshot view of a channel as reported by
// the node server. It is never persisted in full; only lifecycle
// metadata survives across cycles (see ChannelHistoryRow).
type Channel = types.Channel

// NodeInfo is the node identity returned by GetNodeInfo.
type NodeInfo = types.NodeInfo

// Balances is the on-chain/off-chain balance split returned by GetBalances.
type Balances = types.Balances

// ForwardedPayment is a single routed payment as returned by
// ListForwardedPayments.
type ForwardedPayment = types.ForwardedPayment

// PageToken is the opaque pagination cursor for ListForwardedPayments,
// persisted in sync_state as "index:token".
type PageToken = types.PageToken

// RouteParameters caps a Bolt11Send payment attempt.
type RouteParameters = types.RouteParameters
