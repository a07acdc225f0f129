// Package state builds a single consistent snapshot of the node's
// current info, balances, and channel set at the start of each cycle.
package state

import (
	"context"
	"fmt"

	"github.com/toneloc/ldkboss/internal/types"
	"github.com/toneloc/ldkboss/internal/rpcclient"
)

// NodeState is the immutable view every policy engine reads from
// during a single daemon cycle.
type NodeState struct {
	Node     types.NodeInfo
	Balances types.Balances
	Channels []types.Channel
}

// Fetch gathers node info, balances, and channels into one snapshot.
func Fetch(ctx context.Context, client rpcclient.NodeClient) (*NodeState, error) {
	node, err := client.GetNodeInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch node info: %w", err)
	}
	balances, err := client.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}
	channels, err := client.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch channels: %w", err)
	}
	return &NodeState{Node: node, Balances: balances, Channels: channels}, nil
}

// UsableChannels returns only the channels currently usable for routing.
func (s *NodeState) UsableChannels() []types.Channel {
	var out []types.Channel
	for _, c := range s.Channels {
		if c.Usable {
			out = append(out, c)
		}
	}
	return out
}

// TotalChannelCapacitySats sums the capacity of every ready channel.
func (s *NodeState) TotalChannelCapacitySats() uint64 {
	var total uint64
	for _, c := range s.Channels {
		if c.Ready {
			total += c.CapacitySats
		}
	}
	return total
}

// TotalFundsSats sums the node's total on-chain and lightning balances,
// the denominator the autopilot decider uses for on-chain percent gates.
func (s *NodeState) TotalFundsSats() uint64 {
	return s.Balances.TotalOnchainSats + s.Balances.TotalLightningMsat/1000
}

// OnchainPercent is the share of total funds currently sitting on-chain.
// A node with no funds at all reports 100%: everything it has (nothing)
// is on-chain, so the autopilot's percent gates stay open rather than
// wedging shut on an empty wallet.
func (s *NodeState) OnchainPercent() float64 {
	total := s.TotalFundsSats()
	if total == 0 {
		return 100
	}
	return float64(s.Balances.SpendableOnchainSats) / float64(total) * 100
}

// ChannelByCounterparty indexes every channel by counterparty node ID.
// A peer with more than one channel keeps only the first encountered;
// callers needing every channel should range over s.Channels directly.
func (s *NodeState) ChannelByCounterparty() map[string]types.Channel {
	out := make(map[string]types.Channel, len(s.Channels))
	for _, c := range s.Channels {
		if _, exists := out[c.CounterpartyNodeID]; !exists {
			out[c.CounterpartyNodeID] = c
		}
	}
	return out
}

// ChannelsByPeer groups every channel (including duplicates per peer) by
// counterparty node ID.
func (s *NodeState) ChannelsByPeer() map[string][]types.Channel {
	out := make(map[string][]types.Channel)
	for _, c := range s.Channels {
		out[c.CounterpartyNodeID] = append(out[c.CounterpartyNodeID], c)
	}
	return out
}

// FindByChannelID locates a channel by its confirmed channel ID.
func (s *NodeState) FindByChannelID(channelID string) (types.Channel, bool) {
	for _, c := range s.Channels {
		if c.ChannelID == channelID {
			return c, true
		}
	}
	return types.Channel{}, false
}
