// Package reconnector reconnects to peers that still share a ready
// channel but have dropped off the network.
package reconnector

import (
	"context"
	"fmt"
	"log"

	"github.com/toneloc/ldkboss/internal/autopilot"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
)

// Run seeds known peer addresses, then reconnects any peer with a
// channel that is ready but not usable -- the signature of a
// disconnected counterparty. Reconnecting is cheap and runs every
// cycle regardless of the scheduler.
func Run(ctx context.Context, cfg config.GeneralConfig, autopilotCfg config.AutopilotConfig, dryRun bool, client rpcclient.NodeClient, st *store.Store, s *state.NodeState) error {
	if err := seedAddresses(cfg, st); err != nil {
		return fmt.Errorf("seed addresses: %w", err)
	}

	disconnected := make(map[string]struct{})
	for _, c := range s.Channels {
		if c.Ready && !c.Usable {
			disconnected[c.CounterpartyNodeID] = struct{}{}
		}
	}
	if len(disconnected) == 0 {
		return nil
	}

	log.Printf("reconnector: %d peers appear disconnected, attempting reconnection", len(disconnected))

	for peerID := range disconnected {
		addr, found, err := st.PeerAddressFor(peerID)
		if err != nil {
			return fmt.Errorf("peer address for %s: %w", peerID, err)
		}
		if !found {
			log.Printf("reconnector: no known address for peer %s, skipping", peerID)
			continue
		}

		if dryRun {
			log.Printf("reconnector: would reconnect to %s at %s (dry-run)", peerID, addr.Address)
			continue
		}

		if err := client.ConnectPeer(ctx, peerID, addr.Address, true); err != nil {
			log.Printf("reconnector: failed to reconnect to %s at %s: %v", peerID, addr.Address, err)
			continue
		}

		log.Printf("reconnector: reconnected to %s at %s", peerID, addr.Address)
		if err := st.TouchPeerLastConnected(peerID, store.Now()); err != nil {
			return fmt.Errorf("touch peer last connected for %s: %w", peerID, err)
		}
	}

	return nil
}

// seedAddresses records peer addresses from configured seed nodes and
// the hardcoded fallback list, so the reconnector has somewhere to
// dial even before the autopilot has opened anything. Idempotent:
// safe to call every cycle.
func seedAddresses(cfg config.GeneralConfig, st *store.Store) error {
	for _, seed := range cfg.SeedNodes {
		nodeID, addr := autopilot.SplitSeedNode(seed)
		if nodeID == "" {
			continue
		}
		if err := st.UpsertPeerAddress(store.PeerAddress{NodeID: nodeID, Address: addr, Source: "config"}); err != nil {
			return fmt.Errorf("upsert seed address %s: %w", nodeID, err)
		}
	}

	for _, hc := range autopilot.HardcodedCandidates() {
		if err := st.UpsertPeerAddress(store.PeerAddress{NodeID: hc.NodeID, Address: hc.Address, Source: "hardcoded"}); err != nil {
			return fmt.Errorf("upsert hardcoded address %s: %w", hc.NodeID, err)
		}
	}

	return nil
}
