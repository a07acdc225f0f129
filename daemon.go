package ldkboss

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/toneloc/ldkboss/internal/autopilot"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/feecontroller"
	"github.com/toneloc/ldkboss/internal/feeregime"
	"github.com/toneloc/ldkboss/internal/judge"
	"github.com/toneloc/ldkboss/internal/reconnector"
	"github.com/toneloc/ldkboss/internal/rebalancer"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/scheduler"
	"github.com/toneloc/ldkboss/internal/state"
	"github.com/toneloc/ldkboss/internal/store"
	"github.com/toneloc/ldkboss/internal/tracker"
)

// Daemon wires the loaded config, node-server client, and history
// store together and runs the control loop.
type Daemon struct {
	Config *config.Config
	Client rpcclient.NodeClient
	Store  *store.Store

	httpClient *http.Client
	rng        *rand.Rand
}

// NewDaemon constructs a Daemon from an already-loaded config, client,
// and store. The caller owns the store's lifetime and must Close it.
func NewDaemon(cfg *config.Config, client rpcclient.NodeClient, st *store.Store) *Daemon {
	return &Daemon{
		Config:     cfg,
		Client:     client,
		Store:      st,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RunCycle executes one full control-loop iteration: a state snapshot,
// tracker updates, fee-regime classification, the always-on fee
// controller and reconnector, then the autopilot, rebalancer, and judge
// -- each only if its scheduler gate is due. Every policy engine's
// error is logged and swallowed so one module's failure never stops
// the others from running this cycle or the loop from continuing next
// cycle.
func (d *Daemon) RunCycle(ctx context.Context, sched *scheduler.Scheduler) error {
	cfg := d.Config

	s, err := state.Fetch(ctx, d.Client)
	if err != nil {
		return fmt.Errorf("fetch node state: %w", err)
	}

	if _, err := tracker.SyncChannels(d.Store, s.Channels); err != nil {
		log.Printf("tracker: sync channels error: %v", err)
	}
	_, peerEarningsMsat, err := tracker.IngestEarnings(ctx, d.Store, d.Client, s.Channels)
	if err != nil {
		log.Printf("tracker: ingest earnings error: %v", err)
	}
	if cfg.OnchainFees.Provider == "mempool" {
		if err := tracker.SampleOnchainFees(ctx, d.Store, d.httpClient, cfg.OnchainFees.MempoolAPIURL); err != nil {
			log.Printf("tracker: sample onchain fees error: %v", err)
		}
	}

	regime, err := feeregime.Classify(d.Store, cfg.OnchainFees.HiToLoPercentile, cfg.OnchainFees.LoToHiPercentile)
	if err != nil {
		log.Printf("feeregime: classify error: %v", err)
		regime = autopilot.RegimeHigh
	}

	if cfg.Fees.Enabled {
		if _, err := feecontroller.Run(ctx, d.Store, d.Client, s.Channels, cfg.Fees, cfg.General.DryRun, peerEarningsMsat, d.rng); err != nil {
			log.Printf("feecontroller: error: %v", err)
		}
	}

	if cfg.General.ReconnectorEnabled {
		if err := reconnector.Run(ctx, cfg.General, cfg.Autopilot, cfg.General.DryRun, d.Client, d.Store, s); err != nil {
			log.Printf("reconnector: error: %v", err)
		}
	}

	if cfg.Autopilot.Enabled && sched.ShouldRunAutopilot() {
		if err := autopilot.Run(ctx, cfg.General, cfg.Autopilot, cfg.General.DryRun, d.Client, d.Store, s, regime); err != nil {
			log.Printf("autopilot: error: %v", err)
		}
	}

	if cfg.Rebalancer.Enabled && sched.ShouldRunRebalancer() {
		if err := rebalancer.Run(ctx, cfg.Rebalancer, cfg.General.DryRun, d.Client, d.Store, s); err != nil {
			log.Printf("rebalancer: error: %v", err)
		}
	}

	if cfg.Judge.Enabled && sched.ShouldRunJudge() {
		if err := judge.Run(ctx, cfg.Judge, cfg.General.DryRun, d.Client, d.Store, s); err != nil {
			log.Printf("judge: error: %v", err)
		}
	}

	return nil
}

// RunOnce runs exactly one cycle with every module gate forced open,
// for the run-once CLI subcommand.
func (d *Daemon) RunOnce(ctx context.Context) error {
	sched := scheduler.NewForceAll(d.Config.Rebalancer)
	return d.RunCycle(ctx, sched)
}

// RunDaemon verifies the node server is reachable, then loops RunCycle
// at the configured interval until ctx is cancelled. The current cycle
// always finishes before the loop exits; only the inter-cycle sleep is
// interruptible.
func (d *Daemon) RunDaemon(ctx context.Context) error {
	if _, err := d.Client.GetNodeInfo(ctx); err != nil {
		return fmt.Errorf("node server unreachable at startup: %w", err)
	}

	if d.Config.General.DryRun {
		log.Printf("daemon: running in dry-run mode, no mutating calls will be made")
	}

	interval := time.Duration(d.Config.General.LoopIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 600 * time.Second
	}

	sched := scheduler.New(d.Config.Rebalancer)

	for {
		if ctx.Err() != nil {
			log.Printf("daemon: shutdown signal received, exiting")
			return nil
		}
		if err := d.RunCycle(ctx, sched); err != nil {
			log.Printf("daemon: cycle error: %v", err)
		}
		sched.Tick()
		if err := d.Store.SaveTickCount(sched.TickCount()); err != nil {
			log.Printf("daemon: save tick count error: %v", err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("daemon: shutdown signal received, exiting after completed cycle")
			return nil
		case <-timer.C:
		}
	}
}

// PrintStatus prints a four-line summary of the daemon's persisted
// state: the most recent autopilot open, the most recent judge
// closure, the current scheduler tick count, and the last classified
// fee regime.
func PrintStatus(st *store.Store) {
	fmt.Println("LDKBoss Status")
	fmt.Println("==============")

	if open, found, err := st.LatestAutopilotOpen(); err == nil && found {
		fmt.Printf("Last autopilot open:    %s (%d sats, %s)\n", open.CounterpartyNodeID, open.AmountSats, formatUnixTime(open.OpenedAt))
	} else {
		fmt.Println("Last autopilot open:    none")
	}

	if closure, found, err := st.LatestJudgeClosure(); err == nil && found {
		fmt.Printf("Last judge closure:     %s (%s, %s)\n", closure.CounterpartyNodeID, closure.Reason, formatUnixTime(closure.ClosedAt))
	} else {
		fmt.Println("Last judge closure:     none")
	}

	fmt.Printf("Current tick:           %d\n", st.LoadTickCount())
	fmt.Printf("Current fee regime:     %s\n", st.LoadFeeRegime())
}

func formatUnixTime(unix float64) string {
	return time.Unix(int64(unix), 0).UTC().Format("2006-01-02 15:04:05 UTC")
}
