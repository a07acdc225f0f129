// Package scheduler gates which modules run each daemon tick.
package scheduler

import (
	"math/rand"
	"time"

	"github.com/toneloc/ldkboss/internal/config"
)

// Ticks are 10-minute intervals by default. Autopilot runs ~hourly (6
// ticks), rebalancer ~every 2 hours (12 ticks), judge ~every 6 hours
// (36 ticks).
const (
	autopilotInterval  = 6
	rebalancerInterval = 12
	judgeInterval      = 36
)

// Scheduler tracks elapsed ticks and decides which modules are due,
// mixing fixed intervals with a probabilistic trigger for the
// rebalancer so its load doesn't land in lockstep with other nodes.
type Scheduler struct {
	tickCount          uint64
	triggerProbability float64
	forceAll           bool
	rng                *rand.Rand
}

// New returns a scheduler with the configured rebalancer trigger
// probability.
func New(cfg config.RebalancerConfig) *Scheduler {
	return &Scheduler{
		triggerProbability: cfg.TriggerProbability,
		rng:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewForceAll returns a scheduler whose should_run_* methods always
// return true, for run-once mode.
func NewForceAll(cfg config.RebalancerConfig) *Scheduler {
	s := New(cfg)
	s.forceAll = true
	return s
}

// Tick advances the scheduler by one interval.
func (s *Scheduler) Tick() {
	s.tickCount++
}

// TickCount returns the number of completed ticks.
func (s *Scheduler) TickCount() uint64 {
	return s.tickCount
}

// ShouldRunAutopilot reports whether the autopilot module is due.
func (s *Scheduler) ShouldRunAutopilot() bool {
	if s.forceAll {
		return true
	}
	return s.tickCount%autopilotInterval == 0
}

// ShouldRunRebalancer reports whether the rebalancer module is due,
// combining the fixed interval gate with a random trigger so it
// doesn't fire deterministically every interval.
func (s *Scheduler) ShouldRunRebalancer() bool {
	if s.forceAll {
		return true
	}
	if s.tickCount%rebalancerInterval != 0 {
		return false
	}
	return s.rng.Float64() < s.triggerProbability
}

// ShouldRunJudge reports whether the judge module is due.
func (s *Scheduler) ShouldRunJudge() bool {
	if s.forceAll {
		return true
	}
	return s.tickCount%judgeInterval == 0
}
