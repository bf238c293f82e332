/*
scheduler.go - Periodic badge sweep scheduler

PURPOSE:
  Runs the full badge sweep (every rule, every student) on an interval and
  reports committed claims that never got their ledger entry.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - A failing rule is logged and the next tick retries it; awards are
    unique per (student, badge) so repeated sweeps never double-award
  - Unpaid claims are logged at error level for manual reconciliation

CONFIGURATION:
  - Interval: [scheduler] badge_sweep_interval (default: 1 hour)
  - Enabled:  [scheduler] badge_sweep_enabled (default: false)

USAGE:
  scheduler := NewBadgeSweepScheduler(handler.Badges, handler.Guard, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - badges.go: Sweep endpoint (manual sweep)
  - badges/sweep.go: Engine
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/warp/points-engine/badges"
	"github.com/warp/points-engine/claims"
	"github.com/warp/points-engine/points"
)

// BadgeSweepScheduler runs badge sweeps on a ticker.
type BadgeSweepScheduler struct {
	Engine   *badges.Engine
	Guard    *claims.Guard
	Interval time.Duration
	Enabled  bool

	log    *log.Helper
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBadgeSweepScheduler creates a scheduler. guard may be nil to skip the
// unpaid claim check.
func NewBadgeSweepScheduler(engine *badges.Engine, guard *claims.Guard, logger log.Logger) *BadgeSweepScheduler {
	return &BadgeSweepScheduler{
		Engine:   engine,
		Guard:    guard,
		Interval: time.Hour,
		Enabled:  true,
		log:      points.LogHelper(logger, "api/scheduler"),
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *BadgeSweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("badge sweep scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.log.Infof("badge sweep scheduler started with interval %v", s.Interval)
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (s *BadgeSweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.log.Info("badge sweep scheduler stopped")
	}
}

func (s *BadgeSweepScheduler) run() {
	defer s.wg.Done()

	s.RunNow(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow performs one sweep and one unpaid claim check.
func (s *BadgeSweepScheduler) RunNow(ctx context.Context) badges.Report {
	report, err := s.Engine.Sweep(ctx, "", "")
	if err != nil {
		s.log.WithContext(ctx).Errorf("badge sweep failed: %v", err)
	} else if failed := report.Failed(); len(failed) > 0 {
		for _, rr := range failed {
			s.log.WithContext(ctx).Warnf("rule %s failed at %s: %v", rr.RuleID, rr.Stage, rr.Err)
		}
	}

	if s.Guard != nil {
		unpaid, err := s.Guard.Unpaid(ctx)
		if err != nil {
			s.log.WithContext(ctx).Errorf("unpaid claim check failed: %v", err)
		}
		for _, c := range unpaid {
			s.log.WithContext(ctx).Errorw("msg", "claim has no ledger entry",
				"claim_id", c.ID, "student_id", c.StudentID, "category", c.Category, "date", c.DateKey)
		}
	}
	return report
}
