package leaderboard

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Source supplies raw metric values. Implementations return one row per
// student that has a value; ranking and filtering happen here.
type Source interface {
	// BalanceRows returns every student's cached balance.
	BalanceRows(ctx context.Context) ([]Row, error)

	// LifetimeRows returns every student's cached lifetime total.
	LifetimeRows(ctx context.Context) ([]Row, error)

	// PointsSince sums ledger entries created at or after since, skipping the
	// excluded categories.
	PointsSince(ctx context.Context, since time.Time, exclude []points.Category) ([]Row, error)

	// SkillSuccesses counts successful results for a skill on a civil date.
	SkillSuccesses(ctx context.Context, skillID, dateKey string) ([]Row, error)

	Stat(ctx context.Context, statID string) (Stat, error)
	StatValues(ctx context.Context, statID string) ([]Row, error)
}

// Cache stores ranked boards. Failures are logged and never fail a read.
//
// Get reports the generation it looked under and Set writes under the
// generation it is given, so rows loaded before an Invalidate never land in
// the newer generation.
type Cache interface {
	Get(ctx context.Context, key string) (rows []RankedRow, gen int64, hit bool, err error)
	Set(ctx context.Context, key string, gen int64, rows []RankedRow) error
	// Invalidate drops every cached board.
	Invalidate(ctx context.Context) error
}

// =============================================================================
// BOARD
// =============================================================================

type Board struct {
	source     Source
	cache      Cache
	categories points.CategoryConfig
	calendar   points.Calendar
	log        *log.Helper

	Now func() time.Time
}

// Result is a ranked board.
type Result struct {
	Metric         Metric
	HigherIsBetter bool
	Rows           []RankedRow
}

// NewBoard creates a board reader. cache may be nil.
func NewBoard(source Source, cache Cache, categories points.CategoryConfig, calendar points.Calendar, logger log.Logger) *Board {
	return &Board{
		source:     source,
		cache:      cache,
		categories: categories,
		calendar:   calendar,
		log:        points.LogHelper(logger, "leaderboard"),
		Now:        time.Now,
	}
}

// Read ranks one metric. limit <= 0 returns every row.
func (b *Board) Read(ctx context.Context, m Metric, limit int) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{}, err
	}

	now := b.Now()
	period := ""
	switch m.Kind {
	case MetricSkillDaily:
		if m.Date == "" {
			m.Date = b.calendar.DateKey(now)
		}
		period = m.Date
	case MetricWeeklyPoints:
		period = b.calendar.WeekStart(now).Format(points.DateKeyLayout)
	}

	higher := true
	var stat Stat
	if m.Kind == MetricPerformanceStat {
		var err error
		stat, err = b.source.Stat(ctx, m.StatID)
		if err != nil {
			return Result{}, points.Unavailable("load stat", err)
		}
		higher = stat.HigherIsBetter
	}

	key := m.Key(period, limit)
	cached, gen, hit, cacheable := b.cached(ctx, key)
	if hit {
		return Result{Metric: m, HigherIsBetter: higher, Rows: cached}, nil
	}

	rows, err := b.rows(ctx, m, stat, now)
	if err != nil {
		return Result{}, points.Unavailable("load "+string(m.Kind), err)
	}
	ranked := Rank(rows, higher, limit)

	if cacheable {
		if err := b.cache.Set(ctx, key, gen, ranked); err != nil {
			b.log.WithContext(ctx).Warnf("cache set %s failed: %v", key, err)
		}
	}
	return Result{Metric: m, HigherIsBetter: higher, Rows: ranked}, nil
}

// Invalidate drops cached boards. Registered as a Ledger recompute hook.
func (b *Board) Invalidate(ctx context.Context, _ points.Totals) {
	if b.cache == nil {
		return
	}
	if err := b.cache.Invalidate(ctx); err != nil {
		b.log.WithContext(ctx).Warnf("cache invalidate failed: %v", err)
	}
}

// cached looks key up. cacheable is false when there is no cache or the
// lookup failed, in which case the freshly ranked rows are not written back.
func (b *Board) cached(ctx context.Context, key string) (rows []RankedRow, gen int64, hit, cacheable bool) {
	if b.cache == nil {
		return nil, 0, false, false
	}
	rows, gen, hit, err := b.cache.Get(ctx, key)
	if err != nil {
		b.log.WithContext(ctx).Warnf("cache get %s failed: %v", key, err)
		return nil, 0, false, false
	}
	return rows, gen, hit, true
}

func (b *Board) rows(ctx context.Context, m Metric, stat Stat, now time.Time) ([]Row, error) {
	switch m.Kind {
	case MetricTotalPoints:
		return b.source.BalanceRows(ctx)
	case MetricLifetimePoints:
		return b.source.LifetimeRows(ctx)
	case MetricWeeklyPoints:
		return b.source.PointsSince(ctx, b.calendar.WeekStart(now), b.categories.NonWeekly())
	case MetricSkillDaily:
		return b.source.SkillSuccesses(ctx, m.SkillID, m.Date)
	default:
		values, err := b.source.StatValues(ctx, m.StatID)
		if err != nil {
			return nil, err
		}
		kept := values[:0]
		for _, r := range values {
			if stat.Qualifies(r.Value) {
				kept = append(kept, r)
			}
		}
		return kept, nil
	}
}
