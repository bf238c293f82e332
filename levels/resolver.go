package levels

import (
	"context"
	"sync"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/warp/points-engine/points"
)

// Store persists an admin-defined level table.
type Store interface {
	// Thresholds returns the persisted table, or an empty table if none.
	Thresholds(ctx context.Context) (Table, error)
	SaveThresholds(ctx context.Context, table Table) error
}

// Resolver serves the persisted table when one exists and the generated curve
// otherwise. It implements points.Leveler.
type Resolver struct {
	store Store
	curve Curve
	log   *log.Helper

	once      sync.Once
	generated Table
}

func NewResolver(store Store, curve Curve, logger log.Logger) *Resolver {
	return &Resolver{
		store: store,
		curve: curve,
		log:   points.LogHelper(logger, "levels"),
	}
}

// Table returns the effective table and whether it came from the store.
func (r *Resolver) Table(ctx context.Context) (Table, bool, error) {
	if r.store != nil {
		persisted, err := r.store.Thresholds(ctx)
		if err != nil {
			return nil, false, points.Unavailable("load thresholds", err)
		}
		if len(persisted) > 0 {
			return persisted.Sorted(), true, nil
		}
	}
	r.once.Do(func() { r.generated = Generate(r.curve) })
	return r.generated, false, nil
}

func (r *Resolver) LevelFor(ctx context.Context, lifetime int64) (int, error) {
	table, _, err := r.Table(ctx)
	if err != nil {
		return 0, err
	}
	return LevelFor(lifetime, table), nil
}

func (r *Resolver) Progress(ctx context.Context, lifetime int64) (Progress, error) {
	table, _, err := r.Table(ctx)
	if err != nil {
		return Progress{}, err
	}
	return ProgressFor(lifetime, table), nil
}

// Save validates and persists a replacement table. Cached student levels are
// not rewritten here; callers recompute affected students.
func (r *Resolver) Save(ctx context.Context, table Table) error {
	table = table.Sorted()
	if err := table.Validate(); err != nil {
		return err
	}
	if r.store == nil {
		return points.Invalid("thresholds", "no threshold store configured")
	}
	if err := r.store.SaveThresholds(ctx, table); err != nil {
		return points.Unavailable("save thresholds", err)
	}
	r.log.WithContext(ctx).Infof("saved level table with %d levels", len(table))
	return nil
}
