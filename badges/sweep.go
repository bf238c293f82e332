package badges

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/warp/points-engine/metrics"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	Rules(ctx context.Context) ([]Rule, error)
	// Rule returns points.ErrNotFound for unknown ids.
	Rule(ctx context.Context, id string) (Rule, error)
	SaveRule(ctx context.Context, r Rule) error

	// Aggregates loads inputs for the given students, or every student when
	// ids is empty.
	Aggregates(ctx context.Context, ids []points.StudentID) ([]Aggregates, error)

	// Holders returns the students who already hold the badge.
	Holders(ctx context.Context, badgeID string) (map[points.StudentID]bool, error)

	// InsertAwards inserts awards, skipping any (student, badge) pair that
	// already exists, and returns only the rows it inserted.
	InsertAwards(ctx context.Context, awards []Award) ([]Award, error)

	Awards(ctx context.Context, studentID points.StudentID) ([]Award, error)
}

// =============================================================================
// REPORT
// =============================================================================

// Sweep stages, used to label rule failures.
const (
	StageEvaluate = "evaluate"
	StageHolders  = "holders"
	StagePersist  = "persist"
	StagePay      = "pay"
)

// RuleResult is the outcome of one rule in a sweep.
type RuleResult struct {
	RuleID   string
	Name     string
	Eligible int
	Awarded  int
	Stage    string // set when Err is set
	Err      error
}

type Report struct {
	Rules []RuleResult
}

func (r Report) Awarded() int {
	n := 0
	for _, rr := range r.Rules {
		n += rr.Awarded
	}
	return n
}

func (r Report) Failed() []RuleResult {
	var out []RuleResult
	for _, rr := range r.Rules {
		if rr.Err != nil {
			out = append(out, rr)
		}
	}
	return out
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store    Store
	ledger   *points.Ledger
	notifier points.Notifier
	log      *log.Helper

	Now func() time.Time
}

// NewEngine creates a sweep engine. notifier may be nil.
func NewEngine(store Store, ledger *points.Ledger, notifier points.Notifier, logger log.Logger) *Engine {
	return &Engine{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		log:      points.LogHelper(logger, "badges"),
		Now:      time.Now,
	}
}

// Sweep evaluates one rule (ruleID set) or every rule against one student
// (studentID set) or every student. A failing rule is recorded in the report
// and the sweep moves on to the next.
func (e *Engine) Sweep(ctx context.Context, ruleID string, studentID points.StudentID) (Report, error) {
	var rules []Rule
	if ruleID != "" {
		r, err := e.store.Rule(ctx, ruleID)
		if err != nil {
			return Report{}, points.Unavailable("load rule", err)
		}
		rules = []Rule{r}
	} else {
		var err error
		rules, err = e.store.Rules(ctx)
		if err != nil {
			return Report{}, points.Unavailable("load rules", err)
		}
	}

	var ids []points.StudentID
	if studentID != "" {
		ids = []points.StudentID{studentID}
	}
	aggs, err := e.store.Aggregates(ctx, ids)
	if err != nil {
		return Report{}, points.Unavailable("load aggregates", err)
	}

	var report Report
	for _, rule := range rules {
		res := e.sweepRule(ctx, rule, aggs)
		if res.Err != nil {
			metrics.BadgeRuleFailures.WithLabelValues(res.Stage).Inc()
			e.log.WithContext(ctx).Errorf("badge rule %s failed at %s: %v", rule.ID, res.Stage, res.Err)
		}
		report.Rules = append(report.Rules, res)
	}
	e.log.WithContext(ctx).Infof("badge sweep: %d rules, %d awards, %d failed",
		len(report.Rules), report.Awarded(), len(report.Failed()))
	return report, nil
}

// SweepRule runs one rule against the given candidates and returns how many
// badges it awarded.
func (e *Engine) SweepRule(ctx context.Context, rule Rule, candidates []points.StudentID) (int, error) {
	aggs, err := e.store.Aggregates(ctx, candidates)
	if err != nil {
		return 0, points.Unavailable("load aggregates", err)
	}
	res := e.sweepRule(ctx, rule, aggs)
	return res.Awarded, res.Err
}

func (e *Engine) sweepRule(ctx context.Context, rule Rule, aggs []Aggregates) RuleResult {
	res := RuleResult{RuleID: rule.ID, Name: rule.Name}
	fail := func(stage string, err error) RuleResult {
		res.Stage, res.Err = stage, err
		return res
	}

	if rule.LoadErr != nil {
		return fail(StageEvaluate, rule.LoadErr)
	}
	eligible, err := evaluate(rule, aggs)
	if err != nil {
		return fail(StageEvaluate, err)
	}
	res.Eligible = len(eligible)
	if len(eligible) == 0 {
		return res
	}

	holders, err := e.store.Holders(ctx, rule.ID)
	if err != nil {
		return fail(StageHolders, points.Unavailable("load holders", err))
	}

	now := e.Now().UTC()
	var pending []Award
	for _, id := range eligible {
		if holders[id] {
			continue
		}
		pending = append(pending, Award{
			StudentID:     id,
			BadgeID:       rule.ID,
			AwardedAt:     now,
			PointsAwarded: rule.PointsAward,
			Note:          "Earned " + rule.Name,
		})
	}
	if len(pending) == 0 {
		return res
	}

	inserted, err := e.store.InsertAwards(ctx, pending)
	if err != nil {
		return fail(StagePersist, points.Unavailable("insert awards", err))
	}
	res.Awarded = len(inserted)
	metrics.BadgesAwarded.WithLabelValues(rule.ID).Add(float64(len(inserted)))

	if err := e.pay(ctx, rule, inserted); err != nil {
		return fail(StagePay, err)
	}
	e.notify(ctx, rule, inserted)
	return res
}

// evaluate returns eligible students in id order.
func evaluate(rule Rule, aggs []Aggregates) (ids []points.StudentID, err error) {
	if rule.Criteria == nil {
		return nil, points.Invalid("criteria", "required")
	}
	if err := rule.Criteria.Validate(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			ids, err = nil, errors.Errorf("evaluate %s: %v", rule.ID, r)
		}
	}()

	for _, a := range aggs {
		if rule.Criteria.Eligible(a) {
			ids = append(ids, a.StudentID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (e *Engine) pay(ctx context.Context, rule Rule, awards []Award) error {
	if rule.PointsAward <= 0 || len(awards) == 0 {
		return nil
	}

	entries := make([]points.Entry, len(awards))
	for i, a := range awards {
		entries[i] = points.Entry{
			StudentID:      a.StudentID,
			Points:         rule.PointsAward,
			Category:       points.CategoryBadge,
			Note:           a.Note,
			SourceType:     points.SourceBadge,
			SourceID:       rule.ID,
			IdempotencyKey: fmt.Sprintf("badge:%s:%s", rule.ID, a.StudentID),
		}
	}

	_, err := e.ledger.Append(ctx, entries)
	if err == nil {
		return nil
	}
	if errors.Is(err, points.ErrStaleTotals) {
		e.log.WithContext(ctx).Warnf("badge %s paid, totals stale: %v", rule.ID, err)
		return nil
	}

	metrics.InconsistentState.WithLabelValues("badge_unpaid").Inc()
	e.log.WithContext(ctx).Errorw(
		"msg", "badge awards committed but ledger append failed",
		"alert", "inconsistent_state",
		"badge_id", rule.ID,
		"awards", len(awards),
		"err", err,
	)
	return &points.InconsistentStateError{
		Kind:      "badge_unpaid",
		StudentID: awards[0].StudentID,
		SourceID:  rule.ID,
		Err:       err,
	}
}

func (e *Engine) notify(ctx context.Context, rule Rule, awards []Award) {
	if e.notifier == nil {
		return
	}
	for _, a := range awards {
		msg := fmt.Sprintf("You earned the %s badge!", rule.Name)
		if rule.PointsAward > 0 {
			msg = fmt.Sprintf("You earned the %s badge and %d points!", rule.Name, rule.PointsAward)
		}
		err := e.notifier.Notify(ctx, points.Notification{
			ID:        uuid.NewString(),
			StudentID: a.StudentID,
			Message:   msg,
			Kind:      "badge",
			CreatedAt: a.AwardedAt,
		})
		if err != nil {
			e.log.WithContext(ctx).Warnf("notify %s of badge %s: %v", a.StudentID, rule.ID, err)
		}
	}
}
