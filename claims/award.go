package claims

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/pkg/errors"

	"github.com/warp/points-engine/metrics"
	"github.com/warp/points-engine/points"
)

// Amounts is the payout per claim kind.
type Amounts map[Kind]int64

func DefaultAmounts() Amounts {
	return Amounts{KindAvatar: 5, KindLeaderboard: 5, KindRole: 5, KindEvent: 10}
}

// Outcome of a claim-and-pay.
type Outcome struct {
	Result
	Points int64
	Totals points.Totals
}

// Awarder runs the guard and pays granted claims through the ledger.
type Awarder struct {
	guard   *Guard
	ledger  *points.Ledger
	amounts Amounts
	log     *log.Helper
}

func NewAwarder(guard *Guard, ledger *points.Ledger, amounts Amounts, logger log.Logger) *Awarder {
	return &Awarder{
		guard:   guard,
		ledger:  ledger,
		amounts: amounts,
		log:     points.LogHelper(logger, "claims/award"),
	}
}

// Claim grants today's bonus for category at most once. A rejected claim
// returns Granted=false and a nil error.
func (a *Awarder) Claim(ctx context.Context, studentID points.StudentID, category string) (Outcome, error) {
	kind, err := ParseCategory(category)
	if err != nil {
		return Outcome{}, err
	}
	amount := a.amounts[kind]
	if amount <= 0 {
		return Outcome{}, points.Invalid("category", "no payout configured for "+string(kind))
	}

	res, err := a.guard.ClaimToday(ctx, studentID, category)
	if err != nil || !res.Granted {
		return Outcome{Result: res}, err
	}

	totals, err := a.ledger.Append(ctx, []points.Entry{{
		StudentID:      studentID,
		Points:         amount,
		Category:       kind.LedgerCategory(),
		Note:           "daily " + category + " bonus",
		SourceType:     points.SourceDailyClaim,
		SourceID:       res.Claim.ID,
		IdempotencyKey: "claim:" + res.Claim.ID,
	}})

	out := Outcome{Result: res, Points: amount}
	switch {
	case err == nil:
		out.Totals = totals[0]
		return out, nil
	case errors.Is(err, points.ErrStaleTotals):
		// Paid. Only the cached totals lag.
		return out, err
	default:
		metrics.InconsistentState.WithLabelValues("claim_unpaid").Inc()
		a.log.WithContext(ctx).Errorw(
			"msg", "claim committed but ledger append failed",
			"alert", "inconsistent_state",
			"student_id", studentID,
			"claim_id", res.Claim.ID,
			"category", category,
			"err", err,
		)
		return out, &points.InconsistentStateError{
			Kind:      "claim_unpaid",
			StudentID: studentID,
			SourceID:  res.Claim.ID,
			Err:       err,
		}
	}
}
