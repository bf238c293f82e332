package claims

import (
	"context"

	"github.com/warp/points-engine/points"
)

// RedeemRequest spends points from a student's balance.
type RedeemRequest struct {
	StudentID      points.StudentID
	Points         int64 // positive amount to spend
	Note           string
	IdempotencyKey string
}

type Redeemer struct {
	ledger *points.Ledger
}

func NewRedeemer(ledger *points.Ledger) *Redeemer {
	return &Redeemer{ledger: ledger}
}

// Redeem books a negative redeem entry if the balance covers it. Redeems never
// touch lifetime points.
func (r *Redeemer) Redeem(ctx context.Context, req RedeemRequest) (points.Totals, error) {
	if req.Points <= 0 {
		return points.Totals{}, points.Invalid("points", "must be positive")
	}
	return r.ledger.Spend(ctx, points.Entry{
		StudentID:      req.StudentID,
		Points:         -req.Points,
		Category:       points.CategoryRedeem,
		Note:           req.Note,
		SourceType:     points.SourceRedeem,
		IdempotencyKey: req.IdempotencyKey,
	})
}
