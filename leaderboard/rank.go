/*
Package leaderboard ranks students on independent metrics.

PURPOSE:
  Every board (total points, weekly points, lifetime points, per-skill daily
  successes, admin-defined performance stats) is ranked by the same
  algorithm: competition ranking with inclusive tie overflow.

RANKING:
  1. Sort by value (descending, or ascending when lower is better).
     Exact ties break by name ascending, then student id, so the order is
     deterministic.
  2. Walk the sorted rows. rank = position+1 unless the value equals the
     previous row's value, in which case the previous rank is kept.
  3. Stop at the first row whose rank exceeds limit.

  Rows sharing the rank at the cutoff are all included, so the result may be
  longer than limit:

    [(A,10),(B,9),(C,9),(D,9)], limit 2  ->  1 A, 2 B, 2 C, 2 D

SEE ALSO:
  - metric.go: Metric kinds and performance stat definitions
  - board.go: Board service reading a Source, with optional cache
*/
package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/points"
)

// Row is one student's raw value on a metric.
type Row struct {
	StudentID points.StudentID `json:"student_id"`
	Name      string           `json:"name"`
	Value     decimal.Decimal  `json:"value"`
}

type RankedRow struct {
	Rank int `json:"rank"`
	Row
}

// Rank orders rows and assigns competition ranks. A limit <= 0 returns every
// row. The input slice is not modified.
func Rank(rows []Row, higherIsBetter bool, limit int) []RankedRow {
	sorted := append([]Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if c := a.Value.Cmp(b.Value); c != 0 {
			if higherIsBetter {
				return c > 0
			}
			return c < 0
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.StudentID < b.StudentID
	})

	out := make([]RankedRow, 0, len(sorted))
	for i, r := range sorted {
		rank := i + 1
		if i > 0 && r.Value.Equal(sorted[i-1].Value) {
			rank = out[i-1].Rank
		}
		if limit > 0 && rank > limit {
			break
		}
		out = append(out, RankedRow{Rank: rank, Row: r})
	}
	return out
}
