/*
Package metrics holds the Prometheus instruments for the points engine.

PURPOSE:
  One place for every counter and histogram the engine records, so the
  names stay consistent and the /metrics endpoint exposes a single,
  discoverable set.

INSTRUMENTS:
  points_ledger_entries_total{category}      Entries appended to the ledger
  points_recompute_seconds                   Time spent re-deriving totals
  points_recompute_failures_total            Recompute attempts that failed
  points_claims_total{category,result}       Daily claim outcomes
  points_badges_awarded_total{badge}         Badge awards inserted
  points_badge_rule_failures_total{stage}    Per-rule sweep failures
  points_inconsistent_state_total{kind}      Committed-but-unpaid conditions

ALERTING:
  points_inconsistent_state_total is the one operators page on. Any
  increase means a claim, badge, or sprint completion was committed and the
  paired ledger append failed.

SEE ALSO:
  - points/ledger.go: Ledger and recompute instrumentation
  - claims/award.go: Claim outcome instrumentation
  - badges/sweep.go: Badge instrumentation
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "points_ledger_entries_total",
	Help: "Ledger entries appended, by category.",
}, []string{"category"})

var RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "points_recompute_seconds",
	Help:    "Time spent re-deriving a student's totals from the ledger.",
	Buckets: prometheus.DefBuckets,
})

var RecomputeFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "points_recompute_failures_total",
	Help: "Recompute attempts that failed.",
})

var Claims = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "points_claims_total",
	Help: "Daily claim outcomes, by claim category and result.",
}, []string{"category", "result"})

var BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "points_badges_awarded_total",
	Help: "Badge awards inserted, by badge.",
}, []string{"badge"})

var BadgeRuleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "points_badge_rule_failures_total",
	Help: "Badge rules that failed during a sweep, by stage.",
}, []string{"stage"})

var InconsistentState = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "points_inconsistent_state_total",
	Help: "Claims, badges or completions committed without their ledger entry.",
}, []string{"kind"})

// Claim results.
const (
	ResultGranted  = "granted"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)
