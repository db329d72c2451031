// Package metrics holds the Prometheus collectors for the points engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AwardsTotal counts award attempts by limit type and outcome (awarded, limited, failed).
var AwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Name:      "awards_total",
	Help:      "Award attempts by limit type and outcome.",
}, []string{"limit_type", "outcome"})

// PointsAwarded sums points credited by the award engine.
var PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Name:      "awarded_points_total",
	Help:      "Points credited by the award engine.",
}, []string{"limit_type"})

// RedemptionsTotal counts redemption attempts by reward category and outcome.
var RedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Name:      "redemptions_total",
	Help:      "Redemption attempts by category and outcome.",
}, []string{"category", "outcome"})

// RedemptionDecisions counts admin decisions by resulting status.
var RedemptionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Name:      "redemption_decisions_total",
	Help:      "Admin redemption decisions by status.",
}, []string{"status"})

// RefundedPoints sums points returned by rejected redemptions.
var RefundedPoints = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "points",
	Name:      "refunded_points_total",
	Help:      "Points refunded by rejected redemptions.",
})

// PersistenceRetries counts transparent retries of failed transactions.
var PersistenceRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Name:      "persistence_retries_total",
	Help:      "Transactions retried after a retryable database error.",
}, []string{"operation"})

// RankingRuns counts ranking job executions by outcome (completed, skipped, failed).
var RankingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Name:      "ranking_runs_total",
	Help:      "Ranking job runs by outcome.",
}, []string{"outcome"})

// RankingDuration observes how long a ranking run takes.
var RankingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "points",
	Name:      "ranking_duration_seconds",
	Help:      "Ranking job run duration.",
	Buckets:   prometheus.DefBuckets,
})
