// Package metrics defines the Prometheus collectors for the payout engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WithdrawalTransitionsTotal counts lifecycle transitions by target status.
	WithdrawalTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_withdrawal_transitions_total",
		Help: "Number of withdrawal status transitions",
	}, []string{"to_status", "actor_type"})

	// ProviderCallsTotal counts adapter calls by provider and outcome.
	ProviderCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_provider_calls_total",
		Help: "Number of payment provider calls",
	}, []string{"provider", "outcome"})

	// ProviderCallDuration tracks adapter call latency.
	ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_provider_call_duration_seconds",
		Help:    "Latency of payment provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// WebhookEventsTotal counts webhook deliveries by provider and result.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_webhook_events_total",
		Help: "Number of received provider webhook events",
	}, []string{"provider", "result"})

	// SchedulerRunsTotal counts automatic payment scheduler runs.
	SchedulerRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_scheduler_runs_total",
		Help: "Number of automatic payment scheduler runs",
	})

	// SchedulerItemsProcessed counts per-item scheduler outcomes.
	SchedulerItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_scheduler_items_total",
		Help: "Number of withdrawals handled by the scheduler",
	}, []string{"outcome"})

	// DatabaseConnectionsGauge tracks connection pool state.
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "payout_db_connections",
		Help: "Database connection pool state",
	}, []string{"state"})
)
