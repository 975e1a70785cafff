package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Action metrics
var (
	// ActionsTotal tracks handled client actions by action name and status
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "round_actions_total",
			Help: "Total client actions by action and status",
		},
		[]string{"action", "status"},
	)

	// ActionDuration tracks action handling latency in seconds
	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "round_action_duration_seconds",
			Help:    "Action handling duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"action"},
	)
)

// Broadcast metrics
var (
	// BroadcastSendsTotal tracks individual push deliveries by outcome
	BroadcastSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_sends_total",
			Help: "Individual push gateway deliveries by outcome (ok/gone/error)",
		},
		[]string{"outcome"},
	)

	// StaleConnectionsCleaned tracks connections lazily removed after a gone signal
	StaleConnectionsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_connections_cleaned_total",
			Help: "Connections removed after the gateway reported them gone",
		},
	)

	// SlowClientsEvicted tracks websocket clients evicted due to a full send buffer
	SlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slow_clients_evicted_total",
			Help: "WebSocket clients evicted because their send buffer was full",
		},
	)

	// ConnectedClients tracks currently registered websocket connections
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connected_clients",
			Help: "Currently registered websocket connections",
		},
	)
)

// Cleanup and reconciliation metrics
var (
	// OrphanRoundsCleaned tracks rounds removed by the zero-member cascade
	OrphanRoundsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orphan_rounds_cleaned_total",
			Help: "Rounds removed after their last member left",
		},
	)

	// OrphanQuestionsCleaned tracks question rows removed by the cascade
	OrphanQuestionsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orphan_questions_cleaned_total",
			Help: "Question rows removed by the orphan cascade",
		},
	)

	// OrphanSweepsTotal tracks background sweep runs
	OrphanSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orphan_sweeps_total",
			Help: "Background orphan sweep runs",
		},
	)

	// CounterDriftDetected tracks reconciler counter mismatches by field
	CounterDriftDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counter_drift_detected_total",
			Help: "Counter drift detected during reconciliation by field",
		},
		[]string{"field"},
	)

	// CounterDriftFixed tracks reconciler repairs by field
	CounterDriftFixed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counter_drift_fixed_total",
			Help: "Counter drift repaired during reconciliation by field",
		},
		[]string{"field"},
	)
)

// Redis metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Connection limit metrics
var (
	// ConnectionsRejectedTotal tracks websocket connections rejected by limiters
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connections_rejected_total",
			Help: "WebSocket connections rejected by limit reason",
		},
		[]string{"reason"},
	)
)
