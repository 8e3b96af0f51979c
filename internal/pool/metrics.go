package pool

import "github.com/prometheus/client_golang/prometheus"

// Task outcome label values.
const (
	outcomeCompleted = "completed"
	outcomeFaulted   = "faulted"
	outcomeRejected  = "rejected"
)

var (
	workersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crucible_pool_workers",
			Help: "Number of live and spawning workers.",
		},
		[]string{"strategy"},
	)

	busyGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crucible_pool_busy_workers",
			Help: "Number of workers running a task.",
		},
		[]string{"strategy"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crucible_pool_queue_depth",
			Help: "Number of tasks waiting for a worker.",
		},
		[]string{"strategy"},
	)

	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_pool_tasks_total",
			Help: "Total number of tasks by outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	spawnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crucible_pool_spawn_seconds",
			Help:    "Time from spawn start until the worker signalled readiness.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"strategy"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crucible_pool_task_seconds",
			Help:    "Time from dispatch until a task completed.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	spawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_pool_spawn_failures_total",
			Help: "Total number of worker spawns that failed.",
		},
		[]string{"strategy"},
	)

	protocolViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_pool_protocol_violations_total",
			Help: "Total number of worker events dropped as protocol violations.",
		},
		[]string{"strategy"},
	)
)

func init() {
	prometheus.MustRegister(workersGauge)
	prometheus.MustRegister(busyGauge)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(tasksTotal)
	prometheus.MustRegister(spawnDuration)
	prometheus.MustRegister(taskDuration)
	prometheus.MustRegister(spawnFailures)
	prometheus.MustRegister(protocolViolations)
}

// initMetrics creates the series for strategy so they report zero from startup.
func initMetrics(strategy string) {
	workersGauge.WithLabelValues(strategy)
	busyGauge.WithLabelValues(strategy)
	queueDepth.WithLabelValues(strategy)
	for _, o := range []string{outcomeCompleted, outcomeFaulted, outcomeRejected} {
		tasksTotal.WithLabelValues(strategy, o)
	}
	spawnFailures.WithLabelValues(strategy)
	protocolViolations.WithLabelValues(strategy)
}
