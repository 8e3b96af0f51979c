package isolate

import "github.com/prometheus/client_golang/prometheus"

var (
	runtimesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crucible_isolate_runtimes_active",
			Help: "Number of live JavaScript runtimes.",
		},
	)

	evalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crucible_isolate_eval_seconds",
			Help:    "Time spent evaluating one task in a JavaScript runtime.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

func init() {
	prometheus.MustRegister(runtimesActive)
	prometheus.MustRegister(evalDuration)
}
