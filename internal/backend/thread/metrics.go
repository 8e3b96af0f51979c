package thread

import "github.com/prometheus/client_golang/prometheus"

// Frame direction label values.
const (
	dirIn  = "in"
	dirOut = "out"
)

var (
	processesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crucible_thread_processes_active",
			Help: "Number of currently running child worker processes.",
		},
	)

	inprocActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crucible_thread_inproc_workers_active",
			Help: "Number of currently running in-process worker goroutines.",
		},
	)

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_thread_frames_total",
			Help: "Total number of protocol frames exchanged with child worker processes.",
		},
		[]string{"direction", "type"},
	)
)

func init() {
	prometheus.MustRegister(processesActive)
	prometheus.MustRegister(inprocActive)
	prometheus.MustRegister(framesTotal)

	// Pre-initialize label combinations so they appear in /metrics
	// with value 0 from startup, rather than only after first observation.
	framesTotal.WithLabelValues(dirOut, MsgTypeTask)
	for _, typ := range []string{MsgTypeReady, MsgTypeResult, MsgTypeFault, MsgTypeLog} {
		framesTotal.WithLabelValues(dirIn, typ)
	}
}
