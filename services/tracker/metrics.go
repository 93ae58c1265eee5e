package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_cycles_total",
		Help: "Tracking cycles by outcome.",
	}, []string{"outcome"})
	measureFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_measure_failures_total",
		Help: "Failed measurements by error kind.",
	}, []string{"kind"})
	earningsAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_earnings_added_total",
		Help: "Money credited to clips.",
	})
	viewsGained = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_views_gained_total",
		Help: "View growth observed across recorded samples.",
	})
	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_run_duration_seconds",
		Help:    "Wall time of tracking runs by stop reason.",
		Buckets: []float64{1, 10, 60, 300, 900, 1800, 3000, 3600},
	}, []string{"stop_reason"})
)

func init() {
	prometheus.MustRegister(cyclesTotal, measureFailures, earningsAdded, viewsGained, runDuration)
}

func observeStep(res StepResult) {
	cyclesTotal.WithLabelValues(string(res.Kind)).Inc()
	if res.MeasureKind != "" {
		measureFailures.WithLabelValues(string(res.MeasureKind)).Inc()
	}
	if res.ViewsGained > 0 {
		viewsGained.Add(float64(res.ViewsGained))
	}
	if res.Earnings.IsPositive() {
		earningsAdded.Add(res.Earnings.InexactFloat64())
	}
}

func observeRun(r *Report) {
	runDuration.WithLabelValues(string(r.StopReason)).Observe(r.Duration.Seconds())
}
