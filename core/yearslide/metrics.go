package yearslide

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type metrics struct {
	previewTotal   *prometheus.CounterVec
	executeTotal   *prometheus.CounterVec
	executeLatency *prometheus.HistogramVec
	slidedChildren prometheus.Counter
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		previewTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kodomo",
			Subsystem: "year_slide",
			Name:      "preview_total",
			Help:      "Total number of year slide previews.",
		}, []string{"result"}),
		executeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kodomo",
			Subsystem: "year_slide",
			Name:      "execute_total",
			Help:      "Total number of year slide executions by outcome.",
		}, []string{"result"}),
		executeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kodomo",
			Subsystem: "year_slide",
			Name:      "execute_duration_seconds",
			Help:      "Duration of year slide executions.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		slidedChildren: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "kodomo",
			Subsystem: "year_slide",
			Name:      "slided_children_total",
			Help:      "Total number of children promoted by year slides.",
		}),
	}
})

func recordPreview(err error) {
	result := outcomeSuccess
	if err != nil {
		result = outcomeRejected
	}
	metricsSingleton().previewTotal.WithLabelValues(result).Inc()
}

func recordExecution(outcome string, elapsed time.Duration, slidedChildren int) {
	m := metricsSingleton()
	m.executeTotal.WithLabelValues(outcome).Inc()
	m.executeLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if slidedChildren > 0 {
		m.slidedChildren.Add(float64(slidedChildren))
	}
}
