package stage

import (
	"github.com/grafana/dskit/instrument"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	copiesStaged  prometheus.Counter
	copiesFailed  prometheus.Counter
	batchDuration prometheus.Histogram
}

func newMetrics(r prometheus.Registerer) *metrics {
	return &metrics{
		copiesStaged: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: "evtkit",
			Subsystem: "stager",
			Name:      "copies_staged_total",
			Help:      "Number of files copied to local storage.",
		}),
		copiesFailed: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: "evtkit",
			Subsystem: "stager",
			Name:      "copies_failed_total",
			Help:      "Number of failed copy invocations.",
		}),
		batchDuration: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
			Namespace: "evtkit",
			Subsystem: "stager",
			Name:      "batch_duration_seconds",
			Help:      "Time (in seconds) spent staging a batch of files.",
			Buckets:   instrument.DefBuckets,
		}),
	}
}
