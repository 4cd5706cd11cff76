package catalog

import (
	"github.com/grafana/dskit/instrument"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments catalog clients. One instance is shared by every
// client the registry hands out.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
}

func NewMetrics(r prometheus.Registerer) *Metrics {
	return &Metrics{
		requestDuration: promauto.With(r).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evtkit",
			Subsystem: "catalog",
			Name:      "request_duration_seconds",
			Help:      "Time (in seconds) spent querying the metadata catalog.",
			Buckets:   instrument.DefBuckets,
		}, []string{"instance", "operation", "status_code"}),
	}
}
