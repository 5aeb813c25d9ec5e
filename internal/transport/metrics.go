package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "partymaker_client_requests_total",
			Help: "Requests sent to the PartyMaker proxy, by method and status code.",
		}, []string{"method", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "partymaker_client_request_duration_seconds",
			Help:    "Latency of requests sent to the PartyMaker proxy.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}
