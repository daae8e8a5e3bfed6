package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

type metrics struct {
	registry    *prometheus.Registry
	predictions *prometheus.CounterVec
	latency     prometheus.Histogram
	inflight    prometheus.Gauge
}

func newMetrics(registry *prometheus.Registry) *metrics {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	return &metrics{
		registry: registry,
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emojicoach",
			Name:      "predictions_total",
			Help:      "Predictions by outcome.",
		}, []string{"outcome"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "emojicoach",
			Name:      "inference_duration_seconds",
			Help:      "Time spent classifying a text.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "emojicoach",
			Name:      "inferences_in_flight",
			Help:      "Inferences currently running.",
		}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
