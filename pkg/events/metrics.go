package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the bus. All metrics live under one namespace so
// several buses in tests can register against separate registries.
type Metrics struct {
	Published    *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	ChannelDepth prometheus.Gauge
}

// NewMetrics registers bus metrics with the given registerer. A nil
// registerer uses the default one.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "ethpeek"
	}
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published to the bus by type",
		}, []string{"event_type"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because the consumer channel was full",
		}, []string{"event_type"}),
		ChannelDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "channel_depth",
			Help:      "Events currently buffered on the consumer channel",
		}),
	}
}
