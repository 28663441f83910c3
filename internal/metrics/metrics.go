package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics exposes application-level prometheus instruments.
type Metrics struct {
	Reruns             *prometheus.CounterVec
	GenerationRequests *prometheus.CounterVec
	UsageCostUSD       prometheus.Counter
	AlertWarnings      *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Reruns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "geosignal_reruns_total",
			Help: "Anomaly-set reruns by outcome.",
		}, []string{"status"}),
		GenerationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "geosignal_generation_requests_total",
			Help: "Calls to the external generation service by outcome.",
		}, []string{"status"}),
		UsageCostUSD: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geosignal_usage_cost_usd_total",
			Help: "Accumulated model-call cost in USD.",
		}),
		AlertWarnings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "geosignal_usage_alert_warnings_total",
			Help: "Usage alert threshold breaches by kind.",
		}, []string{"kind"}),
	}
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
