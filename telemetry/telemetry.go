// Package telemetry provides the Counter/Gauge/Histogram interfaces and
// their Prometheus-backed implementations with a noop fallback so callers
// never need to special-case a disabled registry.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var registry *prometheus.Registry

type Histogram interface {
	Observe(float64)
}

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

// NoopStat satisfies Counter, Gauge, and Histogram with no-ops, used when
// Prometheus is disabled so callers never need a nil check.
type NoopStat struct{}

func (NoopStat) Observe(float64) {}
func (NoopStat) Set(float64)     {}
func (NoopStat) Dec()            {}
func (NoopStat) Sub(float64)     {}
func (NoopStat) Inc()            {}
func (NoopStat) Add(float64)     {}

func NewCounter(name, help string) Counter {
	if registry == nil {
		return NoopStat{}
	}
	ret := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lockvault",
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(ret)
	return ret
}

func NewGauge(name, help string) Gauge {
	if registry == nil {
		return NoopStat{}
	}
	ret := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lockvault",
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(ret)
	return ret
}

func NewHistogram(name, help string, buckets []float64) Histogram {
	if registry == nil {
		return NoopStat{}
	}
	ret := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lockvault",
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
	registry.MustRegister(ret)
	return ret
}

// Enabled initializes the Prometheus registry. Callers must invoke it
// before constructing any Metrics value if they want real metrics instead
// of NoopStat fallbacks.
func Enabled() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	log.Info().Msg("prometheus metrics enabled")
}

// Handler returns the HTTP handler serving /metrics, or nil if Enabled was
// never called.
func Handler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
