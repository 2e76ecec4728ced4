// Package metrics is the Prometheus-backed implementation of
// telemetry.Meter. It is the only package in this module that imports
// prometheus/client_golang directly; everything else depends on the
// telemetry.Meter port so the backend stays swappable.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nspilman/sms-venue-pipeline/pkg/telemetry"
)

// PrometheusMeter implements telemetry.Meter against a dedicated
// prometheus.Registry, lazily registering a CounterVec/GaugeVec/
// HistogramVec the first time each metric name is observed. Label sets must
// be consistent across calls to the same name, matching Prometheus's own
// requirement that a vector's label names are fixed at registration time.
type PrometheusMeter struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMeter returns a meter backed by a fresh registry; the
// registry itself is exposed only through Handler.
func NewPrometheusMeter() *PrometheusMeter {
	return &PrometheusMeter{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Handler returns the http.Handler exposing this meter's registry in the
// Prometheus exposition format, for mounting at /admin/metrics.
func (m *PrometheusMeter) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func labelNames(l telemetry.Labels) []string {
	names := make([]string, 0, len(l))
	for k := range l {
		names = append(names, k)
	}
	return names
}

// sanitizeName maps a telemetry metric name (colons allowed per
// ValidateMetricName) to a Prometheus-safe name (colons are reserved for
// recording rules by convention; substitute with underscore).
func sanitizeName(name string) string {
	return strings.ReplaceAll(name, ":", "_")
}

func (m *PrometheusMeter) counterFor(name string, labels telemetry.Labels) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: sanitizeName(name),
		Help: "sms venue pipeline counter " + name,
	}, labelNames(labels))
	m.reg.MustRegister(c)
	m.counters[name] = c
	return c
}

func (m *PrometheusMeter) gaugeFor(name string, labels telemetry.Labels) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: sanitizeName(name),
		Help: "sms venue pipeline gauge " + name,
	}, labelNames(labels))
	m.reg.MustRegister(g)
	m.gauges[name] = g
	return g
}

func (m *PrometheusMeter) histogramFor(name string, buckets []float64, labels telemetry.Labels) *prometheus.HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    sanitizeName(name),
		Help:    "sms venue pipeline histogram " + name,
		Buckets: buckets,
	}, labelNames(labels))
	m.reg.MustRegister(h)
	m.histograms[name] = h
	return h
}

// checkKind enforces the sms_<phase>_<thing>_<unit> naming convention: a
// name whose suffix implies a different instrument type than the call being
// made is rejected rather than silently registered under the wrong type.
// Names the convention does not cover pass through.
func checkKind(name string, want telemetry.MetricKind) error {
	got := telemetry.KindFromName(name)
	if got == telemetry.KindUnknown || got == want {
		return nil
	}
	return fmt.Errorf("metrics: %s names a %s by convention, emitted as %s", name, got, want)
}

// IncCounter implements telemetry.Meter.
func (m *PrometheusMeter) IncCounter(_ context.Context, name string, delta int64, labels telemetry.Labels) error {
	if err := checkKind(name, telemetry.KindCounter); err != nil {
		return err
	}
	m.counterFor(name, labels).With(prometheus.Labels(labels)).Add(float64(delta))
	return nil
}

// SetGauge implements telemetry.Meter.
func (m *PrometheusMeter) SetGauge(_ context.Context, name string, value float64, labels telemetry.Labels) error {
	if err := checkKind(name, telemetry.KindGauge); err != nil {
		return err
	}
	m.gaugeFor(name, labels).With(prometheus.Labels(labels)).Set(value)
	return nil
}

// ObserveHistogram implements telemetry.Meter.
func (m *PrometheusMeter) ObserveHistogram(_ context.Context, name string, value float64, buckets []float64, labels telemetry.Labels) error {
	if err := checkKind(name, telemetry.KindHistogram); err != nil {
		return err
	}
	m.histogramFor(name, buckets, labels).With(prometheus.Labels(labels)).Observe(value)
	return nil
}

var _ telemetry.Meter = (*PrometheusMeter)(nil)
