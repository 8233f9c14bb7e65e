// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package metrics provides a small Counter/Gauge/Histogram facade that
// defaults to a no-op backend and can be swapped to a Prometheus-backed
// one via InitializePrometheusMetrics, so packages can grab a metric
// handle at init time without caring whether metrics collection is
// actually enabled for this process.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
)

const metricPrefix = "validator_metrics_"

// CounterMeter is a monotonically increasing counter.
type CounterMeter interface {
	Add(v int64)
}

// CounterVecMeter is a counter partitioned by label values.
type CounterVecMeter interface {
	AddWithLabel(v int64, labels map[string]string)
}

// GaugeMeter is a value that can move up or down.
type GaugeMeter interface {
	Add(v int64)
}

// GaugeVecMeter is a gauge partitioned by label values.
type GaugeVecMeter interface {
	AddWithLabel(v int64, labels map[string]string)
}

// HistogramMeter records observations into buckets.
type HistogramMeter interface {
	Observe(v int64)
}

// HistogramVecMeter is a histogram partitioned by label values.
type HistogramVecMeter interface {
	ObserveWithLabels(v int64, labels map[string]string)
}

// Meters is the backend that creates or looks up named metrics.
type Meters interface {
	Counter(name string) CounterMeter
	CounterVec(name string, labels []string) CounterVecMeter
	Gauge(name string) GaugeMeter
	GaugeVec(name string, labels []string) GaugeVecMeter
	Histogram(name string, buckets []int64) HistogramMeter
	HistogramVec(name string, labels []string, buckets []int64) HistogramVecMeter
}

var (
	metrics     Meters = defaultNoopMetrics()
	metricsMu   sync.RWMutex
	httpHandler atomic.Value // http.Handler
)

func init() {
	httpHandler.Store(http.NotFoundHandler())
}

func current() Meters {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metrics
}

func setBackend(m Meters, handler http.Handler) {
	metricsMu.Lock()
	metrics = m
	metricsMu.Unlock()
	httpHandler.Store(handler)
}

// Counter returns (creating if necessary) a counter metric.
func Counter(name string) CounterMeter { return current().Counter(name) }

// CounterVec returns a label-partitioned counter metric.
func CounterVec(name string, labels []string) CounterVecMeter {
	return current().CounterVec(name, labels)
}

// Gauge returns a gauge metric.
func Gauge(name string) GaugeMeter { return current().Gauge(name) }

// GaugeVec returns a label-partitioned gauge metric.
func GaugeVec(name string, labels []string) GaugeVecMeter {
	return current().GaugeVec(name, labels)
}

// Histogram returns a histogram metric. A nil buckets slice uses the
// backend's default bucket boundaries.
func Histogram(name string, buckets []int64) HistogramMeter {
	return current().Histogram(name, buckets)
}

// HistogramVec returns a label-partitioned histogram metric.
func HistogramVec(name string, labels []string, buckets []int64) HistogramVecMeter {
	return current().HistogramVec(name, labels, buckets)
}

// LazyLoadCounter returns a thunk that resolves Counter(name) against
// whatever backend is active when it's called, so code that captures a
// metric handle before InitializePrometheusMetrics still observes into
// the real backend once it's installed.
func LazyLoadCounter(name string) func() CounterMeter {
	return func() CounterMeter { return Counter(name) }
}

// LazyLoadCounterVec is the CounterVec analogue of LazyLoadCounter.
func LazyLoadCounterVec(name string, labels []string) func() CounterVecMeter {
	return func() CounterVecMeter { return CounterVec(name, labels) }
}

// LazyLoadGauge is the Gauge analogue of LazyLoadCounter.
func LazyLoadGauge(name string) func() GaugeMeter {
	return func() GaugeMeter { return Gauge(name) }
}

// LazyLoadGaugeVec is the GaugeVec analogue of LazyLoadCounter.
func LazyLoadGaugeVec(name string, labels []string) func() GaugeVecMeter {
	return func() GaugeVecMeter { return GaugeVec(name, labels) }
}

// LazyLoadHistogram is the Histogram analogue of LazyLoadCounter.
func LazyLoadHistogram(name string, buckets []int64) func() HistogramMeter {
	return func() HistogramMeter { return Histogram(name, buckets) }
}

// LazyLoadHistogramVec is the HistogramVec analogue of LazyLoadCounter.
func LazyLoadHistogramVec(name string, labels []string, buckets []int64) func() HistogramVecMeter {
	return func() HistogramVecMeter { return HistogramVec(name, labels, buckets) }
}

// InitializePrometheusMetrics swaps the backend from the default no-op
// implementation to one backed by the default Prometheus registerer, and
// installs the /metrics HTTP handler. Safe to call more than once: the
// underlying collector cache is created exactly once, so repeated calls
// (e.g. across test files in this package) never double-register a
// collector under the same name.
func InitializePrometheusMetrics() {
	setBackend(getPrometheusMeters(), promHTTPHandler())
}

// HTTPHandler serves the currently active backend's /metrics endpoint;
// before InitializePrometheusMetrics it answers 404, since the no-op
// backend has nothing to export.
func HTTPHandler() http.Handler {
	return httpHandler.Load().(http.Handler)
}
