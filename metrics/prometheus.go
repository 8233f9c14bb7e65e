// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	promMeters     *prometheusMeters
	promMetersOnce sync.Once
)

func getPrometheusMeters() *prometheusMeters {
	promMetersOnce.Do(func() {
		promMeters = newPrometheusMeters()
	})
	return promMeters
}

func promHTTPHandler() http.Handler {
	return promhttp.Handler()
}

// prometheusMeters lazily creates and registers one Prometheus collector
// per distinct metric name, caching it for subsequent lookups so the
// same name is never registered twice.
type prometheusMeters struct {
	mu            sync.Mutex
	counters      map[string]*promCountMeter
	counterVecs   map[string]*promCountVecMeter
	gauges        map[string]*promGaugeMeter
	gaugeVecs     map[string]*promGaugeVecMeter
	histograms    map[string]*promHistogramMeter
	histogramVecs map[string]*promHistogramVecMeter
}

func newPrometheusMeters() *prometheusMeters {
	return &prometheusMeters{
		counters:      make(map[string]*promCountMeter),
		counterVecs:   make(map[string]*promCountVecMeter),
		gauges:        make(map[string]*promGaugeMeter),
		gaugeVecs:     make(map[string]*promGaugeVecMeter),
		histograms:    make(map[string]*promHistogramMeter),
		histogramVecs: make(map[string]*promHistogramVecMeter),
	}
}

func (p *prometheusMeters) Counter(name string) CounterMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.counters[name]; ok {
		return m
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: metricPrefix + name})
	prometheus.MustRegister(c)
	m := &promCountMeter{c: c}
	p.counters[name] = m
	return m
}

func (p *prometheusMeters) CounterVec(name string, labels []string) CounterVecMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.counterVecs[name]; ok {
		return m
	}
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: metricPrefix + name}, labels)
	prometheus.MustRegister(v)
	m := &promCountVecMeter{v: v}
	p.counterVecs[name] = m
	return m
}

func (p *prometheusMeters) Gauge(name string) GaugeMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.gauges[name]; ok {
		return m
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: metricPrefix + name})
	prometheus.MustRegister(g)
	m := &promGaugeMeter{g: g}
	p.gauges[name] = m
	return m
}

func (p *prometheusMeters) GaugeVec(name string, labels []string) GaugeVecMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.gaugeVecs[name]; ok {
		return m
	}
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: metricPrefix + name}, labels)
	prometheus.MustRegister(v)
	m := &promGaugeVecMeter{v: v}
	p.gaugeVecs[name] = m
	return m
}

func (p *prometheusMeters) Histogram(name string, buckets []int64) HistogramMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.histograms[name]; ok {
		return m
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: metricPrefix + name, Buckets: toFloatBuckets(buckets)})
	prometheus.MustRegister(h)
	m := &promHistogramMeter{h: h}
	p.histograms[name] = m
	return m
}

func (p *prometheusMeters) HistogramVec(name string, labels []string, buckets []int64) HistogramVecMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.histogramVecs[name]; ok {
		return m
	}
	v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: metricPrefix + name, Buckets: toFloatBuckets(buckets)}, labels)
	prometheus.MustRegister(v)
	m := &promHistogramVecMeter{v: v}
	p.histogramVecs[name] = m
	return m
}

func toFloatBuckets(buckets []int64) []float64 {
	if len(buckets) == 0 {
		return prometheus.DefBuckets
	}
	out := make([]float64, len(buckets))
	for i, b := range buckets {
		out[i] = float64(b)
	}
	return out
}

type promCountMeter struct{ c prometheus.Counter }

func (m *promCountMeter) Add(v int64) { m.c.Add(float64(v)) }

type promCountVecMeter struct{ v *prometheus.CounterVec }

func (m *promCountVecMeter) AddWithLabel(v int64, labels map[string]string) {
	m.v.With(prometheus.Labels(labels)).Add(float64(v))
}

type promGaugeMeter struct{ g prometheus.Gauge }

func (m *promGaugeMeter) Add(v int64) { m.g.Add(float64(v)) }

type promGaugeVecMeter struct{ v *prometheus.GaugeVec }

func (m *promGaugeVecMeter) AddWithLabel(v int64, labels map[string]string) {
	m.v.With(prometheus.Labels(labels)).Add(float64(v))
}

type promHistogramMeter struct{ h prometheus.Histogram }

func (m *promHistogramMeter) Observe(v int64) { m.h.Observe(float64(v)) }

type promHistogramVecMeter struct{ v *prometheus.HistogramVec }

func (m *promHistogramVecMeter) ObserveWithLabels(v int64, labels map[string]string) {
	m.v.With(prometheus.Labels(labels)).Observe(float64(v))
}
