// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

// noopMeters is the zero-cost default backend: every call is dropped. It
// implements both Meters and every per-metric interface, so a single
// value stands in everywhere before a real backend is installed.
type noopMeters struct{}

func defaultNoopMetrics() Meters { return &noopMeters{} }

func (n *noopMeters) Counter(string) CounterMeter                              { return n }
func (n *noopMeters) CounterVec(string, []string) CounterVecMeter              { return n }
func (n *noopMeters) Gauge(string) GaugeMeter                                  { return n }
func (n *noopMeters) GaugeVec(string, []string) GaugeVecMeter                  { return n }
func (n *noopMeters) Histogram(string, []int64) HistogramMeter                 { return n }
func (n *noopMeters) HistogramVec(string, []string, []int64) HistogramVecMeter { return n }

func (n *noopMeters) Add(int64)                                  {}
func (n *noopMeters) AddWithLabel(int64, map[string]string)      {}
func (n *noopMeters) Observe(int64)                              {}
func (n *noopMeters) ObserveWithLabels(int64, map[string]string) {}
