// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

//go:build !linux

package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProcessCollector is a no-op stub on platforms without /proc; the
// per-process I/O counters this package exports on Linux have no portable
// equivalent.
type ProcessCollector struct{}

// NewProcessCollector builds a no-op ProcessCollector.
func NewProcessCollector() *ProcessCollector { return &ProcessCollector{} }

// Describe implements prometheus.Collector.
func (c *ProcessCollector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *ProcessCollector) Collect(chan<- prometheus.Metric) {}
