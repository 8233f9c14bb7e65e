// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

//go:build linux

package metrics

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

type ioStats struct {
	readSyscalls  int64
	writeSyscalls int64
	readBytes     int64
	writeBytes    int64
}

// IOCollector exports this process's /proc/self/io syscall and byte
// counters as Prometheus counters.
type IOCollector struct {
	readSyscallsDesc  *prometheus.Desc
	writeSyscallsDesc *prometheus.Desc
	readBytesDesc     *prometheus.Desc
	writeBytesDesc    *prometheus.Desc
}

// NewIOCollector builds a collector reading /proc/self/io on each Collect.
func NewIOCollector() *IOCollector {
	return &IOCollector{
		readSyscallsDesc:  prometheus.NewDesc(metricPrefix+"process_read_syscalls_total", "read(2)-family syscalls issued by this process", nil, nil),
		writeSyscallsDesc: prometheus.NewDesc(metricPrefix+"process_write_syscalls_total", "write(2)-family syscalls issued by this process", nil, nil),
		readBytesDesc:     prometheus.NewDesc(metricPrefix+"process_read_bytes_total", "bytes read from storage by this process", nil, nil),
		writeBytesDesc:    prometheus.NewDesc(metricPrefix+"process_write_bytes_total", "bytes written to storage by this process", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *IOCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.readSyscallsDesc
	ch <- c.writeSyscallsDesc
	ch <- c.readBytesDesc
	ch <- c.writeBytesDesc
}

// Collect implements prometheus.Collector.
func (c *IOCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.getIOStats()
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.readSyscallsDesc, prometheus.CounterValue, float64(stats.readSyscalls))
	ch <- prometheus.MustNewConstMetric(c.writeSyscallsDesc, prometheus.CounterValue, float64(stats.writeSyscalls))
	ch <- prometheus.MustNewConstMetric(c.readBytesDesc, prometheus.CounterValue, float64(stats.readBytes))
	ch <- prometheus.MustNewConstMetric(c.writeBytesDesc, prometheus.CounterValue, float64(stats.writeBytes))
}

func (c *IOCollector) getIOStats() (ioStats, error) {
	f, err := os.Open("/proc/self/io")
	if err != nil {
		return ioStats{}, fmt.Errorf("open /proc/self/io: %w", err)
	}
	defer f.Close()

	var stats ioStats
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), ":", 2)
		if len(fields) != 2 {
			continue
		}
		key := strings.TrimSpace(fields[0])
		value, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "syscr":
			stats.readSyscalls = value
		case "syscw":
			stats.writeSyscalls = value
		case "rchar":
			stats.readBytes = value
		case "wchar":
			stats.writeBytes = value
		}
	}
	if err := scanner.Err(); err != nil {
		return ioStats{}, err
	}
	return stats, nil
}

// ProcessCollector bundles the process-level collectors this package
// exports. Currently that is I/O only; CPU/memory collectors are left to
// the standard prometheus/client_golang process collector.
type ProcessCollector struct {
	io *IOCollector
}

// NewProcessCollector builds a ProcessCollector.
func NewProcessCollector() *ProcessCollector {
	return &ProcessCollector{io: NewIOCollector()}
}

// Describe implements prometheus.Collector.
func (c *ProcessCollector) Describe(ch chan<- *prometheus.Desc) { c.io.Describe(ch) }

// Collect implements prometheus.Collector.
func (c *ProcessCollector) Collect(ch chan<- prometheus.Metric) { c.io.Collect(ch) }
