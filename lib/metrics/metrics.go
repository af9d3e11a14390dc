// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Run holds the counters for one scan.
type Run struct {
	registry *prometheus.Registry

	blocks       *prometheus.CounterVec
	bytes        prometheus.Counter
	allocRetries prometheus.Counter
	views        prometheus.Gauge
	maxDepth     prometheus.Gauge
	panics       prometheus.Gauge
	drainSeconds prometheus.Gauge
	imageBytes   prometheus.Gauge
}

// New creates the counters and registers them.
func New() *Run {
	run := &Run{
		registry: prometheus.NewRegistry(),
		blocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkscan_blocks_total",
				Help: "Image blocks considered by the producer, by outcome",
			},
			[]string{"outcome"},
		),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkscan_bytes_dispatched_total",
			Help: "Logical page bytes submitted to the worker pool",
		}),
		allocRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkscan_allocation_refusals_total",
			Help: "Page allocations refused and retried",
		}),
		views: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkscan_views_scanned",
			Help: "Views scanned, including recursively derived views",
		}),
		maxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkscan_max_recursion_depth",
			Help: "Deepest recursion reached by any work unit",
		}),
		panics: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkscan_scanner_panics",
			Help: "Scanner calls that panicked and were recovered",
		}),
		drainSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkscan_drain_seconds",
			Help: "Time spent waiting for workers after the last block was read",
		}),
		imageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkscan_image_bytes",
			Help: "Size of the scanned image",
		}),
	}
	run.registry.MustRegister(
		run.blocks,
		run.bytes,
		run.allocRetries,
		run.views,
		run.maxDepth,
		run.panics,
		run.drainSeconds,
		run.imageBytes,
	)
	return run
}

// Registry returns the registry holding the run's metrics.
func (r *Run) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// BlockDispatched counts a page submitted to the pool.
func (r *Run) BlockDispatched(pageBytes int) {
	if r == nil {
		return
	}
	r.blocks.WithLabelValues("dispatched").Inc()
	r.bytes.Add(float64(pageBytes))
}

// BlockSkipped counts a page the producer did not submit.
func (r *Run) BlockSkipped(reason string) {
	if r == nil {
		return
	}
	r.blocks.WithLabelValues(reason).Inc()
}

// AllocationRefused counts one refused page allocation.
func (r *Run) AllocationRefused() {
	if r == nil {
		return
	}
	r.allocRetries.Inc()
}

// SetScanStats records the scanner registry's totals.
func (r *Run) SetScanStats(views uint64, maxDepth int, panics uint64) {
	if r == nil {
		return
	}
	r.views.Set(float64(views))
	r.maxDepth.Set(float64(maxDepth))
	r.panics.Set(float64(panics))
}

// SetDrainDuration records how long the drain took.
func (r *Run) SetDrainDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.drainSeconds.Set(d.Seconds())
}

// SetImageSize records the image size.
func (r *Run) SetImageSize(size uint64) {
	if r == nil {
		return
	}
	r.imageBytes.Set(float64(size))
}

// Value returns the current value of the named metric, summed over
// label values. It is meant for summaries and tests.
func (r *Run) Value(name string) (float64, error) {
	if r == nil {
		return 0, fmt.Errorf("metric %s: no metrics collected", name)
	}
	families, err := r.registry.Gather()
	if err != nil {
		return 0, fmt.Errorf("gathering metrics: %w", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range family.GetMetric() {
			total += metricValue(metric)
		}
		return total, nil
	}
	return 0, fmt.Errorf("metric %s not found", name)
}

// LabeledValue returns the value of the named metric for one label
// value.
func (r *Run) LabeledValue(name, label, value string) float64 {
	if r == nil {
		return 0
	}
	families, err := r.registry.Gather()
	if err != nil {
		return 0
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metricValue(metric)
				}
			}
		}
	}
	return 0
}

func metricValue(metric *dto.Metric) float64 {
	switch {
	case metric.GetCounter() != nil:
		return metric.GetCounter().GetValue()
	case metric.GetGauge() != nil:
		return metric.GetGauge().GetValue()
	default:
		return 0
	}
}

// WriteTextfile writes the metrics in the Prometheus text format to
// path, atomically.
func (r *Run) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
