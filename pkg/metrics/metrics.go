// Metrics collection for the alignd host
//
// Hand-rolled counters, gauges, and histograms gathered in Prometheus
// text exposition format; the control server scrapes the registry at
// /metrics. No client library is pulled in for this.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Labels represents metric labels as key-value pairs
type Labels map[string]string

func labelKey(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	return sb.String()
}

func formatLabels(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString("=\"")
		sb.WriteString(strings.ReplaceAll(labels[k], "\"", "\\\""))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

func copyLabels(labels Labels) Labels {
	result := make(Labels, len(labels)+1)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

// Metric is the interface for all metric types
type Metric interface {
	Name() string
	Write(sb *strings.Builder)
}

// Counter is a monotonically increasing metric
type Counter struct {
	name   string
	help   string
	values sync.Map // labelKey -> *counterValue
}

type counterValue struct {
	labels Labels
	value  uint64
}

// NewCounter creates a new counter metric
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Name() string { return c.name }

// Inc increments the counter by 1
func (c *Counter) Inc(labels Labels) {
	c.Add(labels, 1)
}

// Add increments the counter by the given value
func (c *Counter) Add(labels Labels, delta uint64) {
	val, _ := c.values.LoadOrStore(labelKey(labels), &counterValue{labels: labels})
	atomic.AddUint64(&val.(*counterValue).value, delta)
}

// Get returns the current counter value for labels
func (c *Counter) Get(labels Labels) uint64 {
	val, ok := c.values.Load(labelKey(labels))
	if !ok {
		return 0
	}
	return atomic.LoadUint64(&val.(*counterValue).value)
}

func (c *Counter) Write(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
	c.values.Range(func(_, value interface{}) bool {
		cv := value.(*counterValue)
		fmt.Fprintf(sb, "%s%s %d\n", c.name, formatLabels(cv.labels), atomic.LoadUint64(&cv.value))
		return true
	})
}

// Gauge is a metric that can go up and down
type Gauge struct {
	name   string
	help   string
	values sync.Map // labelKey -> *gaugeValue
}

type gaugeValue struct {
	labels Labels
	mu     sync.Mutex
	value  float64
}

// NewGauge creates a new gauge metric
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Name() string { return g.name }

// Set sets the gauge to the given value
func (g *Gauge) Set(labels Labels, value float64) {
	val, _ := g.values.LoadOrStore(labelKey(labels), &gaugeValue{labels: labels})
	gv := val.(*gaugeValue)
	gv.mu.Lock()
	gv.value = value
	gv.mu.Unlock()
}

// Get returns the current gauge value for labels
func (g *Gauge) Get(labels Labels) float64 {
	val, ok := g.values.Load(labelKey(labels))
	if !ok {
		return 0
	}
	gv := val.(*gaugeValue)
	gv.mu.Lock()
	defer gv.mu.Unlock()
	return gv.value
}

func (g *Gauge) Write(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
	g.values.Range(func(_, value interface{}) bool {
		gv := value.(*gaugeValue)
		gv.mu.Lock()
		v := gv.value
		gv.mu.Unlock()
		fmt.Fprintf(sb, "%s%s %g\n", g.name, formatLabels(gv.labels), v)
		return true
	})
}

// Histogram tracks the distribution of observations
type Histogram struct {
	name    string
	help    string
	buckets []float64
	values  sync.Map // labelKey -> *histogramValue
}

type histogramValue struct {
	labels  Labels
	mu      sync.Mutex
	count   uint64
	sum     float64
	buckets []uint64
}

// NewHistogram creates a new histogram metric with the given buckets
func NewHistogram(name, help string, buckets []float64) *Histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	return &Histogram{name: name, help: help, buckets: sorted}
}

// DefaultBuckets returns default histogram buckets for latency metrics
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
}

func (h *Histogram) Name() string { return h.name }

// Observe records a value in the histogram
func (h *Histogram) Observe(labels Labels, value float64) {
	val, _ := h.values.LoadOrStore(labelKey(labels), &histogramValue{
		labels:  labels,
		buckets: make([]uint64, len(h.buckets)),
	})
	hv := val.(*histogramValue)
	hv.mu.Lock()
	hv.count++
	hv.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			hv.buckets[i]++
		}
	}
	hv.mu.Unlock()
}

func (h *Histogram) Write(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	h.values.Range(func(_, value interface{}) bool {
		hv := value.(*histogramValue)
		hv.mu.Lock()
		count := hv.count
		sum := hv.sum
		bucketCounts := make([]uint64, len(hv.buckets))
		copy(bucketCounts, hv.buckets)
		hv.mu.Unlock()

		cumulative := uint64(0)
		for i, bound := range h.buckets {
			cumulative += bucketCounts[i]
			l := copyLabels(hv.labels)
			l["le"] = fmt.Sprintf("%g", bound)
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, formatLabels(l), cumulative)
		}
		l := copyLabels(hv.labels)
		l["le"] = "+Inf"
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, formatLabels(l), count)
		fmt.Fprintf(sb, "%s_sum%s %g\n", h.name, formatLabels(hv.labels), sum)
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, formatLabels(hv.labels), count)
		return true
	})
}

// Registry holds all registered metrics
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// MustRegister registers a metric, panicking on a duplicate name
func (r *Registry) MustRegister(metric Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[metric.Name()]; ok {
		panic(fmt.Sprintf("metrics: duplicate metric %s", metric.Name()))
	}
	r.metrics[metric.Name()] = metric
	r.order = append(r.order, metric.Name())
}

// Gather returns all metrics in Prometheus text format
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
