package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// registry is the process-wide collector set that every group/name pair
// registers into exactly once. Call sites across rpc and net pass a group
// (subsystem) and a name (metric) the same way they pass a log field:
// cheaply, on every request, with no pre-registration step.
var registry = prometheus.DefaultRegisterer

var (
	countersMu sync.Mutex
	counters   = map[string]*prometheus.CounterVec{}

	gaugesMu sync.Mutex
	gauges   = map[string]*prometheus.GaugeVec{}

	histogramsMu sync.Mutex
	histograms   = map[string]*prometheus.HistogramVec{}
)

func metricKey(group, name string) string {
	return group + "_" + name
}

// sanitizeSubsystem turns a dotted group like "net.stateful" into a valid
// Prometheus subsystem token; callers in this codebase use dots as a
// package-path-like separator the way net/stateful/actor.go does.
func sanitizeSubsystem(group string) string {
	return strings.ReplaceAll(group, ".", "_")
}

func counterFor(group, name string, labelNames []string) *prometheus.CounterVec {
	key := metricKey(group, name)

	countersMu.Lock()
	defer countersMu.Unlock()
	if c, ok := counters[key]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: sanitizeSubsystem(group),
		Name:      name,
		Help:      group + " " + name,
	}, labelNames)
	if err := registry.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			c = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	counters[key] = c
	return c
}

func gaugeFor(group, name string) *prometheus.GaugeVec {
	key := metricKey(group, name)

	gaugesMu.Lock()
	defer gaugesMu.Unlock()
	if g, ok := gauges[key]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: sanitizeSubsystem(group),
		Name:      name,
		Help:      group + " " + name,
	}, nil)
	if err := registry.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			g = are.ExistingCollector.(*prometheus.GaugeVec)
		}
	}
	gauges[key] = g
	return g
}

func histogramFor(group, name string, labelNames []string) *prometheus.HistogramVec {
	key := metricKey(group, name)

	histogramsMu.Lock()
	defer histogramsMu.Unlock()
	if h, ok := histograms[key]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: sanitizeSubsystem(group),
		Name:      name,
		Help:      group + " " + name,
		Buckets:   prometheus.DefBuckets,
	}, labelNames)
	if err := registry.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			h = are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	histograms[key] = h
	return h
}

func labelsOf(dims Dimension) ([]string, prometheus.Labels) {
	if len(dims) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(dims))
	labels := make(prometheus.Labels, len(dims))
	for k, v := range dims {
		names = append(names, k)
		labels[k] = v
	}
	return names, labels
}

// IncrCounterWithGroup increments a counter metric identified by group and
// name. It is the dimensionless counterpart of IncrCounterWithDimGroup,
// grounded on the calls net/tcp_transport.go and net/stateful/actor.go make
// for connection and tick counts.
func IncrCounterWithGroup(group, name string, v Value) {
	counterFor(group, name, nil).WithLabelValues().Add(float64(v))
}

// IncrCounterWithDimGroup increments a counter metric with label dimensions
// attached, e.g. error_type or message_type breakdowns.
func IncrCounterWithDimGroup(group, name string, v Value, dims Dimension) {
	names, labels := labelsOf(dims)
	counterFor(group, name, names).With(labels).Add(float64(v))
}

// UpdateGaugeWithGroup sets a gauge metric to v, e.g. current connection
// count or per-actor queue depth.
func UpdateGaugeWithGroup(group, name string, v Value) {
	gaugeFor(group, name).WithLabelValues().Set(float64(v))
}

// RecordStopwatchWithGroup observes the elapsed time since start in a
// histogram metric, in seconds.
func RecordStopwatchWithGroup(group, name string, start time.Time) {
	histogramFor(group, name, nil).WithLabelValues().Observe(time.Since(start).Seconds())
}

// RecordStopwatchWithDimGroup is RecordStopwatchWithGroup with dimension
// labels, e.g. broken down by message_type.
func RecordStopwatchWithDimGroup(group, name string, start time.Time, dims Dimension) {
	names, labels := labelsOf(dims)
	histogramFor(group, name, names).With(labels).Observe(time.Since(start).Seconds())
}
