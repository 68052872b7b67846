package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// prometheusCollector is a Collector that registers vectors lazily, one per
// distinct (name, label set) pair it sees. Counters, gauges and histograms
// are tracked in separate maps since Prometheus ties a metric's type
// to its name for the lifetime of the process.
type prometheusCollector struct {
	namespace string
	node      string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheus returns a Collector that registers its vectors against the
// default Prometheus registry, labeling every series with the owning node.
func NewPrometheus(namespace, nodeID string) Collector {
	return &prometheusCollector{
		namespace:  namespace,
		node:       nodeID,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func vectorKey(name string, labels map[string]string) string {
	names := labelNames(labels)
	return name + "|" + strings.Join(names, ",")
}

func (c *prometheusCollector) IncCounter(name string, labels map[string]string, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := vectorKey(name, labels)
	vec, ok := c.counters[key]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   c.namespace,
			Name:        name,
			Help:        name,
			ConstLabels: prometheus.Labels{"node": c.node},
		}, labelNames(labels))
		prometheus.MustRegister(vec)
		c.counters[key] = vec
	}
	vec.With(labels).Add(delta)
}

func (c *prometheusCollector) SetGauge(name string, labels map[string]string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := vectorKey(name, labels)
	vec, ok := c.gauges[key]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   c.namespace,
			Name:        name,
			Help:        name,
			ConstLabels: prometheus.Labels{"node": c.node},
		}, labelNames(labels))
		prometheus.MustRegister(vec)
		c.gauges[key] = vec
	}
	vec.With(labels).Set(value)
}

func (c *prometheusCollector) ObserveHistogram(name string, labels map[string]string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := vectorKey(name, labels)
	vec, ok := c.histograms[key]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   c.namespace,
			Name:        name,
			Help:        name,
			ConstLabels: prometheus.Labels{"node": c.node},
		}, labelNames(labels))
		prometheus.MustRegister(vec)
		c.histograms[key] = vec
	}
	vec.With(labels).Observe(value)
}
