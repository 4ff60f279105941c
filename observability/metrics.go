package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds the Prometheus metrics for the task sink, cache facade,
// and repositories; only the task-sink metrics are recorded, by TaskSink.
// A single process-wide Collector and registry is shared, so calling
// NewCollector again (e.g. across tests) doesn't trigger
// duplicate-registration panics.
type Collector struct {
	registry *prometheus.Registry

	TasksSubmitted  *prometheus.CounterVec
	TasksCompleted  *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	QueueDepth      prometheus.Gauge

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	RepositoryRequests *prometheus.CounterVec
	RepositoryDuration *prometheus.HistogramVec
}

// NewCollector returns the process-wide Collector, creating it under
// namespace on first use; later calls return that Collector whatever
// namespace they pass, until ResetForTesting.
func NewCollector(namespace string) *Collector {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		TasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the task sink.",
		}, []string{"priority"}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks completed, by outcome.",
		}, []string{"outcome"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"priority"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Current number of tasks waiting in the sink's queue.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits, by repository.",
		}, []string{"repository"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses, by repository.",
		}, []string{"repository"}),
		RepositoryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_requests_total",
			Help:      "Total repository requests, by repository and outcome.",
		}, []string{"repository", "outcome"}),
		RepositoryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "repository_request_duration_seconds",
			Help:      "Repository request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"repository"}),
	}

	registry.MustRegister(
		c.TasksSubmitted, c.TasksCompleted, c.TaskDuration, c.QueueDepth,
		c.CacheHits, c.CacheMisses,
		c.RepositoryRequests, c.RepositoryDuration,
	)

	globalCollector = c
	return c
}

// Registry exposes the underlying Prometheus registry for scraping.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ResetForTesting clears the singleton so tests can create fresh
// collectors without cross-test registration conflicts.
func ResetForTesting() {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()
	globalCollector = nil
}
