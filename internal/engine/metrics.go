package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
)

// Metrics holds Prometheus metrics for the search engine.
type Metrics struct {
	// Cluster metrics
	ClusterStatus prometheus.Gauge
	ClusterNodes  prometheus.Gauge

	// Storage metrics
	StorageItems      prometheus.Gauge
	StorageNamespaces prometheus.Gauge
	StorageBytes      prometheus.Gauge
	BackingIndices    prometheus.Gauge

	// Operation metrics
	OperationsTotal      *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	OperationErrorsTotal *prometheus.CounterVec

	// Lifecycle metrics
	RolloversTotal          *prometheus.CounterVec
	SnapshotOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates the engine metrics and registers them with registry.
func NewMetrics(namespace string, registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClusterStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "engine_cluster_status",
				Help:      "Cluster health status (0 green, 1 yellow, 2 red)",
			},
		),
		ClusterNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "engine_cluster_nodes",
				Help:      "Number of nodes in the cluster",
			},
		),
		StorageItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "storage_items_total",
				Help:      "Number of items visible through the data alias",
			},
		),
		StorageNamespaces: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "storage_namespaces_total",
				Help:      "Number of namespace records",
			},
		),
		StorageBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "storage_size_bytes",
				Help:      "Primary store size of the backing indices in bytes",
			},
		),
		BackingIndices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "storage_backing_indices",
				Help:      "Number of backing indices behind the data alias",
			},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_operations_total",
				Help:      "Total number of search engine operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_operation_duration_seconds",
				Help:      "Search engine operation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		OperationErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_operation_errors_total",
				Help:      "Total number of search engine operation errors",
			},
			[]string{"operation", "error_type"},
		),
		RolloversTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_rollovers_total",
				Help:      "Total number of alias rollovers requested",
			},
			[]string{"rolled_over"},
		),
		SnapshotOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_snapshot_operations_total",
				Help:      "Total number of snapshot operations",
			},
			[]string{"operation", "status"},
		),
	}

	registry.MustRegister(
		m.ClusterStatus,
		m.ClusterNodes,
		m.StorageItems,
		m.StorageNamespaces,
		m.StorageBytes,
		m.BackingIndices,
		m.OperationsTotal,
		m.OperationDuration,
		m.OperationErrorsTotal,
		m.RolloversTotal,
		m.SnapshotOperationsTotal,
	)

	return m
}

// RecordOperation records an operation metric.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError records an operation error.
func (m *Metrics) RecordError(operation, errorType string) {
	m.OperationErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordSnapshotOperation records a snapshot operation.
func (m *Metrics) RecordSnapshotOperation(operation, status string) {
	m.SnapshotOperationsTotal.WithLabelValues(operation, status).Inc()
}

// StatsSource provides the store statistics the collector publishes.
type StatsSource interface {
	Stats(ctx context.Context) (*model.StatsReport, error)
	Health(ctx context.Context) (*model.HealthReport, error)
}

// MetricsCollector collects storage and cluster metrics periodically.
type MetricsCollector struct {
	logger   *zap.Logger
	source   StatsSource
	metrics  *Metrics
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(logger *zap.Logger, source StatsSource, metrics *Metrics, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger,
		source:   source,
		metrics:  metrics,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *MetricsCollector) Start() {
	go c.run()
}

// Stop stops the metrics collector.
func (c *MetricsCollector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *MetricsCollector) run() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopChan:
			c.logger.Info("Stopping engine metrics collector")
			return
		}
	}
}

// Collect updates the storage and cluster gauges once.
func (c *MetricsCollector) Collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if health, err := c.source.Health(ctx); err != nil {
		c.logger.Error("Failed to collect cluster health", zap.Error(err))
	} else {
		c.metrics.ClusterStatus.Set(statusValue(health.Status))
		c.metrics.ClusterNodes.Set(float64(health.NumberOfNodes))
	}

	stats, err := c.source.Stats(ctx)
	if err != nil {
		c.logger.Error("Failed to collect storage stats", zap.Error(err))
		return
	}

	c.metrics.StorageItems.Set(float64(stats.TotalItems))
	c.metrics.StorageNamespaces.Set(float64(stats.TotalNamespaces))
	c.metrics.StorageBytes.Set(float64(stats.StoreSizeBytes))
	c.metrics.BackingIndices.Set(float64(len(stats.Indices)))

	c.logger.Debug("Collected engine metrics",
		zap.Int64("total_items", stats.TotalItems),
		zap.Int64("total_namespaces", stats.TotalNamespaces),
		zap.Int("backing_indices", len(stats.Indices)),
	)
}

// statusValue maps a cluster status to the gauge value.
func statusValue(status string) float64 {
	switch status {
	case "green":
		return 0
	case "yellow":
		return 1
	default:
		return 2
	}
}
