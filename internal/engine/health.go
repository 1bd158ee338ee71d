package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/health"
)

// ConnectionHealthChecker checks if the search engine is reachable.
type ConnectionHealthChecker struct {
	logger *zap.Logger
	engine Engine
}

// NewConnectionHealthChecker creates a new connection health checker.
func NewConnectionHealthChecker(logger *zap.Logger, engine Engine) *ConnectionHealthChecker {
	return &ConnectionHealthChecker{
		logger: logger,
		engine: engine,
	}
}

// Name returns the name of the health check.
func (c *ConnectionHealthChecker) Name() string {
	return "engine-connection"
}

// Check performs the health check.
func (c *ConnectionHealthChecker) Check(ctx context.Context) health.CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := c.engine.ClusterHealth(checkCtx, "")

	result := health.CheckResult{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}

	if err != nil {
		result.Status = health.StatusError
		result.Message = fmt.Sprintf("Search engine unreachable: %v", err)
		c.logger.Warn("Search engine connection check failed", zap.Error(err))
	} else {
		result.Status = health.StatusOK
		result.Message = "Search engine reachable"
	}

	return result
}

// ClusterHealthChecker maps the cluster's green/yellow/red status onto a check result.
type ClusterHealthChecker struct {
	logger *zap.Logger
	engine Engine
	index  string
}

// NewClusterHealthChecker creates a new cluster health checker scoped to index.
// Yellow is healthy: single node clusters cannot allocate replicas.
func NewClusterHealthChecker(logger *zap.Logger, engine Engine, index string) *ClusterHealthChecker {
	return &ClusterHealthChecker{
		logger: logger,
		engine: engine,
		index:  index,
	}
}

// Name returns the name of the health check.
func (c *ClusterHealthChecker) Name() string {
	return "engine-cluster"
}

// Check performs the health check.
func (c *ClusterHealthChecker) Check(ctx context.Context) health.CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ch, err := c.engine.ClusterHealth(checkCtx, c.index)

	result := health.CheckResult{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}

	if err != nil {
		result.Status = health.StatusError
		result.Message = fmt.Sprintf("Failed to get cluster health: %v", err)
		c.logger.Warn("Cluster health check failed", zap.Error(err))
		return result
	}

	switch ch.Status {
	case "green", "yellow":
		result.Status = health.StatusOK
		result.Message = fmt.Sprintf("Cluster %s is %s with %d nodes", ch.ClusterName, ch.Status, ch.NumberOfNodes)
	default:
		result.Status = health.StatusError
		result.Message = fmt.Sprintf("Cluster %s is %s (%d unassigned shards)", ch.ClusterName, ch.Status, ch.UnassignedShards)
		c.logger.Warn("Cluster status is not healthy",
			zap.String("status", ch.Status),
			zap.Int("unassigned_shards", ch.UnassignedShards),
		)
	}

	return result
}

// IndicesHealthChecker checks that the data alias and namespace index exist.
type IndicesHealthChecker struct {
	logger         *zap.Logger
	engine         Engine
	alias          string
	namespaceIndex string
}

// NewIndicesHealthChecker creates a new indices health checker.
func NewIndicesHealthChecker(logger *zap.Logger, engine Engine, alias, namespaceIndex string) *IndicesHealthChecker {
	return &IndicesHealthChecker{
		logger:         logger,
		engine:         engine,
		alias:          alias,
		namespaceIndex: namespaceIndex,
	}
}

// Name returns the name of the health check.
func (c *IndicesHealthChecker) Name() string {
	return "engine-indices"
}

// Check performs the health check.
func (c *IndicesHealthChecker) Check(ctx context.Context) health.CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result := health.CheckResult{
		Name:      c.Name(),
		Timestamp: time.Now(),
	}

	aliasExists, err := c.engine.AliasExists(checkCtx, c.alias)
	if err == nil && aliasExists {
		var nsExists bool
		nsExists, err = c.engine.IndexExists(checkCtx, c.namespaceIndex)
		if err == nil && !nsExists {
			result.Status = health.StatusNotReady
			result.Message = fmt.Sprintf("Namespace index %s does not exist", c.namespaceIndex)
		}
	} else if err == nil {
		result.Status = health.StatusNotReady
		result.Message = fmt.Sprintf("Data alias %s does not exist", c.alias)
	}
	result.Duration = time.Since(start)

	switch {
	case err != nil:
		result.Status = health.StatusError
		result.Message = fmt.Sprintf("Failed to check indices: %v", err)
		c.logger.Warn("Indices health check failed", zap.Error(err))
	case result.Status == "":
		result.Status = health.StatusOK
		result.Message = "Data alias and namespace index present"
	}

	return result
}
