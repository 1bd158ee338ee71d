package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
)

// Open connects to the cluster described by cfg and returns a Store over it.
// Engine operations record into metrics when it is not nil.
func Open(ctx context.Context, cfg *StoreConfig, logger *zap.Logger, metrics *engine.Metrics) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	client, err := engine.NewOpenSearch(cfg.Connection, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Connecting to OpenSearch",
		zap.Strings("hosts", cfg.Connection.Hosts),
		zap.String("auth_mode", cfg.Connection.AuthMode),
		zap.String("index_prefix", cfg.IndexPrefix),
	)

	eng := engine.Instrument(client, metrics)

	ch, err := eng.ClusterHealth(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("cluster not reachable: %w", err)
	}

	logger.Info("OpenSearch store initialized successfully",
		zap.String("cluster_name", ch.ClusterName),
		zap.String("status", ch.Status),
		zap.Int("nodes", ch.NumberOfNodes),
	)

	return New(logger, eng, cfg, nil)
}
