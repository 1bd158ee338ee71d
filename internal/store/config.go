package store

import (
	"fmt"
	"time"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
	"github.com/n3tuk/langgraph-opensearch-store/internal/storage"
	"github.com/n3tuk/langgraph-opensearch-store/internal/ttl"
)

// StoreConfig holds the configuration for the OpenSearch-backed store.
type StoreConfig struct {
	// Connection holds the search engine connection parameters.
	Connection *engine.ConnectionConfig

	// IndexPrefix derives the alias, index, and template names.
	// Default: "langgraph"
	IndexPrefix string

	// Shards is the number of primary shards per backing index.
	// Default: 1
	Shards int

	// Replicas is the number of replicas per backing index.
	// Default: 0
	Replicas int

	// DefaultTTL applies to writes made without an explicit TTL.
	// Default: 0 (items never expire)
	DefaultTTL time.Duration

	// MaxNamespaces bounds how many namespace records a listing reads.
	// Default: 10000
	MaxNamespaces int

	// SweepBatchSize is the number of expired items one sweep batch selects.
	// Default: 1000
	SweepBatchSize int
}

// NewDefaultStoreConfig returns a StoreConfig with sensible defaults.
func NewDefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Connection:     engine.NewDefaultConnectionConfig(),
		IndexPrefix:    schema.DefaultPrefix,
		Shards:         schema.DefaultShards,
		Replicas:       schema.DefaultReplicas,
		DefaultTTL:     0,
		MaxNamespaces:  storage.DefaultMaxNamespaces,
		SweepBatchSize: ttl.DefaultBatchSize,
	}
}

// Validate checks if the store configuration is valid.
func (c *StoreConfig) Validate() error {
	if c.Connection == nil {
		return fmt.Errorf("connection configuration is required")
	}

	if err := c.Connection.Validate(); err != nil {
		return fmt.Errorf("invalid connection configuration: %w", err)
	}

	if _, err := schema.NewSettings(c.IndexPrefix, c.Shards, c.Replicas); err != nil {
		return err
	}

	if c.DefaultTTL < 0 {
		return fmt.Errorf("default ttl must be zero or greater, got: %v", c.DefaultTTL)
	}

	if c.MaxNamespaces < 1 {
		return fmt.Errorf("max namespaces must be at least 1, got: %d", c.MaxNamespaces)
	}

	if c.SweepBatchSize < 1 {
		return fmt.Errorf("sweep batch size must be at least 1, got: %d", c.SweepBatchSize)
	}

	return nil
}
