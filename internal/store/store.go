package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
	"github.com/n3tuk/langgraph-opensearch-store/internal/snapshot"
	"github.com/n3tuk/langgraph-opensearch-store/internal/storage"
	"github.com/n3tuk/langgraph-opensearch-store/internal/ttl"
)

// Store wires the document store, template manager, TTL manager, and
// snapshot orchestrator over one engine and one set of settings.
type Store struct {
	*storage.DocumentStore

	logger    *zap.Logger
	engine    engine.Engine
	settings  *schema.Settings
	templates *schema.TemplateManager
	ttl       *ttl.Manager
	snapshots *snapshot.Orchestrator
	batchSize int
}

// New creates a Store over eng. Use Open to connect to a cluster from configuration.
func New(logger *zap.Logger, eng engine.Engine, cfg *StoreConfig, now func() time.Time) (*Store, error) {
	settings, err := schema.NewSettings(cfg.IndexPrefix, cfg.Shards, cfg.Replicas)
	if err != nil {
		return nil, err
	}

	documents := storage.NewDocumentStore(eng, settings, logger, storage.Options{
		DefaultTTL:    cfg.DefaultTTL,
		MaxNamespaces: cfg.MaxNamespaces,
		Now:           now,
	})

	batchSize := cfg.SweepBatchSize
	if batchSize <= 0 {
		batchSize = ttl.DefaultBatchSize
	}

	return &Store{
		DocumentStore: documents,
		logger:        logger,
		engine:        eng,
		settings:      settings,
		templates:     schema.NewTemplateManager(logger, eng, settings),
		ttl:           ttl.NewManager(logger, eng, settings, documents, now),
		snapshots:     snapshot.NewOrchestrator(logger, eng, settings),
		batchSize:     batchSize,
	}, nil
}

// Settings returns the names the store derives from its prefix.
func (s *Store) Settings() *schema.Settings {
	return s.settings
}

// BatchSize returns the configured TTL sweep batch size.
func (s *Store) BatchSize() int {
	return s.batchSize
}

// Setup installs the index template, indices, and alias. It is safe to call
// on every start.
func (s *Store) Setup(ctx context.Context) error {
	return s.templates.Apply(ctx)
}

// Migrate re-applies the schema and optionally rolls the data alias over.
func (s *Store) Migrate(ctx context.Context, rollover bool, newIndex string) (*model.MigrationReport, error) {
	return s.templates.Upgrade(ctx, rollover, newIndex)
}

// SweepTTL deletes one batch of expired items.
func (s *Store) SweepTTL(ctx context.Context, batchSize int) (*model.SweepReport, error) {
	return s.ttl.RunOnce(ctx, batchSize)
}

// SweepAll deletes expired items batch by batch until none remain, waiting on
// limiter between batches. A nil limiter does not pace. The returned report
// sums every batch.
func (s *Store) SweepAll(ctx context.Context, batchSize int, limiter *rate.Limiter) (*model.SweepReport, error) {
	total := &model.SweepReport{}
	for batch := 1; ; batch++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return total, fmt.Errorf("sweep interrupted after %d batches: %w", batch-1, err)
			}
		}

		report, err := s.ttl.RunOnce(ctx, batchSize)
		if err != nil {
			return total, err
		}

		total.Deleted += report.Deleted
		total.Scanned += report.Scanned
		total.HasMore = report.HasMore

		// A batch that removes nothing would select the same documents again.
		if !report.HasMore || report.Deleted == 0 {
			s.logger.Debug("TTL sweep finished",
				zap.Int("batches", batch),
				zap.Int64("deleted", total.Deleted),
			)
			return total, nil
		}
	}
}

// CreateSnapshot snapshots indices, or the store's indices when none are given.
func (s *Store) CreateSnapshot(ctx context.Context, repository, name string, indices []string, wait bool) (map[string]any, error) {
	return s.snapshots.Create(ctx, repository, name, indices, wait)
}

// RestoreSnapshot restores a snapshot.
func (s *Store) RestoreSnapshot(ctx context.Context, repository, name string, indices []string, wait bool) (map[string]any, error) {
	return s.snapshots.Restore(ctx, repository, name, indices, wait)
}

// DeleteSnapshot deletes a snapshot.
func (s *Store) DeleteSnapshot(ctx context.Context, repository, name string) (map[string]any, error) {
	return s.snapshots.Delete(ctx, repository, name)
}
