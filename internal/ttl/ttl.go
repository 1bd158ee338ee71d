// Package ttl removes expired items in bounded batches.
package ttl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
)

// DefaultBatchSize is the number of expired items one sweep selects by default.
const DefaultBatchSize = 1000

// NamespaceSyncer reconciles a namespace record with the items it names.
type NamespaceSyncer interface {
	SyncNamespace(ctx context.Context, namespace []string) error
}

// Manager sweeps expired items from the data alias.
type Manager struct {
	logger   *zap.Logger
	engine   engine.Engine
	settings *schema.Settings
	syncer   NamespaceSyncer
	now      func() time.Time
}

// NewManager creates a new TTL manager. A nil now uses time.Now.
func NewManager(logger *zap.Logger, eng engine.Engine, settings *schema.Settings, syncer NamespaceSyncer, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		logger:   logger,
		engine:   eng,
		settings: settings,
		syncer:   syncer,
		now:      now,
	}
}

// RunOnce deletes up to batchSize expired items, oldest expiry first, and
// synchronises the namespace record of every namespace it touched. It does
// not loop; callers repeat while the report says more remain.
func (m *Manager) RunOnce(ctx context.Context, batchSize int) (*model.SweepReport, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got: %d", model.ErrInvalidArgument, batchSize)
	}

	sweepID := uuid.NewString()
	log := m.logger.With(zap.String("sweep_id", sweepID))

	now := m.now().UTC().Format(schema.TimeLayout)
	alias := m.settings.DataAlias()
	expired := engine.LTE(schema.FieldExpiresAt, now)

	res, err := m.engine.Search(ctx, alias, engine.Query{
		Filters: []engine.Filter{expired},
		Sort:    []engine.Sort{{Field: schema.FieldExpiresAt}},
		Size:    batchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search expired items on %s: %w", alias, err)
	}

	report := &model.SweepReport{
		Scanned: len(res.Hits),
		HasMore: res.Total > int64(len(res.Hits)),
	}
	if len(res.Hits) == 0 {
		log.Debug("No expired items")
		return report, nil
	}

	ids := make([]string, 0, len(res.Hits))
	namespaces := make(map[string][]string)
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
		path, _ := hit.Source[schema.FieldNamespacePath].(string)
		if path != "" {
			namespaces[path] = schema.SplitPath(path)
		}
	}

	// The expiry filter keeps items rewritten since the search from being removed.
	report.Deleted, err = m.engine.DeleteByQuery(ctx, alias, engine.IDs(ids...), expired)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired items from %s: %w", alias, err)
	}

	for path, namespace := range namespaces {
		if err := m.syncer.SyncNamespace(ctx, namespace); err != nil {
			return nil, fmt.Errorf("failed to sync namespace %q after sweep: %w", path, err)
		}
	}

	log.Info("Swept expired items",
		zap.Int64("deleted", report.Deleted),
		zap.Int("scanned", report.Scanned),
		zap.Int("namespaces", len(namespaces)),
		zap.Bool("has_more", report.HasMore),
	)

	return report, nil
}
