package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
)

// SyncNamespace makes the namespace record agree with the data alias: the
// record is removed when no live item has exactly this namespace and
// rewritten otherwise, repairing drift left by an interrupted write.
func (s *DocumentStore) SyncNamespace(ctx context.Context, namespace []string) error {
	if err := schema.ValidateNamespace(namespace, false); err != nil {
		return err
	}

	now := s.now()
	path := schema.NamespacePath(namespace)
	alias := s.settings.DataAlias()

	count, err := s.engine.Count(ctx, alias,
		engine.Term(schema.FieldNamespacePath, path),
		engine.LTE(schema.FieldExpiresAt, formatTime(now)).Negate(),
	)
	if err != nil {
		return fmt.Errorf("failed to count items in namespace %q on %s: %w", path, alias, err)
	}

	if count > 0 {
		return s.upsertNamespace(ctx, namespace, now)
	}

	index := s.settings.NamespaceIndex()
	removed, err := s.engine.DeleteDocument(ctx, index, schema.NamespaceID(namespace))
	if err != nil {
		return fmt.Errorf("failed to delete namespace record %q from %s: %w", path, index, err)
	}
	if removed {
		s.logger.Debug("Removed namespace record", zap.String("namespace", path))
	}
	return nil
}

func (s *DocumentStore) upsertNamespace(ctx context.Context, namespace []string, now time.Time) error {
	record := namespaceFields(namespace)
	record[schema.FieldUpdatedAt] = formatTime(now)

	index := s.settings.NamespaceIndex()
	if _, err := s.engine.IndexDocument(ctx, index, schema.NamespaceID(namespace), record); err != nil {
		return fmt.Errorf("failed to upsert namespace record %q into %s: %w", schema.NamespacePath(namespace), index, err)
	}
	return nil
}
