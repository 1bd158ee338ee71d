package schema

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
)

// TemplateManager installs the index template, the bootstrap index, the
// namespace index and the data alias, and rolls the alias over on request.
type TemplateManager struct {
	logger   *zap.Logger
	engine   engine.Engine
	settings *Settings
}

// NewTemplateManager creates a new template manager.
func NewTemplateManager(logger *zap.Logger, eng engine.Engine, settings *Settings) *TemplateManager {
	return &TemplateManager{
		logger:   logger,
		engine:   eng,
		settings: settings,
	}
}

// Apply brings the engine up to the current schema. It is idempotent: a
// second call replaces the template and leaves existing indices and the
// alias untouched.
func (m *TemplateManager) Apply(ctx context.Context) error {
	s := m.settings

	if err := m.engine.PutIndexTemplate(ctx, s.TemplateName(), s.TemplateBody()); err != nil {
		return fmt.Errorf("failed to put index template %s: %w", s.TemplateName(), err)
	}

	aliasExists, err := m.engine.AliasExists(ctx, s.DataAlias())
	if err != nil {
		return fmt.Errorf("failed to check alias %s: %w", s.DataAlias(), err)
	}

	// Once the alias exists the bootstrap index may have been rolled over and
	// removed; recreating it would leave an index outside the alias.
	if !aliasExists {
		if err := m.ensureIndex(ctx, s.BootstrapIndex(), nil); err != nil {
			return err
		}
		if err := m.engine.PutAlias(ctx, s.BootstrapIndex(), s.DataAlias(), true); err != nil {
			return fmt.Errorf("failed to create alias %s on %s: %w", s.DataAlias(), s.BootstrapIndex(), err)
		}
		m.logger.Info("Created data alias",
			zap.String("alias", s.DataAlias()),
			zap.String("index", s.BootstrapIndex()),
		)
	}

	if err := m.ensureIndex(ctx, s.NamespaceIndex(), s.NamespaceIndexBody()); err != nil {
		return err
	}

	m.logger.Info("Applied index template",
		zap.String("template", s.TemplateName()),
		zap.String("pattern", s.TemplatePattern()),
		zap.Int("shards", s.Shards()),
		zap.Int("replicas", s.Replicas()),
	)

	return nil
}

func (m *TemplateManager) ensureIndex(ctx context.Context, index string, body map[string]any) error {
	exists, err := m.engine.IndexExists(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", index, err)
	}
	if exists {
		return nil
	}

	err = m.engine.CreateIndex(ctx, index, body)
	switch {
	case errors.Is(err, engine.ErrAlreadyExists):
		m.logger.Debug("Index created concurrently", zap.String("index", index))
		return nil
	case err != nil:
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}

	m.logger.Info("Created index", zap.String("index", index))
	return nil
}

// Upgrade re-applies the schema and, when rollover is set, rolls the data
// alias over to a new backing index. newIndex names that index; empty lets
// the engine choose, and it is ignored without rollover. Older backing indices stay readable through the alias.
func (m *TemplateManager) Upgrade(ctx context.Context, rollover bool, newIndex string) (*model.MigrationReport, error) {
	if err := m.Apply(ctx); err != nil {
		return nil, err
	}

	if !rollover {
		if newIndex != "" {
			m.logger.Warn("Ignoring new index name without rollover", zap.String("new_index", newIndex))
		}
		return &model.MigrationReport{RolledOver: false}, nil
	}

	alias := m.settings.DataAlias()
	res, err := m.engine.Rollover(ctx, engine.RolloverRequest{
		Alias:      alias,
		NewIndex:   newIndex,
		Conditions: map[string]any{"max_docs": 0},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to roll over alias %s: %w", alias, err)
	}

	report := &model.MigrationReport{
		RolledOver:   res.RolledOver,
		Acknowledged: res.Acknowledged,
	}
	if res.NewIndex != "" {
		report.NewIndex = &res.NewIndex
	}
	if res.OldIndex != "" {
		report.OldIndex = &res.OldIndex
	}

	m.logger.Info("Rolled over data alias",
		zap.String("alias", alias),
		zap.Bool("rolled_over", res.RolledOver),
		zap.String("old_index", res.OldIndex),
		zap.String("new_index", res.NewIndex),
	)

	return report, nil
}
