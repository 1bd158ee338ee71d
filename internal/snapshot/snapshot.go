// Package snapshot creates, restores and deletes snapshots of the store's indices.
package snapshot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
)

// Orchestrator runs snapshot operations against a configured repository.
type Orchestrator struct {
	logger   *zap.Logger
	engine   engine.Engine
	settings *schema.Settings
}

// NewOrchestrator creates a new snapshot orchestrator.
func NewOrchestrator(logger *zap.Logger, eng engine.Engine, settings *schema.Settings) *Orchestrator {
	return &Orchestrator{
		logger:   logger,
		engine:   eng,
		settings: settings,
	}
}

// Create snapshots indices into repository. Without indices it snapshots
// every backing index of the data alias and the namespace index. The engine's
// report is returned unmodified; wait blocks until the snapshot completes.
func (o *Orchestrator) Create(ctx context.Context, repository, snapshot string, indices []string, wait bool) (map[string]any, error) {
	if err := validate(repository, snapshot); err != nil {
		return nil, err
	}

	if len(indices) == 0 {
		var err error
		if indices, err = o.defaultIndices(ctx); err != nil {
			return nil, err
		}
	}

	report, err := o.engine.CreateSnapshot(ctx, engine.SnapshotRequest{
		Repository: repository,
		Snapshot:   snapshot,
		Indices:    indices,
		Wait:       wait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot %s/%s: %w", repository, snapshot, err)
	}

	o.logger.Info("Created snapshot",
		zap.String("repository", repository),
		zap.String("snapshot", snapshot),
		zap.Strings("indices", indices),
		zap.Bool("wait", wait),
	)

	return report, nil
}

// Restore restores snapshot from repository. Empty indices restores every
// index in the snapshot. Restoring over open indices fails in the engine.
func (o *Orchestrator) Restore(ctx context.Context, repository, snapshot string, indices []string, wait bool) (map[string]any, error) {
	if err := validate(repository, snapshot); err != nil {
		return nil, err
	}

	report, err := o.engine.RestoreSnapshot(ctx, engine.SnapshotRequest{
		Repository: repository,
		Snapshot:   snapshot,
		Indices:    indices,
		Wait:       wait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to restore snapshot %s/%s: %w", repository, snapshot, err)
	}

	o.logger.Info("Restored snapshot",
		zap.String("repository", repository),
		zap.String("snapshot", snapshot),
		zap.Strings("indices", indices),
		zap.Bool("wait", wait),
	)

	return report, nil
}

// Delete removes snapshot from repository.
func (o *Orchestrator) Delete(ctx context.Context, repository, snapshot string) (map[string]any, error) {
	if err := validate(repository, snapshot); err != nil {
		return nil, err
	}

	report, err := o.engine.DeleteSnapshot(ctx, repository, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to delete snapshot %s/%s: %w", repository, snapshot, err)
	}

	o.logger.Info("Deleted snapshot",
		zap.String("repository", repository),
		zap.String("snapshot", snapshot),
	)

	return report, nil
}

// defaultIndices resolves the alias to its backing indices; snapshotting the
// alias name alone would not capture older generations.
func (o *Orchestrator) defaultIndices(ctx context.Context) ([]string, error) {
	alias := o.settings.DataAlias()
	targets, err := o.engine.GetAlias(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alias %s: %w", alias, err)
	}

	indices := make([]string, 0, len(targets)+1)
	for _, t := range targets {
		indices = append(indices, t.Index)
	}
	return append(indices, o.settings.NamespaceIndex()), nil
}

func validate(repository, snapshot string) error {
	if strings.TrimSpace(repository) == "" {
		return fmt.Errorf("%w: repository must not be empty", model.ErrInvalidArgument)
	}
	if strings.TrimSpace(snapshot) == "" {
		return fmt.Errorf("%w: snapshot must not be empty", model.ErrInvalidArgument)
	}
	return nil
}

// ParseIndices splits a comma separated index list, dropping blank entries.
// It returns nil when no index remains.
func ParseIndices(list string) []string {
	var indices []string
	for _, index := range strings.Split(list, ",") {
		if index = strings.TrimSpace(index); index != "" {
			indices = append(indices, index)
		}
	}
	return indices
}
