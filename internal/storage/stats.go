package storage

import (
	"context"
	"fmt"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
)

// Stats reports item and namespace counts and the backing indices of the data alias.
func (s *DocumentStore) Stats(ctx context.Context) (*model.StatsReport, error) {
	alias := s.settings.DataAlias()

	items, err := s.engine.Count(ctx, alias,
		engine.LTE(schema.FieldExpiresAt, formatTime(s.now())).Negate(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count items on %s: %w", alias, err)
	}

	index := s.settings.NamespaceIndex()
	namespaces, err := s.engine.Count(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("failed to count namespace records on %s: %w", index, err)
	}

	targets, err := s.engine.GetAlias(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("failed to get alias %s: %w", alias, err)
	}

	report := &model.StatsReport{
		TotalItems:      items,
		TotalNamespaces: namespaces,
		Alias:           alias,
		Indices:         make([]string, 0, len(targets)),
	}
	for _, t := range targets {
		report.Indices = append(report.Indices, t.Index)
		if t.IsWriteIndex {
			report.WriteIndex = t.Index
		}
	}

	stats, err := s.engine.IndexStats(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("failed to get index stats for %s: %w", alias, err)
	}
	report.StoreSizeBytes = stats.StoreSizeBytes

	return report, nil
}

// Health reports the engine's health classification for the data alias.
func (s *DocumentStore) Health(ctx context.Context) (*model.HealthReport, error) {
	alias := s.settings.DataAlias()

	ch, err := s.engine.ClusterHealth(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster health for %s: %w", alias, err)
	}

	return &model.HealthReport{
		Status:           ch.Status,
		ClusterName:      ch.ClusterName,
		NumberOfNodes:    ch.NumberOfNodes,
		ActiveShards:     ch.ActiveShards,
		UnassignedShards: ch.UnassignedShards,
		TimedOut:         ch.TimedOut,
	}, nil
}
