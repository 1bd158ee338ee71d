package store

import (
	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/health"
)

// HealthCheckers returns the checkers that report on the store's engine:
// connectivity, cluster status for the data alias, and presence of the
// alias and namespace index.
func (s *Store) HealthCheckers(logger *zap.Logger) []health.Checker {
	return []health.Checker{
		engine.NewConnectionHealthChecker(logger, s.engine),
		engine.NewClusterHealthChecker(logger, s.engine, s.settings.DataAlias()),
		engine.NewIndicesHealthChecker(logger, s.engine, s.settings.DataAlias(), s.settings.NamespaceIndex()),
	}
}
