package storage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
)

// Search returns live items under req.NamespacePrefix. With a query, items
// are ordered by relevance; otherwise by most recent update, then namespace
// and key.
func (s *DocumentStore) Search(ctx context.Context, req model.SearchRequest) ([]model.SearchItem, error) {
	if err := schema.ValidateNamespace(req.NamespacePrefix, true); err != nil {
		return nil, err
	}
	limit, err := pageLimit(req.Limit, req.Offset, DefaultSearchLimit)
	if err != nil {
		return nil, err
	}

	filters := []engine.Filter{
		engine.LTE(schema.FieldExpiresAt, formatTime(s.now())).Negate(),
	}
	if len(req.NamespacePrefix) > 0 {
		filters = append(filters, engine.Term(schema.FieldNamespacePrefixes, schema.NamespacePath(req.NamespacePrefix)))
	}

	alias := s.settings.DataAlias()
	res, err := s.engine.Search(ctx, alias, engine.Query{
		Filters:   filters,
		Text:      strings.TrimSpace(req.Query),
		TextField: schema.FieldText,
		Sort: []engine.Sort{
			{Field: schema.FieldUpdatedAt, Desc: true},
			{Field: schema.FieldNamespacePath},
			{Field: schema.FieldKey},
		},
		Size: limit,
		From: req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", alias, err)
	}

	items := make([]model.SearchItem, 0, len(res.Hits))
	for _, hit := range res.Hits {
		item, err := decodeItem(hit.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s in %s: %w", hit.ID, hit.Index, err)
		}
		items = append(items, model.SearchItem{Item: *item, Score: hit.Score})
	}
	return items, nil
}

// ListNamespaces returns namespaces from the namespace records, sorted by
// path. MaxDepth truncates longer namespaces and removes the duplicates this
// produces. Records follow expiry only once the TTL sweep has removed the
// expired items, so a namespace whose items all expired stays listed until
// the next sweep.
func (s *DocumentStore) ListNamespaces(ctx context.Context, req model.ListNamespacesRequest) ([]model.Namespace, error) {
	if err := schema.ValidateNamespace(req.Prefix, true); err != nil {
		return nil, err
	}
	if err := schema.ValidateNamespace(req.Suffix, true); err != nil {
		return nil, err
	}
	if req.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max depth must not be negative, got: %d", model.ErrInvalidArgument, req.MaxDepth)
	}
	limit, err := pageLimit(req.Limit, req.Offset, DefaultNamespaceLimit)
	if err != nil {
		return nil, err
	}

	var filters []engine.Filter
	if len(req.Prefix) > 0 {
		filters = append(filters, engine.Term(schema.FieldNamespacePrefixes, schema.NamespacePath(req.Prefix)))
	}

	index := s.settings.NamespaceIndex()
	res, err := s.engine.Search(ctx, index, engine.Query{
		Filters: filters,
		Sort:    []engine.Sort{{Field: schema.FieldNamespacePath}},
		Size:    s.opts.MaxNamespaces,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces from %s: %w", index, err)
	}
	if res.Total > int64(len(res.Hits)) {
		s.logger.Warn("Namespace listing truncated",
			zap.Int64("total", res.Total),
			zap.Int("read", len(res.Hits)),
		)
	}

	seen := make(map[string]bool, len(res.Hits))
	var namespaces []model.Namespace
	for _, hit := range res.Hits {
		path, _ := hit.Source[schema.FieldNamespacePath].(string)
		namespace := schema.SplitPath(path)
		if len(namespace) == 0 || !hasSuffix(namespace, req.Suffix) {
			continue
		}
		if req.MaxDepth > 0 && len(namespace) > req.MaxDepth {
			namespace = namespace[:req.MaxDepth]
		}
		key := schema.NamespacePath(namespace)
		if seen[key] {
			continue
		}
		seen[key] = true
		namespaces = append(namespaces, model.Namespace(namespace))
	}

	if req.Offset >= len(namespaces) {
		return []model.Namespace{}, nil
	}
	namespaces = namespaces[req.Offset:]
	if len(namespaces) > limit {
		namespaces = namespaces[:limit]
	}
	return namespaces, nil
}

func hasSuffix(namespace, suffix []string) bool {
	if len(suffix) > len(namespace) {
		return false
	}
	tail := namespace[len(namespace)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}

// pageLimit validates paging parameters and applies the default limit.
func pageLimit(limit, offset, defaultLimit int) (int, error) {
	if limit < 0 {
		return 0, fmt.Errorf("%w: limit must not be negative, got: %d", model.ErrInvalidArgument, limit)
	}
	if offset < 0 {
		return 0, fmt.Errorf("%w: offset must not be negative, got: %d", model.ErrInvalidArgument, offset)
	}
	if limit == 0 {
		return defaultLimit, nil
	}
	return limit, nil
}
