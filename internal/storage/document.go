package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
)

// document renders item as a data document.
func (s *DocumentStore) document(item *model.Item, ttlSeconds int64) map[string]any {
	doc := namespaceFields(item.Namespace)
	doc[schema.FieldKey] = item.Key
	doc[schema.FieldValue] = item.Value
	doc[schema.FieldText] = extractText(item.Value)
	doc[schema.FieldCreatedAt] = formatTime(item.CreatedAt)
	doc[schema.FieldUpdatedAt] = formatTime(item.UpdatedAt)
	if item.ExpiresAt != nil {
		doc[schema.FieldExpiresAt] = formatTime(*item.ExpiresAt)
	}
	if ttlSeconds > 0 {
		doc[schema.FieldTTLSeconds] = ttlSeconds
	}
	return doc
}

// namespaceFields returns the namespace fields shared by data documents and
// namespace records.
func namespaceFields(namespace []string) map[string]any {
	return map[string]any{
		schema.FieldNamespace:         append([]string(nil), namespace...),
		schema.FieldNamespacePath:     schema.NamespacePath(namespace),
		schema.FieldNamespacePrefixes: schema.NamespacePrefixes(namespace),
		schema.FieldNamespaceDepth:    len(namespace),
	}
}

// decodeItem reads an item back from a data document source.
func decodeItem(source map[string]any) (*model.Item, error) {
	item := &model.Item{}

	namespace, err := stringSlice(source[schema.FieldNamespace])
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", schema.FieldNamespace, err)
	}
	item.Namespace = namespace

	key, ok := source[schema.FieldKey].(string)
	if !ok {
		return nil, fmt.Errorf("field %s: missing or not a string", schema.FieldKey)
	}
	item.Key = key

	item.Value, _ = source[schema.FieldValue].(map[string]any)
	if item.Value == nil {
		item.Value = map[string]any{}
	}

	if item.CreatedAt, err = parseTime(source[schema.FieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("field %s: %w", schema.FieldCreatedAt, err)
	}
	if item.UpdatedAt, err = parseTime(source[schema.FieldUpdatedAt]); err != nil {
		return nil, fmt.Errorf("field %s: %w", schema.FieldUpdatedAt, err)
	}
	if raw, ok := source[schema.FieldExpiresAt]; ok && raw != nil {
		expiresAt, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", schema.FieldExpiresAt, err)
		}
		item.ExpiresAt = &expiresAt
	}

	return item, nil
}

func stringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("element %v is not a string", elem)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("missing or not a list")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(schema.TimeLayout)
}

func parseTime(raw any) (time.Time, error) {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("missing or not a string")
	}
	return time.Parse(time.RFC3339Nano, s)
}

// extractText joins every string leaf of value with spaces. Map keys are
// visited in sorted order so the text is stable across writes.
func extractText(value map[string]any) string {
	var parts []string
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if t != "" {
				parts = append(parts, t)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		case []any:
			for _, elem := range t {
				walk(elem)
			}
		case []string:
			for _, elem := range t {
				walk(elem)
			}
		}
	}
	walk(value)
	return strings.Join(parts, " ")
}
