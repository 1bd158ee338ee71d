// Package schema defines the document schema, the names derived from the index
// prefix, and the template manager that installs and upgrades them.
package schema

import (
	"fmt"
	"regexp"
)

// Document field names shared by the data and namespace indices.
const (
	FieldNamespace         = "namespace"
	FieldNamespacePath     = "namespace_path"
	FieldNamespacePrefixes = "namespace_prefixes"
	FieldNamespaceDepth    = "namespace_depth"
	FieldKey               = "key"
	FieldValue             = "value"
	FieldText              = "text"
	FieldCreatedAt         = "created_at"
	FieldUpdatedAt         = "updated_at"
	FieldExpiresAt         = "expires_at"
	FieldTTLSeconds        = "ttl_seconds"
)

const (
	// DefaultPrefix is the index prefix used when none is configured.
	DefaultPrefix = "langgraph"
	// DefaultShards is the number of primary shards per backing index.
	DefaultShards = 1
	// DefaultReplicas is the number of replicas per backing index.
	DefaultReplicas = 0
)

// TimeLayout is the layout used for every date field.
const TimeLayout = "2006-01-02T15:04:05.000Z"

var prefixPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Settings holds the names and index settings derived from a prefix.
// It is immutable once created.
type Settings struct {
	prefix   string
	shards   int
	replicas int
}

// NewSettings returns Settings for prefix. The prefix must be a valid
// lowercase index name fragment.
func NewSettings(prefix string, shards, replicas int) (*Settings, error) {
	if !prefixPattern.MatchString(prefix) {
		return nil, fmt.Errorf("invalid index prefix %q: must be lowercase letters, digits, '.', '_' or '-'", prefix)
	}
	if shards < 1 {
		return nil, fmt.Errorf("shards must be at least 1, got: %d", shards)
	}
	if replicas < 0 {
		return nil, fmt.Errorf("replicas must be zero or greater, got: %d", replicas)
	}
	return &Settings{prefix: prefix, shards: shards, replicas: replicas}, nil
}

// Prefix returns the index prefix.
func (s *Settings) Prefix() string { return s.prefix }

// Shards returns the number of primary shards per backing index.
func (s *Settings) Shards() int { return s.shards }

// Replicas returns the number of replicas per backing index.
func (s *Settings) Replicas() int { return s.replicas }

// DataAlias is the alias every data read and write goes through.
func (s *Settings) DataAlias() string { return s.prefix + "-data" }

// BootstrapIndex is the first backing index behind the data alias.
func (s *Settings) BootstrapIndex() string { return s.prefix + "-data-000001" }

// TemplateName is the name of the data index template.
func (s *Settings) TemplateName() string { return s.prefix + "-data-template" }

// TemplatePattern matches every backing index of the data alias.
func (s *Settings) TemplatePattern() string { return s.prefix + "-data-*" }

// NamespaceIndex holds one record per live namespace.
func (s *Settings) NamespaceIndex() string { return s.prefix + "-namespaces" }

// indexSettings are applied to every index the store creates.
func (s *Settings) indexSettings() map[string]any {
	return map[string]any{
		"number_of_shards":   s.shards,
		"number_of_replicas": s.replicas,
	}
}

// DataMappings returns the mappings of a data document.
func (s *Settings) DataMappings() map[string]any {
	return map[string]any{
		"dynamic": "strict",
		"properties": map[string]any{
			FieldNamespace:         map[string]any{"type": "keyword"},
			FieldNamespacePath:     map[string]any{"type": "keyword"},
			FieldNamespacePrefixes: map[string]any{"type": "keyword"},
			FieldNamespaceDepth:    map[string]any{"type": "integer"},
			FieldKey:               map[string]any{"type": "keyword"},
			FieldValue:             map[string]any{"type": "object", "enabled": false},
			FieldText:              map[string]any{"type": "text"},
			FieldCreatedAt:         map[string]any{"type": "date"},
			FieldUpdatedAt:         map[string]any{"type": "date"},
			FieldExpiresAt:         map[string]any{"type": "date"},
			FieldTTLSeconds:        map[string]any{"type": "long"},
		},
	}
}

// NamespaceMappings returns the mappings of a namespace record.
func (s *Settings) NamespaceMappings() map[string]any {
	return map[string]any{
		"dynamic": "strict",
		"properties": map[string]any{
			FieldNamespace:         map[string]any{"type": "keyword"},
			FieldNamespacePath:     map[string]any{"type": "keyword"},
			FieldNamespacePrefixes: map[string]any{"type": "keyword"},
			FieldNamespaceDepth:    map[string]any{"type": "integer"},
			FieldUpdatedAt:         map[string]any{"type": "date"},
		},
	}
}

// TemplateBody returns the composable index template for the data indices.
func (s *Settings) TemplateBody() map[string]any {
	return map[string]any{
		"index_patterns": []string{s.TemplatePattern()},
		"template": map[string]any{
			"settings": s.indexSettings(),
			"mappings": s.DataMappings(),
		},
	}
}

// NamespaceIndexBody returns the create body of the namespace index.
func (s *Settings) NamespaceIndexBody() map[string]any {
	return map[string]any{
		"settings": s.indexSettings(),
		"mappings": s.NamespaceMappings(),
	}
}
