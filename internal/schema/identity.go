package schema

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
)

const (
	// SegmentSeparator joins namespace segments into a path.
	SegmentSeparator = "\u001f"
	// KeySeparator separates the namespace path from the key in a document id.
	KeySeparator = "\u001e"
	// MaxIDBytes is the longest document id the engine accepts.
	MaxIDBytes = 512
)

// ValidateNamespace checks that namespace is usable as a document namespace.
// An empty namespace is only accepted when allowEmpty is set, as for a search
// prefix matching everything.
func ValidateNamespace(namespace []string, allowEmpty bool) error {
	if len(namespace) == 0 && !allowEmpty {
		return fmt.Errorf("%w: namespace must have at least one segment", model.ErrInvalidArgument)
	}
	for i, segment := range namespace {
		if segment == "" {
			return fmt.Errorf("%w: namespace segment %d is empty", model.ErrInvalidArgument, i)
		}
		if strings.ContainsAny(segment, SegmentSeparator+KeySeparator) {
			return fmt.Errorf("%w: namespace segment %d contains a reserved separator", model.ErrInvalidArgument, i)
		}
	}
	return nil
}

// DocumentID validates namespace and key and returns the document id.
// The id is the unpadded URL-safe base64 of the namespace path and key.
func DocumentID(namespace []string, key string) (string, error) {
	if err := ValidateNamespace(namespace, false); err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("%w: key must not be empty", model.ErrInvalidArgument)
	}

	id := base64.RawURLEncoding.EncodeToString([]byte(NamespacePath(namespace) + KeySeparator + key))
	if len(id) > MaxIDBytes {
		return "", fmt.Errorf("%w: document id is %d bytes, limit is %d", model.ErrInvalidArgument, len(id), MaxIDBytes)
	}
	return id, nil
}

// NamespaceID returns the id of a namespace record.
func NamespaceID(namespace []string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(NamespacePath(namespace)))
}

// NamespacePath joins namespace segments into a single keyword.
func NamespacePath(namespace []string) string {
	return strings.Join(namespace, SegmentSeparator)
}

// SplitPath reverses NamespacePath.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, SegmentSeparator)
}

// NamespacePrefixes returns the path of every non-empty leading sub-namespace,
// shortest first. A term query on the prefixes field therefore matches
// namespaces by whole segments.
func NamespacePrefixes(namespace []string) []string {
	prefixes := make([]string, 0, len(namespace))
	for i := 1; i <= len(namespace); i++ {
		prefixes = append(prefixes, NamespacePath(namespace[:i]))
	}
	return prefixes
}
