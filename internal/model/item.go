package model

import (
	"errors"
	"time"
)

// ErrInvalidArgument is returned when a caller supplies a malformed namespace,
// key, or batch size. It is always returned before the search engine is contacted.
var ErrInvalidArgument = errors.New("invalid argument")

// Item represents a stored document together with its metadata.
type Item struct {
	// Namespace is the ordered list of path segments the item lives under.
	Namespace []string `json:"namespace"`

	// Key identifies the item within its namespace.
	Key string `json:"key"`

	// Value is the JSON payload stored for the item.
	Value map[string]any `json:"value"`

	// CreatedAt is when the item was first written.
	// A key that is deleted and written again receives a new CreatedAt.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the item was last written.
	UpdatedAt time.Time `json:"updated_at"`

	// ExpiresAt is when the item becomes eligible for the TTL sweep.
	// Nil means the item never expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SearchItem is an Item returned by a search, with its relevance score when a
// free-text query was given.
type SearchItem struct {
	Item

	// Score is the engine's relevance score. Nil when no query was given.
	Score *float64 `json:"score,omitempty"`
}

// Namespace is a distinct namespace path returned by a namespace listing.
type Namespace []string

// SearchRequest describes a search over items.
type SearchRequest struct {
	// NamespacePrefix restricts results to items whose namespace starts with
	// these segments. Empty matches every namespace.
	NamespacePrefix []string `json:"namespace_prefix"`

	// Query is an optional free-text query matched against the item value.
	Query string `json:"query,omitempty"`

	// Limit bounds the number of results. Zero uses the default.
	Limit int `json:"limit,omitempty"`

	// Offset skips that many results.
	Offset int `json:"offset,omitempty"`
}

// ListNamespacesRequest describes a namespace listing.
type ListNamespacesRequest struct {
	// Prefix restricts the listing to namespaces starting with these segments.
	Prefix []string `json:"prefix,omitempty"`

	// Suffix restricts the listing to namespaces ending with these segments.
	Suffix []string `json:"suffix,omitempty"`

	// MaxDepth truncates namespaces to this many segments, removing duplicates.
	// Zero means no truncation.
	MaxDepth int `json:"max_depth,omitempty"`

	// Limit bounds the number of namespaces returned. Zero uses the default.
	Limit int `json:"limit,omitempty"`

	// Offset skips that many namespaces.
	Offset int `json:"offset,omitempty"`
}
