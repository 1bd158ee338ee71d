// Package storage maps namespaced items onto documents behind the data alias
// and keeps one namespace record per live namespace.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
)

const (
	// DefaultSearchLimit is the number of items a search returns by default.
	DefaultSearchLimit = 10
	// DefaultNamespaceLimit is the number of namespaces a listing returns by default.
	DefaultNamespaceLimit = 100
	// DefaultMaxNamespaces bounds how many namespace records a listing reads.
	DefaultMaxNamespaces = 10000

	// maxGenerations bounds how many copies of one document a lookup reads.
	// Each rollover can leave at most one stale copy behind.
	maxGenerations = 100
)

// ItemStore defines the item operations exposed to callers.
type ItemStore interface {
	// Put stores value under namespace and key, replacing any previous value.
	Put(ctx context.Context, namespace []string, key string, value map[string]any, opts ...PutOption) error

	// Get returns the item, or nil without error when it does not exist or has expired.
	Get(ctx context.Context, namespace []string, key string) (*model.Item, error)

	// Delete removes the item. Deleting a missing item is not an error.
	Delete(ctx context.Context, namespace []string, key string) error

	// Search returns items under a namespace prefix, optionally matching a free-text query.
	Search(ctx context.Context, req model.SearchRequest) ([]model.SearchItem, error)

	// ListNamespaces returns the distinct namespaces holding items. Namespaces
	// whose items expired are listed until the TTL sweep removes them.
	ListNamespaces(ctx context.Context, req model.ListNamespacesRequest) ([]model.Namespace, error)
}

// Options configures a DocumentStore.
type Options struct {
	// DefaultTTL applies to writes made without a TTL option. Zero means items never expire.
	DefaultTTL time.Duration

	// MaxNamespaces bounds how many namespace records a listing reads.
	MaxNamespaces int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// PutOption configures a single Put.
type PutOption func(*putOptions)

type putOptions struct {
	ttl       time.Duration
	ttlSet    bool
	expiresAt time.Time
}

// WithTTL expires the item d after the write. Zero disables expiry for this
// write even when a default TTL is configured.
func WithTTL(d time.Duration) PutOption {
	return func(o *putOptions) {
		o.ttl = d
		o.ttlSet = true
		o.expiresAt = time.Time{}
	}
}

// WithExpiry expires the item at t. A zero t disables expiry.
func WithExpiry(t time.Time) PutOption {
	return func(o *putOptions) {
		o.expiresAt = t
		o.ttl = 0
		o.ttlSet = true
	}
}

// DocumentStore implements ItemStore on top of an engine.Engine.
type DocumentStore struct {
	engine   engine.Engine
	settings *schema.Settings
	logger   *zap.Logger
	opts     Options
}

var _ ItemStore = (*DocumentStore)(nil)

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(eng engine.Engine, settings *schema.Settings, logger *zap.Logger, opts Options) *DocumentStore {
	if opts.MaxNamespaces <= 0 {
		opts.MaxNamespaces = DefaultMaxNamespaces
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &DocumentStore{
		engine:   eng,
		settings: settings,
		logger:   logger,
		opts:     opts,
	}
}

// now returns the current time at the precision documents store.
func (s *DocumentStore) now() time.Time {
	return s.opts.Now().UTC().Truncate(time.Millisecond)
}

// Put stores value under namespace and key. The item keeps its created_at
// while a live copy exists; writes through the alias land in the newest
// backing index and copies left in older generations are removed.
func (s *DocumentStore) Put(ctx context.Context, namespace []string, key string, value map[string]any, opts ...PutOption) error {
	id, err := schema.DocumentID(namespace, key)
	if err != nil {
		return err
	}
	if value == nil {
		value = map[string]any{}
	}
	if _, err := json.Marshal(value); err != nil {
		return fmt.Errorf("%w: value is not JSON encodable: %v", model.ErrInvalidArgument, err)
	}

	o := putOptions{ttl: s.opts.DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl < 0 {
		return fmt.Errorf("%w: ttl must not be negative, got: %s", model.ErrInvalidArgument, o.ttl)
	}

	now := s.now()

	var expiresAt *time.Time
	var ttlSeconds int64
	switch {
	case !o.expiresAt.IsZero():
		t := o.expiresAt.UTC().Truncate(time.Millisecond)
		expiresAt = &t
	case o.ttl > 0:
		t := now.Add(o.ttl)
		expiresAt = &t
		ttlSeconds = int64(o.ttl / time.Second)
	}

	alias := s.settings.DataAlias()

	copies, err := s.copies(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up item %s: %w", id, err)
	}

	createdAt := now
	if current := newest(copies); current != nil && isLive(current, now) {
		createdAt = current.CreatedAt
	}

	item := &model.Item{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		CreatedAt: createdAt,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}

	written, err := s.engine.IndexDocument(ctx, alias, id, s.document(item, ttlSeconds))
	if err != nil {
		return fmt.Errorf("failed to index item %s into %s: %w", id, alias, err)
	}

	for _, c := range copies {
		if c.index == written {
			continue
		}
		if _, err := s.engine.DeleteDocument(ctx, c.index, id); err != nil {
			return fmt.Errorf("failed to remove stale copy of %s from %s: %w", id, c.index, err)
		}
		s.logger.Debug("Removed stale copy", zap.String("id", id), zap.String("index", c.index))
	}

	// An item written already expired must not create a namespace record
	if expiresAt != nil && !expiresAt.After(now) {
		if err := s.SyncNamespace(ctx, namespace); err != nil {
			return err
		}
	} else if err := s.upsertNamespace(ctx, namespace, now); err != nil {
		return err
	}

	s.logger.Debug("Stored item",
		zap.String("namespace", schema.NamespacePath(namespace)),
		zap.String("key", key),
		zap.String("index", written),
	)

	return nil
}

// Get returns the newest copy of the item, or nil when it does not exist or has expired.
func (s *DocumentStore) Get(ctx context.Context, namespace []string, key string) (*model.Item, error) {
	id, err := schema.DocumentID(namespace, key)
	if err != nil {
		return nil, err
	}

	copies, err := s.copies(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}

	current := newest(copies)
	if current == nil || !isLive(current, s.now()) {
		return nil, nil
	}
	return &current.Item, nil
}

// Delete removes every copy of the item and synchronises its namespace record.
func (s *DocumentStore) Delete(ctx context.Context, namespace []string, key string) error {
	id, err := schema.DocumentID(namespace, key)
	if err != nil {
		return err
	}

	alias := s.settings.DataAlias()
	deleted, err := s.engine.DeleteByQuery(ctx, alias, engine.IDs(id))
	if err != nil {
		return fmt.Errorf("failed to delete item %s from %s: %w", id, alias, err)
	}

	if err := s.SyncNamespace(ctx, namespace); err != nil {
		return err
	}

	s.logger.Debug("Deleted item",
		zap.String("namespace", schema.NamespacePath(namespace)),
		zap.String("key", key),
		zap.Int64("deleted", deleted),
	)

	return nil
}

// storedCopy is one copy of a document in a backing index.
type storedCopy struct {
	model.Item
	index string
}

// copies returns every copy of id across the backing indices of the alias.
func (s *DocumentStore) copies(ctx context.Context, id string) ([]storedCopy, error) {
	res, err := s.engine.Search(ctx, s.settings.DataAlias(), engine.Query{
		Filters: []engine.Filter{engine.IDs(id)},
		Size:    maxGenerations,
	})
	if err != nil {
		return nil, err
	}

	copies := make([]storedCopy, 0, len(res.Hits))
	for _, hit := range res.Hits {
		item, err := decodeItem(hit.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s in %s: %w", hit.ID, hit.Index, err)
		}
		copies = append(copies, storedCopy{Item: *item, index: hit.Index})
	}
	return copies, nil
}

// newest returns the most recently updated copy.
func newest(copies []storedCopy) *storedCopy {
	var current *storedCopy
	for i := range copies {
		if current == nil || copies[i].UpdatedAt.After(current.UpdatedAt) {
			current = &copies[i]
		}
	}
	return current
}

func isLive(c *storedCopy, now time.Time) bool {
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}
