package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine/enginetest"
	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
)

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine   *enginetest.Engine
	settings *schema.Settings
	clock    *testClock
	store    *DocumentStore
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	settings, err := schema.NewSettings(schema.DefaultPrefix, schema.DefaultShards, schema.DefaultReplicas)
	require.NoError(t, err)

	fake := enginetest.New()
	require.NoError(t, schema.NewTemplateManager(zap.NewNop(), fake, settings).Apply(context.Background()))
	fake.ResetCalls()

	clock := newTestClock()
	opts.Now = clock.Now

	return &fixture{
		engine:   fake,
		settings: settings,
		clock:    clock,
		store:    NewDocumentStore(fake, settings, zap.NewNop(), opts),
	}
}

func (f *fixture) namespaces(t *testing.T, prefix ...string) []model.Namespace {
	t.Helper()
	namespaces, err := f.store.ListNamespaces(context.Background(), model.ListNamespacesRequest{Prefix: prefix})
	require.NoError(t, err)
	return namespaces
}

func TestDocumentStore_PutGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	ns := []string{"users", "alice"}
	value := map[string]any{"theme": "dark", "nested": map[string]any{"size": float64(3)}}
	require.NoError(t, f.store.Put(ctx, ns, "prefs", value))

	item, err := f.store.Get(ctx, ns, "prefs")
	require.NoError(t, err)
	require.NotNil(t, item)

	assert.Equal(t, ns, item.Namespace)
	assert.Equal(t, "prefs", item.Key)
	assert.Equal(t, value, item.Value)
	assert.Equal(t, f.clock.Now(), item.CreatedAt)
	assert.Equal(t, f.clock.Now(), item.UpdatedAt)
	assert.Nil(t, item.ExpiresAt)

	missing, err := f.store.Get(ctx, ns, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDocumentStore_EmptyValueIsNotAbsent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	require.NoError(t, f.store.Put(ctx, []string{"a"}, "k", map[string]any{}))

	item, err := f.store.Get(ctx, []string{"a"}, "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, map[string]any{}, item.Value)
}

func TestDocumentStore_DocumentFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	ns := []string{"a", "b"}
	require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{"msg": "hello", "list": []any{"x", 1.0}}, WithTTL(time.Minute)))

	id, err := schema.DocumentID(ns, "k")
	require.NoError(t, err)
	doc, ok := f.engine.Document(f.settings.BootstrapIndex(), id)
	require.True(t, ok)

	assert.Equal(t, []any{"a", "b"}, doc[schema.FieldNamespace])
	assert.Equal(t, "a\u001fb", doc[schema.FieldNamespacePath])
	assert.Equal(t, []any{"a", "a\u001fb"}, doc[schema.FieldNamespacePrefixes])
	assert.Equal(t, float64(2), doc[schema.FieldNamespaceDepth])
	assert.Equal(t, "x hello", doc[schema.FieldText])
	assert.Equal(t, "2024-01-01T12:00:00.000Z", doc[schema.FieldCreatedAt])
	assert.Equal(t, "2024-01-01T12:01:00.000Z", doc[schema.FieldExpiresAt])
	assert.Equal(t, float64(60), doc[schema.FieldTTLSeconds])
}

func TestDocumentStore_UpsertIdempotence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	ns := []string{"users"}

	require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{"v": "1"}))
	created := f.clock.Now()

	f.clock.Advance(time.Minute)
	require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{"v": "2"}))

	item, err := f.store.Get(ctx, ns, "k")
	require.NoError(t, err)
	require.NotNil(t, item)

	assert.Equal(t, map[string]any{"v": "2"}, item.Value)
	assert.Equal(t, created, item.CreatedAt)
	assert.Equal(t, f.clock.Now(), item.UpdatedAt)
	assert.Equal(t, 1, f.engine.DocumentCount(f.settings.BootstrapIndex()))
	assert.Equal(t, 1, f.engine.DocumentCount(f.settings.NamespaceIndex()))
}

func TestDocumentStore_CreatedAtResetsAfterDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	ns := []string{"users"}

	require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{"v": "1"}))
	require.NoError(t, f.store.Delete(ctx, ns, "k"))

	f.clock.Advance(time.Hour)
	require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{"v": "2"}))

	item, err := f.store.Get(ctx, ns, "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, f.clock.Now(), item.CreatedAt)
}

func TestDocumentStore_CreatedAtResetsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	ns := []string{"users"}

	require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{}, WithTTL(time.Second)))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{}))

	item, err := f.store.Get(ctx, ns, "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, f.clock.Now(), item.CreatedAt)
	assert.Nil(t, item.ExpiresAt)
}

func TestDocumentStore_NamespaceReferenceCounting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	ns := []string{"team", "x"}

	require.NoError(t, f.store.Put(ctx, ns, "a", map[string]any{}))
	require.NoError(t, f.store.Put(ctx, ns, "b", map[string]any{}))

	require.NoError(t, f.store.Delete(ctx, ns, "a"))
	assert.Equal(t, []model.Namespace{{"team", "x"}}, f.namespaces(t))

	require.NoError(t, f.store.Delete(ctx, ns, "b"))
	assert.Empty(t, f.namespaces(t))
}

func TestDocumentStore_DeleteIdempotence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	ns := []string{"a"}

	require.NoError(t, f.store.Delete(ctx, ns, "missing"))

	require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{}))
	require.NoError(t, f.store.Delete(ctx, ns, "k"))
	require.NoError(t, f.store.Delete(ctx, ns, "k"))

	item, err := f.store.Get(ctx, ns, "k")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestDocumentStore_DeleteRepairsNamespaceRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	ns := []string{"a"}

	require.NoError(t, f.store.Put(ctx, ns, "k1", map[string]any{}))
	require.NoError(t, f.store.Put(ctx, ns, "k2", map[string]any{}))

	// Simulate a crash that lost the namespace record.
	_, err := f.engine.DeleteDocument(ctx, f.settings.NamespaceIndex(), schema.NamespaceID(ns))
	require.NoError(t, err)
	assert.Empty(t, f.namespaces(t))

	require.NoError(t, f.store.Delete(ctx, ns, "k1"))
	assert.Equal(t, []model.Namespace{{"a"}}, f.namespaces(t))
}

func TestDocumentStore_SearchPrefixMatchesWholeSegments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	require.NoError(t, f.store.Put(ctx, []string{"a", "b"}, "1", map[string]any{}))
	require.NoError(t, f.store.Put(ctx, []string{"a", "bc"}, "2", map[string]any{}))
	require.NoError(t, f.store.Put(ctx, []string{"ab"}, "3", map[string]any{}))

	keys := func(prefix ...string) []string {
		items, err := f.store.Search(ctx, model.SearchRequest{NamespacePrefix: prefix})
		require.NoError(t, err)
		var out []string
		for _, item := range items {
			out = append(out, item.Key)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"1", "2"}, keys("a"))
	assert.Equal(t, []string{"1"}, keys("a", "b"))
	assert.Equal(t, []string{"3"}, keys("ab"))
	assert.ElementsMatch(t, []string{"1", "2", "3"}, keys())
	assert.Empty(t, keys("a", "b", "c"))
}

func TestDocumentStore_SearchOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	require.NoError(t, f.store.Put(ctx, []string{"p", "b"}, "k", map[string]any{}))
	f.clock.Advance(time.Second)
	require.NoError(t, f.store.Put(ctx, []string{"p", "a"}, "k2", map[string]any{}))
	require.NoError(t, f.store.Put(ctx, []string{"p", "a"}, "k1", map[string]any{}))

	items, err := f.store.Search(ctx, model.SearchRequest{NamespacePrefix: []string{"p"}})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "k1", items[0].Key)
	assert.Equal(t, "k2", items[1].Key)
	assert.Equal(t, "k", items[2].Key)
	assert.Nil(t, items[0].Score)

	page, err := f.store.Search(ctx, model.SearchRequest{NamespacePrefix: []string{"p"}, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "k2", page[0].Key)
}

func TestDocumentStore_SearchQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	require.NoError(t, f.store.Put(ctx, []string{"prefs", "user_a"}, "color", map[string]any{"text": "I like blue"}))
	require.NoError(t, f.store.Put(ctx, []string{"prefs", "user_a"}, "food", map[string]any{"text": "I like pizza"}))
	require.NoError(t, f.store.Put(ctx, []string{"prefs", "user_b"}, "color", map[string]any{"text": "I like red"}))

	items, err := f.store.Search(ctx, model.SearchRequest{NamespacePrefix: []string{"prefs"}, Query: "like", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, err = f.store.Search(ctx, model.SearchRequest{NamespacePrefix: []string{"prefs"}, Query: "blue pizza like"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.NotNil(t, items[0].Score)
	assert.Greater(t, *items[0].Score, *items[2].Score)

	items, err = f.store.Search(ctx, model.SearchRequest{Query: "green"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDocumentStore_ExpiredItemsAreAbsent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{DefaultTTL: time.Minute})
	ns := []string{"cache"}

	require.NoError(t, f.store.Put(ctx, ns, "short", map[string]any{}))
	require.NoError(t, f.store.Put(ctx, ns, "forever", map[string]any{}, WithTTL(0)))
	require.NoError(t, f.store.Put(ctx, ns, "absolute", map[string]any{}, WithExpiry(f.clock.Now().Add(time.Hour))))

	item, err := f.store.Get(ctx, ns, "short")
	require.NoError(t, err)
	require.NotNil(t, item)
	require.NotNil(t, item.ExpiresAt)

	f.clock.Advance(2 * time.Minute)

	item, err = f.store.Get(ctx, ns, "short")
	require.NoError(t, err)
	assert.Nil(t, item)

	items, err := f.store.Search(ctx, model.SearchRequest{NamespacePrefix: ns})
	require.NoError(t, err)
	var keys []string
	for _, it := range items {
		keys = append(keys, it.Key)
	}
	assert.ElementsMatch(t, []string{"forever", "absolute"}, keys)

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalItems)
}

func TestDocumentStore_PutAlreadyExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	past := f.clock.Now().Add(-time.Hour)

	require.NoError(t, f.store.Put(ctx, []string{"a", "b"}, "k", map[string]any{}, WithExpiry(past)))

	item, err := f.store.Get(ctx, []string{"a", "b"}, "k")
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Empty(t, f.namespaces(t))

	// Live items keep the namespace listed
	require.NoError(t, f.store.Put(ctx, []string{"a", "b"}, "live", map[string]any{}))
	require.NoError(t, f.store.Put(ctx, []string{"a", "b"}, "k", map[string]any{}, WithExpiry(past)))
	assert.Equal(t, []model.Namespace{{"a", "b"}}, f.namespaces(t))

	// Overwriting the last live item with an expired one removes the record
	require.NoError(t, f.store.Put(ctx, []string{"a", "b"}, "live", map[string]any{}, WithExpiry(f.clock.Now())))
	assert.Empty(t, f.namespaces(t))
}

func TestDocumentStore_RolloverSafety(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	ns := []string{"a"}

	require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{"v": "old"}))
	require.NoError(t, f.store.Put(ctx, ns, "other", map[string]any{}))
	created := f.clock.Now()

	report, err := schema.NewTemplateManager(zap.NewNop(), f.engine, f.settings).Upgrade(ctx, true, "")
	require.NoError(t, err)
	require.True(t, report.RolledOver)
	newIndex := *report.NewIndex

	item, err := f.store.Get(ctx, ns, "k")
	require.NoError(t, err)
	require.NotNil(t, item, "item written before rollover must stay readable")

	f.clock.Advance(time.Second)
	require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{"v": "new"}))

	assert.Equal(t, 1, f.engine.DocumentCount(f.settings.BootstrapIndex()))
	assert.Equal(t, 1, f.engine.DocumentCount(newIndex))

	item, err = f.store.Get(ctx, ns, "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, map[string]any{"v": "new"}, item.Value)
	assert.Equal(t, created, item.CreatedAt)

	items, err := f.store.Search(ctx, model.SearchRequest{NamespacePrefix: ns})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, f.store.Delete(ctx, ns, "other"))
	assert.Zero(t, f.engine.DocumentCount(f.settings.BootstrapIndex()))

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalItems)
	assert.Equal(t, []string{f.settings.BootstrapIndex(), newIndex}, stats.Indices)
	assert.Equal(t, newIndex, stats.WriteIndex)
}

func TestDocumentStore_ListNamespaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	for _, ns := range [][]string{
		{"a", "b", "c"},
		{"a", "b", "d"},
		{"a", "x"},
		{"b", "c"},
		{"ab"},
	} {
		require.NoError(t, f.store.Put(ctx, ns, "k", map[string]any{}))
	}

	tests := []struct {
		name string
		req  model.ListNamespacesRequest
		want []model.Namespace
	}{
		{
			name: "all",
			req:  model.ListNamespacesRequest{},
			want: []model.Namespace{{"a", "b", "c"}, {"a", "b", "d"}, {"a", "x"}, {"ab"}, {"b", "c"}},
		},
		{
			name: "prefix",
			req:  model.ListNamespacesRequest{Prefix: []string{"a"}},
			want: []model.Namespace{{"a", "b", "c"}, {"a", "b", "d"}, {"a", "x"}},
		},
		{
			name: "suffix",
			req:  model.ListNamespacesRequest{Suffix: []string{"c"}},
			want: []model.Namespace{{"a", "b", "c"}, {"b", "c"}},
		},
		{
			name: "max depth",
			req:  model.ListNamespacesRequest{Prefix: []string{"a"}, MaxDepth: 2},
			want: []model.Namespace{{"a", "b"}, {"a", "x"}},
		},
		{
			name: "limit and offset",
			req:  model.ListNamespacesRequest{Limit: 2, Offset: 1},
			want: []model.Namespace{{"a", "b", "d"}, {"a", "x"}},
		},
		{
			name: "offset past end",
			req:  model.ListNamespacesRequest{Offset: 10},
			want: []model.Namespace{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.store.ListNamespaces(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentStore_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	tests := []struct {
		name string
		call func() error
	}{
		{name: "put empty namespace", call: func() error { return f.store.Put(ctx, nil, "k", map[string]any{}) }},
		{name: "put empty key", call: func() error { return f.store.Put(ctx, []string{"a"}, "", map[string]any{}) }},
		{name: "put negative ttl", call: func() error {
			return f.store.Put(ctx, []string{"a"}, "k", map[string]any{}, WithTTL(-time.Second))
		}},
		{name: "put unencodable value", call: func() error {
			return f.store.Put(ctx, []string{"a"}, "k", map[string]any{"ch": make(chan int)})
		}},
		{name: "get reserved separator", call: func() error {
			_, err := f.store.Get(ctx, []string{"a\u001eb"}, "k")
			return err
		}},
		{name: "delete empty segment", call: func() error { return f.store.Delete(ctx, []string{""}, "k") }},
		{name: "search negative limit", call: func() error {
			_, err := f.store.Search(ctx, model.SearchRequest{Limit: -1})
			return err
		}},
		{name: "list negative offset", call: func() error {
			_, err := f.store.ListNamespaces(ctx, model.ListNamespacesRequest{Offset: -1})
			return err
		}},
		{name: "list negative depth", call: func() error {
			_, err := f.store.ListNamespaces(ctx, model.ListNamespacesRequest{MaxDepth: -1})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), model.ErrInvalidArgument)
		})
	}

	assert.Empty(t, f.engine.Calls(), "validation must happen before any engine call")
}

func TestDocumentStore_EngineErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	boom := errors.New("connection reset")

	f.engine.Fail("IndexDocument", boom)
	err := f.store.Put(ctx, []string{"a"}, "k", map[string]any{})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "langgraph-data")

	f.engine.Fail("Search", boom)
	_, err = f.store.Get(ctx, []string{"a"}, "k")
	require.ErrorIs(t, err, boom)
}

func TestDocumentStore_StatsAndHealth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	require.NoError(t, f.store.Put(ctx, []string{"a"}, "1", map[string]any{"x": "y"}))
	require.NoError(t, f.store.Put(ctx, []string{"a"}, "2", map[string]any{}))
	require.NoError(t, f.store.Put(ctx, []string{"b"}, "1", map[string]any{}))

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalItems)
	assert.Equal(t, int64(2), stats.TotalNamespaces)
	assert.Equal(t, "langgraph-data", stats.Alias)
	assert.Equal(t, []string{"langgraph-data-000001"}, stats.Indices)
	assert.Equal(t, "langgraph-data-000001", stats.WriteIndex)
	assert.Positive(t, stats.StoreSizeBytes)

	f.engine.HealthStatus = "yellow"
	report, err := f.store.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "yellow", report.Status)
	assert.Equal(t, 1, report.NumberOfNodes)
}

func TestDocumentStore_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	require.NoError(t, f.store.Put(ctx, []string{"prefs", "user_a"}, "color", map[string]any{"text": "I like blue"}))
	require.NoError(t, f.store.Put(ctx, []string{"prefs", "user_a"}, "food", map[string]any{"text": "I like pizza"}))
	require.NoError(t, f.store.Put(ctx, []string{"prefs", "user_b"}, "color", map[string]any{"text": "I like red"}))

	item, err := f.store.Get(ctx, []string{"prefs", "user_b"}, "color")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, map[string]any{"text": "I like red"}, item.Value)

	assert.Equal(t, []model.Namespace{{"prefs", "user_a"}, {"prefs", "user_b"}}, f.namespaces(t, "prefs"))

	require.NoError(t, f.store.Delete(ctx, []string{"prefs", "user_b"}, "color"))
	assert.Equal(t, []model.Namespace{{"prefs", "user_a"}}, f.namespaces(t, "prefs"))

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalItems)
	assert.Equal(t, int64(1), stats.TotalNamespaces)
}
