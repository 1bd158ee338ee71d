package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/logger"
	"github.com/n3tuk/langgraph-opensearch-store/internal/metrics"
	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/storage"
)

// mockItemStore implements storage.ItemStore for testing.
type mockItemStore struct {
	putFunc            func(ctx context.Context, namespace []string, key string, value map[string]any, opts ...storage.PutOption) error
	getFunc            func(ctx context.Context, namespace []string, key string) (*model.Item, error)
	deleteFunc         func(ctx context.Context, namespace []string, key string) error
	searchFunc         func(ctx context.Context, req model.SearchRequest) ([]model.SearchItem, error)
	listNamespacesFunc func(ctx context.Context, req model.ListNamespacesRequest) ([]model.Namespace, error)
}

func (m *mockItemStore) Put(ctx context.Context, namespace []string, key string, value map[string]any, opts ...storage.PutOption) error {
	if m.putFunc != nil {
		return m.putFunc(ctx, namespace, key, value, opts...)
	}
	return errors.New("not implemented")
}

func (m *mockItemStore) Get(ctx context.Context, namespace []string, key string) (*model.Item, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, namespace, key)
	}
	return nil, errors.New("not implemented")
}

func (m *mockItemStore) Delete(ctx context.Context, namespace []string, key string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, namespace, key)
	}
	return errors.New("not implemented")
}

func (m *mockItemStore) Search(ctx context.Context, req model.SearchRequest) ([]model.SearchItem, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockItemStore) ListNamespaces(ctx context.Context, req model.ListNamespacesRequest) ([]model.Namespace, error) {
	if m.listNamespacesFunc != nil {
		return m.listNamespacesFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

// mockReporter implements StatsReporter for testing.
type mockReporter struct {
	stats  *model.StatsReport
	health *model.HealthReport
	err    error
}

func (m *mockReporter) Stats(ctx context.Context) (*model.StatsReport, error) {
	return m.stats, m.err
}

func (m *mockReporter) Health(ctx context.Context) (*model.HealthReport, error) {
	return m.health, m.err
}

func testLogger() *zap.Logger {
	log, _ := logger.New("error", "json")
	return log
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics("test", map[string]string{
		"version": "test",
		"commit":  "test",
		"date":    "test",
	})
}

// testRouter mounts the handlers the way the API server does.
func testRouter(h *ItemHandlers) http.Handler {
	r := chi.NewRouter()
	r.Put("/v1/items", h.HandlePut)
	r.Get("/v1/items/{key}", h.HandleGet)
	r.Delete("/v1/items/{key}", h.HandleDelete)
	r.Post("/v1/items/search", h.HandleSearch)
	r.Post("/v1/namespaces", h.HandleListNamespaces)
	r.Get("/v1/stats", h.HandleStats)
	r.Get("/v1/health", h.HandleHealth)
	return r
}

func serve(t *testing.T, h *ItemHandlers, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)
	return rec
}

func decodeItemResponse(t *testing.T, rec *httptest.ResponseRecorder) model.ItemResponse {
	t.Helper()

	var resp model.ItemResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestHandlePut(t *testing.T) {
	t.Run("successful put", func(t *testing.T) {
		var gotNamespace []string
		var gotKey string
		var gotOpts int

		mock := &mockItemStore{
			putFunc: func(ctx context.Context, namespace []string, key string, value map[string]any, opts ...storage.PutOption) error {
				gotNamespace = namespace
				gotKey = key
				gotOpts = len(opts)
				return nil
			},
		}
		m := testMetrics()
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), m)

		rec := serve(t, handlers, http.MethodPut, "/v1/items", model.PutItemRequest{
			Namespace: []string{"users", "alice"},
			Key:       "prefs",
			Value:     map[string]any{"theme": "dark"},
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}
		if resp := decodeItemResponse(t, rec); resp.Status != "stored" {
			t.Errorf("Expected status 'stored', got '%s'", resp.Status)
		}
		if len(gotNamespace) != 2 || gotNamespace[1] != "alice" {
			t.Errorf("Expected namespace [users alice], got %v", gotNamespace)
		}
		if gotKey != "prefs" {
			t.Errorf("Expected key 'prefs', got '%s'", gotKey)
		}
		if gotOpts != 0 {
			t.Errorf("Expected no put options without ttl_seconds, got %d", gotOpts)
		}
		if got := testutil.ToFloat64(m.ItemOperationsTotal.WithLabelValues("put", "success")); got != 1 {
			t.Errorf("Expected put success counter 1, got %v", got)
		}
	})

	t.Run("put with ttl", func(t *testing.T) {
		var gotOpts int
		mock := &mockItemStore{
			putFunc: func(ctx context.Context, namespace []string, key string, value map[string]any, opts ...storage.PutOption) error {
				gotOpts = len(opts)
				return nil
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodPut, "/v1/items", model.PutItemRequest{
			Namespace:  []string{"users"},
			Key:        "session",
			Value:      map[string]any{},
			TTLSeconds: 60,
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}
		if gotOpts != 1 {
			t.Errorf("Expected one put option for ttl_seconds, got %d", gotOpts)
		}
	})

	t.Run("negative ttl", func(t *testing.T) {
		handlers := NewItemHandlers(&mockItemStore{}, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodPut, "/v1/items", model.PutItemRequest{
			Namespace:  []string{"users"},
			Key:        "session",
			TTLSeconds: -1,
		})

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rec.Code)
		}
	})

	t.Run("invalid request body", func(t *testing.T) {
		handlers := NewItemHandlers(&mockItemStore{}, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodPut, "/v1/items", "invalid json")

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rec.Code)
		}
		resp := decodeItemResponse(t, rec)
		if resp.Status != "error" {
			t.Errorf("Expected status 'error', got '%s'", resp.Status)
		}
		if resp.RequestID == "" {
			t.Error("Expected a request ID in the error response")
		}
	})

	t.Run("invalid namespace", func(t *testing.T) {
		mock := &mockItemStore{
			putFunc: func(ctx context.Context, namespace []string, key string, value map[string]any, opts ...storage.PutOption) error {
				return fmt.Errorf("%w: namespace must not be empty", model.ErrInvalidArgument)
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodPut, "/v1/items", model.PutItemRequest{Key: "k"})

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rec.Code)
		}
	})

	t.Run("storage error", func(t *testing.T) {
		mock := &mockItemStore{
			putFunc: func(ctx context.Context, namespace []string, key string, value map[string]any, opts ...storage.PutOption) error {
				return errors.New("storage failure")
			},
		}
		m := testMetrics()
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), m)

		rec := serve(t, handlers, http.MethodPut, "/v1/items", model.PutItemRequest{
			Namespace: []string{"users"},
			Key:       "k",
		})

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", rec.Code)
		}
		resp := decodeItemResponse(t, rec)
		if resp.Message != "Failed to store item" {
			t.Errorf("Expected a generic message, got '%s'", resp.Message)
		}
		if got := testutil.ToFloat64(m.ItemOperationsTotal.WithLabelValues("put", "failure")); got != 1 {
			t.Errorf("Expected put failure counter 1, got %v", got)
		}
	})
}

func TestHandleGet(t *testing.T) {
	t.Run("item found", func(t *testing.T) {
		now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		var gotNamespace []string
		var gotKey string

		mock := &mockItemStore{
			getFunc: func(ctx context.Context, namespace []string, key string) (*model.Item, error) {
				gotNamespace = namespace
				gotKey = key
				return &model.Item{
					Namespace: namespace,
					Key:       key,
					Value:     map[string]any{"theme": "dark"},
					CreatedAt: now,
					UpdatedAt: now,
				}, nil
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodGet, "/v1/items/a%2Fb?ns=users&ns=alice", nil)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}
		resp := decodeItemResponse(t, rec)
		if resp.Status != "found" {
			t.Errorf("Expected status 'found', got '%s'", resp.Status)
		}
		if resp.Item == nil || resp.Item.Value["theme"] != "dark" {
			t.Errorf("Expected item in response, got %+v", resp.Item)
		}
		if gotKey != "a/b" {
			t.Errorf("Expected unescaped key 'a/b', got '%s'", gotKey)
		}
		if len(gotNamespace) != 2 || gotNamespace[0] != "users" || gotNamespace[1] != "alice" {
			t.Errorf("Expected namespace [users alice], got %v", gotNamespace)
		}
	})

	t.Run("item not found", func(t *testing.T) {
		mock := &mockItemStore{
			getFunc: func(ctx context.Context, namespace []string, key string) (*model.Item, error) {
				return nil, nil
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodGet, "/v1/items/missing?ns=users", nil)

		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", rec.Code)
		}
		if resp := decodeItemResponse(t, rec); resp.Status != "not-found" {
			t.Errorf("Expected status 'not-found', got '%s'", resp.Status)
		}
	})

	t.Run("storage error", func(t *testing.T) {
		mock := &mockItemStore{
			getFunc: func(ctx context.Context, namespace []string, key string) (*model.Item, error) {
				return nil, errors.New("storage failure")
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodGet, "/v1/items/k?ns=users", nil)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", rec.Code)
		}
	})
}

func TestHandleDelete(t *testing.T) {
	t.Run("successful delete", func(t *testing.T) {
		var gotKey string
		mock := &mockItemStore{
			deleteFunc: func(ctx context.Context, namespace []string, key string) error {
				gotKey = key
				return nil
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodDelete, "/v1/items/prefs?ns=users", nil)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}
		if resp := decodeItemResponse(t, rec); resp.Status != "deleted" {
			t.Errorf("Expected status 'deleted', got '%s'", resp.Status)
		}
		if gotKey != "prefs" {
			t.Errorf("Expected key 'prefs', got '%s'", gotKey)
		}
	})

	t.Run("key with a literal percent", func(t *testing.T) {
		var gotKey string
		mock := &mockItemStore{
			deleteFunc: func(ctx context.Context, namespace []string, key string) error {
				gotKey = key
				return nil
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodDelete, "/v1/items/100%25?ns=users", nil)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}
		if gotKey != "100%" {
			t.Errorf("Expected key '100%%', got '%s'", gotKey)
		}
	})

	t.Run("storage error", func(t *testing.T) {
		mock := &mockItemStore{
			deleteFunc: func(ctx context.Context, namespace []string, key string) error {
				return errors.New("storage failure")
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodDelete, "/v1/items/k?ns=users", nil)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", rec.Code)
		}
	})
}

func TestHandleSearch(t *testing.T) {
	t.Run("search results", func(t *testing.T) {
		score := 1.5
		var got model.SearchRequest
		mock := &mockItemStore{
			searchFunc: func(ctx context.Context, req model.SearchRequest) ([]model.SearchItem, error) {
				got = req
				return []model.SearchItem{{
					Item:  model.Item{Namespace: []string{"docs"}, Key: "a"},
					Score: &score,
				}}, nil
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodPost, "/v1/items/search", model.SearchRequest{
			NamespacePrefix: []string{"docs"},
			Query:           "hello",
			Limit:           5,
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}

		var resp model.SearchResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(resp.Items) != 1 || resp.Items[0].Score == nil || *resp.Items[0].Score != 1.5 {
			t.Errorf("Expected one scored item, got %+v", resp.Items)
		}
		if got.Query != "hello" || got.Limit != 5 {
			t.Errorf("Expected request to reach the store, got %+v", got)
		}
	})

	t.Run("empty body searches everything", func(t *testing.T) {
		mock := &mockItemStore{
			searchFunc: func(ctx context.Context, req model.SearchRequest) ([]model.SearchItem, error) {
				return nil, nil
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodPost, "/v1/items/search", nil)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}
		if body := rec.Body.String(); body != "{\"items\":[]}\n" {
			t.Errorf("Expected an empty items array, got %s", body)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		mock := &mockItemStore{
			searchFunc: func(ctx context.Context, req model.SearchRequest) ([]model.SearchItem, error) {
				return nil, fmt.Errorf("%w: limit must not be negative", model.ErrInvalidArgument)
			},
		}
		handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodPost, "/v1/items/search", model.SearchRequest{Limit: -1})

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandleListNamespaces(t *testing.T) {
	var got model.ListNamespacesRequest
	mock := &mockItemStore{
		listNamespacesFunc: func(ctx context.Context, req model.ListNamespacesRequest) ([]model.Namespace, error) {
			got = req
			return []model.Namespace{{"users", "alice"}, {"users", "bob"}}, nil
		},
	}
	handlers := NewItemHandlers(mock, &mockReporter{}, testLogger(), testMetrics())

	rec := serve(t, handlers, http.MethodPost, "/v1/namespaces", model.ListNamespacesRequest{
		Prefix:   []string{"users"},
		MaxDepth: 2,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var resp model.NamespacesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Namespaces) != 2 {
		t.Errorf("Expected 2 namespaces, got %d", len(resp.Namespaces))
	}
	if got.MaxDepth != 2 || len(got.Prefix) != 1 {
		t.Errorf("Expected request to reach the store, got %+v", got)
	}
}

func TestHandleStats(t *testing.T) {
	t.Run("stats reported", func(t *testing.T) {
		reporter := &mockReporter{stats: &model.StatsReport{
			TotalItems:      12,
			TotalNamespaces: 3,
			Alias:           "store-data",
			Indices:         []string{"store-data-000001"},
		}}
		handlers := NewItemHandlers(&mockItemStore{}, reporter, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodGet, "/v1/stats", nil)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}

		var resp model.StatsReport
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.TotalItems != 12 || resp.TotalNamespaces != 3 {
			t.Errorf("Expected counts 12/3, got %d/%d", resp.TotalItems, resp.TotalNamespaces)
		}
	})

	t.Run("engine error", func(t *testing.T) {
		reporter := &mockReporter{err: errors.New("connection refused")}
		handlers := NewItemHandlers(&mockItemStore{}, reporter, testLogger(), testMetrics())

		rec := serve(t, handlers, http.MethodGet, "/v1/stats", nil)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", rec.Code)
		}
	})
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		wantStatus int
	}{
		{name: "green", status: "green", wantStatus: http.StatusOK},
		{name: "yellow", status: "yellow", wantStatus: http.StatusOK},
		{name: "red", status: "red", wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := &mockReporter{health: &model.HealthReport{
				Status:      tt.status,
				ClusterName: "test",
			}}
			handlers := NewItemHandlers(&mockItemStore{}, reporter, testLogger(), testMetrics())

			rec := serve(t, handlers, http.MethodGet, "/v1/health", nil)

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			var resp model.HealthReport
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("Expected status '%s', got '%s'", tt.status, resp.Status)
			}
		})
	}
}
