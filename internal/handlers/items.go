package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/metrics"
	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/storage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 10 << 20

// NamespaceParam is the repeated query parameter that carries namespace segments.
const NamespaceParam = "ns"

// StatsReporter provides the read-only store introspection endpoints.
type StatsReporter interface {
	Stats(ctx context.Context) (*model.StatsReport, error)
	Health(ctx context.Context) (*model.HealthReport, error)
}

// ItemHandlers provides HTTP handlers for item, search, and namespace operations.
type ItemHandlers struct {
	items    storage.ItemStore
	reporter StatsReporter
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewItemHandlers creates a new ItemHandlers instance.
func NewItemHandlers(items storage.ItemStore, reporter StatsReporter, logger *zap.Logger, metrics *metrics.Metrics) *ItemHandlers {
	return &ItemHandlers{
		items:    items,
		reporter: reporter,
		logger:   logger,
		metrics:  metrics,
	}
}

// HandlePut handles PUT /v1/items requests to store an item.
// Returns:
//   - 200 OK: Item stored
//   - 400 Bad Request: Invalid request body, namespace, key, or TTL
//   - 500 Internal Server Error: Search engine or internal error
func (h *ItemHandlers) HandlePut(w http.ResponseWriter, r *http.Request) {
	var req model.PutItemRequest
	if err := h.decode(w, r, &req); err != nil {
		h.recordMetric("put", "invalid")
		h.respondError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.TTLSeconds < 0 {
		h.recordMetric("put", "invalid")
		h.respondError(w, r, http.StatusBadRequest, "ttl_seconds must not be negative", nil)
		return
	}

	var opts []storage.PutOption
	if req.TTLSeconds > 0 {
		opts = append(opts, storage.WithTTL(time.Duration(req.TTLSeconds)*time.Second))
	}

	if err := h.items.Put(r.Context(), req.Namespace, req.Key, req.Value, opts...); err != nil {
		h.handleStoreError(w, r, "put", "Failed to store item", err)
		return
	}

	h.recordMetric("put", "success")
	h.respondJSON(w, http.StatusOK, model.ItemResponse{
		Status:  "stored",
		Message: "Item stored successfully",
	})
}

// HandleGet handles GET /v1/items/{key}?ns=a&ns=b requests.
// Returns:
//   - 200 OK: Item found
//   - 404 Not Found: No live item under namespace and key
//   - 400 Bad Request: Invalid namespace or key
//   - 500 Internal Server Error: Search engine or internal error
func (h *ItemHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		h.recordMetric("get", "invalid")
		h.respondError(w, r, http.StatusBadRequest, "Invalid key", err)
		return
	}

	item, err := h.items.Get(r.Context(), namespaceParam(r), key)
	if err != nil {
		h.handleStoreError(w, r, "get", "Failed to get item", err)
		return
	}

	if item == nil {
		h.recordMetric("get", "not_found")
		h.respondJSON(w, http.StatusNotFound, model.ItemResponse{
			Status:  "not-found",
			Message: "No item exists for this namespace and key",
		})
		return
	}

	h.recordMetric("get", "success")
	h.respondJSON(w, http.StatusOK, model.ItemResponse{
		Status: "found",
		Item:   item,
	})
}

// HandleDelete handles DELETE /v1/items/{key}?ns=a&ns=b requests. Deleting a
// missing item succeeds.
func (h *ItemHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		h.recordMetric("delete", "invalid")
		h.respondError(w, r, http.StatusBadRequest, "Invalid key", err)
		return
	}

	if err := h.items.Delete(r.Context(), namespaceParam(r), key); err != nil {
		h.handleStoreError(w, r, "delete", "Failed to delete item", err)
		return
	}

	h.recordMetric("delete", "success")
	h.respondJSON(w, http.StatusOK, model.ItemResponse{
		Status:  "deleted",
		Message: "Item deleted successfully",
	})
}

// HandleSearch handles POST /v1/items/search requests.
func (h *ItemHandlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req model.SearchRequest
	if err := h.decode(w, r, &req); err != nil {
		h.recordMetric("search", "invalid")
		h.respondError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	items, err := h.items.Search(r.Context(), req)
	if err != nil {
		h.handleStoreError(w, r, "search", "Failed to search items", err)
		return
	}

	if items == nil {
		items = []model.SearchItem{}
	}

	h.recordMetric("search", "success")
	h.respondJSON(w, http.StatusOK, model.SearchResponse{Items: items})
}

// HandleListNamespaces handles POST /v1/namespaces requests.
func (h *ItemHandlers) HandleListNamespaces(w http.ResponseWriter, r *http.Request) {
	var req model.ListNamespacesRequest
	if err := h.decode(w, r, &req); err != nil {
		h.recordMetric("list_namespaces", "invalid")
		h.respondError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	namespaces, err := h.items.ListNamespaces(r.Context(), req)
	if err != nil {
		h.handleStoreError(w, r, "list_namespaces", "Failed to list namespaces", err)
		return
	}

	if namespaces == nil {
		namespaces = []model.Namespace{}
	}

	h.recordMetric("list_namespaces", "success")
	h.respondJSON(w, http.StatusOK, model.NamespacesResponse{Namespaces: namespaces})
}

// keyParam returns the unescaped {key} URL parameter. Keys containing a slash
// arrive percent encoded, in which case chi routes on the raw path.
func keyParam(r *http.Request) (string, error) {
	key := chi.URLParam(r, "key")
	if r.URL.RawPath == "" {
		return key, nil
	}
	return url.PathUnescape(key)
}

// namespaceParam returns the namespace segments from the repeated ns query parameter.
func namespaceParam(r *http.Request) []string {
	return r.URL.Query()[NamespaceParam]
}

// decode reads a JSON request body into dst. An empty body leaves dst zero.
func (h *ItemHandlers) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// handleStoreError maps invalid arguments to 400 and any other store error to 500.
func (h *ItemHandlers) handleStoreError(w http.ResponseWriter, r *http.Request, operation, message string, err error) {
	if errors.Is(err, model.ErrInvalidArgument) {
		h.recordMetric(operation, "invalid")
		h.respondError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	h.recordMetric(operation, "failure")
	h.respondError(w, r, http.StatusInternalServerError, message, err)
}

// respondError logs err and sends an error response tagged with the request ID.
func (h *ItemHandlers) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.Int("status", status),
		zap.String("path", r.URL.Path),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(message, fields...)
	} else {
		h.logger.Debug(message, fields...)
	}

	h.respondJSON(w, status, model.ItemResponse{
		Status:    "error",
		Message:   message,
		RequestID: requestID,
	})
}

// respondJSON sends a JSON response.
func (h *ItemHandlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// recordMetric records an item operation metric.
func (h *ItemHandlers) recordMetric(operation, status string) {
	if h.metrics != nil {
		h.metrics.RecordItemOperation(operation, status)
	}
}

