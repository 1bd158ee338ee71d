package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/handlers"
	"github.com/n3tuk/langgraph-opensearch-store/internal/health"
	"github.com/n3tuk/langgraph-opensearch-store/internal/metrics"
	"github.com/n3tuk/langgraph-opensearch-store/internal/middleware"
)

// setupAPIRoutes configures the API server routes.
func setupAPIRoutes(r *chi.Mux, logger *zap.Logger, items *handlers.ItemHandlers) {
	r.Get("/ping", handlePing(logger))

	r.Route("/v1", func(r chi.Router) {
		r.Put("/items", items.HandlePut)
		r.Post("/items/search", items.HandleSearch)
		r.Get("/items/{key}", items.HandleGet)
		r.Delete("/items/{key}", items.HandleDelete)
		r.Post("/namespaces", items.HandleListNamespaces)
		r.Get("/stats", items.HandleStats)
		r.Get("/health", items.HandleHealth)
	})
}

// setupProbeRoutes configures the probe server routes.
func setupProbeRoutes(r *chi.Mux, logger *zap.Logger, manager *health.Manager, m *metrics.Metrics) {
	r.With(middleware.HealthCheckMetricsMiddleware(m, "startup")).
		Get("/healthz/startup", handleStartup(logger, manager))
	r.With(middleware.HealthCheckMetricsMiddleware(m, "live")).
		Get("/healthz/live", handleLive(logger, manager))
	r.With(middleware.HealthCheckMetricsMiddleware(m, "ready")).
		Get("/healthz/ready", handleReady(logger, manager))
	r.Get("/healthz", handleDetails(logger, manager))
}

// handlePing handles the /ping endpoint.
func handlePing(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]string{
			"status": "pong",
		}

		writeJSON(w, logger, http.StatusOK, response)
	}
}

// handleStartup handles the startup probe. It passes once every check passes.
func handleStartup(logger *zap.Logger, manager *health.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := manager.GetStartupStatus(r.Context())

		status := http.StatusOK
		if response.Status != health.StatusOK {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, logger, status, response)
	}
}

// handleLive handles the liveness probe.
func handleLive(logger *zap.Logger, manager *health.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, manager.GetLivenessStatus())
	}
}

// handleReady handles the readiness probe.
func handleReady(logger *zap.Logger, manager *health.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := manager.GetReadinessStatus(r.Context())

		status := http.StatusOK
		if !response.Ready {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, logger, status, response)
	}
}

// handleDetails reports every check with its message, for operators rather
// than orchestrators.
func handleDetails(logger *zap.Logger, manager *health.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := manager.GetDetailedStatus(r.Context())

		status := http.StatusOK
		if response.Status != health.StatusOK {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, logger, status, response)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
