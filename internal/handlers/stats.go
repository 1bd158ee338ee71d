package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// HandleStats handles GET /v1/stats requests.
func (h *ItemHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reporter.Stats(r.Context())
	if err != nil {
		h.handleStoreError(w, r, "stats", "Failed to collect stats", err)
		return
	}

	h.recordMetric("stats", "success")
	h.respondJSON(w, http.StatusOK, stats)
}

// HandleHealth handles GET /v1/health requests.
// Returns:
//   - 200 OK: Cluster is green or yellow
//   - 503 Service Unavailable: Cluster is red
//   - 500 Internal Server Error: Cluster health could not be read
func (h *ItemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.Health(r.Context())
	if err != nil {
		h.handleStoreError(w, r, "health", "Failed to get cluster health", err)
		return
	}

	status := http.StatusOK
	if report.Status != "green" && report.Status != "yellow" {
		h.logger.Warn("Cluster health is degraded",
			zap.String("status", report.Status),
			zap.Int("unassigned_shards", report.UnassignedShards),
		)
		status = http.StatusServiceUnavailable
	}

	h.recordMetric("health", "success")
	h.respondJSON(w, status, report)
}
