package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/metrics"
)

// unroutedPattern labels requests that no route matched, keeping raw item
// keys out of metric labels.
const unroutedPattern = "unmatched"

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

// newResponseWriter creates a new response writer wrapper.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the number of bytes written.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// MetricsMiddleware creates a middleware that records HTTP metrics. Requests
// are labelled with the chi route pattern once routing has finished, so
// /v1/items/{key} is one series however many keys are requested.
func MetricsMiddleware(m *metrics.Metrics, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// In-flight requests are counted before routing and carry no route
			inFlight := m.HTTPRequestsInFlight.WithLabelValues(r.Method, "*")
			inFlight.Inc()
			defer inFlight.Dec()

			rw := newResponseWriter(w)

			defer func() {
				if err := recover(); err != nil {
					logger.Error("Panic in HTTP handler",
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Any("error", err),
					)

					rw.statusCode = http.StatusInternalServerError
					recordRequest(m, r, rw, start)

					// Re-panic to let the recovery middleware handle it
					panic(err)
				}
			}()

			next.ServeHTTP(rw, r)

			recordRequest(m, r, rw, start)
		})
	}
}

// recordRequest observes one completed request.
func recordRequest(m *metrics.Metrics, r *http.Request, rw *responseWriter, start time.Time) {
	pattern := getRoutePattern(r)
	status := strconv.Itoa(rw.statusCode)

	m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
	m.HTTPRequestDurationSeconds.WithLabelValues(r.Method, pattern, status).Observe(time.Since(start).Seconds())

	if r.ContentLength > 0 {
		m.HTTPRequestSizeBytes.WithLabelValues(r.Method, pattern).Observe(float64(r.ContentLength))
	}
	if rw.bytesWritten > 0 {
		m.HTTPResponseSizeBytes.WithLabelValues(r.Method, pattern).Observe(float64(rw.bytesWritten))
	}
}

// getRoutePattern extracts the route pattern from the request context. Outside
// a chi router it falls back to the raw path; inside one, a request no route
// matched is labelled unmatched.
func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		if r.URL.Path == "" {
			return "/"
		}
		return r.URL.Path
	}

	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unroutedPattern
}

// HealthCheckMetricsMiddleware creates a middleware that records health check metrics.
func HealthCheckMetricsMiddleware(m *metrics.Metrics, checkName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			m.HealthCheckDurationSeconds.WithLabelValues(checkName).Observe(time.Since(start).Seconds())

			if rw.statusCode == http.StatusOK {
				m.HealthCheckStatus.WithLabelValues(checkName, "ok").Set(1)
				m.HealthCheckStatus.WithLabelValues(checkName, "error").Set(0)
				m.HealthCheckLastSuccessTimestamp.WithLabelValues(checkName).Set(float64(time.Now().Unix()))
			} else {
				m.HealthCheckStatus.WithLabelValues(checkName, "ok").Set(0)
				m.HealthCheckStatus.WithLabelValues(checkName, "error").Set(1)
				m.HealthCheckFailuresTotal.WithLabelValues(checkName).Inc()
			}
		})
	}
}
