package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/n3tuk/langgraph-opensearch-store/internal/config"
	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/handlers"
	"github.com/n3tuk/langgraph-opensearch-store/internal/health"
	"github.com/n3tuk/langgraph-opensearch-store/internal/metrics"
	"github.com/n3tuk/langgraph-opensearch-store/internal/middleware"
	"github.com/n3tuk/langgraph-opensearch-store/internal/store"
)

// runtimeMetricsInterval is how often goroutine and GC metrics are refreshed.
const runtimeMetricsInterval = 15 * time.Second

// Server manages the three HTTP servers (API, Probe, Metrics) and the
// background workers that run beside them.
type Server struct {
	cfg           *config.Config
	logger        *zap.Logger
	store         *store.Store
	metrics       *metrics.Metrics
	health        *health.Manager
	sweeper       *health.SweeperChecker
	collector     *engine.MetricsCollector
	items         *handlers.ItemHandlers
	apiServer     *http.Server
	probeServer   *http.Server
	metricsServer *http.Server
	startTime     time.Time

	// ctx is cancelled on shutdown to interrupt a sweep in progress.
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	workers      sync.WaitGroup
	started      bool
}

// New creates a new Server instance serving st. The metrics instance must be
// the one the store's engine records into, so that one registry is exported.
func New(cfg *config.Config, logger *zap.Logger, st *store.Store, m *metrics.Metrics) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		store:        st,
		metrics:      m,
		startTime:    time.Now(),
		ctx:          ctx,
		cancel:       cancel,
		shutdownChan: make(chan struct{}),
	}

	s.items = handlers.NewItemHandlers(st, st, logger, m)
	s.collector = engine.NewMetricsCollector(logger, st, m.Engine, cfg.MetricsCollectInterval)

	s.setupHealth()

	// Setup servers
	if err := s.setupServers(); err != nil {
		cancel()
		return nil, err
	}

	return s, nil
}

// setupHealth registers the service and store health checks.
func (s *Server) setupHealth() {
	s.health = health.NewManager(s.logger, s.cfg.HealthCheckCacheDuration, s.cfg.HealthCheckTimeout)

	s.health.RegisterChecker(health.NewLoggerChecker(s.logger))
	s.health.RegisterChecker(health.NewServerChecker())
	s.health.RegisterChecker(health.NewReadinessChecker())

	// The service only takes traffic once its indices exist
	for _, checker := range s.store.HealthCheckers(s.logger) {
		if checker.Name() == "engine-indices" {
			s.health.RegisterReadinessDependency(checker)
		} else {
			s.health.RegisterChecker(checker)
		}
	}

	if s.cfg.TTLSweepInterval > 0 {
		s.sweeper = health.NewSweeperChecker(s.cfg.TTLSweepInterval)
		s.health.RegisterInformational(s.sweeper)
	}
}

// setupServers configures the three HTTP servers.
func (s *Server) setupServers() error {
	// API Server
	apiRouter := s.setupAPIRouter()
	s.apiServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler:      apiRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSEnabled {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		s.apiServer.TLSConfig = tlsConfig
	}

	// Probe Server
	probeRouter := s.setupProbeRouter()
	s.probeServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.ProbeHost, s.cfg.ProbePort),
		Handler:      probeRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: s.cfg.HealthCheckTimeout + 5*time.Second,
		IdleTimeout:  30 * time.Second,
	}

	// Metrics Server
	metricsRouter := s.setupMetricsRouter()
	s.metricsServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.MetricsHost, s.cfg.MetricsPort),
		Handler:      metricsRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	return nil
}

// setupAPIRouter creates the API server router with middleware.
func (s *Server) setupAPIRouter() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.LoggingMiddleware(s.logger, "api"))
	r.Use(middleware.RecovererMiddleware(s.logger))
	r.Use(middleware.MetricsMiddleware(s.metrics, s.logger))

	// Routes
	setupAPIRoutes(r, s.logger, s.items)

	return r
}

// setupProbeRouter creates the probe server router.
func (s *Server) setupProbeRouter() *chi.Mux {
	r := chi.NewRouter()

	// Routes
	setupProbeRoutes(r, s.logger, s.health, s.metrics)

	return r
}

// setupMetricsRouter creates the metrics server router.
func (s *Server) setupMetricsRouter() *chi.Mux {
	r := chi.NewRouter()

	// Routes
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	return r
}

// Start starts all three HTTP servers and the background workers.
func (s *Server) Start() error {
	errChan := make(chan error, 3)

	// Start API server
	go func() {
		s.logger.Info("Starting API server", zap.String("addr", s.apiServer.Addr))

		var err error
		if s.cfg.TLSEnabled {
			err = s.apiServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.apiServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Start probe server
	go func() {
		s.logger.Info("Starting probe server", zap.String("addr", s.probeServer.Addr))

		if err := s.probeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("probe server error: %w", err)
		}
	}()

	// Start metrics server
	go func() {
		s.logger.Info("Starting metrics server", zap.String("addr", s.metricsServer.Addr))

		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Wait a bit to see if any server fails to start
	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-errChan:
		return err
	default:
	}

	s.health.SetServersRunning(true)

	s.collector.Start()
	s.started = true

	s.workers.Add(1)
	go s.updateUptime()

	if s.sweeper != nil {
		s.workers.Add(1)
		go s.runSweeper()
	}

	return nil
}

// updateUptime updates the uptime and runtime metrics periodically.
func (s *Server) updateUptime() {
	defer s.workers.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	runtimeTicker := time.NewTicker(runtimeMetricsInterval)
	defer runtimeTicker.Stop()

	s.metrics.UpdateRuntimeMetrics()

	for {
		select {
		case <-ticker.C:
			s.metrics.AppUptimeSeconds.Add(1)
		case <-runtimeTicker.C:
			s.metrics.UpdateRuntimeMetrics()
		case <-s.shutdownChan:
			return
		}
	}
}

// runSweeper removes expired items every TTL sweep interval until shutdown.
func (s *Server) runSweeper() {
	defer s.workers.Done()

	var limiter *rate.Limiter
	if s.cfg.TTLSweepRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.TTLSweepRate), 1)
	}

	s.logger.Info("Starting TTL sweeper",
		zap.Duration("interval", s.cfg.TTLSweepInterval),
		zap.Int("batch_size", s.store.BatchSize()),
		zap.Float64("batches_per_second", s.cfg.TTLSweepRate),
	)

	ticker := time.NewTicker(s.cfg.TTLSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(limiter)
		case <-s.shutdownChan:
			s.logger.Info("Stopping TTL sweeper")
			return
		}
	}
}

// sweep runs one full TTL sweep and records its outcome.
func (s *Server) sweep(limiter *rate.Limiter) {
	start := time.Now()
	report, err := s.store.SweepAll(s.ctx, s.store.BatchSize(), limiter)
	duration := time.Since(start)

	s.metrics.RecordSweep(report, duration, err)

	var deleted int64
	if report != nil {
		deleted = report.Deleted
	}
	s.sweeper.Record(time.Now(), deleted, err)

	if err != nil {
		s.logger.Error("TTL sweep failed",
			zap.Int64("deleted", deleted),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("TTL sweep completed",
		zap.Int64("deleted", deleted),
		zap.Duration("duration", duration),
	)
}

// Shutdown gracefully shuts down all servers and background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down servers gracefully")

	// Stop taking traffic before the listeners close
	s.health.SetShuttingDown(true)

	// Signal the background goroutines to stop
	close(s.shutdownChan)
	s.cancel()
	s.workers.Wait()
	if s.started {
		s.collector.Stop()
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	// Shutdown API server first
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Info("Shutting down API server")
		if err := s.apiServer.Shutdown(ctx); err != nil {
			errChan <- fmt.Errorf("API server shutdown error: %w", err)
		}
	}()

	// Shutdown metrics server second
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Info("Shutting down metrics server")
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errChan <- fmt.Errorf("metrics server shutdown error: %w", err)
		}
	}()

	// Shutdown probe server last
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Info("Shutting down probe server")
		if err := s.probeServer.Shutdown(ctx); err != nil {
			errChan <- fmt.Errorf("probe server shutdown error: %w", err)
		}
	}()

	wg.Wait()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return err
		}
	}

	s.logger.Info("All servers shut down successfully",
		zap.Duration("uptime", time.Since(s.startTime)),
	)
	return nil
}

// WaitForServers waits for all servers to be ready.
func (s *Server) WaitForServers(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if s.checkServer(s.apiServer.Addr) &&
			s.checkServer(s.probeServer.Addr) &&
			s.checkServer(s.metricsServer.Addr) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("servers did not become ready within %s", timeout)
}

// checkServer checks if a server is listening on the given address.
func (s *Server) checkServer(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
