package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// LoggerChecker checks if the logger is initialized.
type LoggerChecker struct {
	logger *zap.Logger
}

// NewLoggerChecker creates a new logger health checker.
func NewLoggerChecker(logger *zap.Logger) *LoggerChecker {
	return &LoggerChecker{
		logger: logger,
	}
}

// Name returns the name of the health check.
func (l *LoggerChecker) Name() string {
	return "logger"
}

// Check performs the health check.
func (l *LoggerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	result := CheckResult{
		Name:      l.Name(),
		Status:    StatusOK,
		Message:   "Logger initialized successfully",
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}

	if l.logger == nil {
		result.Status = StatusError
		result.Message = "Logger not initialized"
	}

	return result
}

// ServerChecker checks if the servers are running.
type ServerChecker struct {
	running atomic.Bool
}

// NewServerChecker creates a new server health checker.
func NewServerChecker() *ServerChecker {
	return &ServerChecker{}
}

// Name returns the name of the health check.
func (s *ServerChecker) Name() string {
	return "servers"
}

// SetRunning marks the servers as running.
func (s *ServerChecker) SetRunning(running bool) {
	s.running.Store(running)
}

// Check performs the health check.
func (s *ServerChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:      s.Name(),
		Status:    StatusOK,
		Message:   "All servers running",
		Timestamp: time.Now(),
	}

	if !s.running.Load() {
		result.Status = StatusStarting
		result.Message = "Servers starting"
	}

	return result
}

// ReadinessChecker checks if the service is ready to handle requests.
type ReadinessChecker struct {
	running      atomic.Bool
	shuttingDown atomic.Bool
}

// NewReadinessChecker creates a new readiness health checker.
func NewReadinessChecker() *ReadinessChecker {
	return &ReadinessChecker{}
}

// Name returns the name of the health check.
func (r *ReadinessChecker) Name() string {
	return "readiness"
}

// SetRunning marks the servers as running.
func (r *ReadinessChecker) SetRunning(running bool) {
	r.running.Store(running)
}

// SetShuttingDown marks the service as shutting down.
func (r *ReadinessChecker) SetShuttingDown(shutDown bool) {
	r.shuttingDown.Store(shutDown)
}

// Check performs the health check.
func (r *ReadinessChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:      r.Name(),
		Status:    StatusOK,
		Message:   "Service ready",
		Timestamp: time.Now(),
	}

	if r.shuttingDown.Load() {
		result.Status = StatusNotReady
		result.Message = "Service shutting down"
	} else if !r.running.Load() {
		result.Status = StatusNotReady
		result.Message = "Service not ready"
	}

	return result
}

// SweeperChecker reports the outcome of the most recent background TTL sweep.
type SweeperChecker struct {
	mu       sync.RWMutex
	lastRun  time.Time
	lastErr  error
	deleted  int64
	interval time.Duration
}

// NewSweeperChecker creates a new sweeper health checker for a sweeper that
// runs every interval.
func NewSweeperChecker(interval time.Duration) *SweeperChecker {
	return &SweeperChecker{
		interval: interval,
	}
}

// Name returns the name of the health check.
func (s *SweeperChecker) Name() string {
	return "ttl-sweeper"
}

// Record stores the outcome of a sweep.
func (s *SweeperChecker) Record(at time.Time, deleted int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRun = at
	s.deleted = deleted
	s.lastErr = err
}

// Check performs the health check.
func (s *SweeperChecker) Check(ctx context.Context) CheckResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := CheckResult{
		Name:      s.Name(),
		Status:    StatusOK,
		Timestamp: time.Now(),
	}

	switch {
	case s.lastRun.IsZero():
		result.Message = fmt.Sprintf("No sweep yet, first run within %s", s.interval)
	case s.lastErr != nil:
		result.Status = StatusError
		result.Message = fmt.Sprintf("Last sweep at %s failed: %v", s.lastRun.Format(time.RFC3339), s.lastErr)
	default:
		result.Message = fmt.Sprintf("Last sweep at %s deleted %d items", s.lastRun.Format(time.RFC3339), s.deleted)
	}

	return result
}
