package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered health checks with a timeout, caches their results,
// and aggregates them into probe responses.
type Manager struct {
	logger        *zap.Logger
	cacheDuration time.Duration
	checkTimeout  time.Duration

	mu               sync.RWMutex
	checkers         []Checker
	informational    map[string]bool
	dependencies     []Checker
	serverChecker    *ServerChecker
	readinessChecker *ReadinessChecker

	cacheMutex sync.RWMutex
	cache      map[string]*cachedResult
}

type cachedResult struct {
	result    CheckResult
	expiresAt time.Time
}

// NewManager creates a new health check manager.
func NewManager(logger *zap.Logger, cacheDuration, checkTimeout time.Duration) *Manager {
	return &Manager{
		logger:        logger,
		cacheDuration: cacheDuration,
		checkTimeout:  checkTimeout,
		informational: make(map[string]bool),
		cache:         make(map[string]*cachedResult),
	}
}

// RegisterChecker registers a check that must pass for the service to start.
// A checker registered under an existing name replaces it.
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.register(checker)
}

// RegisterReadinessDependency registers a checker that must also pass before
// the service reports ready, such as the search engine's indices.
func (m *Manager) RegisterReadinessDependency(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.register(checker)
	m.dependencies = append(m.dependencies, checker)
}

// RegisterInformational registers a checker that is reported but never fails
// a probe, such as the outcome of the last background sweep.
func (m *Manager) RegisterInformational(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.register(checker)
	m.informational[checker.Name()] = true
}

// register adds or replaces checker. The caller holds m.mu.
func (m *Manager) register(checker Checker) {
	replaced := false
	for i, existing := range m.checkers {
		if existing.Name() == checker.Name() {
			m.checkers[i] = checker
			replaced = true
			break
		}
	}
	if !replaced {
		m.checkers = append(m.checkers, checker)
	}

	// Keep references to special checkers for easy access
	switch c := checker.(type) {
	case *ServerChecker:
		m.serverChecker = c
	case *ReadinessChecker:
		m.readinessChecker = c
	}
}

// SetServersRunning marks the servers as running. Cached results are dropped
// so the probes see the change immediately.
func (m *Manager) SetServersRunning(running bool) {
	m.mu.RLock()
	server, readiness := m.serverChecker, m.readinessChecker
	m.mu.RUnlock()

	if server != nil {
		server.SetRunning(running)
	}
	if readiness != nil {
		readiness.SetRunning(running)
	}
	m.invalidate()
}

// SetShuttingDown marks the service as shutting down. Cached results are
// dropped so readiness fails on the next probe.
func (m *Manager) SetShuttingDown(shutDown bool) {
	m.mu.RLock()
	readiness := m.readinessChecker
	m.mu.RUnlock()

	if readiness != nil {
		readiness.SetShuttingDown(shutDown)
	}
	m.invalidate()
}

// CheckAll runs all registered health checks concurrently and returns the
// results ordered by name.
func (m *Manager) CheckAll(ctx context.Context) []CheckResult {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	results := make([]CheckResult, len(checkers))

	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)

		// Run each check in a goroutine
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = m.runCheck(ctx, c)
		}(i, checker)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})

	return results
}

// runCheck runs a single health check with timeout and caching.
func (m *Manager) runCheck(ctx context.Context, checker Checker) CheckResult {
	name := checker.Name()

	// Check cache first
	if cached := m.getCachedResult(name); cached != nil {
		return *cached
	}

	// Create context with timeout
	checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	start := time.Now()
	result := checker.Check(checkCtx)
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}

	if result.Status == StatusError {
		m.logger.Warn("Health check failed",
			zap.String("check", name),
			zap.String("message", result.Message),
		)
	}

	// Cache the result
	m.cacheResult(name, result)

	return result
}

// getCachedResult returns a cached result if it exists and hasn't expired.
func (m *Manager) getCachedResult(name string) *CheckResult {
	m.cacheMutex.RLock()
	defer m.cacheMutex.RUnlock()

	if cached, ok := m.cache[name]; ok {
		if time.Now().Before(cached.expiresAt) {
			result := cached.result
			return &result
		}
	}

	return nil
}

// cacheResult caches a check result.
func (m *Manager) cacheResult(name string, result CheckResult) {
	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	m.cache[name] = &cachedResult{
		result:    result,
		expiresAt: time.Now().Add(m.cacheDuration),
	}
}

// invalidate drops every cached result.
func (m *Manager) invalidate() {
	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	m.cache = make(map[string]*cachedResult)
}

// isInformational reports whether the named check never fails a probe.
func (m *Manager) isInformational(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.informational[name]
}

// aggregate folds results into one status: error beats starting, which beats
// not-ready. Informational checks are skipped.
func (m *Manager) aggregate(results []CheckResult) Status {
	status := StatusOK
	for _, result := range results {
		if m.isInformational(result.Name) {
			continue
		}
		if result.Status.rank() > status.rank() {
			status = result.Status
		}
	}
	return status
}

// GetStartupStatus returns the startup status of the service.
func (m *Manager) GetStartupStatus(ctx context.Context) StartupResponse {
	results := m.CheckAll(ctx)

	response := StartupResponse{
		Status:    m.aggregate(results),
		Timestamp: time.Now(),
		Checks:    make(map[string]Status, len(results)),
	}

	for _, result := range results {
		response.Checks[result.Name] = result.Status
	}

	return response
}

// GetDetailedStatus returns every check result with its message.
func (m *Manager) GetDetailedStatus(ctx context.Context) DetailedResponse {
	results := m.CheckAll(ctx)

	return DetailedResponse{
		Status:    m.aggregate(results),
		Timestamp: time.Now(),
		Results:   results,
	}
}

// GetLivenessStatus returns the liveness status of the service.
// Liveness is minimal - just confirms the goroutine is alive.
func (m *Manager) GetLivenessStatus() LivenessResponse {
	return LivenessResponse{
		Status:    StatusOK,
		Timestamp: time.Now(),
	}
}

// GetReadinessStatus returns the readiness status of the service. The service
// is ready when the readiness checker and every readiness dependency pass.
func (m *Manager) GetReadinessStatus(ctx context.Context) ReadinessResponse {
	m.mu.RLock()
	readiness := m.readinessChecker
	dependencies := append([]Checker(nil), m.dependencies...)
	m.mu.RUnlock()

	var result CheckResult
	if readiness != nil {
		result = m.runCheck(ctx, readiness)
	} else {
		result = CheckResult{
			Name:      "readiness",
			Status:    StatusOK,
			Timestamp: time.Now(),
		}
	}

	response := ReadinessResponse{
		Status:    result.Status,
		Timestamp: result.Timestamp,
	}

	if len(dependencies) > 0 {
		response.Checks = make(map[string]Status, len(dependencies))
	}
	for _, dep := range dependencies {
		depResult := m.runCheck(ctx, dep)
		response.Checks[depResult.Name] = depResult.Status
		if depResult.Status != StatusOK && response.Status == StatusOK {
			response.Status = StatusNotReady
		}
	}

	response.Ready = response.Status == StatusOK

	return response
}
