package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoggerChecker(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	checker := NewLoggerChecker(logger)

	if checker.Name() != "logger" {
		t.Errorf("Name() = %s, want logger", checker.Name())
	}

	result := checker.Check(context.Background())
	if result.Status != StatusOK {
		t.Errorf("Check() status = %s, want %s", result.Status, StatusOK)
	}
}

func TestLoggerCheckerNil(t *testing.T) {
	checker := NewLoggerChecker(nil)

	result := checker.Check(context.Background())
	if result.Status != StatusError {
		t.Errorf("Check() status = %s, want %s", result.Status, StatusError)
	}
}

func TestServerChecker(t *testing.T) {
	checker := NewServerChecker()

	if checker.Name() != "servers" {
		t.Errorf("Name() = %s, want servers", checker.Name())
	}

	// Initially not running
	result := checker.Check(context.Background())
	if result.Status != StatusStarting {
		t.Errorf("Check() status = %s, want %s", result.Status, StatusStarting)
	}

	checker.SetRunning(true)
	result = checker.Check(context.Background())
	if result.Status != StatusOK {
		t.Errorf("Check() status = %s, want %s after SetRunning(true)", result.Status, StatusOK)
	}

	checker.SetRunning(false)
	result = checker.Check(context.Background())
	if result.Status != StatusStarting {
		t.Errorf("Check() status = %s, want %s after SetRunning(false)", result.Status, StatusStarting)
	}
}

func TestReadinessChecker(t *testing.T) {
	checker := NewReadinessChecker()

	if checker.Name() != "readiness" {
		t.Errorf("Name() = %s, want readiness", checker.Name())
	}

	// Initially not ready
	result := checker.Check(context.Background())
	if result.Status != StatusNotReady {
		t.Errorf("Check() status = %s, want %s", result.Status, StatusNotReady)
	}

	checker.SetRunning(true)
	result = checker.Check(context.Background())
	if result.Status != StatusOK {
		t.Errorf("Check() status = %s, want %s after SetRunning(true)", result.Status, StatusOK)
	}

	checker.SetShuttingDown(true)
	result = checker.Check(context.Background())
	if result.Status != StatusNotReady {
		t.Errorf("Check() status = %s, want %s after SetShuttingDown(true)", result.Status, StatusNotReady)
	}
}

func TestSweeperChecker(t *testing.T) {
	checker := NewSweeperChecker(time.Minute)

	if checker.Name() != "ttl-sweeper" {
		t.Errorf("Name() = %s, want ttl-sweeper", checker.Name())
	}

	result := checker.Check(context.Background())
	if result.Status != StatusOK {
		t.Errorf("Check() status = %s, want %s before the first sweep", result.Status, StatusOK)
	}

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	checker.Record(at, 7, nil)
	result = checker.Check(context.Background())
	if result.Status != StatusOK {
		t.Errorf("Check() status = %s, want %s", result.Status, StatusOK)
	}
	if !strings.Contains(result.Message, "deleted 7 items") {
		t.Errorf("Check() message = %q, want deleted count", result.Message)
	}

	checker.Record(at.Add(time.Minute), 0, errors.New("cluster unavailable"))
	result = checker.Check(context.Background())
	if result.Status != StatusError {
		t.Errorf("Check() status = %s, want %s after a failed sweep", result.Status, StatusError)
	}
	if !strings.Contains(result.Message, "cluster unavailable") {
		t.Errorf("Check() message = %q, want the sweep error", result.Message)
	}
}

func TestManager(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	manager := NewManager(logger, 10*time.Second, 5*time.Second)

	manager.RegisterChecker(NewLoggerChecker(logger))
	manager.RegisterChecker(NewServerChecker())
	manager.RegisterChecker(NewSweeperChecker(time.Minute))

	results := manager.CheckAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("CheckAll() returned %d results, want 3", len(results))
	}

	// Results are ordered by name
	expectedNames := []string{"logger", "servers", "ttl-sweeper"}
	for i, name := range expectedNames {
		if results[i].Name != name {
			t.Errorf("CheckAll()[%d] = %s, want %s", i, results[i].Name, name)
		}
	}
}

func TestManagerCaching(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	manager := NewManager(logger, 100*time.Millisecond, 5*time.Second)

	manager.RegisterChecker(NewLoggerChecker(logger))

	// First call
	results1 := manager.CheckAll(context.Background())
	if len(results1) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results1))
	}
	time1 := results1[0].Timestamp

	// Second call (should be cached)
	results2 := manager.CheckAll(context.Background())
	if len(results2) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results2))
	}
	if !time1.Equal(results2[0].Timestamp) {
		t.Errorf("Expected cached result with same timestamp, got different times")
	}

	// Wait for cache to expire
	time.Sleep(150 * time.Millisecond)

	results3 := manager.CheckAll(context.Background())
	if len(results3) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results3))
	}
	if time1.Equal(results3[0].Timestamp) {
		t.Errorf("Expected new result with different timestamp after cache expiry")
	}
}

func TestManagerSetServersRunning(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	manager := NewManager(logger, 10*time.Second, 5*time.Second)

	serverChecker := NewServerChecker()
	readinessChecker := NewReadinessChecker()

	manager.RegisterChecker(serverChecker)
	manager.RegisterChecker(readinessChecker)

	manager.SetServersRunning(true)

	if result := serverChecker.Check(context.Background()); result.Status != StatusOK {
		t.Errorf("Server checker status = %s, want %s", result.Status, StatusOK)
	}
	if result := readinessChecker.Check(context.Background()); result.Status != StatusOK {
		t.Errorf("Readiness checker status = %s, want %s", result.Status, StatusOK)
	}

	manager.SetShuttingDown(true)
	if result := readinessChecker.Check(context.Background()); result.Status != StatusNotReady {
		t.Errorf("Status after shutdown = %s, want %s", result.Status, StatusNotReady)
	}
}

func TestManagerGetStartupStatus(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	// Use short cache duration for testing
	manager := NewManager(logger, 10*time.Millisecond, 5*time.Second)

	manager.RegisterChecker(NewLoggerChecker(logger))
	manager.RegisterChecker(NewServerChecker())

	// Servers not running yet
	response := manager.GetStartupStatus(context.Background())
	if response.Status != StatusStarting {
		t.Errorf("Startup status = %s, want %s", response.Status, StatusStarting)
	}
	if len(response.Checks) != 2 {
		t.Errorf("Checks count = %d, want 2", len(response.Checks))
	}

	manager.SetServersRunning(true)
	// Wait for cache to expire
	time.Sleep(20 * time.Millisecond)
	response = manager.GetStartupStatus(context.Background())
	if response.Status != StatusOK {
		t.Errorf("Startup status after servers running = %s, want %s", response.Status, StatusOK)
	}
}

func TestManagerGetLivenessStatus(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	manager := NewManager(logger, 10*time.Second, 5*time.Second)

	response := manager.GetLivenessStatus()
	if response.Status != StatusOK {
		t.Errorf("Liveness status = %s, want %s", response.Status, StatusOK)
	}
}

func TestManagerGetReadinessStatus(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	// Use short cache duration for testing
	manager := NewManager(logger, 10*time.Millisecond, 5*time.Second)

	manager.RegisterChecker(NewReadinessChecker())

	// Initially not ready
	response := manager.GetReadinessStatus(context.Background())
	if response.Status != StatusNotReady {
		t.Errorf("Readiness status = %s, want %s", response.Status, StatusNotReady)
	}
	if response.Ready {
		t.Error("Ready should be false")
	}

	manager.SetServersRunning(true)
	// Wait for cache to expire
	time.Sleep(20 * time.Millisecond)
	response = manager.GetReadinessStatus(context.Background())
	if response.Status != StatusOK {
		t.Errorf("Readiness status after running = %s, want %s", response.Status, StatusOK)
	}
	if !response.Ready {
		t.Error("Ready should be true")
	}
}

func TestManagerReadinessDependency(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	manager := NewManager(logger, 10*time.Millisecond, 5*time.Second)

	dep := &fixedChecker{name: "engine-indices", status: StatusNotReady}
	manager.RegisterChecker(NewReadinessChecker())
	manager.RegisterReadinessDependency(dep)
	manager.SetServersRunning(true)

	response := manager.GetReadinessStatus(context.Background())
	if response.Ready {
		t.Error("Ready should be false while a dependency is not ready")
	}
	if response.Checks["engine-indices"] != StatusNotReady {
		t.Errorf("Checks[engine-indices] = %s, want %s", response.Checks["engine-indices"], StatusNotReady)
	}

	dep.status = StatusOK
	// Wait for cache to expire
	time.Sleep(20 * time.Millisecond)
	response = manager.GetReadinessStatus(context.Background())
	if !response.Ready {
		t.Errorf("Ready should be true once the dependency passes, got %s", response.Status)
	}

	// Dependencies are also part of the full check list
	if len(manager.CheckAll(context.Background())) != 2 {
		t.Error("CheckAll() should include the readiness dependency")
	}
}

func TestManagerCheckTimeout(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	// Very short timeout
	manager := NewManager(logger, 10*time.Second, 1*time.Millisecond)

	manager.RegisterChecker(&slowChecker{})

	// The check observes its deadline and returns
	results := manager.CheckAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Status != StatusError {
		t.Errorf("Check() status = %s, want %s after timeout", results[0].Status, StatusError)
	}
}

func TestManagerInformationalChecks(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	manager := NewManager(logger, 10*time.Second, 5*time.Second)

	sweeper := NewSweeperChecker(time.Minute)
	sweeper.Record(time.Now(), 0, errors.New("cluster unavailable"))

	manager.RegisterChecker(NewLoggerChecker(logger))
	manager.RegisterInformational(sweeper)

	response := manager.GetStartupStatus(context.Background())
	if response.Status != StatusOK {
		t.Errorf("Startup status = %s, want %s with only an informational failure", response.Status, StatusOK)
	}
	if response.Checks["ttl-sweeper"] != StatusError {
		t.Errorf("Checks[ttl-sweeper] = %s, want %s", response.Checks["ttl-sweeper"], StatusError)
	}
}

func TestManagerStateChangeInvalidatesCache(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	// Long cache duration, so only invalidation can refresh the result
	manager := NewManager(logger, time.Hour, 5*time.Second)

	manager.RegisterChecker(NewServerChecker())
	manager.RegisterChecker(NewReadinessChecker())

	if response := manager.GetStartupStatus(context.Background()); response.Status != StatusStarting {
		t.Fatalf("Startup status = %s, want %s", response.Status, StatusStarting)
	}

	manager.SetServersRunning(true)
	if response := manager.GetStartupStatus(context.Background()); response.Status != StatusOK {
		t.Errorf("Startup status after SetServersRunning = %s, want %s", response.Status, StatusOK)
	}

	manager.SetShuttingDown(true)
	if response := manager.GetReadinessStatus(context.Background()); response.Ready {
		t.Errorf("Ready should be false after SetShuttingDown, got %s", response.Status)
	}
}

func TestManagerRegisterReplaces(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	manager := NewManager(logger, 10*time.Second, 5*time.Second)

	manager.RegisterChecker(&fixedChecker{name: "engine", status: StatusError})
	manager.RegisterChecker(&fixedChecker{name: "engine", status: StatusOK})

	results := manager.CheckAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("CheckAll() returned %d results, want 1", len(results))
	}
	if results[0].Status != StatusOK {
		t.Errorf("CheckAll()[0] status = %s, want the replacement's %s", results[0].Status, StatusOK)
	}
}

func TestManagerGetDetailedStatus(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	manager := NewManager(logger, 10*time.Second, 5*time.Second)

	manager.RegisterChecker(&fixedChecker{name: "engine", status: StatusNotReady, message: "cluster is red"})
	manager.RegisterChecker(NewLoggerChecker(logger))

	response := manager.GetDetailedStatus(context.Background())
	if response.Status != StatusNotReady {
		t.Errorf("Detailed status = %s, want %s", response.Status, StatusNotReady)
	}
	if len(response.Results) != 2 {
		t.Fatalf("Results count = %d, want 2", len(response.Results))
	}
	if response.Results[0].Name != "engine" || response.Results[0].Message != "cluster is red" {
		t.Errorf("Results[0] = %+v, want the engine result with its message", response.Results[0])
	}
}

func TestStatusRank(t *testing.T) {
	tests := []struct {
		worse  Status
		better Status
	}{
		{StatusNotReady, StatusOK},
		{StatusStarting, StatusNotReady},
		{StatusError, StatusStarting},
	}

	for _, tt := range tests {
		if tt.worse.rank() <= tt.better.rank() {
			t.Errorf("rank(%s) = %d, want above rank(%s) = %d", tt.worse, tt.worse.rank(), tt.better, tt.better.rank())
		}
	}
}

// fixedChecker reports a fixed status
type fixedChecker struct {
	name    string
	status  Status
	message string
}

func (f *fixedChecker) Name() string {
	return f.name
}

func (f *fixedChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Name:      f.name,
		Status:    f.status,
		Message:   f.message,
		Timestamp: time.Now(),
	}
}

// slowChecker is a test checker that waits on its context
type slowChecker struct{}

func (s *slowChecker) Name() string {
	return "slow"
}

func (s *slowChecker) Check(ctx context.Context) CheckResult {
	select {
	case <-ctx.Done():
		return CheckResult{
			Name:      s.Name(),
			Status:    StatusError,
			Message:   ctx.Err().Error(),
			Timestamp: time.Now(),
		}
	case <-time.After(time.Second):
		return CheckResult{
			Name:      s.Name(),
			Status:    StatusOK,
			Timestamp: time.Now(),
		}
	}
}
