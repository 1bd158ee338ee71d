package health

import (
	"context"
	"time"
)

// Status represents the health status of a check.
type Status string

const (
	// StatusOK indicates the check passed.
	StatusOK Status = "ok"
	// StatusNotReady indicates the service is not ready to handle requests.
	StatusNotReady Status = "not-ready"
	// StatusStarting indicates the service is still starting.
	StatusStarting Status = "starting"
	// StatusError indicates the check failed.
	StatusError Status = "error"
)

// rank orders statuses by severity for aggregation.
func (s Status) rank() int {
	switch s {
	case StatusOK:
		return 0
	case StatusNotReady:
		return 1
	case StatusStarting:
		return 2
	default:
		return 3
	}
}

// CheckResult represents the result of a health check.
type CheckResult struct {
	// Name is the name of the health check.
	Name string `json:"name"`
	// Status is the status of the health check.
	Status Status `json:"status"`
	// Message provides additional context about the check result.
	Message string `json:"message,omitempty"`
	// Timestamp is when the check was performed.
	Timestamp time.Time `json:"timestamp"`
	// Duration is how long the check took to execute.
	Duration time.Duration `json:"duration"`
}

// Checker is the interface that health checks must implement.
type Checker interface {
	// Name returns the name of the health check.
	Name() string
	// Check performs the health check and returns the result. It should
	// return promptly once ctx is done.
	Check(ctx context.Context) CheckResult
}

// StartupResponse is served by the startup probe.
type StartupResponse struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]Status `json:"checks"`
}

// LivenessResponse is served by the liveness probe.
type LivenessResponse struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse is served by the readiness probe. Checks lists the
// readiness dependencies.
type ReadinessResponse struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Ready     bool              `json:"ready"`
	Checks    map[string]Status `json:"checks,omitempty"`
}

// DetailedResponse carries every check result, including informational ones.
type DetailedResponse struct {
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Results   []CheckResult `json:"results"`
}
