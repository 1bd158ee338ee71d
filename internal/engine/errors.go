package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Common errors reported by engines.
var (
	// ErrNotFound matches errors for missing documents, indices, aliases, or snapshots.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists matches errors for indices or snapshots that already exist.
	ErrAlreadyExists = errors.New("already exists")
)

// alreadyExistsTypes are the engine error types that mean the resource exists.
var alreadyExistsTypes = map[string]bool{
	"resource_already_exists_exception": true,
	"index_already_exists_exception":    true,
}

// ResponseError is an error reported by the engine in a response body.
type ResponseError struct {
	// Op is the operation that failed, e.g. "create index".
	Op string
	// Target is the index, alias, or snapshot the operation addressed.
	Target string
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Type is the engine's error type, e.g. "resource_already_exists_exception".
	Type string
	// Reason is the engine's human readable reason.
	Reason string
}

// Error implements error.
func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("%s %q: status %d", e.Op, e.Target, e.StatusCode)
	if e.Type != "" {
		msg += ": " + e.Type
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is matches ErrNotFound and ErrAlreadyExists.
func (e *ResponseError) Is(target error) bool {
	switch target {
	case ErrAlreadyExists:
		return alreadyExistsTypes[e.Type]
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// parseResponseError builds a ResponseError from an error response body.
// The engine reports either {"error":{"type":..,"reason":..}} or {"error":"..."}.
func parseResponseError(op, target string, statusCode int, body []byte) *ResponseError {
	rerr := &ResponseError{Op: op, Target: target, StatusCode: statusCode}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		rerr.Reason = string(body)
		return rerr
	}

	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		rerr.Type = detail.Type
		rerr.Reason = detail.Reason
		return rerr
	}

	var reason string
	if err := json.Unmarshal(envelope.Error, &reason); err == nil {
		rerr.Reason = reason
	}
	return rerr
}

// errorKind classifies err for metrics labels.
func errorKind(err error) string {
	var rerr *ResponseError
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.As(err, &rerr):
		return "response"
	default:
		return "transport"
	}
}
