// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Every payload travels inside the same {data, error} envelope
// - Machine-readable error names for programmatic handling
// - Details map for field-specific context, always present on errors
// - RFC3339 timestamps for international compatibility
package models

import (
	"net/http"
	"time"
)

// Envelope is the uniform response wrapper. Successful responses carry a
// payload in Data and a nil Error; failures carry a nil Data and a populated
// Error.
type Envelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a request failure.
type ErrorBody struct {
	Status  int            `json:"status"`
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// NewErrorResponse builds an error envelope with an empty details map.
func NewErrorResponse(status int, name, message string) Envelope {
	return Envelope{
		Data: nil,
		Error: &ErrorBody{
			Status:  status,
			Name:    name,
			Message: message,
			Details: map[string]any{},
		},
	}
}

// NewTooManyRequests is the standard rejection body emitted when a caller
// exhausts its quota.
func NewTooManyRequests() Envelope {
	return NewErrorResponse(
		http.StatusTooManyRequests,
		"TooManyRequestsError",
		"Too many requests, please try again later.",
	)
}

// NewDataResponse wraps a payload in the success envelope.
func NewDataResponse(data any) Envelope {
	return Envelope{Data: data}
}

// StatusResponse is the engine status snapshot served to operators.
type StatusResponse struct {
	Enabled          bool            `json:"enabled"`
	Strategy         string          `json:"strategy"` // memory, redis or none
	BackendConnected bool            `json:"backendConnected"`
	Defaults         QuotaSnapshot   `json:"defaults"`
	RulesCount       int             `json:"rulesCount"`
	AllowlistCounts  AllowlistCounts `json:"allowlistCounts"`
}

// QuotaSnapshot reports a quota in wire-friendly units.
type QuotaSnapshot struct {
	Limit           int   `json:"limit"`
	IntervalMs      int64 `json:"intervalMs"`
	BlockDurationMs int64 `json:"blockDurationMs"`
}

type AllowlistCounts struct {
	IPs    int `json:"ips"`
	Tokens int `json:"tokens"`
	Users  int `json:"users"`
}

// EventsResponse lists recent blocking/warning events, newest first.
type EventsResponse struct {
	Events   any    `json:"events"`
	Total    uint64 `json:"total"`
	Capacity int    `json:"capacity"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
