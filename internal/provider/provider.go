// Package provider adapts external AI vision endpoints to one Convert
// contract and routes across them with health-aware fallback.
package provider

import (
	"context"
	"fmt"
	"time"

	"snapcode/internal/domain"
)

// Request carries everything a provider needs to turn a screenshot into code.
type Request struct {
	JobID     string
	ImageData []byte
	ImageMIME string
	Options   domain.Options
}

// RawResponse is the normalized result of one provider call. Text is the
// model's semi-structured reply; extraction happens downstream.
type RawResponse struct {
	Text       string
	TokensUsed int
	Model      string
	Provider   string
	Cost       float64
	Latency    time.Duration
}

// Client is one external AI vision endpoint.
type Client interface {
	Name() string
	// CostPerCall is the configured cost estimate of one invocation, in
	// credit-fractions, reported on the job's cost accounting.
	CostPerCall() float64
	Convert(ctx context.Context, req Request) (*RawResponse, error)
}

// Error is a classified provider failure. RetryAfter carries a rate-limit
// hint when the upstream supplied one; the scheduler's backoff must honor it.
type Error struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Permanent  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classify maps an HTTP status to a provider error. 429 carries the
// Retry-After hint; 4xx other than 408/429 are permanent for this provider.
func classify(providerName string, status int, retryAfter time.Duration, err error) *Error {
	permanent := status >= 400 && status < 500 && status != 408 && status != 429
	return &Error{
		Provider:   providerName,
		StatusCode: status,
		RetryAfter: retryAfter,
		Permanent:  permanent,
		Err:        err,
	}
}
