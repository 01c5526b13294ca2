package providers

import (
	"errors"
	"fmt"
)

// Code classifies a provider failure so the chain can choose an aggregate
// error when every candidate is exhausted.
type Code string

const (
	CodeUnknown              Code = "UNKNOWN"
	CodeNetworkError         Code = "NETWORK_ERROR"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"
)

// codePriority ranks codes for aggregate-error selection: RATE_LIMITED >
// AUTHENTICATION_FAILED > NETWORK_ERROR > UNKNOWN, per spec.md §4.A.
var codePriority = map[Code]int{
	CodeRateLimited:          3,
	CodeAuthenticationFailed: 2,
	CodeNetworkError:         1,
	CodeUnknown:              0,
}

// ErrNoProvidersConfigured is returned when a call finds no provider to try:
// none is configured, or every configured provider is in cooldown.
var ErrNoProvidersConfigured = errors.New("providers: no providers configured")

// CallError is a typed failure from a single provider invocation. Providers
// (or thin adapters over them) should return a *CallError so the Chain can
// drive health tracking and failover by failure class rather than by
// string-matching.
type CallError struct {
	Provider string
	Code     Code
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Code, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// NewCallError wraps err with a provider name and failure class.
func NewCallError(provider string, code Code, err error) *CallError {
	return &CallError{Provider: provider, Code: code, Err: err}
}

// ClassifyError inspects err (optionally already a *CallError) and returns
// its Code, defaulting to CodeUnknown.
func ClassifyError(err error) Code {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Code
	}
	return CodeUnknown
}

// ChainExhaustedError is raised when every candidate provider in a call
// failed. Code is chosen by priority across all inner errors; Errors
// preserves every individual provider's failure for diagnostics.
type ChainExhaustedError struct {
	Code   Code
	Errors []error
}

func (e *ChainExhaustedError) Error() string {
	return fmt.Sprintf("providers: chain exhausted (%s) after %d attempt(s): %v", e.Code, len(e.Errors), e.Errors)
}

func (e *ChainExhaustedError) Unwrap() []error { return e.Errors }

// newChainExhaustedError computes the aggregate Code across errs per the
// priority order RATE_LIMITED > AUTHENTICATION_FAILED > NETWORK_ERROR > UNKNOWN,
// with the NETWORK_ERROR case requiring *every* inner error be network-related.
func newChainExhaustedError(errs []error) *ChainExhaustedError {
	best := CodeUnknown
	allNetwork := len(errs) > 0
	for _, err := range errs {
		code := ClassifyError(err)
		if code != CodeNetworkError {
			allNetwork = false
		}
		if codePriority[code] > codePriority[best] {
			best = code
		}
	}

	// Only an all-network failure set earns CodeNetworkError; network errors
	// mixed with unclassified ones report CodeUnknown.
	if best == CodeNetworkError && !allNetwork {
		best = CodeUnknown
	}
	return &ChainExhaustedError{Code: best, Errors: errs}
}
