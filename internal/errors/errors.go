// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrUpstreamUnavailable     = errors.New("upstream unavailable")
	ErrInstrumentNotFound      = errors.New("instrument not found")
	ErrLotSizeNotFound         = errors.New("lot size not found")
	ErrMarginCalculationFailed = errors.New("margin calculation failed")
	ErrAuthenticationFailed    = errors.New("authentication failed")
	ErrNotAuthenticated        = errors.New("not authenticated")
	ErrSessionExpired          = errors.New("session expired")
	ErrConfigInvalid           = errors.New("invalid configuration")
)

// UpstreamError represents a failure talking to an external API.
type UpstreamError struct {
	Service  string
	Endpoint string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream error [%s] %s: status %d", e.Service, e.Endpoint, e.Status)
	}
	return fmt.Sprintf("upstream error [%s] %s: %v", e.Service, e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUpstreamUnavailable
}

// NewUpstreamError creates a new UpstreamError wrapping a transport failure.
func NewUpstreamError(service, endpoint string, err error) *UpstreamError {
	return &UpstreamError{
		Service:  service,
		Endpoint: endpoint,
		Err:      fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err),
	}
}

// NewUpstreamStatusError creates a new UpstreamError for a non-2xx response.
func NewUpstreamStatusError(service, endpoint string, status int) *UpstreamError {
	return &UpstreamError{
		Service:  service,
		Endpoint: endpoint,
		Status:   status,
	}
}

// RowError represents a per-row enrichment failure. It carries enough of the
// row's identity for a user to locate the contract that failed.
type RowError struct {
	Row   string // identifying key, e.g. "BANKNIFTY 48000 PE 2024-12-24"
	Stage string // "resolve", "margin", "lot-size"
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %s: %s failed: %v", e.Row, e.Stage, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// NewRowError creates a new RowError.
func NewRowError(row, stage string, err error) *RowError {
	return &RowError{Row: row, Stage: stage, Err: err}
}

// LookupError represents a reference-table lookup miss.
type LookupError struct {
	Table string
	Key   string
	Err   error // ErrInstrumentNotFound or ErrLotSizeNotFound
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup [%s] %q: %v", e.Table, e.Key, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// NewLookupError creates a new LookupError.
func NewLookupError(table, key string, sentinel error) *LookupError {
	return &LookupError{Table: table, Key: key, Err: sentinel}
}

// AuthError represents a token-exchange failure from the brokerage.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth error: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrAuthenticationFailed
}

// NewAuthError creates a new AuthError.
func NewAuthError(reason string, err error) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
