// Package apperr defines the closed set of error kinds the engine surfaces
// to callers, and the helpers to wrap, classify, and unwrap them. Errors
// elsewhere in the module are created with these constructors and
// fmt.Errorf's %w verb, never bare errors.New, so that errors.Is/errors.As
// chains stay intact across package boundaries.
package apperr

import (
	"errors"
	"fmt"
)

// Kind closes the set of error categories callers are expected to branch on.
type Kind string

const (
	KindValidation  Kind = "Validation"
	KindNotFound    Kind = "NotFound"
	KindRepository  Kind = "Repository"
	KindFx          Kind = "Fx"
	KindMarketData  Kind = "MarketData"
	KindCalculation Kind = "Calculation"
	KindUnexpected  Kind = "Unexpected"
)

// MarketDataSubKind refines KindMarketData errors so the market-data
// registry can decide whether to fail over, retry, or give up.
type MarketDataSubKind string

const (
	SubKindNotSupported         MarketDataSubKind = "NotSupported"
	SubKindSymbolNotFound       MarketDataSubKind = "SymbolNotFound"
	SubKindRateLimited          MarketDataSubKind = "RateLimited"
	SubKindNoProvidersAvailable MarketDataSubKind = "NoProvidersAvailable"
	SubKindAllProvidersFailed   MarketDataSubKind = "AllProvidersFailed"
	SubKindValidationFailed     MarketDataSubKind = "ValidationFailed"
)

// RetryClass tells the market-data registry how to react to a provider
// error: stop entirely, try the next provider without penalty, or penalize
// the provider (recording a circuit-breaker failure) before trying the next.
type RetryClass string

const (
	RetryNever               RetryClass = "Never"
	RetryNextProvider        RetryClass = "NextProvider"
	RetryFailoverWithPenalty RetryClass = "FailoverWithPenalty"
	RetryCircuitOpen         RetryClass = "CircuitOpen"
)

// Error is a structured, user-visible failure: it always names the
// operation and, where applicable, the identifier involved.
type Error struct {
	Kind       Kind
	SubKind    MarketDataSubKind // only meaningful when Kind == KindMarketData
	Retry      RetryClass        // only meaningful when Kind == KindMarketData
	Op         string            // operation name, e.g. "activities.Ingest"
	Identifier string            // row/identifier involved, if any
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("%s: %s (%s): %s", e.Op, e.Message, e.Identifier, e.unwrapMsg())
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Message, e.unwrapMsg())
}

func (e *Error) unwrapMsg() string {
	if e.Err == nil {
		return "none"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// WithIdentifier attaches the row/identifier this error concerns and returns
// the receiver for chaining.
func (e *Error) WithIdentifier(id string) *Error {
	e.Identifier = id
	return e
}

// MarketDataError constructs a KindMarketData error with a sub-kind and the
// retry class the registry should apply.
func MarketDataError(sub MarketDataSubKind, retry RetryClass, op, message string, err error) *Error {
	return &Error{Kind: KindMarketData, SubKind: sub, Retry: retry, Op: op, Message: message, Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// RetryClassOf extracts the RetryClass from a market-data error, defaulting
// to RetryNever for any error that isn't a KindMarketData *Error (the safe
// default: stop rather than fail over on an error we don't understand).
func RetryClassOf(err error) RetryClass {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind == KindMarketData {
		return appErr.Retry
	}
	return RetryNever
}
