package eventstore

import "fmt"

// StoreErrorKind classifies a store-level failure.
type StoreErrorKind string

const (
	KindConcurrency            StoreErrorKind = "concurrency"
	KindTenantIsolation        StoreErrorKind = "tenant_isolation"
	KindAggregateTypeMismatch  StoreErrorKind = "aggregate_type_mismatch"
	KindInvalidAppend          StoreErrorKind = "invalid_append"
	KindBackend                StoreErrorKind = "backend"
)

// StoreError is returned by every EventStore operation that can fail.
type StoreError struct {
	Kind    StoreErrorKind
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("eventstore: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("eventstore: %s: %s", e.Kind, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// Is compares by kind only, so errors.Is(err, eventstore.ErrConcurrency)
// works regardless of message or cause.
func (e *StoreError) Is(target error) bool {
	other, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newStoreError(kind StoreErrorKind, format string, args ...any) *StoreError {
	return &StoreError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapBackendError(cause error) *StoreError {
	return &StoreError{Kind: KindBackend, Message: "backend error", Cause: cause}
}

// Sentinels for errors.Is(err, eventstore.ErrX) kind comparisons.
var (
	ErrConcurrency           = &StoreError{Kind: KindConcurrency}
	ErrTenantIsolation       = &StoreError{Kind: KindTenantIsolation}
	ErrAggregateTypeMismatch = &StoreError{Kind: KindAggregateTypeMismatch}
	ErrInvalidAppend         = &StoreError{Kind: KindInvalidAppend}
	ErrBackend               = &StoreError{Kind: KindBackend}
)
