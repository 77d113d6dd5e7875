package dispatcher

import (
	"fmt"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/kernel"
)

// ErrorKind classifies a dispatch-level failure.
type ErrorKind string

const (
	KindConcurrency        ErrorKind = "conflict"
	KindTenantIsolation     ErrorKind = "tenant_isolation"
	KindValidation          ErrorKind = "validation_error"
	KindInvariantViolation  ErrorKind = "invariant_violation"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindNotFound            ErrorKind = "not_found"
	KindDeserialize         ErrorKind = "deserialize_error"
	KindStore               ErrorKind = "store_error"
	KindPublish             ErrorKind = "publish_error"
)

// DispatchError is the error surface returned by Dispatch. It carries both a
// machine-readable Kind and a human-readable Message, per spec.md §6 ("both
// a kind ... and a human-readable message").
type DispatchError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *DispatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dispatch: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("dispatch: %s: %s", e.Kind, e.Message)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

func (e *DispatchError) Is(target error) bool {
	other, ok := target.(*DispatchError)
	return ok && e.Kind == other.Kind
}

func newDispatchError(kind ErrorKind, format string, args ...any) *DispatchError {
	return &DispatchError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// fromDomainError maps kernel.DomainError (returned by Aggregate.Decide) onto
// the dispatcher's error taxonomy.
func fromDomainError(err *kernel.DomainError) *DispatchError {
	kind := map[kernel.ErrorKind]ErrorKind{
		kernel.KindValidation:         KindValidation,
		kernel.KindInvariantViolation: KindInvariantViolation,
		kernel.KindConflict:           KindConcurrency,
		kernel.KindUnauthorized:       KindUnauthorized,
		kernel.KindNotFound:           KindNotFound,
		kernel.KindInvalidID:          KindValidation,
	}[err.Kind]
	if kind == "" {
		kind = KindValidation
	}
	return &DispatchError{Kind: kind, Message: err.Message, Cause: err}
}

// fromStoreError maps eventstore.StoreError onto the dispatcher's taxonomy.
func fromStoreError(err *eventstore.StoreError) *DispatchError {
	switch err.Kind {
	case eventstore.KindConcurrency:
		return &DispatchError{Kind: KindConcurrency, Message: err.Message, Cause: err}
	case eventstore.KindTenantIsolation:
		return &DispatchError{Kind: KindTenantIsolation, Message: err.Message, Cause: err}
	default:
		return &DispatchError{Kind: KindStore, Message: err.Message, Cause: err}
	}
}

// Sentinels for errors.Is(err, dispatcher.ErrX) kind comparisons.
var (
	ErrConcurrency       = &DispatchError{Kind: KindConcurrency}
	ErrTenantIsolation   = &DispatchError{Kind: KindTenantIsolation}
	ErrValidation        = &DispatchError{Kind: KindValidation}
	ErrInvariantViolation = &DispatchError{Kind: KindInvariantViolation}
	ErrUnauthorized      = &DispatchError{Kind: KindUnauthorized}
	ErrNotFound          = &DispatchError{Kind: KindNotFound}
)
