package kernel

import "fmt"

// ErrorKind classifies a DomainError. Domain operations never perform IO, so
// every failure they can produce is one of these deterministic kinds.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindInvariantViolation  ErrorKind = "invariant_violation"
	KindConflict            ErrorKind = "conflict"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidID           ErrorKind = "invalid_id"
)

// DomainError is a value-typed failure returned by aggregate decision logic.
// It is never an exception: decide() returns it as an ordinary error value.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is supports errors.Is(err, kernel.ErrConflict) style sentinel checks by
// comparing kinds rather than pointer identity.
func (e *DomainError) Is(target error) bool {
	other, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// NewDomainError constructs a DomainError of the given kind.
func NewDomainError(kind ErrorKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *DomainError {
	return NewDomainError(KindValidation, format, args...)
}

func InvariantViolation(format string, args ...any) *DomainError {
	return NewDomainError(KindInvariantViolation, format, args...)
}

func Conflict(format string, args ...any) *DomainError {
	return NewDomainError(KindConflict, format, args...)
}

func Unauthorized() *DomainError {
	return &DomainError{Kind: KindUnauthorized, Message: "unauthorized"}
}

func NotFound(format string, args ...any) *DomainError {
	return NewDomainError(KindNotFound, format, args...)
}

// Sentinels usable with errors.Is for kind-only comparisons.
var (
	ErrConflict           = &DomainError{Kind: KindConflict}
	ErrNotFound           = &DomainError{Kind: KindNotFound}
	ErrUnauthorized       = &DomainError{Kind: KindUnauthorized}
	ErrValidation         = &DomainError{Kind: KindValidation}
	ErrInvariantViolation = &DomainError{Kind: KindInvariantViolation}
)
