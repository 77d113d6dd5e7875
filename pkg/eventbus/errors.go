package eventbus

import "fmt"

type BusErrorKind string

const (
	KindClosed BusErrorKind = "closed"
	KindBackend BusErrorKind = "backend"
)

type BusError struct {
	Kind    BusErrorKind
	Message string
	Cause   error
}

func (e *BusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("eventbus: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("eventbus: %s: %s", e.Kind, e.Message)
}

func (e *BusError) Unwrap() error { return e.Cause }

func (e *BusError) Is(target error) bool {
	other, ok := target.(*BusError)
	return ok && e.Kind == other.Kind
}

func newBusError(kind BusErrorKind, format string, args ...any) *BusError {
	return &BusError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapBusBackendError(cause error) *BusError {
	return &BusError{Kind: KindBackend, Message: "backend error", Cause: cause}
}
