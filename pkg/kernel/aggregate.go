package kernel

import "fmt"

// AggregateRoot is the minimal identity + version contract shared by every
// aggregate, event-sourced or not.
type AggregateRoot interface {
	ID() AggregateID
	Version() int64
}

// Aggregate adds event-sourcing semantics on top of AggregateRoot: a pure
// decision function and a pure state-evolution function. Command and Event
// are left as `any` here (Go has no associated-type generics on interfaces);
// concrete aggregates narrow them via type assertions in their own decide/
// apply wrappers, exactly as InventoryItem and Invoice do.
type Aggregate interface {
	AggregateRoot

	// Decide is pure and idempotent with respect to state: calling it
	// repeatedly with the same receiver state and command returns equal
	// event sequences and never mutates the receiver.
	Decide(command any) ([]any, error)

	// Apply mutates state deterministically and increments Version() by one.
	Apply(event any)

	// DecodeEvent turns a stored event's (event_type, payload) back into the
	// concrete event value Apply expects, by exhaustively matching eventType
	// against the aggregate's known event variants (spec.md §9: tagged
	// variants, no runtime reflection).
	DecodeEvent(eventType string, payload []byte) (any, error)
}

// TypedEvent lets a concrete event self-describe its wire event_type. An
// event that does not implement this falls back to its Go type name via
// EventType(), following the teacher's ges.EventType() convention.
type TypedEvent interface {
	EventType() string
}

// VersionedEvent lets a concrete event self-describe its event_version
// (spec.md §3: "event_version, starts at 1"). Events that don't implement
// this default to version 1.
type VersionedEvent interface {
	EventVersion() int
}

// EventType returns e's canonical wire event_type: e.EventType() if e
// implements TypedEvent, otherwise e's Go type name.
func EventType(e any) string {
	if named, ok := e.(TypedEvent); ok {
		return named.EventType()
	}
	return fmt.Sprintf("%T", e)
}

// EventVersionOf returns e's event_version: e.EventVersion() if e implements
// VersionedEvent, otherwise 1.
func EventVersionOf(e any) int {
	if versioned, ok := e.(VersionedEvent); ok {
		return versioned.EventVersion()
	}
	return 1
}

// ExpectedVersion is the optimistic-concurrency precondition supplied with
// every append.
type ExpectedVersion struct {
	any bool  // true => Any, false => Exact
	n   int64 // meaningful only when any == false
}

// Any skips version checking entirely.
func Any() ExpectedVersion { return ExpectedVersion{any: true} }

// Exact requires the stream to be at exactly version n. Exact(0) means the
// stream must not yet exist.
func Exact(n int64) ExpectedVersion { return ExpectedVersion{n: n} }

func (v ExpectedVersion) Matches(actual int64) bool {
	if v.any {
		return true
	}
	return v.n == actual
}

func (v ExpectedVersion) Check(actual int64) error {
	if v.Matches(actual) {
		return nil
	}
	return Conflict("optimistic concurrency check failed (expected %s, actual %d)", v.String(), actual)
}

func (v ExpectedVersion) String() string {
	if v.any {
		return "Any"
	}
	return fmt.Sprintf("Exact(%d)", v.n)
}

// IsAny reports whether this is the Any variant.
func (v ExpectedVersion) IsAny() bool { return v.any }

// Version returns n for the Exact variant; callers must check IsAny first.
func (v ExpectedVersion) Version() int64 { return v.n }
