// Package kernel defines the domain kernel shared by every aggregate in the
// system: identifiers, the error taxonomy, and the aggregate/expected-version
// contracts. It performs no IO.
package kernel

import (
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// entropySource is a monotonic ULID entropy source shared by this process.
// ULIDs are time-ordered, so identifiers minted here sort by creation order,
// which is what makes replay and pagination deterministic.
var entropySource = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

// NewID generates a fresh 128-bit time-ordered identifier string.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropySource).String()
}

// TenantID identifies the top-level isolation boundary. No operation may
// observe data belonging to a different tenant.
type TenantID string

// NewTenantID mints a fresh tenant identifier.
func NewTenantID() TenantID { return TenantID(NewID()) }

// ParseTenantID validates and wraps a string as a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	if strings.TrimSpace(s) == "" {
		return "", NewDomainError(KindInvalidID, "tenant id must not be empty")
	}
	return TenantID(s), nil
}

func (t TenantID) String() string { return string(t) }

// AggregateID identifies a single aggregate instance within a tenant.
type AggregateID string

// NewAggregateID mints a fresh aggregate identifier.
func NewAggregateID() AggregateID { return AggregateID(NewID()) }

// ParseAggregateID validates and wraps a string as an AggregateID.
func ParseAggregateID(s string) (AggregateID, error) {
	if strings.TrimSpace(s) == "" {
		return "", NewDomainError(KindInvalidID, "aggregate id must not be empty")
	}
	return AggregateID(s), nil
}

func (a AggregateID) String() string { return string(a) }

// CorrelationID threads one logical request (a command plus every job or
// downstream command it causes) across process and transport boundaries.
// Unlike TenantID/AggregateID it carries no ordering meaning, so it is
// backed by a random UUIDv4 rather than a ULID.
type CorrelationID string

// NewCorrelationID mints a fresh correlation identifier.
func NewCorrelationID() CorrelationID { return CorrelationID(uuid.NewString()) }

func (c CorrelationID) String() string { return string(c) }
