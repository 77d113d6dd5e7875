package kernel_test

import (
	"errors"
	"testing"

	"erpcore/pkg/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_IsTimeOrderedAndUnique(t *testing.T) {
	a := kernel.NewID()
	b := kernel.NewID()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "a later ULID sorts after an earlier one")
	assert.Len(t, a, 26, "ULID canonical string encoding is 26 characters")
}

func TestParseTenantID_RejectsEmpty(t *testing.T) {
	_, err := kernel.ParseTenantID("  ")
	require.Error(t, err)
	var domainErr *kernel.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, kernel.KindInvalidID, domainErr.Kind)
}

func TestParseAggregateID_AcceptsNonEmpty(t *testing.T) {
	id, err := kernel.ParseAggregateID("abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", id.String())
}

func TestNewCorrelationID_ProducesDistinctUUIDs(t *testing.T) {
	a := kernel.NewCorrelationID()
	b := kernel.NewCorrelationID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a.String(), 36, "canonical UUID string is 36 characters with dashes")
}

func TestExpectedVersion_AnyAlwaysMatches(t *testing.T) {
	v := kernel.Any()
	assert.True(t, v.Matches(0))
	assert.True(t, v.Matches(42))
	assert.NoError(t, v.Check(42))
}

func TestExpectedVersion_ExactRejectsMismatch(t *testing.T) {
	v := kernel.Exact(3)
	assert.True(t, v.Matches(3))
	assert.False(t, v.Matches(4))

	err := v.Check(4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, kernel.ErrConflict))
}

func TestDomainError_IsComparesByKindNotIdentity(t *testing.T) {
	err := kernel.Validation("name cannot be empty")
	assert.True(t, errors.Is(err, kernel.ErrValidation))
	assert.False(t, errors.Is(err, kernel.ErrNotFound))
}

func TestEventType_PrefersTypedEventOverGoTypeName(t *testing.T) {
	type plain struct{}
	assert.Contains(t, kernel.EventType(plain{}), "plain")

	typed := typedStub{}
	assert.Equal(t, "stub.event", kernel.EventType(typed))
}

func TestEventVersionOf_DefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, kernel.EventVersionOf(struct{}{}))
}

type typedStub struct{}

func (typedStub) EventType() string { return "stub.event" }
