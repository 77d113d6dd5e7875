package parties_test

import (
	"testing"

	"erpcore/pkg/kernel"
	"erpcore/pkg/parties"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParty() *parties.Party {
	return parties.New(kernel.NewTenantID(), kernel.NewAggregateID()).(*parties.Party)
}

func applyParty(t *testing.T, p *parties.Party, cmd any) {
	t.Helper()
	events, err := p.Decide(cmd)
	require.NoError(t, err)
	for _, e := range events {
		p.Apply(e)
	}
}

func TestParty_RegisterThenSuspendThenReactivate(t *testing.T) {
	p := newParty()
	applyParty(t, p, parties.RegisterParty{Kind: parties.KindCustomer, Name: "Acme Co"})
	assert.True(t, p.CanTransact())

	applyParty(t, p, parties.Suspend{Reason: "overdue invoice"})
	assert.False(t, p.CanTransact())
	assert.Equal(t, parties.StatusSuspended, p.Status())

	applyParty(t, p, parties.Reactivate{})
	assert.True(t, p.CanTransact())
}

func TestParty_CannotSuspendTwice(t *testing.T) {
	p := newParty()
	applyParty(t, p, parties.RegisterParty{Kind: parties.KindSupplier, Name: "Acme Supply"})
	applyParty(t, p, parties.Suspend{Reason: "fraud"})

	_, err := p.Decide(parties.Suspend{Reason: "again"})
	require.Error(t, err)
}

func TestParty_CannotReactivateWhenActive(t *testing.T) {
	p := newParty()
	applyParty(t, p, parties.RegisterParty{Kind: parties.KindCustomer, Name: "Acme Co"})

	_, err := p.Decide(parties.Reactivate{})
	require.Error(t, err)
}

func TestParty_UpdateDetailsPartial(t *testing.T) {
	p := newParty()
	applyParty(t, p, parties.RegisterParty{Kind: parties.KindCustomer, Name: "Acme Co", Contact: parties.Contact{Email: "a@acme.test"}})

	newName := "Acme Corp"
	applyParty(t, p, parties.UpdateDetails{Name: &newName})
	assert.Equal(t, "Acme Corp", p.Name())
	assert.Equal(t, "a@acme.test", p.Contact().Email, "contact left untouched when only Name is set")
}

func TestParty_RejectsEmptyName(t *testing.T) {
	p := newParty()
	_, err := p.Decide(parties.RegisterParty{Kind: parties.KindCustomer, Name: "  "})
	require.Error(t, err)
}

func TestParty_SnapshotRoundTrip(t *testing.T) {
	p := newParty()
	applyParty(t, p, parties.RegisterParty{Kind: parties.KindSupplier, Name: "Acme Supply"})
	applyParty(t, p, parties.Suspend{Reason: "review"})

	state, err := p.SnapshotState()
	require.NoError(t, err)

	restored := parties.New(kernel.NewTenantID(), kernel.NewAggregateID()).(*parties.Party)
	require.NoError(t, restored.RestoreSnapshot(state))
	assert.Equal(t, p.Status(), restored.Status())
	assert.Equal(t, p.Name(), restored.Name())
	assert.Equal(t, p.Version(), restored.Version())
}
