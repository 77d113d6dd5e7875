// Package parties implements the Party aggregate (supplemental, from
// original_source/crates/parties/src/party.rs): Active <-> Suspended,
// covering both customers and suppliers.
package parties

import (
	"encoding/json"
	"strings"

	"erpcore/pkg/kernel"
)

// AggregateType is the wire aggregate_type for every party stream.
const AggregateType = "parties.party"

type PartyID kernel.AggregateID

func NewPartyID() PartyID                      { return PartyID(kernel.NewAggregateID()) }
func (id PartyID) Underlying() kernel.AggregateID { return kernel.AggregateID(id) }
func (id PartyID) String() string              { return string(id) }

type Kind string

const (
	KindCustomer Kind = "customer"
	KindSupplier Kind = "supplier"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

type Contact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type Party struct {
	id       kernel.AggregateID
	tenantID kernel.TenantID
	kind     Kind
	name     string
	contact  Contact
	status   Status
	version  int64
	created  bool
}

func New(tenant kernel.TenantID, id kernel.AggregateID) kernel.Aggregate {
	return &Party{id: id, tenantID: tenant, status: StatusActive}
}

func (p *Party) ID() kernel.AggregateID { return p.id }
func (p *Party) Version() int64        { return p.version }
func (p *Party) Created() bool         { return p.created }
func (p *Party) Kind() Kind            { return p.kind }
func (p *Party) Name() string          { return p.name }
func (p *Party) Contact() Contact      { return p.contact }
func (p *Party) Status() Status        { return p.status }

// CanTransact reports whether this party is allowed to take part in new
// sales or purchase orders. Suspended parties cannot transact.
func (p *Party) CanTransact() bool { return p.status == StatusActive }

// Commands

type RegisterParty struct {
	Kind    Kind
	Name    string
	Contact Contact
}

type UpdateDetails struct {
	Name    *string
	Contact *Contact
}

type Suspend struct {
	Reason string
}

type Reactivate struct{}

// Events

type PartyRegistered struct {
	TenantID kernel.TenantID    `json:"tenant_id"`
	PartyID  kernel.AggregateID `json:"party_id"`
	Kind     Kind               `json:"kind"`
	Name     string             `json:"name"`
	Contact  Contact            `json:"contact"`
}

func (PartyRegistered) EventType() string { return "parties.party.registered" }

type PartyUpdated struct {
	TenantID kernel.TenantID    `json:"tenant_id"`
	PartyID  kernel.AggregateID `json:"party_id"`
	Name     string             `json:"name"`
	Contact  Contact            `json:"contact"`
}

func (PartyUpdated) EventType() string { return "parties.party.updated" }

type PartySuspended struct {
	TenantID kernel.TenantID    `json:"tenant_id"`
	PartyID  kernel.AggregateID `json:"party_id"`
	Reason   string             `json:"reason"`
}

func (PartySuspended) EventType() string { return "parties.party.suspended" }

// PartyReactivated is supplemental to original_source, which modeled only
// one-way suspension; spec.md §4.7 calls for Active<->Suspended explicitly.
type PartyReactivated struct {
	TenantID kernel.TenantID    `json:"tenant_id"`
	PartyID  kernel.AggregateID `json:"party_id"`
}

func (PartyReactivated) EventType() string { return "parties.party.reactivated" }

func (p *Party) Decide(command any) ([]any, error) {
	switch cmd := command.(type) {
	case RegisterParty:
		return p.decideRegister(cmd)
	case UpdateDetails:
		return p.decideUpdate(cmd)
	case Suspend:
		return p.decideSuspend(cmd)
	case Reactivate:
		return p.decideReactivate(cmd)
	default:
		return nil, kernel.Validation("parties.party: unrecognized command %T", command)
	}
}

func (p *Party) decideRegister(cmd RegisterParty) ([]any, error) {
	if p.created {
		return nil, kernel.Conflict("party already exists")
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, kernel.Validation("name cannot be empty")
	}
	return []any{PartyRegistered{TenantID: p.tenantID, PartyID: p.id, Kind: cmd.Kind, Name: cmd.Name, Contact: cmd.Contact}}, nil
}

func (p *Party) decideUpdate(cmd UpdateDetails) ([]any, error) {
	if !p.created {
		return nil, kernel.NotFound("party not found")
	}
	name := p.name
	if cmd.Name != nil {
		if strings.TrimSpace(*cmd.Name) == "" {
			return nil, kernel.Validation("name cannot be empty")
		}
		name = *cmd.Name
	}
	contact := p.contact
	if cmd.Contact != nil {
		contact = *cmd.Contact
	}
	return []any{PartyUpdated{TenantID: p.tenantID, PartyID: p.id, Name: name, Contact: contact}}, nil
}

func (p *Party) decideSuspend(cmd Suspend) ([]any, error) {
	if !p.created {
		return nil, kernel.NotFound("party not found")
	}
	if p.status == StatusSuspended {
		return nil, kernel.Conflict("party is already suspended")
	}
	return []any{PartySuspended{TenantID: p.tenantID, PartyID: p.id, Reason: cmd.Reason}}, nil
}

func (p *Party) decideReactivate(cmd Reactivate) ([]any, error) {
	if !p.created {
		return nil, kernel.NotFound("party not found")
	}
	if p.status == StatusActive {
		return nil, kernel.Conflict("party is already active")
	}
	return []any{PartyReactivated{TenantID: p.tenantID, PartyID: p.id}}, nil
}

func (p *Party) Apply(event any) {
	switch e := event.(type) {
	case PartyRegistered:
		p.tenantID = e.TenantID
		p.id = e.PartyID
		p.kind = e.Kind
		p.name = e.Name
		p.contact = e.Contact
		p.status = StatusActive
		p.created = true
	case PartyUpdated:
		p.name = e.Name
		p.contact = e.Contact
	case PartySuspended:
		p.status = StatusSuspended
	case PartyReactivated:
		p.status = StatusActive
	}
	p.version++
}

func (p *Party) DecodeEvent(eventType string, payload []byte) (any, error) {
	switch eventType {
	case "parties.party.registered":
		var e PartyRegistered
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "parties.party.updated":
		var e PartyUpdated
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "parties.party.suspended":
		var e PartySuspended
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "parties.party.reactivated":
		var e PartyReactivated
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, kernel.Validation("parties.party: unknown event_type %q", eventType)
	}
}

type partySnapshot struct {
	TenantID kernel.TenantID    `json:"tenant_id"`
	ID       kernel.AggregateID `json:"id"`
	Kind     Kind               `json:"kind"`
	Name     string             `json:"name"`
	Contact  Contact            `json:"contact"`
	Status   Status             `json:"status"`
	Created  bool               `json:"created"`
	Version  int64              `json:"version"`
}

func (p *Party) SnapshotState() (json.RawMessage, error) {
	return json.Marshal(partySnapshot{
		TenantID: p.tenantID, ID: p.id, Kind: p.kind, Name: p.name,
		Contact: p.contact, Status: p.status, Created: p.created, Version: p.version,
	})
}

func (p *Party) RestoreSnapshot(state json.RawMessage) error {
	var s partySnapshot
	if err := json.Unmarshal(state, &s); err != nil {
		return err
	}
	p.tenantID, p.id, p.kind, p.name = s.TenantID, s.ID, s.Kind, s.Name
	p.contact, p.status, p.created, p.version = s.Contact, s.Status, s.Created, s.Version
	return nil
}
