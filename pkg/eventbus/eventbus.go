// Package eventbus transports committed envelopes from the dispatcher to
// subscribers: an in-memory lossy fan-out for tests/single-process
// deployments, and a NATS JetStream durable consumer-group variant for
// production.
package eventbus

import (
	"context"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/kernel"
)

// EventBus accepts committed envelopes and yields pull-based Subscriptions.
// Delivery is at-least-once; subscribers must be idempotent.
type EventBus interface {
	Publish(ctx context.Context, envelopes ...eventstore.Envelope) error

	// Subscribe opens a pull subscription, optionally scoped to one tenant
	// (empty tenant means all tenants) and one consumer group name.
	Subscribe(ctx context.Context, opts SubscribeOptions) (Subscription, error)

	Close() error
}

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	// Group names a durable consumer group (e.g. "inventory.projection").
	// Within a group, each envelope is delivered to exactly one live
	// consumer; across groups, each envelope is delivered to every group.
	// Empty group means an ephemeral, ungrouped subscription (in-memory
	// fan-out only delivers to each Subscribe call once regardless).
	Group string

	// Tenant restricts delivery to one tenant; zero value means all tenants.
	Tenant kernel.TenantID

	// BufferSize bounds the in-memory subscription's backlog before it
	// starts dropping oldest entries and signaling lag. Ignored by the
	// durable implementation.
	BufferSize int
}

// Delivery wraps an envelope with consumer-group bookkeeping.
type Delivery struct {
	Envelope      eventstore.Envelope
	RedeliveryCnt int

	// natsMsg carries the underlying *nats.Msg for the durable bus so Ack/Nak
	// can be applied to the exact delivered message; nil for the in-memory bus.
	natsMsg any
}

// Subscription is a pull interface: Recv blocks until a message is
// available or the subscription/bus is closed. Callers process envelopes
// sequentially per subscription.
type Subscription interface {
	// Recv blocks for the next delivery, or returns an error when ctx is
	// done or the subscription is closed.
	Recv(ctx context.Context) (Delivery, error)

	// Ack acknowledges successful processing of the last Recv'd delivery
	// (consumers must process sequentially and Ack/Nak before the next Recv).
	Ack(ctx context.Context, d Delivery) error

	// Nak signals failed processing; the envelope will be redelivered
	// (subject to the bus's redelivery policy).
	Nak(ctx context.Context, d Delivery) error

	// Lag reports how many buffered entries were dropped since the last
	// call (in-memory bus only; durable bus always reports 0 since it never
	// drops — it redelivers or dead-letters instead).
	Lag() int64

	Unsubscribe() error
}
