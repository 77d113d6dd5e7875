package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"erpcore/pkg/eventstore"
)

const defaultBufferSize = 256

// MemoryBus is a lossless-by-default, in-process fan-out bus: each publish
// is delivered to every live subscription. A full subscriber cannot block
// the publisher — if a subscription's buffer overflows, it drops the oldest
// buffered entry and records lag instead.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[*memorySubscription]struct{}
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memorySubscription]struct{})}
}

func (b *MemoryBus) Publish(_ context.Context, envelopes ...eventstore.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return newBusError(KindClosed, "bus is closed")
	}

	for sub := range b.subs {
		for _, e := range envelopes {
			if sub.opts.Tenant != "" && e.TenantID != sub.opts.Tenant {
				continue
			}
			sub.deliver(Delivery{Envelope: e})
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, opts SubscribeOptions) (Subscription, error) {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}

	sub := &memorySubscription{
		bus:  b,
		opts: opts,
		ch:   make(chan Delivery, size),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, newBusError(KindClosed, "bus is closed")
	}
	b.subs[sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*memorySubscription]struct{})
	return nil
}

func (b *MemoryBus) forget(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

type memorySubscription struct {
	bus  *MemoryBus
	opts SubscribeOptions
	ch   chan Delivery
	lag  int64
}

// deliver drops the oldest buffered entry rather than blocking the publisher.
func (s *memorySubscription) deliver(d Delivery) {
	for {
		select {
		case s.ch <- d:
			return
		default:
			select {
			case <-s.ch:
				atomic.AddInt64(&s.lag, 1)
			default:
			}
		}
	}
}

func (s *memorySubscription) Recv(ctx context.Context) (Delivery, error) {
	select {
	case d, ok := <-s.ch:
		if !ok {
			return Delivery{}, newBusError(KindClosed, "subscription closed")
		}
		return d, nil
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

// Ack is a no-op for the in-memory bus: there is no pending set to clear,
// delivery already happened at send time.
func (s *memorySubscription) Ack(context.Context, Delivery) error { return nil }

// Nak is a no-op for the in-memory bus: lossy fan-out has no redelivery.
func (s *memorySubscription) Nak(context.Context, Delivery) error { return nil }

func (s *memorySubscription) Lag() int64 { return atomic.SwapInt64(&s.lag, 0) }

func (s *memorySubscription) Unsubscribe() error {
	s.bus.forget(s)
	return nil
}
