package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/kernel"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the durable JetStream-backed bus.
type NATSConfig struct {
	URL string

	StreamName    string
	DLQStreamName string

	MaxAge   time.Duration
	MaxBytes int64

	// MaxRetries bounds redelivery before an envelope is moved to the
	// dead-letter stream.
	MaxRetries int

	// AckWait is how long JetStream waits for an Ack before considering a
	// pending entry idle and eligible for reclaim by another consumer.
	AckWait time.Duration

	// FetchTimeout bounds how long a single Recv's pull-fetch blocks.
	FetchTimeout time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		StreamName:    "EVENTS",
		DLQStreamName: "EVENTS_DLQ",
		MaxAge:        7 * 24 * time.Hour,
		MaxBytes:      1024 * 1024 * 1024,
		MaxRetries:    5,
		AckWait:       30 * time.Second,
		FetchTimeout:  2 * time.Second,
	}
}

// NATSBus is a JetStream-backed durable EventBus. A single logical stream
// carries all envelopes; durable consumer groups partition work so that,
// within a group, each envelope is delivered to exactly one live consumer,
// while across groups each envelope is delivered to every group.
type NATSBus struct {
	cfg NATSConfig
	nc  *nats.Conn
	js  nats.JetStreamContext

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}
}

// NewNATSBus connects to NATS, ensures the main and dead-letter streams
// exist (MKSTREAM semantics: created idempotently at startup).
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("eventbus: jetstream context: %w", err)
	}

	bus := &NATSBus{cfg: cfg, nc: nc, js: js, subs: make(map[*natsSubscription]struct{})}

	if err := bus.ensureStream(cfg.StreamName, []string{"events.>"}); err != nil {
		nc.Close()
		return nil, err
	}
	if err := bus.ensureStream(cfg.DLQStreamName, []string{"events-dlq.>"}); err != nil {
		nc.Close()
		return nil, err
	}

	return bus, nil
}

func (b *NATSBus) ensureStream(name string, subjects []string) error {
	cfg := &nats.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: nats.InterestPolicy,
		MaxAge:    b.cfg.MaxAge,
		MaxBytes:  b.cfg.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}
	if _, err := b.js.StreamInfo(name); err != nil {
		if _, err := b.js.AddStream(cfg); err != nil {
			return fmt.Errorf("eventbus: ensure stream %s: %w", name, err)
		}
	}
	return nil
}

func subject(e eventstore.Envelope) string {
	return fmt.Sprintf("events.%s.%s", e.AggregateType, e.EventType)
}

func (b *NATSBus) Publish(_ context.Context, envelopes ...eventstore.Envelope) error {
	for _, e := range envelopes {
		payload, err := json.Marshal(e)
		if err != nil {
			return wrapBusBackendError(err)
		}
		if _, err := b.js.Publish(subject(e), payload, nats.MsgId(e.EventID)); err != nil {
			return wrapBusBackendError(err)
		}
	}
	return nil
}

// Subscribe creates (or reattaches to) a durable pull consumer named after
// opts.Group. Empty group gets an auto-generated ephemeral-ish durable name
// scoped to this process.
func (b *NATSBus) Subscribe(_ context.Context, opts SubscribeOptions) (Subscription, error) {
	group := opts.Group
	if group == "" {
		group = "ephemeral-" + kernel.NewID()
	}

	filterSubject := "events.>"

	sub, err := b.js.PullSubscribe(filterSubject, group,
		nats.AckExplicit(),
		nats.AckWait(b.cfg.AckWait),
		nats.MaxDeliver(-1), // redelivery cap is enforced by this bus, not JetStream, so DLQ metadata can be attached
	)
	if err != nil {
		return nil, wrapBusBackendError(err)
	}

	ns := &natsSubscription{bus: b, sub: sub, opts: opts}

	b.mu.Lock()
	b.subs[ns] = struct{}{}
	b.mu.Unlock()

	return ns, nil
}

func (b *NATSBus) Close() error {
	b.mu.Lock()
	for sub := range b.subs {
		sub.sub.Unsubscribe()
	}
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	b.nc.Close()
	return nil
}

type natsSubscription struct {
	bus  *NATSBus
	sub  *nats.Subscription
	opts SubscribeOptions
}

// Recv polls pending (unacknowledged) entries for this consumer first by
// relying on JetStream's pull semantics (redelivered messages surface
// before new ones once their AckWait expires), then new entries, bounded by
// FetchTimeout so shutdown stays responsive.
func (s *natsSubscription) Recv(ctx context.Context) (Delivery, error) {
	for {
		msgs, err := s.sub.Fetch(1, nats.MaxWait(s.bus.cfg.FetchTimeout))
		if err != nil {
			if err == nats.ErrTimeout {
				select {
				case <-ctx.Done():
					return Delivery{}, ctx.Err()
				default:
					continue
				}
			}
			return Delivery{}, wrapBusBackendError(err)
		}
		if len(msgs) == 0 {
			continue
		}
		msg := msgs[0]

		var env eventstore.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			msg.Nak()
			continue
		}
		if s.opts.Tenant != "" && env.TenantID != s.opts.Tenant {
			msg.Ack()
			continue
		}

		meta, err := msg.Metadata()
		redelivered := 0
		if err == nil {
			redelivered = int(meta.NumDelivered) - 1
		}

		if redelivered >= s.bus.cfg.MaxRetries {
			if err := s.bus.deadLetter(env, redelivered); err != nil {
				return Delivery{}, err
			}
			msg.Ack()
			continue
		}

		return Delivery{Envelope: env, RedeliveryCnt: redelivered, natsMsg: msg}, nil
	}
}

func (b *NATSBus) deadLetter(env eventstore.Envelope, retryCount int) error {
	payload, err := json.Marshal(deadLetterRecord{
		OriginalMessageID: env.EventID,
		RetryCount:        retryCount,
		FailedAt:          kernel.Now(),
		Payload:           env,
	})
	if err != nil {
		return wrapBusBackendError(err)
	}
	if _, err := b.js.Publish("events-dlq."+env.AggregateType, payload); err != nil {
		return wrapBusBackendError(err)
	}
	return nil
}

type deadLetterRecord struct {
	OriginalMessageID string             `json:"original_message_id"`
	RetryCount        int                `json:"retry_count"`
	FailedAt          time.Time          `json:"failed_at"`
	Payload           eventstore.Envelope `json:"payload"`
}

func (s *natsSubscription) Ack(_ context.Context, d Delivery) error {
	if d.natsMsg == nil {
		return nil
	}
	return d.natsMsg.(*nats.Msg).Ack()
}

func (s *natsSubscription) Nak(_ context.Context, d Delivery) error {
	if d.natsMsg == nil {
		return nil
	}
	return d.natsMsg.(*nats.Msg).Nak()
}

// Lag is always 0: the durable bus never drops entries; it redelivers or
// dead-letters instead.
func (s *natsSubscription) Lag() int64 { return 0 }

func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}
