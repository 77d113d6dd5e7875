package eventstore

import (
	"context"
	"sort"
	"sync"

	"erpcore/pkg/kernel"
)

type streamKey struct {
	tenant    kernel.TenantID
	aggregate kernel.AggregateID
}

// MemoryStore is an in-memory EventStore backed by per-stream ordered
// slices guarded by a single writer lock, suitable for tests and dev.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[streamKey][]StoredEvent
	types   map[streamKey]string
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[streamKey][]StoredEvent),
		types:   make(map[streamKey]string),
	}
}

func (s *MemoryStore) LoadStream(_ context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.streams[streamKey{tenant, aggregate}]
	out := make([]StoredEvent, len(events))
	copy(out, events)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, events []UncommittedEvent, expected kernel.ExpectedVersion) ([]StoredEvent, error) {
	if storeErr, _, _, _ := validateBatch(events); storeErr != nil {
		return nil, storeErr
	}
	first := events[0]
	key := streamKey{first.TenantID, first.AggregateID}

	s.mu.Lock()
	defer s.mu.Unlock()

	existingType, hasStream := s.types[key]
	if hasStream && existingType != first.AggregateType {
		return nil, newStoreError(KindAggregateTypeMismatch,
			"stream %s/%s has aggregate_type %q, batch has %q", first.TenantID, first.AggregateID, existingType, first.AggregateType)
	}

	current := s.streams[key]
	var currentVersion int64
	if len(current) > 0 {
		currentVersion = current[len(current)-1].SequenceNumber
	}

	if err := expected.Check(currentVersion); err != nil {
		return nil, newStoreError(KindConcurrency, "%v", err)
	}

	committed := make([]StoredEvent, 0, len(events))
	for i, e := range events {
		stored := StoredEvent{
			Envelope: Envelope{
				EventID:        e.EventID,
				TenantID:       e.TenantID,
				AggregateID:    e.AggregateID,
				AggregateType:  e.AggregateType,
				SequenceNumber: currentVersion + int64(i) + 1,
				EventType:      e.EventType,
				EventVersion:   e.EventVersion,
				OccurredAt:     e.OccurredAt,
				Payload:        e.Payload,
			},
			CreatedAt: kernel.Now(),
		}
		committed = append(committed, stored)
	}

	s.streams[key] = append(current, committed...)
	s.types[key] = first.AggregateType

	out := make([]StoredEvent, len(committed))
	copy(out, committed)
	return out, nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []StoredEvent
	for key, events := range s.streams {
		if key.tenant != q.Tenant {
			continue
		}
		if q.AggregateID != nil && key.aggregate != *q.AggregateID {
			continue
		}
		for _, e := range events {
			if q.AggregateType != "" && e.AggregateType != q.AggregateType {
				continue
			}
			if q.EventType != "" && e.EventType != q.EventType {
				continue
			}
			occurredNano := e.OccurredAt.UnixNano()
			if q.From != nil && occurredNano < *q.From {
				continue
			}
			if q.To != nil && occurredNano > *q.To {
				continue
			}
			matched = append(matched, e)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].AggregateID != matched[j].AggregateID {
			return matched[i].AggregateID < matched[j].AggregateID
		}
		return matched[i].SequenceNumber < matched[j].SequenceNumber
	})

	return paginate(matched, q.Limit, q.Offset), nil
}

func (s *MemoryStore) GetAggregateEvents(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID, limit, offset int) ([]StoredEvent, error) {
	events, err := s.LoadStream(ctx, tenant, aggregate)
	if err != nil {
		return nil, err
	}
	return paginate(events, limit, offset), nil
}

func (s *MemoryStore) GetEventByID(_ context.Context, tenant kernel.TenantID, eventID string) (*StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, events := range s.streams {
		if key.tenant != tenant {
			continue
		}
		for _, e := range events {
			if e.EventID == eventID {
				found := e
				return &found, nil
			}
		}
	}
	return nil, nil
}

func (s *MemoryStore) Close() error { return nil }

func paginate(events []StoredEvent, limit, offset int) []StoredEvent {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(events) {
		return []StoredEvent{}
	}
	end := len(events)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]StoredEvent, end-offset)
	copy(out, events[offset:end])
	return out
}
