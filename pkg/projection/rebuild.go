package projection

import (
	"context"
	"fmt"
	"sync"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/kernel"
)

// TenantStore clears one tenant's slice of a read model. Read-model types
// that back a Projection implement it directly (see
// pkg/readmodels/*_stock.go's ClearTenant methods).
type TenantStore interface {
	ClearTenant(ctx context.Context, tenant kernel.TenantID) error
}

const rebuildPageSize = 500

// RebuildProgress is a point-in-time snapshot of a running or finished
// RebuildService job. Total grows as the job discovers more matching
// events, matching a streaming (rather than count-first) replay.
type RebuildProgress struct {
	Total      int64
	Applied    int64
	Failed     int64
	Cancelled  bool
	Done       bool
	Err        error
}

// RebuildHandle is the control-plane handle returned by RebuildService.Start:
// a progress snapshot plus a cancel, mirroring original_source's
// ReplayHandle (crates/api/src/app/routes/replay.rs) recast into the
// teacher's context.CancelFunc idiom (pkg/eventsourcing/projection.go's
// ProjectionManager.running map).
type RebuildHandle struct {
	mu       sync.Mutex
	progress RebuildProgress
	cancel   context.CancelFunc
	done     chan struct{}
}

// Progress returns a snapshot of the job's progress so far.
func (h *RebuildHandle) Progress() RebuildProgress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

// Cancel requests the job stop at the next envelope boundary. Cancel does
// not block; use Wait or poll Progress().Done to observe completion.
func (h *RebuildHandle) Cancel() { h.cancel() }

// Wait blocks until the job finishes (successfully, by failure, or by
// cancellation) or ctx is done, whichever comes first.
func (h *RebuildHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *RebuildHandle) update(fn func(*RebuildProgress)) {
	h.mu.Lock()
	fn(&h.progress)
	h.mu.Unlock()
}

// RebuildService is the control-plane counterpart to Engine.RebuildFromScratch:
// rather than replaying an already-loaded, finite slice of envelopes
// unconditionally, it streams events filtered by tenant and aggregate_types
// straight from the event store, exposes live progress, and can be
// cancelled or run in dry_run mode. Grounded on spec.md's "rebuild/replay
// service" (a component distinct from rebuild-from-scratch), the teacher's
// ProjectionManager.Rebuild batch-replay loop, and original_source's
// replay.rs job-handle shape (ReplayRequest{projection, dry_run},
// ReplayStatusResponse{progress}, cancel_replay).
type RebuildService struct {
	engine      *Engine
	store       eventstore.EventStore
	tenantStore TenantStore

	mu      sync.Mutex
	running map[string]*RebuildHandle
}

// NewRebuildService constructs a RebuildService over engine, streaming
// events from store and clearing read-model state through tenantStore when
// not running in dry_run mode.
func NewRebuildService(engine *Engine, store eventstore.EventStore, tenantStore TenantStore) *RebuildService {
	return &RebuildService{
		engine:      engine,
		store:       store,
		tenantStore: tenantStore,
		running:     make(map[string]*RebuildHandle),
	}
}

// Start launches a rebuild job for tenant, restricted to aggregateTypes (all
// types handled by the projection if empty), and returns a jobID plus a
// handle for polling progress or cancelling. The job runs on its own
// goroutine and outlives the ctx used to call Start; cancel the returned
// handle (or call CancelJob) to stop it early.
//
// dryRun applies the per-envelope idempotent/monotonic contract exactly as
// Engine.Handle does, but never calls Projection.Apply or persists a cursor
// advance — it reports what a live rebuild would apply or reject without
// mutating any read model or cursor state.
func (s *RebuildService) Start(ctx context.Context, tenant kernel.TenantID, aggregateTypes []string, dryRun bool) (jobID string, handle *RebuildHandle) {
	if len(aggregateTypes) == 0 {
		aggregateTypes = []string{s.engine.Projection.AggregateType()}
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	handle = &RebuildHandle{cancel: cancel, done: make(chan struct{})}
	jobID = kernel.NewID()

	s.mu.Lock()
	s.running[jobID] = handle
	s.mu.Unlock()

	go s.run(jobCtx, tenant, aggregateTypes, dryRun, handle)
	_ = ctx // Start itself is non-blocking; ctx only scopes the call, not the job
	return jobID, handle
}

// Lookup returns the handle for a previously started job, if it is still
// tracked (finished jobs remain tracked until the process restarts, matching
// original_source's in-memory ReplayJobStore).
func (s *RebuildService) Lookup(jobID string) (*RebuildHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.running[jobID]
	return h, ok
}

// CancelJob cancels a tracked job by id. It reports whether the job was
// found, not whether it had already finished.
func (s *RebuildService) CancelJob(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.running[jobID]
	if !ok {
		return false
	}
	h.Cancel()
	return true
}

func (s *RebuildService) run(ctx context.Context, tenant kernel.TenantID, aggregateTypes []string, dryRun bool, handle *RebuildHandle) {
	defer close(handle.done)

	if !dryRun {
		if err := s.tenantStore.ClearTenant(ctx, tenant); err != nil {
			handle.update(func(p *RebuildProgress) { p.Done, p.Err = true, fmt.Errorf("clear tenant read model: %w", err) })
			return
		}
		if err := s.engine.Cursors.ClearTenant(ctx, tenant, s.engine.Projection.Name()); err != nil {
			handle.update(func(p *RebuildProgress) { p.Done, p.Err = true, fmt.Errorf("clear tenant cursors: %w", err) })
			return
		}
	}

	shadowCursors := make(map[kernel.AggregateID]int64)

	for _, aggregateType := range aggregateTypes {
		offset := 0
		for {
			select {
			case <-ctx.Done():
				handle.update(func(p *RebuildProgress) { p.Done, p.Cancelled = true, true })
				return
			default:
			}

			page, err := s.store.Query(ctx, eventstore.Query{
				Tenant:        tenant,
				AggregateType: aggregateType,
				Limit:         rebuildPageSize,
				Offset:        offset,
			})
			if err != nil {
				handle.update(func(p *RebuildProgress) { p.Done, p.Err = true, fmt.Errorf("query events: %w", err) })
				return
			}
			if len(page) == 0 {
				break
			}

			handle.update(func(p *RebuildProgress) { p.Total += int64(len(page)) })

			for _, stored := range page {
				select {
				case <-ctx.Done():
					handle.update(func(p *RebuildProgress) { p.Done, p.Cancelled = true, true })
					return
				default:
				}

				var applyErr error
				if dryRun {
					applyErr = s.validateOnly(stored.Envelope, shadowCursors)
				} else {
					applyErr = s.engine.Handle(ctx, stored.Envelope)
				}

				if applyErr != nil {
					handle.update(func(p *RebuildProgress) { p.Failed++ })
				} else {
					handle.update(func(p *RebuildProgress) { p.Applied++ })
				}
			}

			if len(page) < rebuildPageSize {
				break
			}
			offset += rebuildPageSize
		}
	}

	handle.update(func(p *RebuildProgress) { p.Done = true })
}

// validateOnly applies Engine.Handle's idempotent/monotonic sequence
// contract against an in-process shadow cursor, without ever calling
// Projection.Apply or persisting a cursor advance — the read-only dry_run
// path.
func (s *RebuildService) validateOnly(envelope eventstore.Envelope, shadow map[kernel.AggregateID]int64) error {
	if envelope.AggregateType != s.engine.Projection.AggregateType() {
		return nil
	}
	if envelope.SequenceNumber == 0 {
		return &Error{Kind: KindNonMonotonicSequence, Message: "sequence_number must be positive"}
	}

	lastApplied := shadow[envelope.AggregateID]
	if envelope.SequenceNumber <= lastApplied {
		return nil
	}
	if lastApplied > 0 && envelope.SequenceNumber != lastApplied+1 {
		return &Error{Kind: KindNonMonotonicSequence,
			Message: fmt.Sprintf("expected sequence %d, got %d", lastApplied+1, envelope.SequenceNumber)}
	}

	shadow[envelope.AggregateID] = envelope.SequenceNumber
	return nil
}
