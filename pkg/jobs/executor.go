package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"erpcore/pkg/kernel"
)

// Handler executes one job and reports the outcome. Handlers are registered
// per Kind; an unregistered kind is a permanent failure (no retry can help
// it).
type Handler func(ctx context.Context, job Job) Result

// ExecutorConfig configures an Executor's polling loop.
type ExecutorConfig struct {
	PollInterval  time.Duration
	MaxConcurrent int
	Name          string
	TenantID      kernel.TenantID // jobs are claimed for this tenant only; the zero value matches only jobs with an empty TenantID
}

// DefaultExecutorConfig matches original_source's JobExecutorConfig::default.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{PollInterval: 100 * time.Millisecond, MaxConcurrent: 4, Name: "job-executor"}
}

// Stats is a snapshot of executor runtime counters.
type Stats struct {
	JobsProcessed    uint64 `json:"jobs_processed"`
	JobsSucceeded    uint64 `json:"jobs_succeeded"`
	JobsFailed       uint64 `json:"jobs_failed"`
	JobsDeadLettered uint64 `json:"jobs_dead_lettered"`
}

// Executor polls a Store for ready jobs and runs them with registered
// Handlers, a bounded worker pool, and automatic retry/DLQ handling.
// Grounded on original_source/crates/infra/src/jobs/executor.rs, recast
// from its mpsc-channel-plus-thread model into the teacher's
// context-cancellation idiom (pkg/runner.Service).
type Executor struct {
	store    Store
	config   ExecutorConfig
	handlers map[string]Handler

	processed    atomic.Uint64
	succeeded    atomic.Uint64
	failed       atomic.Uint64
	deadLettered atomic.Uint64
}

// NewExecutor constructs an Executor over store with config.
func NewExecutor(store Store, config ExecutorConfig) *Executor {
	if config.PollInterval == 0 {
		config = DefaultExecutorConfig()
	}
	return &Executor{store: store, config: config, handlers: make(map[string]Handler)}
}

// RegisterHandler binds a Handler to a job Kind.
func (e *Executor) RegisterHandler(kind string, handler Handler) {
	e.handlers[kind] = handler
}

// Name returns the executor's configured name.
func (e *Executor) Name() string { return e.config.Name }

// Stats returns a snapshot of the executor's counters.
func (e *Executor) Stats() Stats {
	return Stats{
		JobsProcessed:    e.processed.Load(),
		JobsSucceeded:    e.succeeded.Load(),
		JobsFailed:       e.failed.Load(),
		JobsDeadLettered: e.deadLettered.Load(),
	}
}

// Run polls for ready jobs and executes them until ctx is cancelled. It
// blocks, matching the teacher's Service.Start(ctx)-blocks-until-done shape
// for long-running services.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, max(1, e.config.MaxConcurrent))
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			jobs, err := e.store.ClaimReady(ctx, e.config.TenantID, e.config.MaxConcurrent)
			if err != nil {
				continue
			}
			for _, job := range jobs {
				job := job
				sem <- struct{}{}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer func() { <-sem }()
					e.runOne(ctx, job)
				}()
			}
		}
	}
}

func (e *Executor) runOne(ctx context.Context, job Job) {
	started := kernel.Now()
	e.processed.Add(1)

	handler, ok := e.resolveHandler(job.Kind)
	if !ok {
		reason := fmt.Sprintf("no handler registered for kind %q", job.Kind)
		job.MarkFailed(reason, started)
		job.Status = StatusDeadLettered
		_ = e.store.Update(ctx, job)
		e.failed.Add(1)
		e.deadLettered.Add(1)
		_ = e.store.DeadLetter(ctx, DeadLetterEntry{Job: job, DeadLetteredAt: kernel.Now(), Reason: reason})
		return
	}

	result := handler(ctx, job)
	if result.Err == nil {
		job.MarkCompleted(started)
		_ = e.store.Update(ctx, job)
		e.succeeded.Add(1)
		return
	}

	if result.RetryNow {
		job.Status = StatusPending
		job.UpdatedAt = kernel.Now()
		_ = e.store.Update(ctx, job)
		return
	}
	if result.RetryAfter > 0 {
		delayed := job.Delayed(result.RetryAfter)
		delayed.Status = StatusFailed
		delayed.UpdatedAt = kernel.Now()
		_ = e.store.Update(ctx, delayed)
		return
	}

	e.finishFailure(ctx, job, started, result.Err)
}

// resolveHandler implements original_source's dispatch order: an exact
// match on kind, then the longest registered "prefix.*" wildcard, then the
// catch-all "*".
func (e *Executor) resolveHandler(kind string) (Handler, bool) {
	if h, ok := e.handlers[kind]; ok {
		return h, true
	}

	var best Handler
	bestLen := -1
	for pattern, h := range e.handlers {
		prefix, isWildcard := strings.CutSuffix(pattern, "*")
		if !isWildcard || prefix == "" {
			continue
		}
		if strings.HasPrefix(kind, prefix) && len(prefix) > bestLen {
			best, bestLen = h, len(prefix)
		}
	}
	if bestLen >= 0 {
		return best, true
	}

	if h, ok := e.handlers["*"]; ok {
		return h, true
	}
	return nil, false
}

func (e *Executor) finishFailure(ctx context.Context, job Job, started time.Time, err error) {
	job.MarkFailed(err.Error(), started)
	_ = e.store.Update(ctx, job)
	e.failed.Add(1)

	if job.Status == StatusDeadLettered {
		e.deadLettered.Add(1)
		_ = e.store.DeadLetter(ctx, DeadLetterEntry{Job: job, DeadLetteredAt: kernel.Now(), Reason: err.Error()})
	}
}
