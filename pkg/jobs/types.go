// Package jobs implements the background job engine: retryable, tenant-
// scoped units of work with pluggable backoff policies and a dead-letter
// queue for exhausted retries. Grounded on
// original_source/crates/infra/src/jobs/{types.rs,store.rs,executor.rs},
// expressed in the teacher's goroutine/channel idiom (pkg/runner) rather
// than the original's thread-per-executor model.
package jobs

import (
	"encoding/json"
	"math"
	"time"

	"erpcore/pkg/kernel"
)

// ID identifies one job.
type ID string

func NewID() ID { return ID(kernel.NewID()) }

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusDeadLettered Status = "dead_lettered"
	StatusCancelled    Status = "cancelled"
)

// BackoffStrategy selects how RetryPolicy.DelayForAttempt grows with attempt
// number.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
)

// RetryPolicy configures how a failed job is rescheduled.
type RetryPolicy struct {
	MaxAttempts int             `json:"max_attempts"`
	BaseDelay   time.Duration   `json:"base_delay"`
	MaxDelay    time.Duration   `json:"max_delay"`
	Strategy    BackoffStrategy `json:"strategy"`
	Jitter      float64         `json:"jitter"` // 0.0-1.0
}

// DefaultRetryPolicy matches original_source's Default impl: five attempts,
// exponential backoff from 500ms capped at 60s, 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    60 * time.Second,
		Strategy:    BackoffExponential,
		Jitter:      0.1,
	}
}

// NoRetryPolicy executes a job at most once.
func NoRetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = 0
	return p
}

// FixedRetryPolicy allows maxAttempts attempts in total (the first run plus
// maxAttempts-1 retries) with a constant delay.
func FixedRetryPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: delay, MaxDelay: delay, Strategy: BackoffFixed}
}

// ExponentialRetryPolicy allows maxAttempts attempts in total, doubling the
// delay each attempt up to maxDelay, with 10% jitter.
func ExponentialRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay, Strategy: BackoffExponential, Jitter: 0.1}
}

// LinearRetryPolicy allows maxAttempts attempts in total, growing the delay linearly
// with the attempt number up to maxDelay.
func LinearRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay, Strategy: BackoffLinear}
}

// DelayForAttempt returns the backoff delay before the given 1-indexed
// attempt, with policy-configured jitter applied deterministically (no
// randomness: jitter is a function of the attempt number alone, so the
// delay schedule is reproducible in tests).
func (p RetryPolicy) DelayForAttempt(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	base := float64(p.BaseDelay.Milliseconds())
	max := float64(p.MaxDelay.Milliseconds())

	var delayMs float64
	switch p.Strategy {
	case BackoffFixed:
		delayMs = base
	case BackoffLinear:
		delayMs = math.Min(base*float64(attempt), max)
	default: // BackoffExponential
		delayMs = math.Min(base*math.Pow(2, float64(attempt-1)), max)
	}

	if p.Jitter > 0 {
		jitterRange := delayMs * p.Jitter
		pseudoRandom := math.Mod(float64(attempt)*17.0, 100.0) / 100.0
		delayMs += jitterRange * (pseudoRandom - 0.5) * 2.0
	}
	if delayMs < 0 {
		delayMs = 0
	}
	return time.Duration(delayMs) * time.Millisecond
}

// ShouldRetry reports whether attempt (already made) leaves retries.
func (p RetryPolicy) ShouldRetry(attempt int) bool { return attempt < p.MaxAttempts }

// AttemptRecord is the outcome of one execution attempt.
type AttemptRecord struct {
	Attempt    int           `json:"attempt"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Job is one background unit of work.
type Job struct {
	ID            ID                    `json:"id"`
	TenantID      kernel.TenantID       `json:"tenant_id"`
	CorrelationID kernel.CorrelationID  `json:"correlation_id"`
	Kind          string                `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Status       Status          `json:"status"`
	RetryPolicy  RetryPolicy     `json:"retry_policy"`
	Attempt      int             `json:"attempt"`
	LastError    string          `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ScheduledAt  *time.Time      `json:"scheduled_at,omitempty"`
	History      []AttemptRecord `json:"history"`
}

// New constructs a Job with the default retry policy, pending and
// immediately runnable.
func New(tenant kernel.TenantID, kind string, payload json.RawMessage) Job {
	now := kernel.Now()
	return Job{
		ID: NewID(), TenantID: tenant, CorrelationID: kernel.NewCorrelationID(), Kind: kind, Payload: payload,
		Status: StatusPending, RetryPolicy: DefaultRetryPolicy(),
		CreatedAt: now, UpdatedAt: now,
	}
}

// WithRetryPolicy returns a copy of the job with policy substituted.
func (j Job) WithRetryPolicy(policy RetryPolicy) Job {
	j.RetryPolicy = policy
	return j
}

// Delayed returns a copy of the job scheduled no earlier than delay from
// now.
func (j Job) Delayed(delay time.Duration) Job {
	at := kernel.Now().Add(delay)
	j.ScheduledAt = &at
	return j
}

// IsReady reports whether the job's schedule allows it to run now.
func (j Job) IsReady() bool {
	return j.ScheduledAt == nil || !kernel.Now().Before(*j.ScheduledAt)
}

// MarkRunning records the start of a new attempt.
func (j *Job) MarkRunning() {
	j.Status = StatusRunning
	j.Attempt++
	j.UpdatedAt = kernel.Now()
}

// MarkCompleted records a successful terminal attempt.
func (j *Job) MarkCompleted(startedAt time.Time) {
	now := kernel.Now()
	j.Status = StatusCompleted
	j.UpdatedAt = now
	j.History = append(j.History, AttemptRecord{
		Attempt: j.Attempt, StartedAt: startedAt, FinishedAt: now, Success: true, Duration: now.Sub(startedAt),
	})
}

// MarkFailed records a failed attempt and either schedules a retry with
// backoff or moves the job to the dead-letter state when retries are
// exhausted.
func (j *Job) MarkFailed(errMsg string, startedAt time.Time) {
	now := kernel.Now()
	j.UpdatedAt = now
	j.LastError = errMsg
	j.History = append(j.History, AttemptRecord{
		Attempt: j.Attempt, StartedAt: startedAt, FinishedAt: now, Success: false, Error: errMsg, Duration: now.Sub(startedAt),
	})

	if j.RetryPolicy.ShouldRetry(j.Attempt) {
		delay := j.RetryPolicy.DelayForAttempt(j.Attempt)
		scheduledAt := now.Add(delay)
		j.ScheduledAt = &scheduledAt
		j.Status = StatusFailed
	} else {
		j.Status = StatusDeadLettered
	}
}

// MarkCancelled records a user/system cancellation.
func (j *Job) MarkCancelled() {
	j.Status = StatusCancelled
	j.UpdatedAt = kernel.Now()
}

// IsTerminal reports whether the job will never run again.
func (j Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusDeadLettered, StatusCancelled:
		return true
	default:
		return false
	}
}

// Result is returned by a Handler to tell the executor what to do next.
type Result struct {
	Err        error
	RetryNow   bool
	RetryAfter time.Duration
}

// Success is the zero Result: the job completed without error.
var Success = Result{}

// Failure wraps err as a terminal-for-this-attempt failure subject to the
// job's retry policy.
func Failure(err error) Result { return Result{Err: err} }

// DeadLetterEntry records why and when a job was moved to the DLQ.
type DeadLetterEntry struct {
	Job            Job       `json:"job"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
	Reason         string    `json:"reason"`
}
