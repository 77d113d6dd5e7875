package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"erpcore/pkg/kernel"
)

// Store persists jobs and the dead-letter queue, scoped per tenant.
// Grounded on original_source/crates/infra/src/jobs/store.rs's JobStore
// trait.
type Store interface {
	Enqueue(ctx context.Context, job Job) error
	Get(ctx context.Context, id ID) (Job, bool, error)
	Update(ctx context.Context, job Job) error

	// ClaimReady returns up to limit pending/failed jobs that are ready to
	// run for tenant, ordered by creation time (oldest first). A real
	// store would do this atomically (UPDATE ... RETURNING); the in-memory
	// store relies on its single mutex for the same effect.
	ClaimReady(ctx context.Context, tenant kernel.TenantID, limit int) ([]Job, error)

	DeadLetter(ctx context.Context, entry DeadLetterEntry) error
	ListDeadLetters(ctx context.Context, tenant kernel.TenantID) ([]DeadLetterEntry, error)

	// RetryDeadLetter moves a dead-lettered job back to Pending, clearing its
	// attempt count, schedule, and attempt history so it runs as if fresh.
	RetryDeadLetter(ctx context.Context, tenant kernel.TenantID, id ID) (Job, error)

	// DeleteDeadLetter permanently discards a dead-lettered job.
	DeleteDeadLetter(ctx context.Context, tenant kernel.TenantID, id ID) error

	// Stats computes per-tenant counts across every job status, matching
	// original_source's JobStore::stats.
	Stats(ctx context.Context, tenant kernel.TenantID) (JobStats, error)
}

// JobStats is a per-tenant snapshot of job counts by status. Grounded on
// original_source/crates/infra/src/jobs/store.rs's JobStats.
type JobStats struct {
	Pending      int `json:"pending"`
	Running      int `json:"running"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
	Cancelled    int `json:"cancelled"`
}

// ErrDeadLetterNotFound is returned by RetryDeadLetter/DeleteDeadLetter when
// no dead-letter entry matches (id, tenant).
var ErrDeadLetterNotFound = errors.New("jobs: dead letter not found")

// MemoryStore is an in-memory Store guarded by a single mutex.
type MemoryStore struct {
	mu          sync.Mutex
	jobs        map[ID]Job
	deadLetters map[kernel.TenantID][]DeadLetterEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[ID]Job),
		deadLetters: make(map[kernel.TenantID][]DeadLetterEntry),
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id ID) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *MemoryStore) Update(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) ClaimReady(_ context.Context, tenant kernel.TenantID, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []Job
	for _, job := range s.jobs {
		if job.TenantID != tenant {
			continue
		}
		if job.Status != StatusPending && job.Status != StatusFailed {
			continue
		}
		if !job.IsReady() {
			continue
		}
		candidates = append(candidates, job)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]Job, 0, len(candidates))
	for _, job := range candidates {
		job.MarkRunning()
		s.jobs[job.ID] = job
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (s *MemoryStore) DeadLetter(_ context.Context, entry DeadLetterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetters[entry.Job.TenantID] = append(s.deadLetters[entry.Job.TenantID], entry)
	return nil
}

func (s *MemoryStore) ListDeadLetters(_ context.Context, tenant kernel.TenantID) ([]DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadLetterEntry, len(s.deadLetters[tenant]))
	copy(out, s.deadLetters[tenant])
	return out, nil
}

func (s *MemoryStore) RetryDeadLetter(_ context.Context, tenant kernel.TenantID, id ID) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.deadLetters[tenant]
	for i, entry := range entries {
		if entry.Job.ID != id {
			continue
		}
		s.deadLetters[tenant] = append(entries[:i], entries[i+1:]...)

		job := entry.Job
		job.Status = StatusPending
		job.Attempt = 0
		job.ScheduledAt = nil
		job.LastError = ""
		job.History = nil
		job.UpdatedAt = kernel.Now()
		s.jobs[job.ID] = job
		return job, nil
	}
	return Job{}, ErrDeadLetterNotFound
}

func (s *MemoryStore) DeleteDeadLetter(_ context.Context, tenant kernel.TenantID, id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.deadLetters[tenant]
	for i, entry := range entries {
		if entry.Job.ID != id {
			continue
		}
		s.deadLetters[tenant] = append(entries[:i], entries[i+1:]...)
		delete(s.jobs, id)
		return nil
	}
	return ErrDeadLetterNotFound
}

func (s *MemoryStore) Stats(_ context.Context, tenant kernel.TenantID) (JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats JobStats
	for _, job := range s.jobs {
		if job.TenantID != tenant {
			continue
		}
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusDeadLettered:
			stats.DeadLettered++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// SQLiteStore persists jobs and dead letters in SQLite, following the
// teacher's pkg/store/sqlite single-table-plus-JSON-column convention.
type SQLiteStore struct {
	db *sql.DB
}

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	status       TEXT NOT NULL,
	scheduled_at TEXT,
	created_at   TEXT NOT NULL,
	body         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_tenant_status ON jobs(tenant_id, status);

CREATE TABLE IF NOT EXISTS job_dead_letters (
	job_id           TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	dead_lettered_at TEXT NOT NULL,
	body             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dlq_tenant ON job_dead_letters(tenant_id);
`

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(jobsSchema); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Enqueue(ctx context.Context, job Job) error {
	return s.upsert(ctx, job)
}

func (s *SQLiteStore) upsert(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	var scheduledAt any
	if job.ScheduledAt != nil {
		scheduledAt = job.ScheduledAt.Format(timeLayout)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, tenant_id, status, scheduled_at, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, scheduled_at = excluded.scheduled_at, body = excluded.body`,
		string(job.ID), job.TenantID.String(), string(job.Status), scheduledAt, job.CreatedAt.Format(timeLayout), string(body))
	return err
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *SQLiteStore) Get(ctx context.Context, id ID) (Job, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM jobs WHERE id = ?`, string(id)).Scan(&body)
	if err == sql.ErrNoRows {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

func (s *SQLiteStore) Update(ctx context.Context, job Job) error {
	return s.upsert(ctx, job)
}

func (s *SQLiteStore) ClaimReady(ctx context.Context, tenant kernel.TenantID, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM jobs
		WHERE tenant_id = ? AND status IN ('pending', 'failed')
		ORDER BY created_at ASC
		LIMIT ?`, tenant.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ready []Job
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var job Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			return nil, err
		}
		if !job.IsReady() {
			continue
		}
		ready = append(ready, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close() // release the connection before writing the claims back

	var claimed []Job
	for _, job := range ready {
		job.MarkRunning()
		if err := s.upsert(ctx, job); err != nil {
			return nil, err
		}
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (s *SQLiteStore) DeadLetter(ctx context.Context, entry DeadLetterEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_dead_letters (job_id, tenant_id, dead_lettered_at, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET dead_lettered_at = excluded.dead_lettered_at, body = excluded.body`,
		string(entry.Job.ID), entry.Job.TenantID.String(), entry.DeadLetteredAt.Format(timeLayout), string(body))
	return err
}

func (s *SQLiteStore) ListDeadLetters(ctx context.Context, tenant kernel.TenantID) ([]DeadLetterEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM job_dead_letters WHERE tenant_id = ?`, tenant.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeadLetterEntry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var entry DeadLetterEntry
		if err := json.Unmarshal([]byte(body), &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) getDeadLetter(ctx context.Context, tenant kernel.TenantID, id ID) (DeadLetterEntry, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM job_dead_letters WHERE job_id = ? AND tenant_id = ?`,
		string(id), tenant.String()).Scan(&body)
	if err == sql.ErrNoRows {
		return DeadLetterEntry{}, ErrDeadLetterNotFound
	}
	if err != nil {
		return DeadLetterEntry{}, err
	}
	var entry DeadLetterEntry
	if err := json.Unmarshal([]byte(body), &entry); err != nil {
		return DeadLetterEntry{}, err
	}
	return entry, nil
}

func (s *SQLiteStore) RetryDeadLetter(ctx context.Context, tenant kernel.TenantID, id ID) (Job, error) {
	entry, err := s.getDeadLetter(ctx, tenant, id)
	if err != nil {
		return Job{}, err
	}

	job := entry.Job
	job.Status = StatusPending
	job.Attempt = 0
	job.ScheduledAt = nil
	job.LastError = ""
	job.History = nil
	job.UpdatedAt = kernel.Now()

	if err := s.upsert(ctx, job); err != nil {
		return Job{}, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_dead_letters WHERE job_id = ? AND tenant_id = ?`,
		string(id), tenant.String()); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (s *SQLiteStore) DeleteDeadLetter(ctx context.Context, tenant kernel.TenantID, id ID) error {
	if _, err := s.getDeadLetter(ctx, tenant, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_dead_letters WHERE job_id = ? AND tenant_id = ?`,
		string(id), tenant.String()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ? AND tenant_id = ?`, string(id), tenant.String())
	return err
}

func (s *SQLiteStore) Stats(ctx context.Context, tenant kernel.TenantID) (JobStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM jobs WHERE tenant_id = ? GROUP BY status`, tenant.String())
	if err != nil {
		return JobStats{}, err
	}
	defer rows.Close()

	var stats JobStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return JobStats{}, err
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusRunning:
			stats.Running = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		case StatusDeadLettered:
			stats.DeadLettered = count
		case StatusCancelled:
			stats.Cancelled = count
		}
	}
	return stats, rows.Err()
}
