package jobs_test

import (
	"context"
	"testing"
	"time"

	"erpcore/pkg/jobs"
	"erpcore/pkg/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ClaimReadyIsTenantScoped(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	tenantA, tenantB := kernel.NewTenantID(), kernel.NewTenantID()

	require.NoError(t, store.Enqueue(ctx, jobs.New(tenantA, "kind", nil)))
	require.NoError(t, store.Enqueue(ctx, jobs.New(tenantB, "kind", nil)))

	claimed, err := store.ClaimReady(ctx, tenantA, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, tenantA, claimed[0].TenantID)
	assert.Equal(t, jobs.StatusRunning, claimed[0].Status)
}

func TestMemoryStore_ClaimReadySkipsNotYetScheduled(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	tenant := kernel.NewTenantID()

	job := jobs.New(tenant, "kind", nil).Delayed(time.Hour)
	require.NoError(t, store.Enqueue(ctx, job))

	claimed, err := store.ClaimReady(ctx, tenant, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestMemoryStore_ClaimReadyRespectsLimit(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	tenant := kernel.NewTenantID()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Enqueue(ctx, jobs.New(tenant, "kind", nil)))
	}

	claimed, err := store.ClaimReady(ctx, tenant, 2)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestMemoryStore_DeadLetterRoundTrip(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	tenant := kernel.NewTenantID()
	job := jobs.New(tenant, "kind", nil)

	require.NoError(t, store.DeadLetter(ctx, jobs.DeadLetterEntry{Job: job, Reason: "exhausted retries"}))

	entries, err := store.ListDeadLetters(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "exhausted retries", entries[0].Reason)
}

func TestMemoryStore_RetryDeadLetterResetsToPending(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	tenant := kernel.NewTenantID()
	job := jobs.New(tenant, "kind", nil)
	job.Attempt = 3
	job.LastError = "boom"

	require.NoError(t, store.DeadLetter(ctx, jobs.DeadLetterEntry{Job: job, Reason: "exhausted retries"}))

	retried, err := store.RetryDeadLetter(ctx, tenant, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, retried.Status)
	assert.Zero(t, retried.Attempt)
	assert.Empty(t, retried.LastError)
	assert.Nil(t, retried.ScheduledAt)

	entries, err := store.ListDeadLetters(ctx, tenant)
	require.NoError(t, err)
	assert.Empty(t, entries, "retrying removes the dead-letter entry")

	fetched, found, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, jobs.StatusPending, fetched.Status)
}

func TestMemoryStore_RetryDeadLetterIsTenantScoped(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	tenantA, tenantB := kernel.NewTenantID(), kernel.NewTenantID()
	job := jobs.New(tenantA, "kind", nil)
	require.NoError(t, store.DeadLetter(ctx, jobs.DeadLetterEntry{Job: job, Reason: "x"}))

	_, err := store.RetryDeadLetter(ctx, tenantB, job.ID)
	require.ErrorIs(t, err, jobs.ErrDeadLetterNotFound)
}

func TestMemoryStore_DeleteDeadLetterRemovesJobAndEntry(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	tenant := kernel.NewTenantID()
	job := jobs.New(tenant, "kind", nil)
	require.NoError(t, store.DeadLetter(ctx, jobs.DeadLetterEntry{Job: job, Reason: "x"}))

	require.NoError(t, store.DeleteDeadLetter(ctx, tenant, job.ID))

	entries, err := store.ListDeadLetters(ctx, tenant)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, found, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_DeleteDeadLetterMissingReturnsNotFound(t *testing.T) {
	store := jobs.NewMemoryStore()
	err := store.DeleteDeadLetter(context.Background(), kernel.NewTenantID(), jobs.NewID())
	require.ErrorIs(t, err, jobs.ErrDeadLetterNotFound)
}

func TestMemoryStore_StatsCountsPerTenantPerStatus(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	tenant := kernel.NewTenantID()
	other := kernel.NewTenantID()

	require.NoError(t, store.Enqueue(ctx, jobs.New(tenant, "a", nil)))
	require.NoError(t, store.Enqueue(ctx, jobs.New(tenant, "b", nil)))
	running := jobs.New(tenant, "c", nil)
	running.Status = jobs.StatusRunning
	require.NoError(t, store.Enqueue(ctx, running))
	require.NoError(t, store.Enqueue(ctx, jobs.New(other, "d", nil)))

	stats, err := store.Stats(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, stats.Running)
	assert.Zero(t, stats.Completed)
	assert.Zero(t, stats.DeadLettered)
}
