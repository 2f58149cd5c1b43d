package restore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreJobLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &RestoreJob{
		ID:        "job-1",
		TenantID:  "tenant-1",
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateJob(ctx, job))

	// Duplicate ids are rejected.
	assert.Error(t, store.CreateJob(ctx, job))

	loaded, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, loaded.Status)

	// The store hands out copies, not aliases.
	loaded.Status = StatusFailed
	again, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)

	loaded.Status = StatusAnalyzing
	require.NoError(t, store.UpdateJob(ctx, loaded))
	updated, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAnalyzing, updated.Status)

	_, err = store.GetJob(ctx, "missing")
	assert.Error(t, err)
	assert.Error(t, store.UpdateJob(ctx, &RestoreJob{ID: "missing"}))
}

func TestMemoryStoreListJobs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	older := &RestoreJob{ID: "job-1", TenantID: "tenant-1", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &RestoreJob{ID: "job-2", TenantID: "tenant-1", CreatedAt: time.Now()}
	other := &RestoreJob{ID: "job-3", TenantID: "tenant-2", CreatedAt: time.Now()}
	require.NoError(t, store.CreateJob(ctx, older))
	require.NoError(t, store.CreateJob(ctx, newer))
	require.NoError(t, store.CreateJob(ctx, other))

	jobs, err := store.ListJobs(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].ID)
	assert.Equal(t, "job-1", jobs[1].ID)
}

func TestMemoryStoreListJobsWithRollbackWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)
	eligible := &RestoreJob{ID: "job-1", Status: StatusCompleted, RollbackExpiresAt: &expiry}
	noWindow := &RestoreJob{ID: "job-2", Status: StatusCompleted}
	notDone := &RestoreJob{ID: "job-3", Status: StatusProcessing, RollbackExpiresAt: &expiry}
	require.NoError(t, store.CreateJob(ctx, eligible))
	require.NoError(t, store.CreateJob(ctx, noWindow))
	require.NoError(t, store.CreateJob(ctx, notDone))

	jobs, err := store.ListJobsWithRollbackWindow(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)
}

func TestMemoryStoreArchives(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	archive := &BackupArchive{
		ID:       "backup-1",
		TenantID: "tenant-1",
		FileName: "backup.tar.gz",
		Purpose:  PurposeManual,
		Status:   ArchiveStatusCompleted,
	}
	require.NoError(t, store.CreateArchive(ctx, archive))
	assert.Error(t, store.CreateArchive(ctx, archive))

	loaded, err := store.GetArchive(ctx, "backup-1")
	require.NoError(t, err)
	assert.Equal(t, "backup.tar.gz", loaded.FileName)

	now := time.Now().UTC()
	loaded.DeletedAt = &now
	require.NoError(t, store.UpdateArchive(ctx, loaded))

	reloaded, err := store.GetArchive(ctx, "backup-1")
	require.NoError(t, err)
	assert.NotNil(t, reloaded.DeletedAt)

	_, err = store.GetArchive(ctx, "missing")
	assert.Error(t, err)
}
