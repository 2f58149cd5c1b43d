package restore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "tenant-restore/internal/errors"
)

// JobStore persists restore jobs. Jobs are append-and-update only;
// nothing ever deletes one.
type JobStore interface {
	CreateJob(ctx context.Context, job *RestoreJob) error
	GetJob(ctx context.Context, id string) (*RestoreJob, error)
	UpdateJob(ctx context.Context, job *RestoreJob) error
	ListJobs(ctx context.Context, tenantID string) ([]*RestoreJob, error)
	// ListJobsWithRollbackWindow returns completed jobs that still
	// carry a rollback expiry, for the cleanup sweep.
	ListJobsWithRollbackWindow(ctx context.Context) ([]*RestoreJob, error)
}

// ArchiveStore persists backup archive metadata. Archives are soft
// deleted so references from old jobs keep resolving.
type ArchiveStore interface {
	CreateArchive(ctx context.Context, archive *BackupArchive) error
	GetArchive(ctx context.Context, id string) (*BackupArchive, error)
	UpdateArchive(ctx context.Context, archive *BackupArchive) error
}

// MemoryStore is an in-process JobStore and ArchiveStore. It backs the
// CLI, where one process owns the whole job lifecycle; a database
// implementation can replace it behind the same interfaces.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*RestoreJob
	archives map[string]*BackupArchive
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*RestoreJob),
		archives: make(map[string]*BackupArchive),
	}
}

// CreateJob stores a new job.
func (s *MemoryStore) CreateJob(ctx context.Context, job *RestoreJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		return apperrors.NewValidationError("restore job requires an id", nil)
	}
	if _, exists := s.jobs[job.ID]; exists {
		return apperrors.NewValidationError(
			fmt.Sprintf("restore job %s already exists", job.ID), nil)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob returns a copy of the job.
func (s *MemoryStore) GetJob(ctx context.Context, id string) (*RestoreJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("restore job not found: %s", id), nil)
	}
	return cloneJob(job), nil
}

// UpdateJob replaces the stored job state.
func (s *MemoryStore) UpdateJob(ctx context.Context, job *RestoreJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return apperrors.NewValidationError(
			fmt.Sprintf("restore job not found: %s", job.ID), nil)
	}
	updated := cloneJob(job)
	updated.UpdatedAt = time.Now().UTC()
	s.jobs[job.ID] = updated
	return nil
}

// ListJobs returns the tenant's jobs, newest first.
func (s *MemoryStore) ListJobs(ctx context.Context, tenantID string) ([]*RestoreJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*RestoreJob
	for _, job := range s.jobs {
		if job.TenantID == tenantID {
			jobs = append(jobs, cloneJob(job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// ListJobsWithRollbackWindow returns completed jobs that still have a
// rollback expiry set.
func (s *MemoryStore) ListJobsWithRollbackWindow(ctx context.Context) ([]*RestoreJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*RestoreJob
	for _, job := range s.jobs {
		if job.Status == StatusCompleted && job.RollbackExpiresAt != nil {
			jobs = append(jobs, cloneJob(job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// CreateArchive stores a new archive record.
func (s *MemoryStore) CreateArchive(ctx context.Context, archive *BackupArchive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if archive.ID == "" {
		return apperrors.NewValidationError("backup archive requires an id", nil)
	}
	if _, exists := s.archives[archive.ID]; exists {
		return apperrors.NewValidationError(
			fmt.Sprintf("backup archive %s already exists", archive.ID), nil)
	}
	copied := *archive
	s.archives[archive.ID] = &copied
	return nil
}

// GetArchive returns a copy of the archive record.
func (s *MemoryStore) GetArchive(ctx context.Context, id string) (*BackupArchive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	archive, ok := s.archives[id]
	if !ok {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("backup archive not found: %s", id), nil)
	}
	copied := *archive
	return &copied, nil
}

// UpdateArchive replaces the stored archive record.
func (s *MemoryStore) UpdateArchive(ctx context.Context, archive *BackupArchive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.archives[archive.ID]; !ok {
		return apperrors.NewValidationError(
			fmt.Sprintf("backup archive not found: %s", archive.ID), nil)
	}
	copied := *archive
	s.archives[archive.ID] = &copied
	return nil
}

func cloneJob(job *RestoreJob) *RestoreJob {
	copied := *job
	if job.SelectedCategories != nil {
		copied.SelectedCategories = append([]string(nil), job.SelectedCategories...)
	}
	if job.RollbackExpiresAt != nil {
		expiry := *job.RollbackExpiresAt
		copied.RollbackExpiresAt = &expiry
	}
	if job.StartedAt != nil {
		started := *job.StartedAt
		copied.StartedAt = &started
	}
	return &copied
}
