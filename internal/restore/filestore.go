package restore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "tenant-restore/internal/errors"
)

// FileStore is a JobStore and ArchiveStore backed by one JSON state
// file, so job state survives between CLI invocations. Every mutation
// rewrites the file atomically via a temp file and rename. Concurrent
// processes are not supported; one CLI run owns the state file.
type FileStore struct {
	mu   sync.Mutex
	path string
	data fileStoreState
}

type fileStoreState struct {
	Jobs     map[string]*RestoreJob    `json:"jobs"`
	Archives map[string]*BackupArchive `json:"archives"`
}

// NewFileStore opens or creates the state file at path.
func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{
		path: path,
		data: fileStoreState{
			Jobs:     make(map[string]*RestoreJob),
			Archives: make(map[string]*BackupArchive),
		},
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypePermission,
			fmt.Sprintf("failed to read state file %s", path), err)
	}
	if err := json.Unmarshal(raw, &store.data); err != nil {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("state file %s is corrupt", path), err)
	}
	if store.data.Jobs == nil {
		store.data.Jobs = make(map[string]*RestoreJob)
	}
	if store.data.Archives == nil {
		store.data.Archives = make(map[string]*BackupArchive)
	}
	return store, nil
}

// save must be called with the mutex held.
func (s *FileStore) save() error {
	raw, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return apperrors.WrapError(err, "failed to serialize state")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypePermission,
			"failed to create state directory", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypePermission,
			"failed to write state file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypePermission,
			"failed to replace state file", err)
	}
	return nil
}

// CreateJob stores a new job.
func (s *FileStore) CreateJob(ctx context.Context, job *RestoreJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		return apperrors.NewValidationError("restore job requires an id", nil)
	}
	if _, exists := s.data.Jobs[job.ID]; exists {
		return apperrors.NewValidationError(
			fmt.Sprintf("restore job %s already exists", job.ID), nil)
	}
	s.data.Jobs[job.ID] = cloneJob(job)
	return s.save()
}

// GetJob returns a copy of the job.
func (s *FileStore) GetJob(ctx context.Context, id string) (*RestoreJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.data.Jobs[id]
	if !ok {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("restore job not found: %s", id), nil)
	}
	return cloneJob(job), nil
}

// UpdateJob replaces the stored job state.
func (s *FileStore) UpdateJob(ctx context.Context, job *RestoreJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Jobs[job.ID]; !ok {
		return apperrors.NewValidationError(
			fmt.Sprintf("restore job not found: %s", job.ID), nil)
	}
	updated := cloneJob(job)
	updated.UpdatedAt = time.Now().UTC()
	s.data.Jobs[job.ID] = updated
	return s.save()
}

// ListJobs returns the tenant's jobs, newest first.
func (s *FileStore) ListJobs(ctx context.Context, tenantID string) ([]*RestoreJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*RestoreJob
	for _, job := range s.data.Jobs {
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
func (s *FileStore) ListJobsWithRollbackWindow(ctx context.Context) ([]*RestoreJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*RestoreJob
	for _, job := range s.data.Jobs {
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
func (s *FileStore) CreateArchive(ctx context.Context, archive *BackupArchive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if archive.ID == "" {
		return apperrors.NewValidationError("backup archive requires an id", nil)
	}
	if _, exists := s.data.Archives[archive.ID]; exists {
		return apperrors.NewValidationError(
			fmt.Sprintf("backup archive %s already exists", archive.ID), nil)
	}
	copied := *archive
	s.data.Archives[archive.ID] = &copied
	return s.save()
}

// GetArchive returns a copy of the archive record.
func (s *FileStore) GetArchive(ctx context.Context, id string) (*BackupArchive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	archive, ok := s.data.Archives[id]
	if !ok {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("backup archive not found: %s", id), nil)
	}
	copied := *archive
	return &copied, nil
}

// UpdateArchive replaces the stored archive record.
func (s *FileStore) UpdateArchive(ctx context.Context, archive *BackupArchive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Archives[archive.ID]; !ok {
		return apperrors.NewValidationError(
			fmt.Sprintf("backup archive not found: %s", archive.ID), nil)
	}
	copied := *archive
	s.data.Archives[archive.ID] = &copied
	return s.save()
}
