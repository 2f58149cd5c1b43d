// Package rollback undoes completed restore jobs by replaying their
// safety backups through the same restore machinery. There is no
// separate undo code path; a rollback gets the exact integrity
// guarantees of any other restore.
package rollback

import (
	"context"
	"fmt"
	"time"

	"tenant-restore/internal/conflict"
	apperrors "tenant-restore/internal/errors"
	"tenant-restore/internal/executor"
	"tenant-restore/internal/logging"
	"tenant-restore/internal/restore"
	"tenant-restore/internal/storage"
)

// ReasonCode explains why a job is not eligible for rollback.
type ReasonCode string

const (
	// ReasonEligible means the job can be rolled back.
	ReasonEligible ReasonCode = "eligible"
	// ReasonWrongStatus means the job is not in the completed state.
	ReasonWrongStatus ReasonCode = "wrong_status"
	// ReasonNoWindow means the job never opened a rollback window.
	ReasonNoWindow ReasonCode = "no_rollback_window"
	// ReasonWindowExpired means the rollback window has elapsed.
	ReasonWindowExpired ReasonCode = "window_expired"
	// ReasonNoSafetyBackup means the job has no safety backup
	// reference.
	ReasonNoSafetyBackup ReasonCode = "no_safety_backup"
	// ReasonSafetyBackupInvalid means the referenced safety backup is
	// missing, incomplete or deleted.
	ReasonSafetyBackupInvalid ReasonCode = "safety_backup_invalid"
)

var reasonMessages = map[ReasonCode]string{
	ReasonWrongStatus:         "Only completed restores can be rolled back.",
	ReasonNoWindow:            "This restore has no rollback window.",
	ReasonWindowExpired:       "The rollback window for this restore has expired.",
	ReasonNoSafetyBackup:      "No safety backup was taken for this restore, so it cannot be rolled back.",
	ReasonSafetyBackupInvalid: "The safety backup for this restore is missing or unusable.",
}

// Service performs rollback eligibility checks and rollbacks.
type Service struct {
	orch     *restore.Orchestrator
	jobs     restore.JobStore
	archives restore.ArchiveStore
	provider storage.Provider
	audit    AuditLog
	logger   *logging.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewService wires the rollback service to the restore machinery.
func NewService(orch *restore.Orchestrator, provider storage.Provider, audit AuditLog, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if audit == nil {
		audit = NewMemoryAuditLog()
	}
	return &Service{
		orch:     orch,
		jobs:     orch.Jobs(),
		archives: orch.Archives(),
		provider: provider,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// CanRollback is a pure eligibility check. It never mutates anything;
// the mutating Rollback re-verifies these conditions itself.
func (s *Service) CanRollback(ctx context.Context, jobID string) (bool, ReasonCode, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return false, "", err
	}
	return s.checkEligibility(ctx, job)
}

func (s *Service) checkEligibility(ctx context.Context, job *restore.RestoreJob) (bool, ReasonCode, error) {
	if job.Status != restore.StatusCompleted {
		return false, ReasonWrongStatus, nil
	}
	if job.RollbackExpiresAt == nil {
		return false, ReasonNoWindow, nil
	}
	if s.now().After(*job.RollbackExpiresAt) {
		return false, ReasonWindowExpired, nil
	}
	if job.SafetyBackupID == "" {
		return false, ReasonNoSafetyBackup, nil
	}

	safety, err := s.archives.GetArchive(ctx, job.SafetyBackupID)
	if err != nil {
		return false, ReasonSafetyBackupInvalid, nil
	}
	if safety.Status != restore.ArchiveStatusCompleted || safety.DeletedAt != nil {
		return false, ReasonSafetyBackupInvalid, nil
	}
	return true, ReasonEligible, nil
}

// Rollback undoes a completed restore by creating a new full restore
// job against the safety backup, with the conflict strategy forced to
// replace. The original job is marked rolled_back and its window
// cleared; the returned job is ready for the normal analyze/process
// flow.
func (s *Service) Rollback(ctx context.Context, jobID string) (*restore.RestoreJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	eligible, reason, err := s.checkEligibility(ctx, job)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, apperrors.NewEligibilityError(
			fmt.Sprintf("restore job %s cannot be rolled back: %s", jobID, reason)).
			WithUserMessage(reasonMessages[reason]).
			WithContext("reason_code", string(reason))
	}

	// A rollback must fully restore the prior state; merge or ask
	// could leave a hybrid.
	rollbackJob, err := s.orch.CreateJob(ctx, job.TenantID, job.SafetyBackupID,
		executor.RestoreTypeFull, nil)
	if err != nil {
		return nil, err
	}
	rollbackJob.ConflictConfig = conflict.Config{Strategy: conflict.StrategyReplace}
	if err := s.jobs.UpdateJob(ctx, rollbackJob); err != nil {
		return nil, err
	}

	if err := job.TransitionTo(restore.StatusRolledBack); err != nil {
		return nil, err
	}
	job.RollbackExpiresAt = nil
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	entry := AuditEntry{
		JobID:         job.ID,
		RollbackJobID: rollbackJob.ID,
		Action:        "rollback",
		Detail:        fmt.Sprintf("replaying safety backup %s", job.SafetyBackupID),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Errorf("failed to record rollback audit entry for job %s: %v", job.ID, err)
	}

	s.logger.LogRollback(job.ID, rollbackJob.ID, "rollback", nil)
	return rollbackJob, nil
}

// ExtendRollbackWindow pushes a completed job's rollback expiry out by
// the given number of hours.
func (s *Service) ExtendRollbackWindow(ctx context.Context, jobID string, hours int) (*restore.RestoreJob, error) {
	if hours <= 0 {
		return nil, apperrors.NewValidationError("extension hours must be positive", nil)
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != restore.StatusCompleted {
		return nil, apperrors.NewEligibilityError(
			fmt.Sprintf("restore job %s is not completed (status %s)", jobID, job.Status))
	}
	if job.RollbackExpiresAt == nil {
		return nil, apperrors.NewEligibilityError(
			fmt.Sprintf("restore job %s has no rollback window to extend", jobID))
	}

	extended := job.RollbackExpiresAt.Add(time.Duration(hours) * time.Hour)
	job.RollbackExpiresAt = &extended
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	entry := AuditEntry{
		JobID:     job.ID,
		Action:    "extend_rollback_window",
		Detail:    fmt.Sprintf("extended by %dh to %s", hours, extended.Format(time.RFC3339)),
		CreatedAt: s.now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Errorf("failed to record extension audit entry for job %s: %v", job.ID, err)
	}

	return job, nil
}

// CleanupExpiredRollbacks releases safety backups whose rollback
// window has elapsed: the stored archive file is deleted, the archive
// record soft-deleted, and the job's rollback fields cleared. Safe to
// run repeatedly.
func (s *Service) CleanupExpiredRollbacks(ctx context.Context) (int, error) {
	jobs, err := s.jobs.ListJobsWithRollbackWindow(ctx)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, job := range jobs {
		if s.now().Before(*job.RollbackExpiresAt) {
			continue
		}

		if job.SafetyBackupID != "" {
			if err := s.releaseSafetyBackup(ctx, job.SafetyBackupID); err != nil {
				s.logger.Errorf("failed to release safety backup %s for job %s: %v",
					job.SafetyBackupID, job.ID, err)
				continue
			}
		}

		job.RollbackExpiresAt = nil
		job.SafetyBackupID = ""
		if err := s.jobs.UpdateJob(ctx, job); err != nil {
			return cleaned, err
		}

		entry := AuditEntry{
			JobID:     job.ID,
			Action:    "cleanup_expired_rollback",
			CreatedAt: s.now().UTC(),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Errorf("failed to record cleanup audit entry for job %s: %v", job.ID, err)
		}
		cleaned++
	}
	return cleaned, nil
}

// releaseSafetyBackup deletes the stored archive file and soft-deletes
// its record. Already-deleted files are tolerated so a crashed sweep
// can be re-run.
func (s *Service) releaseSafetyBackup(ctx context.Context, archiveID string) error {
	safety, err := s.archives.GetArchive(ctx, archiveID)
	if err != nil {
		return err
	}
	if safety.DeletedAt != nil {
		return nil
	}

	key := fmt.Sprintf("%s/%s", safety.TenantID, safety.FileName)
	if err := s.provider.Delete(ctx, key); err != nil {
		if apperrors.GetErrorType(err) != apperrors.ErrorTypeValidation {
			return err
		}
		// File already gone; keep going so the record still gets
		// soft-deleted.
	}

	now := s.now().UTC()
	safety.DeletedAt = &now
	return s.archives.UpdateArchive(ctx, safety)
}
