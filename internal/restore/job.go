// Package restore orchestrates the lifecycle of restore jobs: analyze
// an archive, wait for confirmation, execute it, and track the result
// as a permanent audit record.
package restore

import (
	"fmt"
	"time"

	"tenant-restore/internal/conflict"
	apperrors "tenant-restore/internal/errors"
	"tenant-restore/internal/executor"
	"tenant-restore/internal/schema"
)

// Status is the lifecycle state of a RestoreJob.
type Status string

const (
	StatusPending              Status = "pending"
	StatusAnalyzing            Status = "analyzing"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusProcessing           Status = "processing"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusRolledBack           Status = "rolled_back"
)

// validTransitions is the closed set of allowed state changes. failed
// is reachable from every non-terminal state; rolled_back only from
// completed.
var validTransitions = map[Status][]Status{
	StatusPending:              {StatusAnalyzing, StatusFailed},
	StatusAnalyzing:            {StatusAwaitingConfirmation, StatusFailed},
	StatusAwaitingConfirmation: {StatusProcessing, StatusFailed},
	StatusProcessing:           {StatusCompleted, StatusFailed},
	StatusCompleted:            {StatusRolledBack},
	StatusFailed:               {},
	StatusRolledBack:           {},
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// CanTransitionTo checks a single state change against the lifecycle.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ArchivePurpose distinguishes user backups from automatic safety
// backups.
type ArchivePurpose string

const (
	// PurposeManual marks a backup a user created or uploaded.
	PurposeManual ArchivePurpose = "manual"
	// PurposeSafety marks an automatic pre-restore backup.
	PurposeSafety ArchivePurpose = "safety"
)

// ArchiveStatus tracks whether a backup archive is usable.
type ArchiveStatus string

const (
	ArchiveStatusPending   ArchiveStatus = "pending"
	ArchiveStatusCompleted ArchiveStatus = "completed"
	ArchiveStatusFailed    ArchiveStatus = "failed"
)

// BackupArchive is a stored, immutable backup file with its metadata.
type BackupArchive struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	FileName  string         `json:"file_name"`
	StoredAt  string         `json:"stored_at"` // provider location string
	Checksum  string         `json:"checksum,omitempty"`
	Encrypted bool           `json:"encrypted"`
	Purpose   ArchivePurpose `json:"purpose"`
	Status    ArchiveStatus  `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

// RestoreJob is the unit of restore work and its permanent audit
// record. Jobs are never deleted, only state-transitioned.
type RestoreJob struct {
	ID       string               `json:"id"`
	TenantID string               `json:"tenant_id"`
	BackupID string               `json:"backup_id"`
	Type     executor.RestoreType `json:"type"`
	Status   Status               `json:"status"`

	// SelectedCategories limits the restore; nil means every category
	// in the archive.
	SelectedCategories []string        `json:"selected_categories,omitempty"`
	ConflictConfig     conflict.Config `json:"conflict_config"`

	SchemaReport     *schema.ReconciliationReport `json:"schema_report,omitempty"`
	ConflictPreviews []conflict.CategoryPreview   `json:"conflict_previews,omitempty"`
	Report           *executor.ExecutionReport    `json:"report,omitempty"`

	SafetyBackupID    string     `json:"safety_backup_id,omitempty"`
	RollbackExpiresAt *time.Time `json:"rollback_expires_at,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// TransitionTo moves the job to the next state, rejecting anything the
// lifecycle does not allow.
func (j *RestoreJob) TransitionTo(next Status) error {
	if !j.Status.CanTransitionTo(next) {
		return apperrors.NewValidationError(
			fmt.Sprintf("restore job %s cannot move from %s to %s", j.ID, j.Status, next), nil)
	}
	j.Status = next
	return nil
}

// Fail forces the job into the failed state with the captured message.
// Unlike TransitionTo it works from any non-terminal state.
func (j *RestoreJob) Fail(message string) error {
	if j.Status.Terminal() {
		return apperrors.NewValidationError(
			fmt.Sprintf("restore job %s is already %s", j.ID, j.Status), nil)
	}
	j.Status = StatusFailed
	j.ErrorMessage = message
	return nil
}
