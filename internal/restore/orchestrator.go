package restore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tenant-restore/internal/archive"
	"tenant-restore/internal/conflict"
	"tenant-restore/internal/database"
	apperrors "tenant-restore/internal/errors"
	"tenant-restore/internal/executor"
	"tenant-restore/internal/logging"
	"tenant-restore/internal/mapper"
	"tenant-restore/internal/schema"
	"tenant-restore/internal/storage"
)

// DefaultRollbackWindow is how long a completed restore stays
// reversible.
const DefaultRollbackWindow = 24 * time.Hour

// Config tunes the orchestrator.
type Config struct {
	// RollbackWindow overrides DefaultRollbackWindow when positive.
	RollbackWindow time.Duration `mapstructure:"rollback_window"`
	// WorkDir hosts job-scoped staging directories; empty means the
	// system temp dir.
	WorkDir string `mapstructure:"work_dir"`
}

// BackupCreator produces the safety backup taken before a non-full
// restore touches live data.
type BackupCreator interface {
	CreateSafetyBackup(ctx context.Context, tenantID string) (*BackupArchive, error)
}

// Orchestrator drives restore jobs through their lifecycle. All job
// and archive mutations go through here (and the rollback service);
// callers must serialize operations per job id.
type Orchestrator struct {
	jobs     JobStore
	archives ArchiveStore
	provider storage.Provider
	db       *database.Service
	exec     *executor.Executor
	mapper   mapper.Mapper
	backups  BackupCreator
	logger   *logging.Logger
	config   Config

	// now is swappable in tests
	now func() time.Time
}

// NewOrchestrator wires the restore pipeline together.
func NewOrchestrator(jobs JobStore, archives ArchiveStore, provider storage.Provider, db *database.Service, exec *executor.Executor, m mapper.Mapper, backups BackupCreator, logger *logging.Logger, config Config) *Orchestrator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if config.RollbackWindow <= 0 {
		config.RollbackWindow = DefaultRollbackWindow
	}
	return &Orchestrator{
		jobs:     jobs,
		archives: archives,
		provider: provider,
		db:       db,
		exec:     exec,
		mapper:   m,
		backups:  backups,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// RollbackWindow returns the configured rollback duration.
func (o *Orchestrator) RollbackWindow() time.Duration {
	return o.config.RollbackWindow
}

// Jobs exposes the job store to collaborating services.
func (o *Orchestrator) Jobs() JobStore {
	return o.jobs
}

// Archives exposes the archive store to collaborating services.
func (o *Orchestrator) Archives() ArchiveStore {
	return o.archives
}

// CreateJob registers a new restore job in the pending state.
func (o *Orchestrator) CreateJob(ctx context.Context, tenantID, backupID string, restoreType executor.RestoreType, categories []string) (*RestoreJob, error) {
	if tenantID == "" {
		return nil, apperrors.NewValidationError("tenant id is required", nil)
	}
	if _, err := executor.ParseRestoreType(string(restoreType)); err != nil {
		return nil, err
	}

	record, err := o.archives.GetArchive(ctx, backupID)
	if err != nil {
		return nil, err
	}
	if record.TenantID != tenantID {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("backup %s does not belong to tenant %s", backupID, tenantID), nil)
	}
	if record.Status != ArchiveStatusCompleted || record.DeletedAt != nil {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("backup %s is not usable (status %s)", backupID, record.Status), nil)
	}

	now := o.now().UTC()
	job := &RestoreJob{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		BackupID:           backupID,
		Type:               restoreType,
		Status:             StatusPending,
		SelectedCategories: categories,
		ConflictConfig:     conflict.Config{Strategy: conflict.StrategySkip},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	o.logger.LogRestorePhase(job.ID, tenantID, string(StatusPending))
	return job, nil
}

// Analyze stages the archive, reconciles its schema snapshot against
// the live store and previews conflicts, then parks the job awaiting
// confirmation. Any failure marks the job failed and is returned.
func (o *Orchestrator) Analyze(ctx context.Context, jobID, passphrase string) (*RestoreJob, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.TransitionTo(StatusAnalyzing); err != nil {
		return nil, err
	}
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	o.logger.LogRestorePhase(job.ID, job.TenantID, string(StatusAnalyzing))

	record, err := o.archives.GetArchive(ctx, job.BackupID)
	if err != nil {
		return nil, o.failJob(ctx, job, err)
	}

	staged, err := o.stageArchive(ctx, record, passphrase)
	if err != nil {
		return nil, o.failJob(ctx, job, err)
	}
	defer staged.Cleanup()

	discovery := schema.NewMySQLDiscovery(o.db.DB(), o.db.DatabaseName())
	reconciler := schema.NewReconciler(discovery, o.logger)
	schemaReport, err := reconciler.Reconcile(ctx, job.TenantID, staged.Manifest.SchemaSnapshot)
	if err != nil {
		return nil, o.failJob(ctx, job, err)
	}

	previews, err := o.previewConflicts(ctx, job, staged)
	if err != nil {
		return nil, o.failJob(ctx, job, err)
	}

	job.SchemaReport = schemaReport
	job.ConflictPreviews = previews
	if job.ConflictConfig.Strategy == "" {
		job.ConflictConfig.Strategy = conflict.StrategySkip
	}
	if err := job.TransitionTo(StatusAwaitingConfirmation); err != nil {
		return nil, o.failJob(ctx, job, err)
	}
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	o.logger.LogRestorePhase(job.ID, job.TenantID, string(StatusAwaitingConfirmation))
	return job, nil
}

// previewConflicts scans every archive category for collisions with
// live rows inside a read-only tenant transaction.
func (o *Orchestrator) previewConflicts(ctx context.Context, job *RestoreJob, staged *stagedArchive) ([]conflict.CategoryPreview, error) {
	tx, err := o.db.BeginTenantTx(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	lookup := func(ctx context.Context, table string, recordID interface{}) (map[string]interface{}, error) {
		return tx.FetchRecordByID(ctx, table, recordID)
	}

	var previews []conflict.CategoryPreview
	for _, category := range staged.Manifest.Categories() {
		tables, err := o.mapper.CategoryToTables(category)
		if err != nil {
			return nil, err
		}

		records, err := archive.LoadCategoryRecords(staged.Dir, category)
		if err != nil {
			return nil, err
		}

		preview, err := conflict.PreviewCategory(ctx, category, tables[0], records, lookup)
		if err != nil {
			return nil, err
		}
		previews = append(previews, preview)
	}
	return previews, nil
}

// SetConflictConfig stores the user's confirmed strategy and decisions
// on a job awaiting confirmation.
func (o *Orchestrator) SetConflictConfig(ctx context.Context, jobID string, config conflict.Config) (*RestoreJob, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusAwaitingConfirmation {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("restore job %s is not awaiting confirmation (status %s)", jobID, job.Status), nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	job.ConflictConfig = config
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Process executes a confirmed restore job. A non-full restore first
// takes a safety backup; if that backup does not complete, the restore
// never runs. On success the job is completed and its rollback window
// opens. Any error marks the job failed and is returned.
func (o *Orchestrator) Process(ctx context.Context, jobID, passphrase string) (*RestoreJob, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.TransitionTo(StatusProcessing); err != nil {
		return nil, err
	}
	started := o.now().UTC()
	job.StartedAt = &started
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	o.logger.LogRestorePhase(job.ID, job.TenantID, string(StatusProcessing))

	if job.Type != executor.RestoreTypeFull {
		safety, err := o.backups.CreateSafetyBackup(ctx, job.TenantID)
		if err != nil {
			return nil, o.failJob(ctx, job, apperrors.WrapError(err, "safety backup failed"))
		}
		if safety.Status != ArchiveStatusCompleted {
			return nil, o.failJob(ctx, job, apperrors.NewValidationError(
				fmt.Sprintf("safety backup %s did not complete (status %s)", safety.ID, safety.Status), nil))
		}
		job.SafetyBackupID = safety.ID
		if err := o.jobs.UpdateJob(ctx, job); err != nil {
			return nil, err
		}
	}

	record, err := o.archives.GetArchive(ctx, job.BackupID)
	if err != nil {
		return nil, o.failJob(ctx, job, err)
	}

	staged, err := o.stageArchive(ctx, record, passphrase)
	if err != nil {
		return nil, o.failJob(ctx, job, err)
	}
	defer staged.Cleanup()

	report, err := o.exec.Execute(ctx, job.TenantID, staged.Dir, staged.Manifest,
		job.SelectedCategories, job.ConflictConfig, job.Type)
	if err != nil {
		return nil, o.failJob(ctx, job, err)
	}

	job.Report = report
	expiry := o.now().UTC().Add(o.config.RollbackWindow)
	job.RollbackExpiresAt = &expiry
	if err := job.TransitionTo(StatusCompleted); err != nil {
		return nil, o.failJob(ctx, job, err)
	}
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	o.logger.LogRestorePhase(job.ID, job.TenantID, string(StatusCompleted))
	return job, nil
}

// UploadExternalBackup validates a foreign archive file and registers
// it as a usable backup. The archive is extracted once as a sanity
// check; no data is written to the live store.
func (o *Orchestrator) UploadExternalBackup(ctx context.Context, tenantID, filePath, fileName, passphrase string) (*archive.Manifest, *BackupArchive, error) {
	if !validArchiveFileName(fileName) {
		return nil, nil, apperrors.NewValidationError(
			fmt.Sprintf("unsupported archive file name: %s", fileName), nil).
			WithUserMessage("Supported archive formats: .tar.gz, .tgz, .tar.lz4, .tar.zst, .tar (optionally .enc)")
	}

	encrypted, err := archive.IsEncryptedFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	if encrypted && passphrase == "" {
		return nil, nil, apperrors.NewValidationError(
			"encrypted archive uploaded without a passphrase", nil).
			WithUserMessage("This backup is encrypted. Provide the passphrase to upload it.")
	}

	manifest, err := o.inspectArchive(filePath, passphrase, encrypted)
	if err != nil {
		return nil, nil, err
	}

	checksum, err := archive.CalculateChecksum(filePath)
	if err != nil {
		return nil, nil, err
	}

	record := &BackupArchive{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		FileName:  fileName,
		Checksum:  checksum,
		Encrypted: encrypted,
		Purpose:   PurposeManual,
		Status:    ArchiveStatusCompleted,
		CreatedAt: o.now().UTC(),
	}

	location, err := o.provider.Upload(ctx, filePath, archiveStorageKey(record))
	if err != nil {
		return nil, nil, err
	}
	record.StoredAt = location

	if err := o.archives.CreateArchive(ctx, record); err != nil {
		return nil, nil, err
	}

	o.logger.Infof("registered external backup %s for tenant %s (%d categories)",
		record.ID, tenantID, len(manifest.Categories()))
	return manifest, record, nil
}

// inspectArchive extracts an archive into a throwaway directory and
// parses its manifest, proving the file is a readable backup.
func (o *Orchestrator) inspectArchive(filePath, passphrase string, encrypted bool) (*archive.Manifest, error) {
	workDir, err := os.MkdirTemp(o.config.WorkDir, "upload-*")
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypePermission,
			"failed to create inspection directory", err)
	}
	defer os.RemoveAll(workDir)

	localPath := filePath
	if encrypted {
		decrypted := filepath.Join(workDir, "decrypted"+archive.CompressionForPath(filePath).Extension())
		if err := archive.DecryptFile(filePath, decrypted, passphrase); err != nil {
			return nil, err
		}
		localPath = decrypted
	}

	extractedDir := filepath.Join(workDir, "extracted")
	if err := archive.Extract(localPath, extractedDir); err != nil {
		return nil, err
	}

	manifest, err := archive.LoadManifest(extractedDir)
	if err != nil {
		return nil, err
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return manifest, nil
}

// failJob records a failure on the job and returns the original error
// so callers always see what happened.
func (o *Orchestrator) failJob(ctx context.Context, job *RestoreJob, cause error) error {
	message := cause.Error()
	if appErr, ok := cause.(*apperrors.AppError); ok {
		message = appErr.Message
	}

	if err := job.Fail(message); err != nil {
		o.logger.Errorf("could not mark job %s failed: %v", job.ID, err)
		return cause
	}
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		o.logger.Errorf("could not persist failure of job %s: %v", job.ID, err)
	}

	o.logger.LogRestorePhase(job.ID, job.TenantID, string(StatusFailed))
	return cause
}
