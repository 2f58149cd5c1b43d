package display

import (
	"fmt"
	"sort"
	"time"

	"tenant-restore/internal/conflict"
	"tenant-restore/internal/executor"
	"tenant-restore/internal/restore"
	"tenant-restore/internal/schema"
)

// SchemaReport renders the outcome of comparing a backup's schema
// snapshot against the live database.
func (r *Renderer) SchemaReport(report *schema.ReconciliationReport) {
	r.Header("Schema Reconciliation")
	if report == nil || report.Summary.TablesChecked == 0 {
		r.Info("no tables to check")
		return
	}

	rows := make([][]string, 0, len(report.Results))
	for _, result := range report.Results {
		note := ""
		if len(result.Issues) > 0 {
			note = result.Issues[0]
		} else if len(result.Warnings) > 0 {
			note = result.Warnings[0]
		}
		rows = append(rows, []string{
			result.Table,
			result.Category,
			string(result.Status),
			truncate(note, 60),
		})
	}
	r.Table([]string{"Table", "Category", "Status", "Notes"}, rows)

	summary := report.Summary
	r.Info("%d tables checked: %d compatible, %d with warnings, %d partial, %d incompatible",
		summary.TablesChecked, summary.Compatible, summary.CompatibleWithWarnings,
		summary.PartiallyCompatible, summary.Incompatible)
	if report.HasBlockingIssues() {
		r.Warning("some tables cannot be restored as-is; affected records will be skipped or dropped fields lost")
	} else {
		r.Success("schema is compatible with this backup")
	}
}

// ConflictPreviews renders per-category conflict counts and up to a few
// sanitized sample collisions each.
func (r *Renderer) ConflictPreviews(previews []conflict.CategoryPreview) {
	r.Header("Conflict Preview")
	if len(previews) == 0 {
		r.Info("no categories analyzed")
		return
	}

	total := 0
	rows := make([][]string, 0, len(previews))
	for _, p := range previews {
		total += p.ConflictCount
		rows = append(rows, []string{
			p.Category,
			p.Table,
			fmt.Sprintf("%d", p.TotalRecords),
			fmt.Sprintf("%d", p.ConflictCount),
		})
	}
	r.Table([]string{"Category", "Table", "Records", "Conflicts"}, rows)

	if total == 0 {
		r.Success("no conflicts with existing data")
		return
	}
	r.Warning("%d records collide with existing data", total)

	for _, p := range previews {
		for _, sample := range p.Samples {
			r.Info("%s record %s differs in: %s", p.Category, sample.RecordID,
				joinFields(sample.ConflictingFields))
		}
	}
}

// ExecutionReport renders what a restore run did, category by category.
func (r *Renderer) ExecutionReport(report *executor.ExecutionReport) {
	r.Header("Restore Report")
	if report == nil {
		r.Info("no report available")
		return
	}

	categories := make([]string, 0, len(report.ByCategory))
	for name := range report.ByCategory {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	rows := make([][]string, 0, len(categories))
	for _, name := range categories {
		result := report.ByCategory[name]
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%d", result.Inserted),
			fmt.Sprintf("%d", result.Updated),
			fmt.Sprintf("%d", result.Skipped),
			fmt.Sprintf("%d", len(result.Errors)),
		})
	}
	r.Table([]string{"Category", "Inserted", "Updated", "Skipped", "Errors"}, rows)

	duration := report.CompletedAt.Sub(report.StartedAt).Round(time.Millisecond)
	r.Info("%d records restored, %d updated, %d skipped, %d files in %s",
		report.RecordsRestored, report.RecordsUpdated, report.RecordsSkipped,
		report.FilesRestored, duration)

	for _, warning := range report.Warnings {
		r.Warning("%s", warning)
	}
	for _, errMsg := range report.Errors {
		r.Error("%s", errMsg)
	}
	if report.Success() {
		r.Success("restore completed")
	} else {
		r.Warning("restore completed with %d record errors", len(report.Errors))
	}
}

// Job renders one restore job's state and key timestamps.
func (r *Renderer) Job(job *restore.RestoreJob) {
	r.Header(fmt.Sprintf("Restore Job %s", job.ID))
	r.Info("tenant:   %s", job.TenantID)
	r.Info("backup:   %s", job.BackupID)
	r.Info("type:     %s", job.Type)
	r.statusLine(job.Status)
	if len(job.SelectedCategories) > 0 {
		r.Info("scope:    %s", joinFields(job.SelectedCategories))
	}
	r.Info("strategy: %s", job.ConflictConfig.Strategy)
	if job.SafetyBackupID != "" {
		r.Info("safety backup: %s", job.SafetyBackupID)
	}
	if job.RollbackExpiresAt != nil {
		r.Info("rollback window open until %s", job.RollbackExpiresAt.Format(time.RFC3339))
	}
	if job.ErrorMessage != "" {
		r.Error("%s", job.ErrorMessage)
	}
}

// JobList renders a tenant's jobs newest first.
func (r *Renderer) JobList(jobs []*restore.RestoreJob) {
	r.Header("Restore Jobs")
	if len(jobs) == 0 {
		r.Info("no restore jobs found")
		return
	}

	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			string(job.Type),
			string(job.Status),
			job.BackupID,
			job.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	r.Table([]string{"ID", "Type", "Status", "Backup", "Created"}, rows)
}

// Archive renders one stored backup archive.
func (r *Renderer) Archive(archive *restore.BackupArchive) {
	r.Success("backup %s stored as %s", archive.ID, archive.StoredAt)
	if archive.Checksum != "" {
		r.Info("checksum: %s", archive.Checksum)
	}
	if archive.Encrypted {
		r.Info("archive is encrypted; the passphrase will be required to restore it")
	}
}

func (r *Renderer) statusLine(status restore.Status) {
	switch status {
	case restore.StatusCompleted:
		r.Success("status:   %s", status)
	case restore.StatusFailed:
		r.Error("status:   %s", status)
	case restore.StatusRolledBack:
		r.Warning("status:   %s", status)
	default:
		r.Info("status:   %s", status)
	}
}

func joinFields(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += f
	}
	return out
}
