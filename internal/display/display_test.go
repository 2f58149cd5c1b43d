package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"tenant-restore/internal/conflict"
	"tenant-restore/internal/executor"
	"tenant-restore/internal/restore"
	"tenant-restore/internal/schema"
)

func newBufferRenderer() (*Renderer, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewRendererTo(&buf, Config{ColorEnabled: true, UseIcons: false}), &buf
}

func TestRendererDisablesColorForNonTerminal(t *testing.T) {
	r, buf := newBufferRenderer()
	r.Success("done")

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("Expected no ANSI escapes for a buffer writer, got %q", out)
	}
	if !strings.Contains(out, "[OK] done") {
		t.Errorf("Expected ASCII status prefix, got %q", out)
	}
}

func TestRendererIconFallback(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererTo(&buf, Config{UseIcons: true})
	r.Warning("careful")

	if !strings.Contains(buf.String(), "⚠ careful") {
		t.Errorf("Expected unicode icon, got %q", buf.String())
	}
}

func TestTableAlignment(t *testing.T) {
	r, buf := newBufferRenderer()
	r.Table([]string{"Name", "Count"}, [][]string{
		{"campaigns", "10"},
		{"ads", "3"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "campaigns  10") {
		t.Errorf("Expected aligned row, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "ads        3") {
		t.Errorf("Expected padded short cell, got %q", lines[2])
	}
}

func TestSchemaReport(t *testing.T) {
	r, buf := newBufferRenderer()
	report := &schema.ReconciliationReport{
		Results: []schema.TableResult{
			{Table: "campaigns", Category: "campaigns", Status: schema.Compatible},
			{Table: "legacy", Category: "settings", Status: schema.Incompatible,
				Issues: []string{"table legacy does not exist in the live schema"}},
		},
		Summary: schema.ReconciliationSummary{TablesChecked: 2, Compatible: 1, Incompatible: 1},
	}
	r.SchemaReport(report)

	out := buf.String()
	for _, want := range []string{"Schema Reconciliation", "campaigns", "incompatible", "2 tables checked"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "[WARN]") {
		t.Errorf("Expected a blocking-issue warning, got:\n%s", out)
	}
}

func TestConflictPreviews(t *testing.T) {
	r, buf := newBufferRenderer()
	previews := []conflict.CategoryPreview{
		{Category: "campaigns", Table: "campaigns", TotalRecords: 5, ConflictCount: 2,
			Samples: []conflict.ConflictSample{
				{RecordID: "1", Table: "campaigns", ConflictingFields: []string{"name", "status"}},
			}},
		{Category: "contacts", Table: "contacts", TotalRecords: 3},
	}
	r.ConflictPreviews(previews)

	out := buf.String()
	if !strings.Contains(out, "2 records collide") {
		t.Errorf("Expected total conflict count, got:\n%s", out)
	}
	if !strings.Contains(out, "campaigns record 1 differs in: name, status") {
		t.Errorf("Expected sample line, got:\n%s", out)
	}
}

func TestConflictPreviews_NoConflicts(t *testing.T) {
	r, buf := newBufferRenderer()
	r.ConflictPreviews([]conflict.CategoryPreview{
		{Category: "campaigns", Table: "campaigns", TotalRecords: 5},
	})

	if !strings.Contains(buf.String(), "no conflicts with existing data") {
		t.Errorf("Expected clean preview message, got:\n%s", buf.String())
	}
}

func TestExecutionReport(t *testing.T) {
	r, buf := newBufferRenderer()
	started := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	report := &executor.ExecutionReport{
		StartedAt:       started,
		CompletedAt:     started.Add(1500 * time.Millisecond),
		RecordsRestored: 7,
		RecordsUpdated:  2,
		RecordsSkipped:  1,
		Warnings:        []string{"table settings has no soft-delete column; existing rows were left in place"},
		ByCategory: map[string]*executor.CategoryResult{
			"campaigns": {Inserted: 5, Updated: 2},
			"contacts":  {Inserted: 2, Skipped: 1},
		},
	}
	r.ExecutionReport(report)

	out := buf.String()
	for _, want := range []string{"Restore Report", "7 records restored", "1.5s", "[OK] restore completed", "[WARN]"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestExecutionReport_WithErrors(t *testing.T) {
	r, buf := newBufferRenderer()
	report := &executor.ExecutionReport{
		Errors:     []string{"campaigns: record 9: duplicate entry"},
		ByCategory: map[string]*executor.CategoryResult{},
	}
	r.ExecutionReport(report)

	out := buf.String()
	if !strings.Contains(out, "completed with 1 record errors") {
		t.Errorf("Expected error summary, got:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] campaigns: record 9") {
		t.Errorf("Expected error detail, got:\n%s", out)
	}
}

func TestJobRendering(t *testing.T) {
	r, buf := newBufferRenderer()
	expiry := time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)
	job := &restore.RestoreJob{
		ID:                "job-1",
		TenantID:          "tenant-1",
		BackupID:          "backup-1",
		Type:              executor.RestoreTypePartial,
		Status:            restore.StatusCompleted,
		ConflictConfig:    conflict.Config{Strategy: conflict.StrategyMerge},
		SafetyBackupID:    "safety-1",
		RollbackExpiresAt: &expiry,
	}
	r.Job(job)

	out := buf.String()
	for _, want := range []string{"Restore Job job-1", "[OK] status:   completed", "strategy: merge", "rollback window open until 2026-06-02"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestJobList(t *testing.T) {
	r, buf := newBufferRenderer()
	r.JobList([]*restore.RestoreJob{
		{ID: "job-2", Type: executor.RestoreTypeFull, Status: restore.StatusPending,
			BackupID: "backup-1", CreatedAt: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)},
	})

	out := buf.String()
	if !strings.Contains(out, "job-2") || !strings.Contains(out, "2026-06-01 10:00:00") {
		t.Errorf("Expected job row, got:\n%s", out)
	}

	buf.Reset()
	r.JobList(nil)
	if !strings.Contains(buf.String(), "no restore jobs found") {
		t.Errorf("Expected empty-list message, got:\n%s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected unchanged string, got %q", got)
	}
	if got := truncate("a very long note about a table", 10); got != "a very ..." {
		t.Errorf("Expected truncated string, got %q", got)
	}
}
