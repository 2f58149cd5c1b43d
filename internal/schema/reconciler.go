package schema

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tenant-restore/internal/logging"
)

// TableCompatibility classifies a backed-up table against the live schema.
type TableCompatibility string

const (
	// Compatible means the table can be restored without reservation
	Compatible TableCompatibility = "compatible"
	// CompatibleWithWarnings means only non-breaking diffs exist
	CompatibleWithWarnings TableCompatibility = "compatible_with_warnings"
	// PartiallyCompatible means at least one breaking diff exists
	PartiallyCompatible TableCompatibility = "partially_compatible"
	// Incompatible means the table no longer exists live
	Incompatible TableCompatibility = "incompatible"
)

// TypeChange records a column whose data type left its compatibility class.
type TypeChange struct {
	Column     string `json:"column"`
	BackupType string `json:"backup_type"`
	LiveType   string `json:"live_type"`
}

// ColumnDiff is the structural delta between a table's backup schema and
// its live schema.
type ColumnDiff struct {
	RemovedColumns     []string     `json:"removed_columns,omitempty"`
	TypeChanges        []TypeChange `json:"type_changes,omitempty"`
	NullabilityChanges []string     `json:"nullability_changes,omitempty"`
	NewRequiredColumns []string     `json:"new_required_columns,omitempty"`
}

// HasBreaking reports whether any diff prevents a safe automatic restore.
func (d ColumnDiff) HasBreaking() bool {
	return len(d.TypeChanges) > 0 || len(d.NewRequiredColumns) > 0
}

// HasWarnings reports whether any non-breaking diff exists.
func (d ColumnDiff) HasWarnings() bool {
	return len(d.RemovedColumns) > 0 || len(d.NullabilityChanges) > 0
}

// TableResult is the reconciliation outcome for one table.
type TableResult struct {
	Table    string             `json:"table"`
	Category string             `json:"category"`
	Status   TableCompatibility `json:"status"`
	Diff     ColumnDiff         `json:"diff"`
	Issues   []string           `json:"issues,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
}

// ReconciliationSummary aggregates counts over a full report.
type ReconciliationSummary struct {
	TablesChecked          int `json:"tables_checked"`
	Compatible             int `json:"compatible"`
	CompatibleWithWarnings int `json:"compatible_with_warnings"`
	PartiallyCompatible    int `json:"partially_compatible"`
	Incompatible           int `json:"incompatible"`
}

// ReconciliationReport is the result of comparing a backup's schema
// snapshot against the live schema. Built fresh on every reconcile call
// and immutable once returned.
type ReconciliationReport struct {
	Results []TableResult         `json:"results"`
	Summary ReconciliationSummary `json:"summary"`
}

// Result looks up the outcome for one table.
func (r *ReconciliationReport) Result(table string) (TableResult, bool) {
	for _, res := range r.Results {
		if res.Table == table {
			return res, true
		}
	}
	return TableResult{}, false
}

// HasBlockingIssues reports whether any table is incompatible or only
// partially compatible.
func (r *ReconciliationReport) HasBlockingIssues() bool {
	return r.Summary.Incompatible > 0 || r.Summary.PartiallyCompatible > 0
}

// Reconciler compares backup schema snapshots against the live schema.
// Read-only and idempotent; the only failure mode is a discovery error.
type Reconciler struct {
	discovery Discovery
	logger    *logging.Logger
}

// NewReconciler creates a schema reconciler.
func NewReconciler(discovery Discovery, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Reconciler{discovery: discovery, logger: logger}
}

// Reconcile classifies every table in the snapshot against the live
// schema. Tables are processed in sorted order so the report is stable.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID string, snapshot Snapshot) (*ReconciliationReport, error) {
	start := time.Now()
	report := &ReconciliationReport{}

	categories := make([]string, 0, len(snapshot))
	for category := range snapshot {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		tables := make([]string, 0, len(snapshot[category]))
		for table := range snapshot[category] {
			tables = append(tables, table)
		}
		sort.Strings(tables)

		for _, table := range tables {
			result, err := r.reconcileTable(ctx, category, table, snapshot[category][table])
			if err != nil {
				return nil, err
			}
			report.Results = append(report.Results, result)
		}
	}

	for _, result := range report.Results {
		report.Summary.TablesChecked++
		switch result.Status {
		case Compatible:
			report.Summary.Compatible++
		case CompatibleWithWarnings:
			report.Summary.CompatibleWithWarnings++
		case PartiallyCompatible:
			report.Summary.PartiallyCompatible++
		case Incompatible:
			report.Summary.Incompatible++
		}
	}

	r.logger.LogSchemaReconciliation(tenantID, report.Summary.TablesChecked,
		report.Summary.Incompatible+report.Summary.PartiallyCompatible,
		report.Summary.CompatibleWithWarnings, time.Since(start))

	return report, nil
}

func (r *Reconciler) reconcileTable(ctx context.Context, category, table string, backup TableSchema) (TableResult, error) {
	result := TableResult{Table: table, Category: category}

	exists, err := r.discovery.TableExists(ctx, table)
	if err != nil {
		return TableResult{}, err
	}
	if !exists {
		result.Status = Incompatible
		result.Issues = append(result.Issues, fmt.Sprintf("table %s no longer exists in the live schema", table))
		return result, nil
	}

	live, err := r.discovery.DescribeTable(ctx, table)
	if err != nil {
		return TableResult{}, err
	}

	result.Diff = diffColumns(backup, live)

	for _, col := range result.Diff.RemovedColumns {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("column %s.%s was removed from the live schema; its values will be dropped", table, col))
	}
	for _, tc := range result.Diff.TypeChanges {
		result.Issues = append(result.Issues,
			fmt.Sprintf("column %s.%s changed type from %s to %s", table, tc.Column, tc.BackupType, tc.LiveType))
	}
	for _, col := range result.Diff.NullabilityChanges {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("column %s.%s is no longer nullable; null backup values will fail", table, col))
	}
	for _, col := range result.Diff.NewRequiredColumns {
		result.Issues = append(result.Issues,
			fmt.Sprintf("live column %s.%s is required, has no default, and is absent from the backup", table, col))
	}

	switch {
	case result.Diff.HasBreaking():
		result.Status = PartiallyCompatible
	case result.Diff.HasWarnings():
		result.Status = CompatibleWithWarnings
	default:
		result.Status = Compatible
	}

	return result, nil
}

// diffColumns computes the structural delta between a backup table
// schema and its live counterpart.
func diffColumns(backup, live TableSchema) ColumnDiff {
	var diff ColumnDiff

	for _, backupCol := range backup.Columns {
		liveCol, found := live.Column(backupCol.ColumnName)
		if !found {
			diff.RemovedColumns = append(diff.RemovedColumns, backupCol.ColumnName)
			continue
		}

		if !CompatibleTypes(backupCol.DataType, liveCol.DataType) {
			diff.TypeChanges = append(diff.TypeChanges, TypeChange{
				Column:     backupCol.ColumnName,
				BackupType: backupCol.DataType,
				LiveType:   liveCol.DataType,
			})
		}

		if backupCol.IsNullable && !liveCol.IsNullable {
			diff.NullabilityChanges = append(diff.NullabilityChanges, backupCol.ColumnName)
		}
	}

	for _, liveCol := range live.Columns {
		if _, found := backup.Column(liveCol.ColumnName); found {
			continue
		}
		if !liveCol.IsNullable && !liveCol.HasDefault() {
			diff.NewRequiredColumns = append(diff.NewRequiredColumns, liveCol.ColumnName)
		}
	}

	return diff
}
