package executor

import (
	"context"
	"fmt"
	"time"

	"tenant-restore/internal/archive"
	"tenant-restore/internal/conflict"
	"tenant-restore/internal/database"
	"tenant-restore/internal/depgraph"
	apperrors "tenant-restore/internal/errors"
	"tenant-restore/internal/logging"
	"tenant-restore/internal/mapper"
	"tenant-restore/internal/schema"
)

// Config tunes executor behavior.
type Config struct {
	// StrictClear blocks a full restore when a selected table has no
	// soft-delete column, instead of leaving that table untouched with
	// a warning.
	StrictClear bool `mapstructure:"strict_clear"`
}

// Executor applies extracted archives to the live store.
type Executor struct {
	db         *database.Service
	mapper     mapper.Mapper
	logger     *logging.Logger
	config     Config
	integrity  IntegrityChecker
	classifier *apperrors.ErrorClassifier

	// now is swappable in tests
	now func() time.Time
}

// NewExecutor creates an executor over the given database service.
func NewExecutor(db *database.Service, m mapper.Mapper, logger *logging.Logger, config Config) *Executor {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Executor{
		db:         db,
		mapper:     m,
		logger:     logger,
		config:     config,
		integrity:  NoopIntegrityChecker{},
		classifier: apperrors.NewErrorClassifier(),
		now:        time.Now,
	}
}

// SetIntegrityChecker replaces the post-write integrity hook.
func (e *Executor) SetIntegrityChecker(checker IntegrityChecker) {
	if checker != nil {
		e.integrity = checker
	}
}

// Execute applies the extracted archive for one tenant inside a single
// transaction. Per-record failures are collected into the report;
// anything else rolls the whole transaction back and is returned as a
// fatal error.
func (e *Executor) Execute(ctx context.Context, tenantID, extractedDir string, manifest *archive.Manifest, selectedCategories []string, conflictConfig conflict.Config, restoreType RestoreType) (*ExecutionReport, error) {
	if _, err := ParseRestoreType(string(restoreType)); err != nil {
		return nil, err
	}

	strategy := conflictConfig.Strategy
	if strategy == "" {
		strategy = conflict.StrategySkip
	}
	resolver, err := conflict.NewResolver(strategy)
	if err != nil {
		return nil, err
	}
	if err := conflictConfig.Decisions.Validate(); err != nil {
		return nil, err
	}

	categories, err := e.selectCategories(manifest, selectedCategories)
	if err != nil {
		return nil, err
	}

	tables, tableCategory, err := e.resolveTables(categories)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTenantTx(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	discovery := schema.NewMySQLDiscovery(tx.Tx, e.db.DatabaseName())

	order, err := e.dependencyOrder(ctx, discovery, tables)
	if err != nil {
		return nil, err
	}

	report := newExecutionReport(e.now().UTC())

	if restoreType == RestoreTypeFull {
		if err := e.preClear(ctx, tx, discovery, order, report); err != nil {
			return nil, err
		}
	}

	for _, table := range order {
		category, ok := tableCategory[table]
		if !ok {
			// Dependency-only table, nothing to restore into it.
			continue
		}
		if err := e.processCategory(ctx, tx, discovery, resolver, conflictConfig, restoreType, extractedDir, category, table, report); err != nil {
			return nil, err
		}
	}

	restoreFileAssets(extractedDir, manifest.Files, report)

	warnings, err := e.integrity.Check(ctx, tx, order)
	if err != nil {
		report.addWarning(fmt.Sprintf("integrity check failed: %v", err))
	}
	for _, warning := range warnings {
		report.addWarning(warning)
	}

	report.CompletedAt = e.now().UTC()
	report.CategoriesProcessed = len(categories)

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewTransactionError("failed to commit restore transaction", err)
	}
	committed = true

	return report, nil
}

// selectCategories resolves the requested category set against the
// manifest; an empty selection means every category in the archive.
func (e *Executor) selectCategories(manifest *archive.Manifest, selected []string) ([]string, error) {
	available := manifest.Categories()
	if len(selected) == 0 {
		return available, nil
	}

	inManifest := make(map[string]bool, len(available))
	for _, category := range available {
		inManifest[category] = true
	}

	var categories []string
	for _, category := range selected {
		if !inManifest[category] {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("category %s is not present in the backup archive", category), nil)
		}
		categories = append(categories, category)
	}
	return categories, nil
}

// resolveTables maps categories to their underlying tables, keeping
// category order. The first table of a category is the one its records
// are written to.
func (e *Executor) resolveTables(categories []string) ([]string, map[string]string, error) {
	var tables []string
	seen := make(map[string]bool)
	tableCategory := make(map[string]string, len(categories))

	for _, category := range categories {
		categoryTables, err := e.mapper.CategoryToTables(category)
		if err != nil {
			return nil, nil, err
		}
		for i, table := range categoryTables {
			if i == 0 {
				tableCategory[table] = category
			}
			if !seen[table] {
				seen[table] = true
				tables = append(tables, table)
			}
		}
	}
	return tables, tableCategory, nil
}

// dependencyOrder computes a parents-before-children order for the
// selected tables from the live store's foreign keys.
func (e *Executor) dependencyOrder(ctx context.Context, discovery *schema.MySQLDiscovery, tables []string) ([]string, error) {
	selected := make(map[string]bool, len(tables))
	for _, table := range tables {
		selected[table] = true
	}

	graph := depgraph.New()
	for _, table := range tables {
		graph.AddNode(table)
	}
	for _, table := range tables {
		parents, err := discovery.ReferencedTables(ctx, table)
		if err != nil {
			return nil, err
		}
		for _, parent := range parents {
			if selected[parent] {
				graph.AddEdge(parent, table)
			}
		}
	}

	order, err := graph.TopoSort()
	if err != nil {
		return nil, apperrors.NewTransactionError(
			"cannot order tables for restore", err)
	}
	return order, nil
}

// preClear soft-deletes the tenant's existing rows before a full
// restore, children first so foreign keys stay satisfied throughout.
func (e *Executor) preClear(ctx context.Context, tx *database.TenantTx, discovery *schema.MySQLDiscovery, order []string, report *ExecutionReport) error {
	for _, table := range depgraph.Reverse(order) {
		hasSoftDelete, err := discovery.HasColumn(ctx, table, "deleted_at")
		if err != nil {
			return e.classifier.ClassifyError(err)
		}
		if !hasSoftDelete {
			if e.config.StrictClear {
				return apperrors.NewValidationError(
					fmt.Sprintf("table %s cannot be cleared for a full restore: no soft-delete column", table), nil)
			}
			report.addWarning(fmt.Sprintf(
				"table %s has no soft-delete column; existing rows were left in place", table))
			continue
		}

		affected, err := softDeleteTenantRows(ctx, tx, table)
		if err != nil {
			return e.classifier.ClassifyError(err)
		}
		e.logger.Debug(fmt.Sprintf("cleared %d existing rows from %s", affected, table))
	}
	return nil
}

func (e *Executor) processCategory(ctx context.Context, tx *database.TenantTx, discovery *schema.MySQLDiscovery, resolver *conflict.Resolver, conflictConfig conflict.Config, restoreType RestoreType, extractedDir, category, table string, report *ExecutionReport) error {
	records, err := archive.LoadCategoryRecords(extractedDir, category)
	if err != nil {
		return err
	}

	liveSchema, err := discovery.DescribeTable(ctx, table)
	if err != nil {
		return e.classifier.ClassifyError(err)
	}
	if len(liveSchema.Columns) == 0 {
		return apperrors.NewValidationError(
			fmt.Sprintf("table %s does not exist in the live database", table), nil)
	}

	before := *report.category(category)

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return e.classifier.ClassifyError(err)
		}

		err := e.applyRecord(ctx, tx, resolver, conflictConfig, restoreType, category, table, liveSchema, record, report)
		if err == nil {
			continue
		}

		appErr := e.classifier.ClassifyError(err)
		if apperrors.IsFatal(appErr) {
			return appErr
		}
		if apperrors.GetErrorType(appErr) == apperrors.ErrorTypePendingDecision {
			// A record nobody adjudicated stays visible as a warning
			// without failing an otherwise clean restore.
			report.addWarning(appErr.Error())
			report.recordSkip(category)
			continue
		}
		report.recordError(category, appErr.Error())
		report.recordSkip(category)
	}

	result := report.category(category)
	e.logger.LogCategoryProcessed(category,
		result.Inserted-before.Inserted,
		result.Updated-before.Updated,
		result.Skipped-before.Skipped,
		len(result.Errors)-len(before.Errors))
	return nil
}

// applyRecord resolves and writes one backup record. Returned errors
// are classified by the caller; only recoverable record errors keep
// the transaction alive.
func (e *Executor) applyRecord(ctx context.Context, tx *database.TenantTx, resolver *conflict.Resolver, conflictConfig conflict.Config, restoreType RestoreType, category, table string, liveSchema schema.TableSchema, record map[string]interface{}, report *ExecutionReport) error {
	recordID, ok := record["id"]
	if !ok || recordID == nil {
		return apperrors.NewRecordError("unknown",
			fmt.Sprintf("backup record in category %s has no id field", category), nil)
	}
	idKey := recordKey(recordID)

	mapped := e.mapper.MapRecordFieldsToInternal(table, record)

	// Soft-deleted rows are found too: after a full-restore pre-clear
	// the backup copy must revive its row instead of colliding with it
	// on insert.
	existing, err := tx.FetchRecordByID(ctx, table, recordID)
	if err != nil {
		return err
	}

	var resolution conflict.Resolution
	if decision, ok := conflictConfig.Decisions[idKey]; ok {
		resolution, err = resolver.ApplyDecision(decision, mapped, existing)
		if err != nil {
			return apperrors.NewRecordError(idKey, "invalid conflict decision", err)
		}
	} else {
		resolution = resolver.Resolve(mapped, existing)
	}

	if existing != nil {
		e.logger.LogConflictResolution(idKey, string(resolver.Strategy()), string(resolution.Action))
	}

	switch resolution.Action {
	case conflict.ActionPending:
		return apperrors.NewPendingDecisionError(idKey)

	case conflict.ActionSkip:
		report.recordSkip(category)
		return nil

	case conflict.ActionInsert:
		payload, err := preparePayload(resolution.Record, liveSchema, tx.TenantID)
		if err != nil {
			return apperrors.NewRecordError(idKey, "failed to prepare record", err)
		}
		if err := insertRecord(ctx, tx, table, payload); err != nil {
			return err
		}
		report.recordInsert(category)
		return nil

	case conflict.ActionUpdate:
		if restoreType == RestoreTypeFull {
			// A full restore reproduces the backup's deletion state;
			// without this, rows soft-deleted by the pre-clear would
			// stay dead after their values are restored.
			resolution.Record["deleted_at"] = mapped["deleted_at"]
		}
		payload, err := preparePayload(resolution.Record, liveSchema, tx.TenantID)
		if err != nil {
			return apperrors.NewRecordError(idKey, "failed to prepare record", err)
		}
		if err := updateRecord(ctx, tx, table, recordID, payload); err != nil {
			return err
		}
		report.recordUpdate(category)
		return nil
	}

	return apperrors.NewRecordError(idKey,
		fmt.Sprintf("unsupported resolution action: %s", resolution.Action), nil)
}

// recordKey renders a record id the way decision maps key it. JSON
// numbers decode as float64, so integral floats collapse to plain
// integers.
func recordKey(recordID interface{}) string {
	switch v := recordID.(type) {
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
	case []byte:
		return string(v)
	}
	return fmt.Sprintf("%v", recordID)
}
