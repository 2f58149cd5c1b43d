package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-restore/internal/archive"
	"tenant-restore/internal/conflict"
	"tenant-restore/internal/database"
	apperrors "tenant-restore/internal/errors"
	"tenant-restore/internal/logging"
	"tenant-restore/internal/mapper"
)

func newTestExecutor(t *testing.T, config Config) (*Executor, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	service := database.NewServiceWithDB(db, database.Config{Database: "live"},
		logging.NewTestLogger())
	return NewExecutor(service, mapper.NewDefaultRegistry(), logging.NewTestLogger(), config), mock
}

// writeExtractedDir lays out an extracted archive with one campaigns
// data file.
func writeExtractedDir(t *testing.T, campaignsJSON string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, archive.DataDirName), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, archive.DataDirName, "campaigns.json"),
		[]byte(campaignsJSON), 0644))
	return dir
}

func campaignsManifest(records int) *archive.Manifest {
	return &archive.Manifest{
		Version:  "1.0",
		BackupID: "backup-1",
		TenantID: "tenant-1",
		DataFiles: map[string]archive.DataFileInfo{
			"campaigns": {Path: "data/campaigns.json", RecordCount: records},
		},
	}
}

func campaignColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "EXTRA"}).
		AddRow("id", "bigint", "NO", nil, "").
		AddRow("org_id", "varchar", "NO", nil, "").
		AddRow("name", "varchar", "YES", nil, "").
		AddRow("status", "varchar", "YES", nil, "").
		AddRow("deleted_at", "datetime", "YES", nil, "")
}

func expectTenantScope(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET @current_org_id = ?")).
		WithArgs("tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectNoForeignKeys(mock sqlmock.Sqlmock, table string) {
	mock.ExpectQuery("KEY_COLUMN_USAGE").
		WithArgs("live", table).
		WillReturnRows(sqlmock.NewRows([]string{"REFERENCED_TABLE_NAME"}))
}

func TestExecute_PartialRestoreInsertsAndSkips(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{})
	dir := writeExtractedDir(t, `[
		{"id": 1, "name": "Summer", "status": "active"},
		{"id": 2, "name": "Winter", "status": "active"}
	]`)

	expectTenantScope(mock)
	expectNoForeignKeys(mock, "campaigns")

	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(campaignColumns())

	// Record 1 has no live counterpart and is inserted.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `campaigns` WHERE id = ?")).
		WithArgs(float64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "status"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `campaigns` (`id`, `name`, `org_id`, `status`) VALUES (?, ?, ?, ?)")).
		WithArgs(int64(1), "Summer", "tenant-1", "active").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// Record 2 conflicts and the skip strategy leaves it alone.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `campaigns` WHERE id = ?")).
		WithArgs(float64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "status"}).
			AddRow(int64(2), "tenant-1", "Autumn", "active"))

	mock.ExpectCommit()

	report, err := exec.Execute(context.Background(), "tenant-1", dir,
		campaignsManifest(2), nil,
		conflict.Config{Strategy: conflict.StrategySkip}, RestoreTypePartial)
	require.NoError(t, err)

	assert.True(t, report.Success())
	assert.Equal(t, 1, report.RecordsRestored)
	assert.Equal(t, 1, report.RecordsSkipped)
	assert.Equal(t, 0, report.RecordsUpdated)
	assert.Equal(t, 1, report.CategoriesProcessed)
	assert.Equal(t, 1, report.ByCategory["campaigns"].Inserted)
	assert.Equal(t, 1, report.ByCategory["campaigns"].Skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_SecondRunWithSkipIsNoOp(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{})
	dir := writeExtractedDir(t, `[{"id": 1, "name": "Summer", "status": "active"}]`)

	expectTenantScope(mock)
	expectNoForeignKeys(mock, "campaigns")
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(campaignColumns())

	// The live row already matches the backup exactly.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `campaigns` WHERE id = ?")).
		WithArgs(float64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "status"}).
			AddRow(int64(1), "tenant-1", "Summer", "active"))

	mock.ExpectCommit()

	report, err := exec.Execute(context.Background(), "tenant-1", dir,
		campaignsManifest(1), nil,
		conflict.Config{Strategy: conflict.StrategySkip}, RestoreTypePartial)
	require.NoError(t, err)

	assert.Equal(t, 0, report.RecordsRestored)
	assert.Equal(t, 1, report.RecordsSkipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_FullRestoreClearsChildrenFirst(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{})

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, archive.DataDirName), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, archive.DataDirName, "campaigns.json"), []byte(`[]`), 0644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, archive.DataDirName, "ads.json"), []byte(`[]`), 0644))

	manifest := &archive.Manifest{
		Version: "1.0",
		DataFiles: map[string]archive.DataFileInfo{
			"ads":       {Path: "data/ads.json"},
			"campaigns": {Path: "data/campaigns.json"},
		},
	}

	expectTenantScope(mock)

	// ads references campaigns, so campaigns must be restored first and
	// ads cleared first.
	mock.ExpectQuery("KEY_COLUMN_USAGE").
		WithArgs("live", "ads").
		WillReturnRows(sqlmock.NewRows([]string{"REFERENCED_TABLE_NAME"}).
			AddRow("campaigns"))
	expectNoForeignKeys(mock, "campaigns")

	// Pre-clear runs in reverse dependency order: ads, then campaigns.
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "ads").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "EXTRA"}).
			AddRow("id", "bigint", "NO", nil, "").
			AddRow("org_id", "varchar", "NO", nil, "").
			AddRow("deleted_at", "datetime", "YES", nil, ""))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `ads` SET deleted_at = NOW() WHERE org_id = ? AND deleted_at IS NULL")).
		WithArgs("tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(campaignColumns())
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `campaigns` SET deleted_at = NOW() WHERE org_id = ? AND deleted_at IS NULL")).
		WithArgs("tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	// Both data files are empty, so no further row queries happen; the
	// table schemas are already cached from the pre-clear checks.
	mock.ExpectCommit()

	report, err := exec.Execute(context.Background(), "tenant-1", dir, manifest, nil,
		conflict.Config{Strategy: conflict.StrategyReplace}, RestoreTypeFull)
	require.NoError(t, err)

	assert.True(t, report.Success())
	assert.Equal(t, 2, report.CategoriesProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_FullRestoreRevivesUnchangedRows(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{})
	dir := writeExtractedDir(t, `[{"id": 1, "org_id": "tenant-1", "name": "Summer", "status": "active"}]`)

	expectTenantScope(mock)
	expectNoForeignKeys(mock, "campaigns")

	// Pre-clear soft-deletes the tenant's live rows.
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(campaignColumns())
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `campaigns` SET deleted_at = NOW() WHERE org_id = ? AND deleted_at IS NULL")).
		WithArgs("tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// The backup copy matches the now-dead row field for field; the
	// restore must still issue an update that clears deleted_at rather
	// than skipping the row as unchanged.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `campaigns` WHERE id = ?")).
		WithArgs(float64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "status", "deleted_at"}).
			AddRow(int64(1), "tenant-1", "Summer", "active", "2026-03-01 08:00:00"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `campaigns` SET `deleted_at` = ?, `name` = ?, `org_id` = ?, `status` = ? WHERE id = ?")).
		WithArgs(nil, "Summer", "tenant-1", "active", float64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	report, err := exec.Execute(context.Background(), "tenant-1", dir,
		campaignsManifest(1), nil,
		conflict.Config{Strategy: conflict.StrategyReplace}, RestoreTypeFull)
	require.NoError(t, err)

	assert.True(t, report.Success())
	assert.Equal(t, 1, report.RecordsUpdated)
	assert.Equal(t, 0, report.RecordsSkipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_FullRestoreWarnsOnUnclearableTable(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{})
	dir := writeExtractedDir(t, `[]`)

	expectTenantScope(mock)
	expectNoForeignKeys(mock, "campaigns")

	// No deleted_at column on the live table.
	noSoftDelete := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "EXTRA"}).
		AddRow("id", "bigint", "NO", nil, "").
		AddRow("org_id", "varchar", "NO", nil, "").
		AddRow("name", "varchar", "YES", nil, "")
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(noSoftDelete)
	mock.ExpectCommit()

	report, err := exec.Execute(context.Background(), "tenant-1", dir,
		campaignsManifest(0), nil,
		conflict.Config{Strategy: conflict.StrategyReplace}, RestoreTypeFull)
	require.NoError(t, err)

	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "no soft-delete column")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_StrictClearBlocksFullRestore(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{StrictClear: true})
	dir := writeExtractedDir(t, `[]`)

	expectTenantScope(mock)
	expectNoForeignKeys(mock, "campaigns")

	noSoftDelete := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "EXTRA"}).
		AddRow("id", "bigint", "NO", nil, "").
		AddRow("org_id", "varchar", "NO", nil, "")
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(noSoftDelete)
	mock.ExpectRollback()

	_, err := exec.Execute(context.Background(), "tenant-1", dir,
		campaignsManifest(0), nil,
		conflict.Config{Strategy: conflict.StrategyReplace}, RestoreTypeFull)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_PerRecordErrorDoesNotAbort(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{})
	dir := writeExtractedDir(t, `[
		{"id": 1, "name": "Summer", "status": "active"},
		{"id": 2, "name": "Winter", "status": "active"}
	]`)

	expectTenantScope(mock)
	expectNoForeignKeys(mock, "campaigns")
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(campaignColumns())

	// Record 1 trips a duplicate-key error, which is a per-record
	// problem, not a reason to roll back.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `campaigns` WHERE id = ?")).
		WithArgs(float64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO `campaigns`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "duplicate entry"})

	// Record 2 still goes through.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `campaigns` WHERE id = ?")).
		WithArgs(float64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO `campaigns`").
		WithArgs(int64(2), "Winter", "tenant-1", "active").
		WillReturnResult(sqlmock.NewResult(2, 1))

	mock.ExpectCommit()

	report, err := exec.Execute(context.Background(), "tenant-1", dir,
		campaignsManifest(2), nil,
		conflict.Config{Strategy: conflict.StrategySkip}, RestoreTypePartial)
	require.NoError(t, err)

	assert.False(t, report.Success())
	assert.Len(t, report.Errors, 1)
	assert.Equal(t, 1, report.RecordsRestored)
	assert.Equal(t, 1, report.RecordsSkipped)
	assert.Len(t, report.ByCategory["campaigns"].Errors, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_FatalErrorRollsBackEverything(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{})
	dir := writeExtractedDir(t, `[
		{"id": 1, "name": "Summer", "status": "active"},
		{"id": 2, "name": "Winter", "status": "active"}
	]`)

	expectTenantScope(mock)
	expectNoForeignKeys(mock, "campaigns")
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(campaignColumns())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `campaigns` WHERE id = ?")).
		WithArgs(float64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO `campaigns`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// The second record hits something unclassifiable; the whole
	// transaction must roll back, first insert included.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `campaigns` WHERE id = ?")).
		WithArgs(float64(2)).
		WillReturnError(errors.New("server went away mid-flight"))
	mock.ExpectRollback()

	report, err := exec.Execute(context.Background(), "tenant-1", dir,
		campaignsManifest(2), nil,
		conflict.Config{Strategy: conflict.StrategySkip}, RestoreTypePartial)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_PendingDecisionSkipsWithWarning(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{})
	dir := writeExtractedDir(t, `[{"id": 1, "name": "Summer", "status": "active"}]`)

	expectTenantScope(mock)
	expectNoForeignKeys(mock, "campaigns")
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(campaignColumns())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `campaigns` WHERE id = ?")).
		WithArgs(float64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "status"}).
			AddRow(int64(1), "tenant-1", "Autumn", "active"))

	mock.ExpectCommit()

	report, err := exec.Execute(context.Background(), "tenant-1", dir,
		campaignsManifest(1), nil,
		conflict.Config{Strategy: conflict.StrategyAsk}, RestoreTypePartial)
	require.NoError(t, err)

	// An unadjudicated record is a skip plus a warning, not a failure.
	assert.True(t, report.Success())
	assert.Empty(t, report.Errors)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "awaits a user decision")
	assert.Equal(t, 1, report.RecordsSkipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_AppliesStoredDecision(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{})
	dir := writeExtractedDir(t, `[{"id": 1, "name": "Summer", "status": "active"}]`)

	expectTenantScope(mock)
	expectNoForeignKeys(mock, "campaigns")
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(campaignColumns())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `campaigns` WHERE id = ?")).
		WithArgs(float64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "status"}).
			AddRow(int64(1), "tenant-1", "Autumn", "active"))

	mock.ExpectCommit()

	config := conflict.Config{
		Strategy: conflict.StrategyAsk,
		Decisions: conflict.DecisionSet{
			"1": {Action: conflict.DecisionKeepExisting},
		},
	}

	report, err := exec.Execute(context.Background(), "tenant-1", dir,
		campaignsManifest(1), nil, config, RestoreTypePartial)
	require.NoError(t, err)

	assert.True(t, report.Success())
	assert.Equal(t, 1, report.RecordsSkipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_UnknownCategoryRejected(t *testing.T) {
	exec, _ := newTestExecutor(t, Config{})
	dir := writeExtractedDir(t, `[]`)

	_, err := exec.Execute(context.Background(), "tenant-1", dir,
		campaignsManifest(0), []string{"unicorns"},
		conflict.Config{Strategy: conflict.StrategySkip}, RestoreTypePartial)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
}

func TestExecute_InvalidRestoreType(t *testing.T) {
	exec, _ := newTestExecutor(t, Config{})

	_, err := exec.Execute(context.Background(), "tenant-1", t.TempDir(),
		campaignsManifest(0), nil,
		conflict.Config{Strategy: conflict.StrategySkip}, "sideways")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
}

func TestExecute_RestoresFileAssets(t *testing.T) {
	exec, mock := newTestExecutor(t, Config{})
	dir := writeExtractedDir(t, `[]`)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, archive.FilesDirName), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, archive.FilesDirName, "logo.png"), []byte("png-bytes"), 0644))

	target := filepath.Join(t.TempDir(), "uploads", "logo.png")
	manifest := campaignsManifest(0)
	manifest.Files = []archive.FileEntry{
		{RelativePath: "logo.png", OriginalPath: target},
		{RelativePath: "missing.png", OriginalPath: filepath.Join(t.TempDir(), "missing.png")},
	}

	expectTenantScope(mock)
	expectNoForeignKeys(mock, "campaigns")
	mock.ExpectQuery("information_schema.COLUMNS").
		WithArgs("live", "campaigns").
		WillReturnRows(campaignColumns())
	mock.ExpectCommit()

	report, err := exec.Execute(context.Background(), "tenant-1", dir,
		manifest, nil,
		conflict.Config{Strategy: conflict.StrategySkip}, RestoreTypePartial)
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesRestored)
	assert.Len(t, report.Errors, 1) // the missing file

	restored, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(restored))
	assert.NoError(t, mock.ExpectationsWereMet())
}
