// Package backup produces safety backups: a snapshot of a tenant's
// live rows taken immediately before a restore writes anything. The
// output is a normal backup archive, so a rollback can replay it
// through the restore pipeline unchanged.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"tenant-restore/internal/archive"
	"tenant-restore/internal/database"
	apperrors "tenant-restore/internal/errors"
	"tenant-restore/internal/logging"
	"tenant-restore/internal/mapper"
	"tenant-restore/internal/restore"
	"tenant-restore/internal/schema"
	"tenant-restore/internal/storage"
)

// manifestVersion is the archive format version safety backups are
// written with.
const manifestVersion = "1.1"

// Config tunes safety backup creation.
type Config struct {
	// WorkDir hosts staging directories; empty means the system temp dir.
	WorkDir string `mapstructure:"work_dir"`
	// Compression names the archive codec (gzip, lz4, zstd, none).
	Compression string `mapstructure:"compression"`
}

// Builder snapshots a tenant's live data into a stored backup archive.
type Builder struct {
	db       *database.Service
	registry *mapper.Registry
	provider storage.Provider
	archives restore.ArchiveStore
	logger   *logging.Logger
	config   Config

	// now is swappable in tests
	now func() time.Time
}

// NewBuilder wires a safety backup builder.
func NewBuilder(db *database.Service, registry *mapper.Registry, provider storage.Provider, archives restore.ArchiveStore, logger *logging.Logger, config Config) *Builder {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if config.Compression == "" {
		// Safety backups sit on the critical path of every restore, so
		// speed wins over ratio.
		config.Compression = string(archive.CompressionTypeLZ4)
	}
	return &Builder{
		db:       db,
		registry: registry,
		provider: provider,
		archives: archives,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// CreateSafetyBackup dumps every known category of the tenant's live,
// non-deleted rows into an archive and uploads it. The archive record
// is registered pending first and only marked completed once the file
// is stored, so a crash mid-backup never yields a record that looks
// usable.
func (b *Builder) CreateSafetyBackup(ctx context.Context, tenantID string) (*restore.BackupArchive, error) {
	if tenantID == "" {
		return nil, apperrors.NewValidationError("tenant id is required", nil)
	}

	codec, err := archive.ParseCompressionType(b.config.Compression)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	record := &restore.BackupArchive{
		ID:        id,
		TenantID:  tenantID,
		FileName:  fmt.Sprintf("safety-%s%s", id, codec.Extension()),
		Purpose:   restore.PurposeSafety,
		Status:    restore.ArchiveStatusPending,
		CreatedAt: b.now().UTC(),
	}
	if err := b.archives.CreateArchive(ctx, record); err != nil {
		return nil, err
	}

	if err := b.build(ctx, record, codec); err != nil {
		record.Status = restore.ArchiveStatusFailed
		if updateErr := b.archives.UpdateArchive(ctx, record); updateErr != nil {
			b.logger.Errorf("could not mark safety backup %s failed: %v", record.ID, updateErr)
		}
		return nil, apperrors.WrapError(err,
			fmt.Sprintf("safety backup for tenant %s failed", tenantID))
	}

	record.Status = restore.ArchiveStatusCompleted
	if err := b.archives.UpdateArchive(ctx, record); err != nil {
		return nil, err
	}

	b.logger.Infof("safety backup %s stored for tenant %s", record.ID, tenantID)
	return record, nil
}

func (b *Builder) build(ctx context.Context, record *restore.BackupArchive, codec archive.CompressionType) error {
	workDir, err := os.MkdirTemp(b.config.WorkDir, "safety-*")
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypePermission,
			"failed to create safety backup staging directory", err)
	}
	defer os.RemoveAll(workDir)

	bundleDir := filepath.Join(workDir, "bundle")
	if err := os.MkdirAll(filepath.Join(bundleDir, archive.DataDirName), 0755); err != nil {
		return apperrors.WrapError(err, "failed to create bundle directory")
	}

	// Reads run inside one tenant transaction so the snapshot is a
	// consistent view. The transaction is never committed.
	tx, err := b.db.BeginTenantTx(ctx, record.TenantID)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	discovery := schema.NewMySQLDiscovery(tx.Tx, b.db.DatabaseName())
	snapshot := schema.Snapshot{}
	dataFiles := make(map[string]archive.DataFileInfo)

	categories := b.registry.Categories()
	sort.Strings(categories)
	for _, category := range categories {
		tables, err := b.registry.CategoryToTables(category)
		if err != nil {
			return err
		}
		table := tables[0]

		exists, err := discovery.TableExists(ctx, table)
		if err != nil {
			return err
		}
		if !exists {
			b.logger.Debug(fmt.Sprintf("skipping category %s: table %s does not exist", category, table))
			continue
		}

		ts, err := discovery.DescribeTable(ctx, table)
		if err != nil {
			return err
		}
		snapshot[category] = map[string]schema.TableSchema{table: ts}

		records, err := b.dumpRows(ctx, tx, table, ts)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return apperrors.WrapError(err,
				fmt.Sprintf("failed to serialize rows of %s", table))
		}
		relPath := filepath.Join(archive.DataDirName, category+".json")
		if err := os.WriteFile(filepath.Join(bundleDir, relPath), data, 0644); err != nil {
			return apperrors.WrapError(err,
				fmt.Sprintf("failed to write data file for %s", category))
		}
		dataFiles[category] = archive.DataFileInfo{Path: relPath, RecordCount: len(records)}
	}

	if len(dataFiles) == 0 {
		return apperrors.NewValidationError(
			fmt.Sprintf("no backing tables exist for tenant %s; nothing to snapshot", record.TenantID), nil)
	}

	manifest := &archive.Manifest{
		Version:        manifestVersion,
		BackupID:       record.ID,
		TenantID:       record.TenantID,
		CreatedAt:      b.now().UTC(),
		SchemaSnapshot: snapshot,
		DataFiles:      dataFiles,
	}
	if err := archive.WriteManifest(bundleDir, manifest); err != nil {
		return err
	}

	archivePath := filepath.Join(workDir, record.FileName)
	if err := archive.Pack(bundleDir, archivePath, codec); err != nil {
		return err
	}

	checksum, err := archive.CalculateChecksum(archivePath)
	if err != nil {
		return err
	}
	record.Checksum = checksum

	location, err := b.provider.Upload(ctx, archivePath,
		fmt.Sprintf("%s/%s", record.TenantID, record.FileName))
	if err != nil {
		return err
	}
	record.StoredAt = location
	return nil
}

// dumpRows reads the tenant's live rows of one table as generic maps.
// Soft-deleted rows are excluded; a rollback restores the state a user
// actually saw.
func (b *Builder) dumpRows(ctx context.Context, tx *database.TenantTx, table string, ts schema.TableSchema) ([]map[string]interface{}, error) {
	query := fmt.Sprintf("SELECT * FROM `%s`", table)
	var args []interface{}
	var where []string

	if _, ok := ts.Column("org_id"); ok {
		where = append(where, "org_id = ?")
		args = append(args, tx.TenantID)
	}
	if _, ok := ts.Column("deleted_at"); ok {
		where = append(where, "deleted_at IS NULL")
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.WrapError(err,
			fmt.Sprintf("failed to read rows of %s", table))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to read result columns")
	}

	records := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, apperrors.WrapError(err,
				fmt.Sprintf("failed to scan row of %s", table))
		}

		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
				continue
			}
			row[column] = values[i]
		}
		records = append(records, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.WrapError(err,
			fmt.Sprintf("failed to read rows of %s", table))
	}
	return records, nil
}
