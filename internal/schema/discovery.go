package schema

import (
	"context"
	"database/sql"

	apperrors "tenant-restore/internal/errors"
)

// Querier is the subset of database/sql used for schema discovery. Both
// *sql.DB and *sql.Tx satisfy it, so discovery can run standalone during
// analysis and inside the restore transaction during execution.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Discovery reports the live store's current tables and columns.
type Discovery interface {
	TableExists(ctx context.Context, table string) (bool, error)
	DescribeTable(ctx context.Context, table string) (TableSchema, error)
	HasColumn(ctx context.Context, table, column string) (bool, error)
}

// MySQLDiscovery reads live schema information from information_schema.
type MySQLDiscovery struct {
	db       Querier
	database string
	cache    map[string]TableSchema
}

// NewMySQLDiscovery creates a discovery bound to one database. Results
// are cached per table; create a fresh discovery per transaction if the
// schema may have changed.
func NewMySQLDiscovery(db Querier, database string) *MySQLDiscovery {
	return &MySQLDiscovery{
		db:       db,
		database: database,
		cache:    make(map[string]TableSchema),
	}
}

// TableExists checks whether the table exists in the live database.
func (d *MySQLDiscovery) TableExists(ctx context.Context, table string) (bool, error) {
	query := `SELECT COUNT(*) FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`

	var count int
	if err := d.db.QueryRowContext(ctx, query, d.database, table).Scan(&count); err != nil {
		return false, apperrors.WrapError(err, "failed to check table existence")
	}
	return count > 0, nil
}

// DescribeTable returns the table's current column definitions.
func (d *MySQLDiscovery) DescribeTable(ctx context.Context, table string) (TableSchema, error) {
	if cached, ok := d.cache[table]; ok {
		return cached, nil
	}

	query := `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT, EXTRA
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`

	rows, err := d.db.QueryContext(ctx, query, d.database, table)
	if err != nil {
		return TableSchema{}, apperrors.WrapError(err, "failed to describe table")
	}
	defer rows.Close()

	ts := TableSchema{Name: table}
	for rows.Next() {
		var (
			name       string
			dataType   string
			isNullable string
			colDefault sql.NullString
			extra      sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &isNullable, &colDefault, &extra); err != nil {
			return TableSchema{}, apperrors.WrapError(err, "failed to scan column definition")
		}

		col := ColumnDefinition{
			ColumnName: name,
			DataType:   dataType,
			IsNullable: isNullable == "YES",
			Extra:      extra.String,
		}
		if colDefault.Valid {
			def := colDefault.String
			col.ColumnDefault = &def
		}
		ts.Columns = append(ts.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return TableSchema{}, apperrors.WrapError(err, "failed to read column definitions")
	}

	d.cache[table] = ts
	return ts, nil
}

// HasColumn checks whether the table currently has the named column.
func (d *MySQLDiscovery) HasColumn(ctx context.Context, table, column string) (bool, error) {
	ts, err := d.DescribeTable(ctx, table)
	if err != nil {
		return false, err
	}
	_, ok := ts.Column(column)
	return ok, nil
}

// ReferencedTables returns the distinct tables the given table points
// at through foreign keys. Self-references are excluded since they do
// not affect table-level ordering.
func (d *MySQLDiscovery) ReferencedTables(ctx context.Context, table string) ([]string, error) {
	query := `SELECT DISTINCT REFERENCED_TABLE_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY REFERENCED_TABLE_NAME`

	rows, err := d.db.QueryContext(ctx, query, d.database, table)
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to read foreign key references")
	}
	defer rows.Close()

	var parents []string
	for rows.Next() {
		var parent string
		if err := rows.Scan(&parent); err != nil {
			return nil, apperrors.WrapError(err, "failed to scan foreign key reference")
		}
		if parent != table {
			parents = append(parents, parent)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.WrapError(err, "failed to read foreign key references")
	}
	return parents, nil
}
