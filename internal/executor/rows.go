package executor

import (
	"context"
	"fmt"
	"strings"

	"tenant-restore/internal/database"
	apperrors "tenant-restore/internal/errors"
)

// insertRecord writes a new row from the prepared payload.
func insertRecord(ctx context.Context, tx *database.TenantTx, table string, payload map[string]interface{}) error {
	columns := sortedColumns(payload)
	if len(columns) == 0 {
		return apperrors.NewValidationError(
			fmt.Sprintf("record for %s has no columns matching the live table", table), nil)
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, column := range columns {
		quoted[i] = "`" + column + "`"
		placeholders[i] = "?"
		args[i] = payload[column]
	}

	query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// updateRecord overwrites an existing row by primary key. The primary
// key itself never appears in the SET clause.
func updateRecord(ctx context.Context, tx *database.TenantTx, table string, recordID interface{}, payload map[string]interface{}) error {
	assignments := make([]string, 0, len(payload))
	args := make([]interface{}, 0, len(payload)+1)
	for _, column := range sortedColumns(payload) {
		if column == "id" {
			continue
		}
		assignments = append(assignments, "`"+column+"` = ?")
		args = append(args, payload[column])
	}
	if len(assignments) == 0 {
		return apperrors.NewValidationError(
			fmt.Sprintf("record for %s has no updatable columns", table), nil)
	}

	query := fmt.Sprintf("UPDATE `%s` SET %s WHERE id = ?",
		table, strings.Join(assignments, ", "))
	args = append(args, recordID)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		// Harmless when the resolved values already match the row.
		return nil
	}
	return nil
}

// softDeleteTenantRows marks every live tenant row in the table as
// deleted. Used by the full-restore pre-clear; rows are never hard
// deleted so the audit trail survives.
func softDeleteTenantRows(ctx context.Context, tx *database.TenantTx, table string) (int64, error) {
	query := fmt.Sprintf(
		"UPDATE `%s` SET deleted_at = NOW() WHERE org_id = ? AND deleted_at IS NULL", table)

	result, err := tx.ExecContext(ctx, query, tx.TenantID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
