package executor

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	apperrors "tenant-restore/internal/errors"
	"tenant-restore/internal/schema"
)

// preparePayload turns a resolved record into column/value pairs ready
// to write. Fields that do not exist as columns on the live table are
// dropped, structured values destined for JSON columns are serialized,
// and the tenant column is always forced to the transaction's tenant.
func preparePayload(record map[string]interface{}, table schema.TableSchema, tenantID string) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(record))

	for _, column := range table.Columns {
		value, ok := record[column.ColumnName]
		if !ok {
			continue
		}

		converted, err := convertValue(value, column)
		if err != nil {
			return nil, apperrors.WrapError(err,
				fmt.Sprintf("failed to convert value for column %s", column.ColumnName))
		}
		payload[column.ColumnName] = converted
	}

	if _, ok := table.Column("org_id"); ok {
		payload["org_id"] = tenantID
	}

	return payload, nil
}

// convertValue adapts a JSON-decoded or database-scanned value to what
// the MySQL driver accepts for the target column.
func convertValue(value interface{}, column schema.ColumnDefinition) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case map[string]interface{}, []interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	case time.Time:
		return v.UTC().Format("2006-01-02 15:04:05"), nil
	case float64:
		// JSON numbers arrive as float64; integer columns need the
		// fractional part gone.
		if isIntegerColumn(column) && v == float64(int64(v)) {
			return int64(v), nil
		}
		return v, nil
	}
	return value, nil
}

func isIntegerColumn(column schema.ColumnDefinition) bool {
	switch schema.NormalizeDataType(column.DataType) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint":
		return true
	}
	return false
}

// sortedColumns returns the payload's column names in a fixed order so
// generated SQL is deterministic.
func sortedColumns(payload map[string]interface{}) []string {
	columns := make([]string, 0, len(payload))
	for column := range payload {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}
