package schema

import "strings"

// ColumnDefinition describes one column as captured in a backup snapshot
// or read from the live information schema.
type ColumnDefinition struct {
	ColumnName    string  `json:"column_name"`
	DataType      string  `json:"data_type"`
	IsNullable    bool    `json:"is_nullable"`
	ColumnDefault *string `json:"column_default,omitempty"`
	Extra         string  `json:"extra,omitempty"`
}

// HasDefault reports whether the column can be populated without an
// explicit value. Auto-increment and generated columns count.
func (c ColumnDefinition) HasDefault() bool {
	if c.ColumnDefault != nil {
		return true
	}
	extra := strings.ToLower(c.Extra)
	return strings.Contains(extra, "auto_increment") ||
		strings.Contains(extra, "default_generated") ||
		strings.Contains(extra, "generated")
}

// TableSchema describes one table's column set.
type TableSchema struct {
	Name    string             `json:"name"`
	Columns []ColumnDefinition `json:"columns"`
}

// Column looks up a column by name.
func (t TableSchema) Column(name string) (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.ColumnName == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// ColumnNames returns the column names in definition order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.ColumnName
	}
	return names
}

// Snapshot is the schema captured inside a backup manifest: category
// name to table name to table schema.
type Snapshot map[string]map[string]TableSchema

// Tables returns every table in the snapshot with its category,
// categories and tables both in sorted-stable map iteration handled by
// the caller where ordering matters.
func (s Snapshot) Tables() map[string]string {
	tables := make(map[string]string)
	for category, categoryTables := range s {
		for table := range categoryTables {
			tables[table] = category
		}
	}
	return tables
}

// NormalizeDataType reduces a raw MySQL column type to its base type
// keyword: display widths, precision, unsigned and zerofill modifiers
// are stripped and the result is lowercased. "INT(11) unsigned" and
// "int" normalize identically.
func NormalizeDataType(dataType string) string {
	normalized := strings.ToLower(strings.TrimSpace(dataType))
	if idx := strings.Index(normalized, "("); idx != -1 {
		end := strings.Index(normalized, ")")
		if end > idx {
			normalized = normalized[:idx] + normalized[end+1:]
		} else {
			normalized = normalized[:idx]
		}
	}
	normalized = strings.ReplaceAll(normalized, "unsigned", "")
	normalized = strings.ReplaceAll(normalized, "zerofill", "")
	return strings.TrimSpace(normalized)
}

// compatibilityClasses groups interchangeable wire types. Two column
// types are compatible iff their normalized forms fall in the same
// class. Types outside every class are only compatible with themselves.
var compatibilityClasses = [][]string{
	{"tinyint", "smallint", "mediumint", "int", "integer", "bigint", "bool", "boolean"},
	{"decimal", "numeric", "float", "double", "real"},
	{"char", "varchar", "tinytext", "text", "mediumtext", "longtext"},
	{"binary", "varbinary", "tinyblob", "blob", "mediumblob", "longblob"},
	{"datetime", "timestamp"},
	{"json", "jsonb"},
}

// CompatibleTypes reports whether two raw column types belong to the
// same compatibility class.
func CompatibleTypes(backupType, liveType string) bool {
	a := NormalizeDataType(backupType)
	b := NormalizeDataType(liveType)
	if a == b {
		return true
	}
	for _, class := range compatibilityClasses {
		inA, inB := false, false
		for _, member := range class {
			if member == a {
				inA = true
			}
			if member == b {
				inB = true
			}
		}
		if inA && inB {
			return true
		}
	}
	return false
}
