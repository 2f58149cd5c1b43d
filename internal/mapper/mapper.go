// Package mapper translates between backup-facing category names and
// the live store's table and column names. The restore pipeline treats
// it as a pure lookup.
package mapper

import (
	"fmt"

	apperrors "tenant-restore/internal/errors"
)

// TableMapping binds one table to its category and its friendly export
// field names.
type TableMapping struct {
	Category string
	Table    string
	// FriendlyFields maps export-facing field names to internal column
	// names. Fields not listed pass through unchanged.
	FriendlyFields map[string]string
}

// Mapper is the lookup contract the executor and resolver consume.
type Mapper interface {
	CategoryToTables(category string) ([]string, error)
	TableToCategory(table string) (string, bool)
	MapRecordFieldsToInternal(table string, record map[string]interface{}) map[string]interface{}
}

// Registry is a static Mapper built from a list of table mappings.
type Registry struct {
	byCategory map[string][]TableMapping
	byTable    map[string]TableMapping
	order      map[string][]string
}

// NewRegistry builds a registry. Mapping order within a category is
// preserved and reported by CategoryToTables.
func NewRegistry(mappings ...TableMapping) *Registry {
	r := &Registry{
		byCategory: make(map[string][]TableMapping),
		byTable:    make(map[string]TableMapping),
		order:      make(map[string][]string),
	}
	for _, m := range mappings {
		r.byCategory[m.Category] = append(r.byCategory[m.Category], m)
		r.byTable[m.Table] = m
		r.order[m.Category] = append(r.order[m.Category], m.Table)
	}
	return r
}

// NewDefaultRegistry returns the standard category layout of the
// marketing data domain.
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		TableMapping{Category: "accounts", Table: "accounts", FriendlyFields: map[string]string{
			"account_name": "name",
			"account_type": "type",
		}},
		TableMapping{Category: "audiences", Table: "audiences", FriendlyFields: map[string]string{
			"audience_name": "name",
		}},
		TableMapping{Category: "campaigns", Table: "campaigns", FriendlyFields: map[string]string{
			"campaign_name":   "name",
			"campaign_status": "status",
			"daily_budget":    "budget",
		}},
		TableMapping{Category: "ads", Table: "ads", FriendlyFields: map[string]string{
			"ad_name":    "name",
			"ad_content": "content",
		}},
		TableMapping{Category: "creatives", Table: "creatives", FriendlyFields: map[string]string{
			"creative_name": "name",
		}},
		TableMapping{Category: "settings", Table: "organization_settings", FriendlyFields: map[string]string{
			"setting_key":   "key",
			"setting_value": "value",
		}},
	)
}

// CategoryToTables returns the tables backing a category, in mapping
// order. Unknown categories are a validation error: an archive naming
// a category this build does not know cannot be restored.
func (r *Registry) CategoryToTables(category string) ([]string, error) {
	tables, ok := r.order[category]
	if !ok {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unknown backup category: %s", category), nil).
			WithContext("category", category)
	}
	out := make([]string, len(tables))
	copy(out, tables)
	return out, nil
}

// TableToCategory returns the owning category of a table.
func (r *Registry) TableToCategory(table string) (string, bool) {
	m, ok := r.byTable[table]
	if !ok {
		return "", false
	}
	return m.Category, true
}

// Categories returns every known category name.
func (r *Registry) Categories() []string {
	names := make([]string, 0, len(r.order))
	for category := range r.order {
		names = append(names, category)
	}
	return names
}

// MapRecordFieldsToInternal rewrites friendly export field names to
// internal column names. The input record is not mutated.
func (r *Registry) MapRecordFieldsToInternal(table string, record map[string]interface{}) map[string]interface{} {
	m, known := r.byTable[table]

	mapped := make(map[string]interface{}, len(record))
	for field, value := range record {
		internal := field
		if known {
			if name, ok := m.FriendlyFields[field]; ok {
				internal = name
			}
		}
		mapped[internal] = value
	}
	return mapped
}
