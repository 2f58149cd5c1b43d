// Package executor applies an extracted backup archive to the live
// store. The entire write phase of one restore runs inside a single
// tenant-scoped transaction: it either commits completely or leaves
// the store untouched.
package executor

import (
	"fmt"
	"time"

	apperrors "tenant-restore/internal/errors"
)

// RestoreType distinguishes a full restore, which clears existing
// tenant data first, from a partial one that only touches selected
// categories.
type RestoreType string

const (
	// RestoreTypeFull clears existing tenant rows before writing.
	RestoreTypeFull RestoreType = "full"
	// RestoreTypePartial writes on top of existing tenant data.
	RestoreTypePartial RestoreType = "partial"
)

// ParseRestoreType validates a restore type string.
func ParseRestoreType(s string) (RestoreType, error) {
	switch RestoreType(s) {
	case RestoreTypeFull, RestoreTypePartial:
		return RestoreType(s), nil
	}
	return "", apperrors.NewValidationError(
		fmt.Sprintf("unknown restore type: %q (expected full or partial)", s), nil)
}

// CategoryResult counts the outcomes within one category.
type CategoryResult struct {
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ExecutionReport aggregates everything one restore run did.
type ExecutionReport struct {
	StartedAt           time.Time                  `json:"started_at"`
	CompletedAt         time.Time                  `json:"completed_at"`
	CategoriesProcessed int                        `json:"categories_processed"`
	RecordsRestored     int                        `json:"records_restored"`
	RecordsUpdated      int                        `json:"records_updated"`
	RecordsSkipped      int                        `json:"records_skipped"`
	FilesRestored       int                        `json:"files_restored"`
	Errors              []string                   `json:"errors,omitempty"`
	Warnings            []string                   `json:"warnings,omitempty"`
	ByCategory          map[string]*CategoryResult `json:"by_category"`
}

func newExecutionReport(startedAt time.Time) *ExecutionReport {
	return &ExecutionReport{
		StartedAt:  startedAt,
		ByCategory: make(map[string]*CategoryResult),
	}
}

// Success reports whether the run collected no errors. Warnings alone
// do not fail a restore.
func (r *ExecutionReport) Success() bool {
	return len(r.Errors) == 0
}

func (r *ExecutionReport) category(name string) *CategoryResult {
	result, ok := r.ByCategory[name]
	if !ok {
		result = &CategoryResult{}
		r.ByCategory[name] = result
	}
	return result
}

func (r *ExecutionReport) recordInsert(category string) {
	r.RecordsRestored++
	r.category(category).Inserted++
}

func (r *ExecutionReport) recordUpdate(category string) {
	r.RecordsUpdated++
	r.category(category).Updated++
}

func (r *ExecutionReport) recordSkip(category string) {
	r.RecordsSkipped++
	r.category(category).Skipped++
}

func (r *ExecutionReport) recordError(category, message string) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", category, message))
	result := r.category(category)
	result.Errors = append(result.Errors, message)
}

func (r *ExecutionReport) addWarning(message string) {
	r.Warnings = append(r.Warnings, message)
}
