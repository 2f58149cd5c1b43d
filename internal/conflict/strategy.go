// Package conflict decides what happens when a record from a backup
// archive collides with a live record in the tenant's database.
package conflict

import (
	"fmt"

	apperrors "tenant-restore/internal/errors"
)

// Strategy selects how conflicting records are handled during restore.
type Strategy string

const (
	// StrategySkip keeps the existing record and ignores the backup copy.
	StrategySkip Strategy = "skip"
	// StrategyReplace overwrites the existing record with the backup copy.
	StrategyReplace Strategy = "replace"
	// StrategyMerge combines both copies field by field.
	StrategyMerge Strategy = "merge"
	// StrategyAsk defers each conflict to an explicit user decision.
	StrategyAsk Strategy = "ask"
)

// ParseStrategy validates a strategy string from config or API input.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySkip, StrategyReplace, StrategyMerge, StrategyAsk:
		return Strategy(s), nil
	}
	return "", apperrors.NewValidationError(
		fmt.Sprintf("unknown conflict strategy: %q (expected skip, replace, merge or ask)", s), nil)
}

// Valid reports whether the strategy is one of the known values.
func (s Strategy) Valid() bool {
	_, err := ParseStrategy(string(s))
	return err == nil
}

// Action is the outcome of resolving one record.
type Action string

const (
	// ActionInsert writes the backup record as a new row.
	ActionInsert Action = "insert"
	// ActionUpdate overwrites the existing row with resolved values.
	ActionUpdate Action = "update"
	// ActionSkip leaves the existing row untouched.
	ActionSkip Action = "skip"
	// ActionPending means a user decision is required before the
	// record can be written.
	ActionPending Action = "pending"
)
