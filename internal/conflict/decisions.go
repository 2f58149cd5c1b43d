package conflict

import (
	"fmt"

	apperrors "tenant-restore/internal/errors"
)

// DecisionAction is what the user chose for a single conflicting record.
type DecisionAction string

const (
	// DecisionKeepExisting leaves the live record untouched.
	DecisionKeepExisting DecisionAction = "keep_existing"
	// DecisionUseBackup overwrites the live record with the backup copy.
	DecisionUseBackup DecisionAction = "use_backup"
	// DecisionMerge combines both copies with the merge rules.
	DecisionMerge DecisionAction = "merge"
	// DecisionCustom picks a source per field.
	DecisionCustom DecisionAction = "custom"
)

// FieldSource says where a custom decision takes a field value from.
type FieldSource string

const (
	// FieldFromBackup takes the backup copy's value.
	FieldFromBackup FieldSource = "backup"
	// FieldFromExisting takes the live record's value.
	FieldFromExisting FieldSource = "existing"
	// FieldCustomValue uses a value the user supplied directly.
	FieldCustomValue FieldSource = "custom"
)

// FieldChoice is one field's resolution inside a custom decision.
type FieldChoice struct {
	Source FieldSource `json:"source"`
	// Value carries the user-supplied value for FieldCustomValue.
	Value interface{} `json:"value,omitempty"`
}

// Decision is the stored user decision for one conflicting record. The
// snapshots are kept sanitized so the decision can be reviewed later
// without exposing credentials.
type Decision struct {
	Action       DecisionAction         `json:"action"`
	BackupData   map[string]interface{} `json:"backup_data,omitempty"`
	ExistingData map[string]interface{} `json:"existing_data,omitempty"`
	CustomFields map[string]FieldChoice `json:"custom_fields,omitempty"`
}

// Validate checks a single decision.
func (d Decision) Validate() error {
	switch d.Action {
	case DecisionKeepExisting, DecisionUseBackup, DecisionMerge:
		return nil
	case DecisionCustom:
		if len(d.CustomFields) == 0 {
			return apperrors.NewValidationError(
				"custom decision requires at least one field choice", nil)
		}
		for field, choice := range d.CustomFields {
			switch choice.Source {
			case FieldFromBackup, FieldFromExisting, FieldCustomValue:
			default:
				return apperrors.NewValidationError(
					fmt.Sprintf("invalid field source %q for field %q", choice.Source, field), nil)
			}
		}
		return nil
	}
	return apperrors.NewValidationError(
		fmt.Sprintf("unknown decision action: %q", d.Action), nil)
}

// DecisionSet maps record IDs to their user decisions.
type DecisionSet map[string]Decision

// Validate checks every decision in the set.
func (s DecisionSet) Validate() error {
	for recordID, decision := range s {
		if err := decision.Validate(); err != nil {
			return apperrors.WrapError(err,
				fmt.Sprintf("invalid decision for record %s", recordID))
		}
	}
	return nil
}

// Config is the conflict-resolution configuration persisted on a
// restore job: one default strategy plus explicit per-record decisions
// collected while the job waited for confirmation.
type Config struct {
	Strategy  Strategy    `json:"strategy"`
	Decisions DecisionSet `json:"decisions,omitempty"`
}

// Validate checks the strategy and every stored decision.
func (c Config) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	return c.Decisions.Validate()
}

// ApplyDecision turns a user decision into a concrete resolution for
// the record. A record whose decision is missing from the set stays
// pending; callers handle that case before writing anything.
func (r *Resolver) ApplyDecision(decision Decision, backup, existing map[string]interface{}) (Resolution, error) {
	if err := decision.Validate(); err != nil {
		return Resolution{}, err
	}

	if existing == nil {
		// The conflicting row disappeared between analysis and
		// execution; the backup copy goes in cleanly.
		if decision.Action == DecisionKeepExisting {
			return Resolution{Action: ActionSkip}, nil
		}
		return Resolution{Action: ActionInsert, Record: copyRecord(backup)}, nil
	}

	switch decision.Action {
	case DecisionKeepExisting:
		return Resolution{Action: ActionSkip}, nil
	case DecisionUseBackup:
		return Resolution{Action: ActionUpdate, Record: r.replaceRecord(backup, existing)}, nil
	case DecisionMerge:
		return Resolution{Action: ActionUpdate, Record: r.mergeRecords(backup, existing)}, nil
	case DecisionCustom:
		return Resolution{Action: ActionUpdate, Record: r.customRecord(decision, backup, existing)}, nil
	}
	return Resolution{}, apperrors.NewValidationError(
		fmt.Sprintf("unknown decision action: %q", decision.Action), nil)
}

// customRecord builds an update payload from per-field choices. Fields
// without an explicit choice keep their existing values, and system
// fields cannot be overridden.
func (r *Resolver) customRecord(decision Decision, backup, existing map[string]interface{}) map[string]interface{} {
	result := copyRecord(existing)
	for field, choice := range decision.CustomFields {
		if systemFields[field] || volatileFields[field] {
			continue
		}
		switch choice.Source {
		case FieldFromBackup:
			if value, ok := backup[field]; ok {
				result[field] = value
			}
		case FieldFromExisting:
			// already present
		case FieldCustomValue:
			result[field] = choice.Value
		}
	}
	result["updated_at"] = r.now().UTC()
	return result
}
