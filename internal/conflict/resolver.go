package conflict

import (
	"fmt"
	"sort"
	"time"
)

// systemFields are always preserved from the existing row when a
// conflict resolves to an update. A backup must never move a record to
// another tenant or rewrite its identity.
var systemFields = map[string]bool{
	"id":         true,
	"org_id":     true,
	"created_at": true,
	"deleted_at": true,
}

// Resolution is the outcome of resolving one backup record against the
// live database.
type Resolution struct {
	Action Action
	// Record is the payload to write for insert and update actions.
	Record map[string]interface{}
	// ConflictingFields is populated for pending resolutions so the
	// caller can present the conflict to the user.
	ConflictingFields []string
}

// Resolver applies a conflict strategy to record pairs.
type Resolver struct {
	strategy Strategy

	// now is swappable in tests
	now func() time.Time
}

// NewResolver creates a resolver for the given strategy.
func NewResolver(strategy Strategy) (*Resolver, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	return &Resolver{strategy: strategy, now: time.Now}, nil
}

// Strategy returns the configured strategy.
func (r *Resolver) Strategy() Strategy {
	return r.strategy
}

// Resolve decides what to do with a backup record. A nil existing
// record means no conflict and always resolves to an insert.
func (r *Resolver) Resolve(backup, existing map[string]interface{}) Resolution {
	if existing == nil {
		return Resolution{Action: ActionInsert, Record: copyRecord(backup)}
	}

	// deleted_at is excluded from field diffs, so the two copies can
	// look identical while only the live row is soft-deleted (a
	// full-restore pre-clear does exactly that). Those rows must reach
	// the strategy dispatch so replace and merge can revive them.
	conflicting := DiffFields(backup, existing)
	if len(conflicting) == 0 && isSoftDeleted(backup) == isSoftDeleted(existing) {
		return Resolution{Action: ActionSkip}
	}

	switch r.strategy {
	case StrategySkip:
		return Resolution{Action: ActionSkip}
	case StrategyReplace:
		return Resolution{Action: ActionUpdate, Record: r.replaceRecord(backup, existing)}
	case StrategyMerge:
		return Resolution{Action: ActionUpdate, Record: r.mergeRecords(backup, existing)}
	case StrategyAsk:
		return Resolution{Action: ActionPending, ConflictingFields: conflicting}
	}

	// An unrecognized strategy must never destroy live data.
	return Resolution{Action: ActionSkip}
}

// replaceRecord takes the backup copy wholesale while keeping the
// existing row's identity and audit trail.
func (r *Resolver) replaceRecord(backup, existing map[string]interface{}) map[string]interface{} {
	result := copyRecord(backup)
	for field := range systemFields {
		if value, ok := existing[field]; ok {
			result[field] = value
		}
	}
	result["updated_at"] = r.now().UTC()
	return result
}

// mergeRecords combines both copies. When the backup copy is newer
// than the existing row its values win; otherwise existing values are
// kept and the backup only fills fields the existing row left empty.
func (r *Resolver) mergeRecords(backup, existing map[string]interface{}) map[string]interface{} {
	// Without a timestamp on both sides there is no basis for "newer
	// wins"; the merge then only fills fields the existing row left
	// empty.
	backupTS, backupStamped := recordTimestamp(backup)
	existingTS, existingStamped := recordTimestamp(existing)
	backupNewer := backupStamped && existingStamped && backupTS.After(existingTS)

	result := copyRecord(existing)
	for field, backupValue := range backup {
		if systemFields[field] || volatileFields[field] {
			continue
		}
		if backupNewer {
			result[field] = backupValue
			continue
		}
		if isEmptyValue(result[field]) && !isEmptyValue(backupValue) {
			result[field] = backupValue
		}
	}
	result["updated_at"] = r.now().UTC()
	return result
}

// recordTimestamp extracts the record's last-modified time, reporting
// whether a parseable one was present at all.
func recordTimestamp(record map[string]interface{}) (time.Time, bool) {
	for _, field := range []string{"updated_at", "created_at"} {
		if ts, ok := parseTimestamp(record[field]); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v != nil {
			return *v, true
		}
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts, true
			}
		}
	case []byte:
		return parseTimestamp(string(v))
	}
	return time.Time{}, false
}

func copyRecord(record map[string]interface{}) map[string]interface{} {
	if record == nil {
		return nil
	}
	copied := make(map[string]interface{}, len(record))
	for field, value := range record {
		copied[field] = value
	}
	return copied
}

// isSoftDeleted reports whether a record carries a deleted_at value.
func isSoftDeleted(record map[string]interface{}) bool {
	value, ok := record["deleted_at"]
	return ok && !isEmptyValue(value)
}

func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	}
	return false
}

// valuesEqual compares field values across the JSON/database boundary,
// where the same value may arrive as int64, float64, []byte or string.
func valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return normalizeValue(a) == normalizeValue(b)
}

func normalizeValue(value interface{}) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	}
	if ts, ok := parseTimestamp(value); ok {
		return ts.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%v", value)
}

func sortStrings(values []string) {
	sort.Strings(values)
}
