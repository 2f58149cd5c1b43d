package conflict

import "strings"

// RedactedMarker replaces sensitive values in any record payload that
// leaves the restore pipeline, such as conflict previews stored on a
// job awaiting user decisions.
const RedactedMarker = "[REDACTED]"

// sensitiveFieldKeywords flags a field as sensitive when its lowercase
// name contains any of them.
var sensitiveFieldKeywords = []string{
	"password",
	"token",
	"secret",
	"credential",
	"api_key",
	"apikey",
	"access_token",
	"refresh_token",
	"private_key",
}

// volatileFields are audit columns excluded from field diffs because
// they differ on nearly every pair of records without carrying a real
// conflict.
var volatileFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"deleted_at": true,
}

// IsSensitiveField reports whether a field name looks like it holds a
// credential or secret.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range sensitiveFieldKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// SanitizeRecord returns a copy of the record with sensitive values
// replaced by RedactedMarker. The input is never modified.
func SanitizeRecord(record map[string]interface{}) map[string]interface{} {
	if record == nil {
		return nil
	}

	sanitized := make(map[string]interface{}, len(record))
	for field, value := range record {
		if IsSensitiveField(field) && value != nil {
			sanitized[field] = RedactedMarker
			continue
		}
		sanitized[field] = value
	}
	return sanitized
}

// DiffFields lists the fields whose values differ between the backup
// and existing copies of a record. Audit timestamps are ignored, and
// the result is sorted for stable output.
func DiffFields(backup, existing map[string]interface{}) []string {
	seen := make(map[string]bool, len(backup))
	var fields []string

	for field, backupValue := range backup {
		seen[field] = true
		if volatileFields[field] {
			continue
		}
		if !valuesEqual(backupValue, existing[field]) {
			fields = append(fields, field)
		}
	}
	for field := range existing {
		if seen[field] || volatileFields[field] {
			continue
		}
		fields = append(fields, field)
	}

	sortStrings(fields)
	return fields
}
