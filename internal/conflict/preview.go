package conflict

import (
	"context"
	"fmt"

	apperrors "tenant-restore/internal/errors"
)

// maxPreviewSamples caps how many conflicting records are embedded per
// category when a job waits for user decisions. The full set is
// re-resolved at execution time; the samples only drive the prompt.
const maxPreviewSamples = 5

// ExistingLookup fetches the live copy of a record by primary key,
// returning nil when no row exists.
type ExistingLookup func(ctx context.Context, table string, recordID interface{}) (map[string]interface{}, error)

// ConflictSample is one sanitized conflicting record pair shown to the
// user.
type ConflictSample struct {
	RecordID          string                 `json:"record_id"`
	Table             string                 `json:"table"`
	ConflictingFields []string               `json:"conflicting_fields"`
	BackupData        map[string]interface{} `json:"backup_data"`
	ExistingData      map[string]interface{} `json:"existing_data"`
}

// CategoryPreview summarizes the conflicts found in one category.
type CategoryPreview struct {
	Category      string           `json:"category"`
	Table         string           `json:"table"`
	TotalRecords  int              `json:"total_records"`
	ConflictCount int              `json:"conflict_count"`
	Samples       []ConflictSample `json:"samples"`
}

// PreviewCategory scans backup records for collisions with live rows.
// Sample payloads are sanitized before they leave this package.
func PreviewCategory(ctx context.Context, category, table string, records []map[string]interface{}, lookup ExistingLookup) (CategoryPreview, error) {
	preview := CategoryPreview{
		Category:     category,
		Table:        table,
		TotalRecords: len(records),
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return CategoryPreview{}, err
		}

		recordID, ok := record["id"]
		if !ok {
			return CategoryPreview{}, apperrors.NewValidationError(
				fmt.Sprintf("backup record in category %s has no id field", category), nil)
		}

		existing, err := lookup(ctx, table, recordID)
		if err != nil {
			return CategoryPreview{}, apperrors.WrapError(err,
				fmt.Sprintf("failed to check existing record %v in %s", recordID, table))
		}
		if existing == nil {
			continue
		}

		conflicting := DiffFields(record, existing)
		if len(conflicting) == 0 {
			continue
		}

		preview.ConflictCount++
		if len(preview.Samples) < maxPreviewSamples {
			preview.Samples = append(preview.Samples, ConflictSample{
				RecordID:          normalizeValue(recordID),
				Table:             table,
				ConflictingFields: conflicting,
				BackupData:        SanitizeRecord(record),
				ExistingData:      SanitizeRecord(existing),
			})
		}
	}

	return preview, nil
}
