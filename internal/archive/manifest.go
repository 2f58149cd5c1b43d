// Package archive reads and writes backup archive bundles: a manifest,
// one JSON data file per category, and a files/ directory of binary
// assets, packed into a compressed tarball.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "tenant-restore/internal/errors"
	"tenant-restore/internal/schema"
)

// ManifestFileName is the manifest's location inside an extracted archive.
const ManifestFileName = "manifest.json"

// DataDirName holds the per-category JSON data files.
const DataDirName = "data"

// FilesDirName holds archived binary assets.
const FilesDirName = "files"

// SupportedManifestVersions lists the manifest format versions this
// build can restore.
var SupportedManifestVersions = map[string]bool{
	"1.0": true,
	"1.1": true,
}

// FileEntry indexes one archived binary asset. RelativePath is taken
// relative to the archive's files/ directory.
type FileEntry struct {
	RelativePath string `json:"relative_path"`
	OriginalPath string `json:"original_path"`
	Size         int64  `json:"size,omitempty"`
}

// DataFileInfo describes one category's data file.
type DataFileInfo struct {
	Path        string `json:"path"`
	RecordCount int    `json:"record_count"`
}

// Manifest is the archive's self-description. The restore pipeline
// only ever reads it; production is owned by the backup side.
type Manifest struct {
	Version        string                  `json:"version"`
	BackupID       string                  `json:"backup_id"`
	TenantID       string                  `json:"tenant_id"`
	CreatedAt      time.Time               `json:"created_at"`
	SchemaSnapshot schema.Snapshot         `json:"schema_snapshot"`
	DataFiles      map[string]DataFileInfo `json:"data_files"`
	Files          []FileEntry             `json:"files"`
	Checksum       string                  `json:"checksum,omitempty"`
	Encrypted      bool                    `json:"encrypted,omitempty"`
}

// LoadManifest reads and validates the manifest from an extracted
// archive directory.
func LoadManifest(extractedDir string) (*Manifest, error) {
	path := filepath.Join(extractedDir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewValidationError("archive is missing its manifest", err).
			WithContext("path", path)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, apperrors.NewValidationError("manifest is not valid JSON", err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	return &manifest, nil
}

// Validate checks the structural requirements of a manifest.
func (m *Manifest) Validate() error {
	if m.Version == "" {
		return apperrors.NewValidationError("manifest has no format version", nil)
	}
	if !SupportedManifestVersions[m.Version] {
		return apperrors.NewValidationError(
			fmt.Sprintf("unsupported manifest version: %s", m.Version), nil).
			WithContext("version", m.Version)
	}
	if len(m.DataFiles) == 0 {
		return apperrors.NewValidationError("manifest lists no data files", nil)
	}
	for category, info := range m.DataFiles {
		if info.Path == "" {
			return apperrors.NewValidationError(
				fmt.Sprintf("data file for category %s has no path", category), nil)
		}
	}
	for _, entry := range m.Files {
		if entry.RelativePath == "" || entry.OriginalPath == "" {
			return apperrors.NewValidationError("file entry is missing a path", nil)
		}
	}
	return nil
}

// Categories returns the manifest's data categories in sorted order.
func (m *Manifest) Categories() []string {
	categories := make([]string, 0, len(m.DataFiles))
	for category := range m.DataFiles {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// TotalRecordCount sums the declared record counts over all categories.
func (m *Manifest) TotalRecordCount() int {
	total := 0
	for _, info := range m.DataFiles {
		total += info.RecordCount
	}
	return total
}

// LoadCategoryRecords reads one category's rows from an extracted
// archive directory.
func LoadCategoryRecords(extractedDir, category string) ([]map[string]interface{}, error) {
	path := filepath.Join(extractedDir, DataDirName, category+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("archive is missing the data file for category %s", category), err).
			WithContext("category", category)
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("data file for category %s is not a JSON array of records", category), err).
			WithContext("category", category)
	}

	return records, nil
}

// WriteManifest serializes a manifest into a directory being packed.
// Used by the safety backup creator and by tests.
func WriteManifest(dir string, manifest *Manifest) error {
	if err := manifest.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return apperrors.WrapError(err, "failed to serialize manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0644); err != nil {
		return apperrors.WrapError(err, "failed to write manifest")
	}
	return nil
}
