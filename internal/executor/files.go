package executor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tenant-restore/internal/archive"
)

// restoreFileAssets copies archived binary assets back to their
// recorded original locations. Entry paths are relative to the
// archive's files/ directory. A missing or uncopyable file is a
// per-file error in the report, never a reason to abort the restore.
func restoreFileAssets(extractedDir string, entries []archive.FileEntry, report *ExecutionReport) {
	for _, entry := range entries {
		src := filepath.Join(extractedDir, archive.FilesDirName, filepath.FromSlash(entry.RelativePath))
		if _, err := os.Stat(src); err != nil {
			report.recordError("files",
				fmt.Sprintf("archived file missing: %s", entry.RelativePath))
			continue
		}

		if err := copyFileAsset(src, entry.OriginalPath); err != nil {
			report.recordError("files",
				fmt.Sprintf("failed to restore %s to %s: %v",
					entry.RelativePath, entry.OriginalPath, err))
			continue
		}
		report.FilesRestored++
	}
}

func copyFileAsset(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
