package restore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tenant-restore/internal/archive"
	apperrors "tenant-restore/internal/errors"
)

// stagedArchive is an archive made locally readable: downloaded,
// decrypted, verified and unpacked into a job-scoped temp directory.
type stagedArchive struct {
	Dir      string
	Manifest *archive.Manifest
	cleanup  func()
}

// Cleanup removes the staging directory. Safe to call more than once.
func (s *stagedArchive) Cleanup() {
	if s != nil && s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// stageArchive prepares a stored archive for reading. The returned
// staging directory must be cleaned up by the caller on every path.
func (o *Orchestrator) stageArchive(ctx context.Context, record *BackupArchive, passphrase string) (*stagedArchive, error) {
	workDir, err := os.MkdirTemp(o.config.WorkDir, "restore-*")
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypePermission,
			"failed to create staging directory", err)
	}
	cleanup := func() { os.RemoveAll(workDir) }

	localPath := filepath.Join(workDir, record.FileName)
	if err := o.provider.Download(ctx, archiveStorageKey(record), localPath); err != nil {
		cleanup()
		return nil, err
	}

	if record.Checksum != "" {
		if err := archive.VerifyChecksum(localPath, record.Checksum); err != nil {
			cleanup()
			return nil, err
		}
	}

	if record.Encrypted {
		if passphrase == "" {
			cleanup()
			return nil, apperrors.NewValidationError(
				"archive is encrypted and requires a passphrase", nil).
				WithUserMessage("This backup is encrypted. Provide the passphrase to continue.")
		}
		decrypted := strings.TrimSuffix(localPath, archive.EncryptedExtension)
		if decrypted == localPath {
			decrypted = localPath + ".plain"
		}
		if err := archive.DecryptFile(localPath, decrypted, passphrase); err != nil {
			cleanup()
			return nil, err
		}
		localPath = decrypted
	}

	extractedDir := filepath.Join(workDir, "extracted")
	if err := archive.Extract(localPath, extractedDir); err != nil {
		cleanup()
		return nil, err
	}

	manifest, err := archive.LoadManifest(extractedDir)
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := manifest.Validate(); err != nil {
		cleanup()
		return nil, err
	}

	return &stagedArchive{Dir: extractedDir, Manifest: manifest, cleanup: cleanup}, nil
}

// archiveStorageKey is where a backup archive lives in the storage
// provider: namespaced per tenant.
func archiveStorageKey(record *BackupArchive) string {
	return fmt.Sprintf("%s/%s", record.TenantID, record.FileName)
}

// allowedArchiveSuffixes are the archive formats accepted for external
// uploads, each optionally wrapped in an encryption layer.
var allowedArchiveSuffixes = []string{".tar.gz", ".tgz", ".tar.lz4", ".tar.zst", ".tar"}

func validArchiveFileName(fileName string) bool {
	name := strings.TrimSuffix(fileName, archive.EncryptedExtension)
	for _, suffix := range allowedArchiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
