package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "tenant-restore/internal/errors"
)

// LocalProvider stores archives under a base directory on disk.
type LocalProvider struct {
	basePath string
}

// NewLocalProvider creates a filesystem-backed provider.
func NewLocalProvider(config *LocalConfig) (*LocalProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypePermission,
			fmt.Sprintf("failed to create storage directory: %s", config.BasePath), err)
	}

	return &LocalProvider{basePath: config.BasePath}, nil
}

// Name identifies the provider.
func (p *LocalProvider) Name() string {
	return string(ProviderLocal)
}

// Upload copies a local archive into the storage directory.
func (p *LocalProvider) Upload(ctx context.Context, localPath, remoteName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	destPath := p.resolve(remoteName)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", apperrors.NewAppError(apperrors.ErrorTypePermission,
			"failed to create storage subdirectory", err)
	}

	if err := copyFile(localPath, destPath); err != nil {
		return "", err
	}
	return destPath, nil
}

// Download copies a stored archive to a local path.
func (p *LocalProvider) Download(ctx context.Context, remoteName, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath := p.resolve(remoteName)
	if _, err := os.Stat(srcPath); os.IsNotExist(err) {
		return apperrors.NewValidationError(
			fmt.Sprintf("archive not found in storage: %s", remoteName), err)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypePermission,
			"failed to create download directory", err)
	}
	return copyFile(srcPath, localPath)
}

// Delete removes a stored archive.
func (p *LocalProvider) Delete(ctx context.Context, remoteName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := p.resolve(remoteName)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return apperrors.NewValidationError(
				fmt.Sprintf("archive not found in storage: %s", remoteName), err)
		}
		return apperrors.NewAppError(apperrors.ErrorTypePermission,
			fmt.Sprintf("failed to delete archive: %s", remoteName), err)
	}
	return nil
}

// Exists reports whether the archive is present.
func (p *LocalProvider) Exists(ctx context.Context, remoteName string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(p.resolve(remoteName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewAppError(apperrors.ErrorTypePermission,
			fmt.Sprintf("failed to stat archive: %s", remoteName), err)
	}
	return true, nil
}

func (p *LocalProvider) resolve(remoteName string) string {
	return filepath.Join(p.basePath, sanitizeRemoteName(remoteName))
}

func writeStreamToFile(r io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypePermission,
			"failed to create download directory", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypePermission,
			fmt.Sprintf("failed to create file: %s", dst), err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to write downloaded archive: %s", dst), err)
	}
	return out.Sync()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return apperrors.NewValidationError(
			fmt.Sprintf("failed to open file: %s", src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypePermission,
			fmt.Sprintf("failed to create file: %s", dst), err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypeUnknown,
			fmt.Sprintf("failed to copy file to: %s", dst), err)
	}
	return out.Sync()
}
