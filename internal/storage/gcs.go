package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	apperrors "tenant-restore/internal/errors"
)

// GCSProvider stores archives in a Google Cloud Storage bucket.
type GCSProvider struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSProvider creates a GCS-backed provider. When no credentials
// file is configured, application default credentials are used.
func NewGCSProvider(ctx context.Context, config *GCSConfig) (*GCSProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypeConnection,
			"failed to create GCS client", err)
	}

	return &GCSProvider{
		client: client,
		bucket: config.Bucket,
		prefix: strings.Trim(config.Prefix, "/"),
	}, nil
}

// Name identifies the provider.
func (p *GCSProvider) Name() string {
	return string(ProviderGCS)
}

// Close releases the underlying client.
func (p *GCSProvider) Close() error {
	return p.client.Close()
}

// Upload stores a local archive as a GCS object.
func (p *GCSProvider) Upload(ctx context.Context, localPath, remoteName string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("failed to open file: %s", localPath), err)
	}
	defer file.Close()

	key := p.key(remoteName)
	writer := p.client.Bucket(p.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return "", apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to upload archive to GCS: %s", key), err)
	}
	if err := writer.Close(); err != nil {
		return "", apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to finalize GCS upload: %s", key), err)
	}

	return fmt.Sprintf("gs://%s/%s", p.bucket, key), nil
}

// Download fetches a stored archive to a local path.
func (p *GCSProvider) Download(ctx context.Context, remoteName, localPath string) error {
	key := p.key(remoteName)
	reader, err := p.client.Bucket(p.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return apperrors.NewValidationError(
				fmt.Sprintf("archive not found in storage: %s", remoteName), err)
		}
		return apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to download archive from GCS: %s", key), err)
	}
	defer reader.Close()

	return writeStreamToFile(reader, localPath)
}

// Delete removes a stored archive.
func (p *GCSProvider) Delete(ctx context.Context, remoteName string) error {
	key := p.key(remoteName)
	err := p.client.Bucket(p.bucket).Object(key).Delete(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return apperrors.NewValidationError(
				fmt.Sprintf("archive not found in storage: %s", remoteName), err)
		}
		return apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to delete archive from GCS: %s", key), err)
	}
	return nil
}

// Exists reports whether the object is present.
func (p *GCSProvider) Exists(ctx context.Context, remoteName string) (bool, error) {
	key := p.key(remoteName)
	_, err := p.client.Bucket(p.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to check archive in GCS: %s", key), err)
	}
	return true, nil
}

func (p *GCSProvider) key(remoteName string) string {
	name := sanitizeRemoteName(remoteName)
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}
