// Package storage persists backup archives behind a provider
// abstraction. Safety backups and uploaded external archives both live
// here; the restore pipeline only ever moves whole archive files in
// and out.
package storage

import (
	"context"
	"fmt"
	"strings"

	apperrors "tenant-restore/internal/errors"
)

// ProviderType identifies a storage backend.
type ProviderType string

const (
	// ProviderLocal stores archives on the local filesystem
	ProviderLocal ProviderType = "local"
	// ProviderS3 stores archives in Amazon S3
	ProviderS3 ProviderType = "s3"
	// ProviderGCS stores archives in Google Cloud Storage
	ProviderGCS ProviderType = "gcs"
	// ProviderAzure stores archives in Azure Blob Storage
	ProviderAzure ProviderType = "azure"
)

// Provider moves archive files between local disk and the backing store.
type Provider interface {
	// Upload copies a local archive into the store and returns its
	// provider-specific location string.
	Upload(ctx context.Context, localPath, remoteName string) (string, error)
	// Download copies a stored archive to a local path.
	Download(ctx context.Context, remoteName, localPath string) error
	// Delete removes a stored archive. Deleting a missing archive is
	// an error so retention bugs surface.
	Delete(ctx context.Context, remoteName string) error
	// Exists reports whether the archive is present.
	Exists(ctx context.Context, remoteName string) (bool, error)
	// Name identifies the provider for logs and reports.
	Name() string
}

// LocalConfig configures filesystem storage.
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// Validate checks the local configuration.
func (c *LocalConfig) Validate() error {
	if c.BasePath == "" {
		return apperrors.NewValidationError("local storage requires a base path", nil)
	}
	return nil
}

// S3Config configures Amazon S3 storage.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// Validate checks the S3 configuration.
func (c *S3Config) Validate() error {
	if c.Region == "" {
		return apperrors.NewValidationError("S3 storage requires a region", nil)
	}
	if c.Bucket == "" {
		return apperrors.NewValidationError("S3 storage requires a bucket", nil)
	}
	return nil
}

// GCSConfig configures Google Cloud Storage.
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsPath string `mapstructure:"credentials_path"`
	Prefix          string `mapstructure:"prefix"`
}

// Validate checks the GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return apperrors.NewValidationError("GCS storage requires a bucket", nil)
	}
	return nil
}

// AzureConfig configures Azure Blob Storage.
type AzureConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	Prefix        string `mapstructure:"prefix"`
}

// Validate checks the Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" || c.AccountKey == "" {
		return apperrors.NewValidationError("Azure storage requires account name and key", nil)
	}
	if c.ContainerName == "" {
		return apperrors.NewValidationError("Azure storage requires a container name", nil)
	}
	return nil
}

// Config selects and configures one provider.
type Config struct {
	Provider ProviderType `mapstructure:"provider"`
	Local    *LocalConfig `mapstructure:"local"`
	S3       *S3Config    `mapstructure:"s3"`
	GCS      *GCSConfig   `mapstructure:"gcs"`
	Azure    *AzureConfig `mapstructure:"azure"`
}

// Validate checks that the selected provider is configured.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderLocal:
		if c.Local == nil {
			return apperrors.NewValidationError("local storage configuration is required", nil)
		}
		return c.Local.Validate()
	case ProviderS3:
		if c.S3 == nil {
			return apperrors.NewValidationError("S3 storage configuration is required", nil)
		}
		return c.S3.Validate()
	case ProviderGCS:
		if c.GCS == nil {
			return apperrors.NewValidationError("GCS storage configuration is required", nil)
		}
		return c.GCS.Validate()
	case ProviderAzure:
		if c.Azure == nil {
			return apperrors.NewValidationError("Azure storage configuration is required", nil)
		}
		return c.Azure.Validate()
	}
	return apperrors.NewValidationError(
		fmt.Sprintf("unsupported storage provider: %s", c.Provider), nil)
}

// NewProvider creates the configured storage provider.
func NewProvider(ctx context.Context, config Config) (Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case ProviderLocal:
		return NewLocalProvider(config.Local)
	case ProviderS3:
		return NewS3Provider(config.S3)
	case ProviderGCS:
		return NewGCSProvider(ctx, config.GCS)
	case ProviderAzure:
		return NewAzureProvider(config.Azure)
	}
	return nil, apperrors.NewValidationError(
		fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
}

// sanitizeRemoteName keeps archive names safe for object keys and
// filesystem paths.
func sanitizeRemoteName(name string) string {
	sanitized := strings.ReplaceAll(name, "\\", "_")
	sanitized = strings.ReplaceAll(sanitized, "..", "_")
	sanitized = strings.TrimPrefix(sanitized, "/")
	return sanitized
}
