package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"

	apperrors "tenant-restore/internal/errors"
)

// AzureProvider stores archives in an Azure Blob Storage container.
type AzureProvider struct {
	containerURL azblob.ContainerURL
	account      string
	container    string
	prefix       string
}

// NewAzureProvider creates an Azure-backed provider.
func NewAzureProvider(config *AzureConfig) (*AzureProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypePermission,
			"invalid Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	serviceURL, err := url.Parse(
		fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, apperrors.NewValidationError("invalid Azure account name", err)
	}

	containerURL := azblob.NewServiceURL(*serviceURL, pipeline).
		NewContainerURL(config.ContainerName)

	return &AzureProvider{
		containerURL: containerURL,
		account:      config.AccountName,
		container:    config.ContainerName,
		prefix:       strings.Trim(config.Prefix, "/"),
	}, nil
}

// Name identifies the provider.
func (p *AzureProvider) Name() string {
	return string(ProviderAzure)
}

// Upload stores a local archive as a block blob.
func (p *AzureProvider) Upload(ctx context.Context, localPath, remoteName string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("failed to open file: %s", localPath), err)
	}
	defer file.Close()

	key := p.key(remoteName)
	blobURL := p.containerURL.NewBlockBlobURL(key)

	_, err = azblob.UploadFileToBlockBlob(ctx, file, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
	})
	if err != nil {
		return "", apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to upload archive to Azure: %s", key), err)
	}

	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s",
		p.account, p.container, key), nil
}

// Download fetches a stored blob to a local path.
func (p *AzureProvider) Download(ctx context.Context, remoteName, localPath string) error {
	key := p.key(remoteName)
	blobURL := p.containerURL.NewBlockBlobURL(key)

	response, err := blobURL.Download(ctx, 0, azblob.CountToEnd,
		azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return apperrors.NewValidationError(
				fmt.Sprintf("archive not found in storage: %s", remoteName), err)
		}
		return apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to download archive from Azure: %s", key), err)
	}

	body := response.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	defer body.Close()

	return writeStreamToFile(body, localPath)
}

// Delete removes a stored blob.
func (p *AzureProvider) Delete(ctx context.Context, remoteName string) error {
	key := p.key(remoteName)
	blobURL := p.containerURL.NewBlockBlobURL(key)

	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude,
		azblob.BlobAccessConditions{})
	if err != nil {
		if isAzureNotFound(err) {
			return apperrors.NewValidationError(
				fmt.Sprintf("archive not found in storage: %s", remoteName), err)
		}
		return apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to delete archive from Azure: %s", key), err)
	}
	return nil
}

// Exists reports whether the blob is present.
func (p *AzureProvider) Exists(ctx context.Context, remoteName string) (bool, error) {
	key := p.key(remoteName)
	blobURL := p.containerURL.NewBlockBlobURL(key)

	_, err := blobURL.GetProperties(ctx, azblob.BlobAccessConditions{},
		azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return false, nil
		}
		return false, apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to check archive in Azure: %s", key), err)
	}
	return true, nil
}

func (p *AzureProvider) key(remoteName string) string {
	name := sanitizeRemoteName(remoteName)
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

func isAzureNotFound(err error) bool {
	if stgErr, ok := err.(azblob.StorageError); ok {
		return stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
