package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	apperrors "tenant-restore/internal/errors"
)

// S3Provider stores archives in an Amazon S3 bucket.
type S3Provider struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Provider creates an S3-backed provider.
func NewS3Provider(config *S3Config) (*S3Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKey, config.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypeConnection,
			"failed to create AWS session", err)
	}

	return &S3Provider{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: strings.Trim(config.Prefix, "/"),
	}, nil
}

// Name identifies the provider.
func (p *S3Provider) Name() string {
	return string(ProviderS3)
}

// Upload stores a local archive as an S3 object.
func (p *S3Provider) Upload(ctx context.Context, localPath, remoteName string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("failed to open file: %s", localPath), err)
	}
	defer file.Close()

	key := p.key(remoteName)
	_, err = p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to upload archive to S3: %s", key), err)
	}

	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}

// Download fetches a stored archive to a local path.
func (p *S3Provider) Download(ctx context.Context, remoteName, localPath string) error {
	key := p.key(remoteName)
	result, err := p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return apperrors.NewValidationError(
				fmt.Sprintf("archive not found in storage: %s", remoteName), err)
		}
		return apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to download archive from S3: %s", key), err)
	}
	defer result.Body.Close()

	return writeStreamToFile(result.Body, localPath)
}

// Delete removes a stored archive.
func (p *S3Provider) Delete(ctx context.Context, remoteName string) error {
	key := p.key(remoteName)

	exists, err := p.Exists(ctx, remoteName)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NewValidationError(
			fmt.Sprintf("archive not found in storage: %s", remoteName), nil)
	}

	_, err = p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to delete archive from S3: %s", key), err)
	}
	return nil
}

// Exists reports whether the object is present.
func (p *S3Provider) Exists(ctx context.Context, remoteName string) (bool, error) {
	key := p.key(remoteName)
	_, err := p.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to check archive in S3: %s", key), err)
	}
	return true, nil
}

func (p *S3Provider) key(remoteName string) string {
	name := sanitizeRemoteName(remoteName)
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

func isS3NotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
