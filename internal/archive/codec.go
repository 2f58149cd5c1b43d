package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	apperrors "tenant-restore/internal/errors"
)

// CompressionType selects the archive payload codec.
type CompressionType string

const (
	// CompressionTypeGzip is the default interchange codec
	CompressionTypeGzip CompressionType = "gzip"
	// CompressionTypeLZ4 trades ratio for speed, used for safety backups
	CompressionTypeLZ4 CompressionType = "lz4"
	// CompressionTypeZstd balances both
	CompressionTypeZstd CompressionType = "zstd"
	// CompressionTypeNone stores the tar stream as-is
	CompressionTypeNone CompressionType = "none"
)

// ParseCompressionType validates a configured codec name.
func ParseCompressionType(name string) (CompressionType, error) {
	switch CompressionType(strings.ToLower(name)) {
	case CompressionTypeGzip, "":
		return CompressionTypeGzip, nil
	case CompressionTypeLZ4:
		return CompressionTypeLZ4, nil
	case CompressionTypeZstd:
		return CompressionTypeZstd, nil
	case CompressionTypeNone:
		return CompressionTypeNone, nil
	}
	return "", apperrors.NewValidationError(
		fmt.Sprintf("unsupported compression type: %s", name), nil)
}

// Extension returns the archive filename extension for the codec.
func (c CompressionType) Extension() string {
	switch c {
	case CompressionTypeLZ4:
		return ".tar.lz4"
	case CompressionTypeZstd:
		return ".tar.zst"
	case CompressionTypeNone:
		return ".tar"
	default:
		return ".tar.gz"
	}
}

// CompressionForPath infers the codec from an archive filename.
func CompressionForPath(path string) CompressionType {
	lower := strings.ToLower(strings.TrimSuffix(path, ".enc"))
	switch {
	case strings.HasSuffix(lower, ".tar.lz4"):
		return CompressionTypeLZ4
	case strings.HasSuffix(lower, ".tar.zst"):
		return CompressionTypeZstd
	case strings.HasSuffix(lower, ".tar"):
		return CompressionTypeNone
	default:
		return CompressionTypeGzip
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps a writer with the codec's compressor.
func (c CompressionType) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressionTypeGzip:
		return gzip.NewWriter(w), nil
	case CompressionTypeLZ4:
		return lz4.NewWriter(w), nil
	case CompressionTypeZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, apperrors.WrapError(err, "failed to create zstd writer")
		}
		return zw, nil
	case CompressionTypeNone:
		return nopWriteCloser{w}, nil
	}
	return nil, apperrors.NewValidationError(
		fmt.Sprintf("unsupported compression type: %s", c), nil)
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// NewReader wraps a reader with the codec's decompressor.
func (c CompressionType) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CompressionTypeGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, apperrors.NewIntegrityError("archive is not a valid gzip stream", err)
		}
		return gr, nil
	case CompressionTypeLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionTypeZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, apperrors.NewIntegrityError("archive is not a valid zstd stream", err)
		}
		return zstdReadCloser{zr}, nil
	case CompressionTypeNone:
		return io.NopCloser(r), nil
	}
	return nil, apperrors.NewValidationError(
		fmt.Sprintf("unsupported compression type: %s", c), nil)
}
