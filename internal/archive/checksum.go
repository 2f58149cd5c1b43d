package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	apperrors "tenant-restore/internal/errors"
)

// ChecksumExtension is the sidecar file suffix for archive checksums.
const ChecksumExtension = ".sha256"

// CalculateChecksum computes the hex-encoded sha256 of a file.
func CalculateChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", apperrors.WrapError(err, "failed to open file for checksum")
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", apperrors.WrapError(err, "failed to read file for checksum")
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifyChecksum recomputes a file's checksum and compares it to the
// expected value. A mismatch is an integrity error: the archive must
// not be restored.
func VerifyChecksum(path, expected string) error {
	if expected == "" {
		return apperrors.NewValidationError("no checksum recorded for archive", nil)
	}

	actual, err := CalculateChecksum(path)
	if err != nil {
		return err
	}

	if !strings.EqualFold(actual, expected) {
		return apperrors.NewIntegrityError("archive checksum mismatch", nil).
			WithContext("expected", expected).
			WithContext("actual", actual)
	}
	return nil
}

// WriteChecksumFile writes the archive's checksum sidecar next to it.
func WriteChecksumFile(archivePath string) (string, error) {
	checksum, err := CalculateChecksum(archivePath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(archivePath+ChecksumExtension, []byte(checksum+"\n"), 0644); err != nil {
		return "", apperrors.WrapError(err, "failed to write checksum file")
	}
	return checksum, nil
}

// ReadChecksumFile reads the sidecar checksum for an archive, if present.
func ReadChecksumFile(archivePath string) (string, error) {
	data, err := os.ReadFile(archivePath + ChecksumExtension)
	if err != nil {
		return "", apperrors.NewValidationError("archive has no checksum sidecar", err)
	}
	return strings.TrimSpace(string(data)), nil
}
