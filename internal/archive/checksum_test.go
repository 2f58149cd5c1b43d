package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tenant-restore/internal/errors"
)

func TestCalculateAndVerifyChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("archive payload"), 0644))

	checksum, err := CalculateChecksum(path)
	require.NoError(t, err)
	assert.Len(t, checksum, 64)

	assert.NoError(t, VerifyChecksum(path, checksum))
}

func TestVerifyChecksum_Mismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("archive payload"), 0644))

	err := VerifyChecksum(path, "deadbeef")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeIntegrity, apperrors.GetErrorType(err))
}

func TestVerifyChecksum_TamperedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0644))

	checksum, err := CalculateChecksum(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0644))

	err = VerifyChecksum(path, checksum)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeIntegrity, apperrors.GetErrorType(err))
}

func TestVerifyChecksum_EmptyExpected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0644))

	err := VerifyChecksum(path, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
}

func TestChecksumSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0644))

	written, err := WriteChecksumFile(path)
	require.NoError(t, err)

	read, err := ReadChecksumFile(path)
	require.NoError(t, err)
	assert.Equal(t, written, read)

	assert.NoError(t, VerifyChecksum(path, read))
}

func TestReadChecksumFile_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")

	_, err := ReadChecksumFile(path)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
}
