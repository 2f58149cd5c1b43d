package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tenant-restore/internal/errors"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "backup.tar.gz")
	encrypted := plain + EncryptedExtension
	decrypted := filepath.Join(dir, "restored.tar.gz")

	require.NoError(t, os.WriteFile(plain, []byte("archive payload"), 0644))

	require.NoError(t, EncryptFile(plain, encrypted, "hunter2 passphrase"))
	require.NoError(t, DecryptFile(encrypted, decrypted, "hunter2 passphrase"))

	restored, err := os.ReadFile(decrypted)
	require.NoError(t, err)
	assert.Equal(t, "archive payload", string(restored))
}

func TestDecryptFile_WrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "backup.tar.gz")
	encrypted := plain + EncryptedExtension

	require.NoError(t, os.WriteFile(plain, []byte("archive payload"), 0644))
	require.NoError(t, EncryptFile(plain, encrypted, "correct"))

	err := DecryptFile(encrypted, filepath.Join(dir, "out.tar.gz"), "wrong")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeIntegrity, apperrors.GetErrorType(err))
}

func TestDecryptFile_NotEncrypted(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "backup.tar.gz")
	require.NoError(t, os.WriteFile(plain, []byte("just a tarball"), 0644))

	err := DecryptFile(plain, filepath.Join(dir, "out.tar.gz"), "passphrase")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeIntegrity, apperrors.GetErrorType(err))
}

func TestDecryptFile_RequiresPassphrase(t *testing.T) {
	err := DecryptFile("any", "out", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
}

func TestEncryptFile_RequiresPassphrase(t *testing.T) {
	err := EncryptFile("any", "out", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
}

func TestIsEncryptedFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "backup.tar.gz")
	encrypted := plain + EncryptedExtension

	require.NoError(t, os.WriteFile(plain, []byte("archive payload"), 0644))
	require.NoError(t, EncryptFile(plain, encrypted, "pass"))

	isEnc, err := IsEncryptedFile(encrypted)
	require.NoError(t, err)
	assert.True(t, isEnc)

	isEnc, err = IsEncryptedFile(plain)
	require.NoError(t, err)
	assert.False(t, isEnc)

	// .enc extension but plaintext content
	fake := filepath.Join(dir, "fake.tar.gz.enc")
	require.NoError(t, os.WriteFile(fake, []byte("plaintext"), 0644))
	isEnc, err = IsEncryptedFile(fake)
	require.NoError(t, err)
	assert.False(t, isEnc)
}

func TestEncryptedPackRoundtrip(t *testing.T) {
	src := writeTestArchiveDir(t)
	work := t.TempDir()

	archivePath := filepath.Join(work, "backup.tar.gz")
	require.NoError(t, Pack(src, archivePath, CompressionTypeGzip))

	encryptedPath := archivePath + EncryptedExtension
	require.NoError(t, EncryptFile(archivePath, encryptedPath, "passphrase"))

	decryptedPath := filepath.Join(work, "decrypted.tar.gz")
	require.NoError(t, DecryptFile(encryptedPath, decryptedPath, "passphrase"))

	dest := t.TempDir()
	require.NoError(t, Extract(decryptedPath, dest))

	manifest, err := LoadManifest(dest)
	require.NoError(t, err)
	assert.Equal(t, "backup-1", manifest.BackupID)
}
