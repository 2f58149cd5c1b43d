package archive

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	apperrors "tenant-restore/internal/errors"
)

// EncryptedExtension marks encrypted archive files.
const EncryptedExtension = ".enc"

// encMagic prefixes every encrypted archive so decryption can refuse
// plaintext or foreign files up front.
var encMagic = []byte("TRENC1\x00")

const (
	saltSize         = 32
	pbkdf2Iters      = 100000
	encryptionKeyLen = 32
)

// deriveKey stretches a passphrase into an AES-256 key.
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iters, encryptionKeyLen, sha256.New)
}

// IsEncryptedFile checks whether a file carries the encrypted archive
// header.
func IsEncryptedFile(path string) (bool, error) {
	if !strings.HasSuffix(path, EncryptedExtension) {
		return false, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return false, apperrors.WrapError(err, "failed to open archive")
	}
	defer file.Close()

	header := make([]byte, len(encMagic))
	if _, err := io.ReadFull(file, header); err != nil {
		return false, nil
	}
	return bytes.Equal(header, encMagic), nil
}

// EncryptFile encrypts srcPath into destPath with AES-256-GCM under a
// key derived from the passphrase.
func EncryptFile(srcPath, destPath, passphrase string) error {
	if passphrase == "" {
		return apperrors.NewValidationError("a passphrase is required for encryption", nil)
	}

	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return apperrors.WrapError(err, "failed to read archive for encryption")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return apperrors.WrapError(err, "failed to generate salt")
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return apperrors.WrapError(err, "failed to create AES cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return apperrors.WrapError(err, "failed to create GCM cipher")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return apperrors.WrapError(err, "failed to generate nonce")
	}

	out := make([]byte, 0, len(encMagic)+saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, encMagic...)
	out = append(out, salt...)
	out = append(out, gcm.Seal(nonce, nonce, plaintext, nil)...)

	if err := os.WriteFile(destPath, out, 0600); err != nil {
		return apperrors.WrapError(err, "failed to write encrypted archive")
	}
	return nil
}

// DecryptFile decrypts an encrypted archive into destPath. A wrong
// passphrase or tampered ciphertext is an integrity error.
func DecryptFile(srcPath, destPath, passphrase string) error {
	if passphrase == "" {
		return apperrors.NewValidationError("encrypted archive requires a passphrase", nil)
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return apperrors.WrapError(err, "failed to read encrypted archive")
	}

	if len(data) < len(encMagic)+saltSize || !bytes.Equal(data[:len(encMagic)], encMagic) {
		return apperrors.NewIntegrityError("file is not an encrypted archive", nil)
	}
	data = data[len(encMagic):]

	salt, rest := data[:saltSize], data[saltSize:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return apperrors.WrapError(err, "failed to create AES cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return apperrors.WrapError(err, "failed to create GCM cipher")
	}

	if len(rest) < gcm.NonceSize() {
		return apperrors.NewIntegrityError("encrypted archive is truncated", nil)
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return apperrors.NewIntegrityError("archive decryption failed - wrong passphrase or corrupted data", err)
	}

	if err := os.WriteFile(destPath, plaintext, 0600); err != nil {
		return apperrors.WrapError(err, "failed to write decrypted archive")
	}
	return nil
}
