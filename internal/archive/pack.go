package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "tenant-restore/internal/errors"
)

// Pack bundles a directory into a compressed tarball at destPath. The
// codec is chosen by the caller; use CompressionForPath on the
// destination when in doubt.
func Pack(srcDir, destPath string, codec CompressionType) error {
	out, err := os.Create(destPath)
	if err != nil {
		return apperrors.WrapError(err, "failed to create archive file")
	}
	defer out.Close()

	compressor, err := codec.NewWriter(out)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(compressor)

	walkErr := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(tw, file)
		return err
	})

	if walkErr != nil {
		tw.Close()
		compressor.Close()
		return apperrors.WrapError(walkErr, "failed to pack archive")
	}

	if err := tw.Close(); err != nil {
		compressor.Close()
		return apperrors.WrapError(err, "failed to finalize archive")
	}
	if err := compressor.Close(); err != nil {
		return apperrors.WrapError(err, "failed to finalize compressed stream")
	}
	return nil
}

// Extract unpacks an archive into destDir. Entry names are confined to
// the destination directory; an entry that escapes it fails the whole
// extraction as an integrity error.
func Extract(archivePath, destDir string) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return apperrors.NewValidationError("archive file cannot be opened", err).
			WithContext("path", archivePath)
	}
	defer in.Close()

	codec := CompressionForPath(archivePath)
	decompressor, err := codec.NewReader(in)
	if err != nil {
		return err
	}
	defer decompressor.Close()

	tr := tar.NewReader(decompressor)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperrors.NewIntegrityError("archive stream is corrupt", err)
		}

		target, err := secureJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return apperrors.WrapError(err, "failed to create directory from archive")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return apperrors.WrapError(err, "failed to create parent directory")
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode)&0777)
			if err != nil {
				return apperrors.WrapError(err, "failed to create file from archive")
			}
			if _, err := io.Copy(file, tr); err != nil {
				file.Close()
				return apperrors.NewIntegrityError("archive entry is truncated", err).
					WithContext("entry", header.Name)
			}
			file.Close()
		default:
			// Symlinks and special files are not part of the archive
			// contract and are skipped.
			continue
		}
	}

	return nil
}

// secureJoin resolves an archive entry name under destDir and rejects
// escapes via .. or absolute paths.
func secureJoin(destDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) || cleaned == ".." {
		return "", apperrors.NewIntegrityError(
			fmt.Sprintf("archive entry escapes the extraction directory: %s", name), nil)
	}
	return filepath.Join(destDir, cleaned), nil
}
