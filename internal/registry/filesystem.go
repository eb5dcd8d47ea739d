package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
)

func CopyFile(srcPath string, destPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := destFile.ReadFrom(srcFile); err != nil {
		_ = destFile.Close()
		_ = os.Remove(destPath)
		return err
	}

	return destFile.Close()
}

// MoveFile moves srcPath to destPath and never replaces an existing
// destPath: the source is hard-linked into place and then unlinked. When a
// link is impossible (another filesystem, or no hard link support) it falls
// back to an exclusive copy and remove. An existing destination fails with
// an error matching fs.ErrExist.
func MoveFile(srcPath string, destPath string) error {
	err := os.Link(srcPath, destPath)
	if err != nil {
		var linkErr *os.LinkError
		if errors.Is(err, fs.ErrExist) || !errors.As(err, &linkErr) {
			return err
		}

		if err := CopyFile(srcPath, destPath); err != nil {
			return err
		}
	}

	// Ignore ENOENT in case the source was removed in the meantime.
	if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// hashFile returns the SHA-256 hex digest and size of the file at path.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hasher := sha256.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}
