package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/renameio/v2"
)

// Move renames src to dst, replacing dst. When the two paths sit on
// different filesystems the file is copied into an atomic pending file next
// to dst, verified, committed, and only then is src removed.
func Move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return err
	}
	if err := CopyVerified(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// CopyVerified copies src over dst atomically, checking size and SHA-256 of
// what was written against what was read. dst is untouched on failure.
func CopyVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	pending, err := renameio.NewPendingFile(dst, renameio.WithPermissions(info.Mode().Perm()))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op after a successful replace

	srcHash := sha256.New()
	written, err := io.Copy(io.MultiWriter(pending, srcHash), in)
	if err != nil {
		return err
	}
	if written != info.Size() {
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	if _, err := pending.Seek(0, io.SeekStart); err != nil {
		return err
	}
	dstHash := sha256.New()
	if _, err := io.Copy(dstHash, pending); err != nil {
		return err
	}
	if !bytes.Equal(srcHash.Sum(nil), dstHash.Sum(nil)) {
		return errors.New("copy hash mismatch: file corrupted during copy")
	}
	return pending.CloseAtomicallyReplace()
}

// RemoveAll deletes each path that exists and returns the first failure.
// Missing files are not an error.
func RemoveAll(paths ...string) error {
	var first error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) && first == nil {
			first = err
		}
	}
	return first
}

// DirExists reports whether path names an existing directory.
func DirExists(path string) bool {
	info, err := os.Stat(filepath.Clean(path))
	return err == nil && info.IsDir()
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return false
}
