package archive

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// replace moves the finished container at tmp over dst with a single rename.
//
// A rename across volumes fails with EXDEV. In that case the container is
// copied to a hidden staging file in dst's directory first and the staging
// file is renamed instead. tmp no longer exists when replace succeeds.
func replace(tmp, dst string, perm os.FileMode, logger *log.Logger) error {
	err := os.Rename(tmp, dst)
	if err == nil {
		syncDir(filepath.Dir(dst))
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	staging := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()+".tmp")
	logger.Debug("temp dir is on another volume, staging next to archive", "staging", staging)

	if err := copyFile(tmp, staging, perm); err != nil {
		_ = os.Remove(staging)
		return err
	}
	if err := os.Rename(staging, dst); err != nil {
		_ = os.Remove(staging)
		return err
	}
	syncDir(filepath.Dir(dst))
	_ = os.Remove(tmp)
	return nil
}

// copyFile copies src into a newly created dst and syncs it.
func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// syncDir flushes a directory entry change to disk. Not every platform
// supports syncing directories, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
