package filestore

import (
	"errors"
	"os"
	"runtime"
	"strings"
	"syscall"
)

// syncDirFunc is a hook to fsync a directory after atomic renames.
// It is a var so tests can override and assert that directory fsync was used.
var syncDirFunc = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}

// writeFileAtomic writes data to a temporary file next to dstPath with mode 0600,
// fsyncs it, renames it over dstPath and fsyncs the directory.
func writeFileAtomic(dir, dstPath string, data []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		return cleanup(err)
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dstPath); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return syncDirFunc(dir)
}

// ensureSecureDir rejects world-writable or foreign-owned directories on
// Unix-like systems. A missing directory is allowed; it is created with 0700.
func ensureSecureDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty store dir")
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return errors.New("store dir is not a directory")
	}
	if info.Mode().Perm()&0o002 != 0 {
		return errors.New("store dir is world-writable")
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if stat.Uid != uint32(os.Getuid()) {
			return errors.New("store dir is not owned by current user")
		}
	}
	return nil
}
