package filestore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// lockWait bounds how long acquireLock retries before giving up.
var lockWait = 2 * time.Second

// acquireLock takes a coarse advisory lock on dir by creating "store.lock"
// with O_EXCL, retrying with jitter until lockWait elapses. It returns an
// unlock function on success and an error when the lock stays held, so that
// two processes never interleave a read-modify-write of commands.json.
func acquireLock(dir string) (func(), error) {
	lockPath := filepath.Join(dir, "store.lock")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	tryOnce := func() (bool, error) {
		var token [8]byte
		_, _ = rand.Read(token[:])
		contents := fmt.Sprintf("ts=%s pid=%d token=%s\n",
			time.Now().UTC().Format(time.RFC3339Nano), os.Getpid(), hex.EncodeToString(token[:]))
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			if os.IsExist(err) {
				return false, nil
			}
			return false, err
		}
		if _, err := f.WriteString(contents); err != nil {
			_ = f.Close()
			_ = os.Remove(lockPath)
			return false, err
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(lockPath)
			return false, err
		}
		return true, nil
	}
	unlock := func() {
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			_ = err
		}
	}

	deadline := time.Now().Add(lockWait)
	for {
		ok, err := tryOnce()
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("store lock %s is held", lockPath)
		}
		// 50-150ms jitter
		time.Sleep(time.Duration(50+time.Now().UnixNano()%100) * time.Millisecond)
	}
}
