package storage

import (
	"log"
	"os"
	"syscall"

	"boxdb/pkg/boxerr"
)

// acquireLock takes an exclusive advisory lock on path, creating the file
// if necessary. It returns boxerr.ErrBoxLocked if another process already
// holds the lock, never blocking: a box is meant to be opened by exactly
// one process at a time.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, boxerr.WrapIO(err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		log.Printf("boxdb: lock contention on %s", path)
		return nil, boxerr.Wrap(boxerr.ErrBoxLocked, path)
	}
	return f, nil
}

func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return f.Close()
}
