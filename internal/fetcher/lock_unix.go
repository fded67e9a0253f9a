//go:build !windows

package fetcher

import (
	"os"
	"syscall"
)

// lockExclusive takes a non-blocking advisory lock on the open file.
// A held lock means another process owns the transfer.
func lockExclusive(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

// unlock releases the advisory lock. Safe to call on an unlocked file.
func unlock(f *os.File) {
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
