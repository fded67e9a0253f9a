//go:build windows

package fetcher

import (
	"os"

	"golang.org/x/sys/windows"
)

// lockExclusive takes a non-blocking mandatory lock on the open file.
// A held lock means another process owns the transfer.
func lockExclusive(f *os.File) error {
	return windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		1, 0,
		&windows.Overlapped{},
	)
}

// unlock releases the lock. Safe to call on an unlocked file.
func unlock(f *os.File) {
	windows.UnlockFileEx(
		windows.Handle(f.Fd()),
		0,
		1, 0,
		&windows.Overlapped{},
	)
}
