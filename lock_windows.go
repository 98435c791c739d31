//go:build windows

package otlpmmap

import (
	"os"

	"golang.org/x/sys/windows"
)

// tryLockWriter attempts to take the exclusive advisory writer lock on f
// without blocking. It returns false when another live writer holds it.
func tryLockWriter(f *os.File) (bool, error) {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return false, nil
		}
		return false, wrapErr(CodeIO, "acquire writer lock", err)
	}
	return true, nil
}

// unlockWriter releases the writer lock.
func unlockWriter(f *os.File) error {
	ol := new(windows.Overlapped)
	if err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol); err != nil {
		return wrapErr(CodeIO, "release writer lock", err)
	}
	return nil
}
