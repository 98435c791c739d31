//go:build unix

package otlpmmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryLockWriter attempts to take the exclusive advisory writer lock on f
// without blocking. It returns false when another live writer holds it.
// The lock dies with the process, so a crashed writer never wedges the file.
func tryLockWriter(f *os.File) (bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, wrapErr(CodeIO, "acquire writer lock", err)
	}
	return true, nil
}

// unlockWriter releases the writer lock.
func unlockWriter(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return wrapErr(CodeIO, "release writer lock", err)
	}
	return nil
}
