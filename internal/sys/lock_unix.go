//go:build unix

package sys

import (
	"os"

	"golang.org/x/sys/unix"
)

// Lock takes an exclusive advisory lock on file without blocking.
func Lock(file *os.File) error {
	err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrWouldBlock
	}
	return err
}

func Unlock(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_UN)
}
