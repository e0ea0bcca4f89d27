//go:build !unix

package sys

import "os"

// Lock is a no-op on platforms without flock.
func Lock(file *os.File) error {
	return nil
}

func Unlock(file *os.File) error {
	return nil
}
