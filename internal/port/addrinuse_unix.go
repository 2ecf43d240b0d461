//go:build !windows

package port

import (
	"errors"
	"syscall"
)

// isAddrInUse reports whether a bind error means another socket holds the
// address.
func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
