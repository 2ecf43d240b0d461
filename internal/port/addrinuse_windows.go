//go:build windows

package port

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isAddrInUse reports whether a bind error means the port cannot be taken.
//
// Windows reports ports inside an excluded port range (Hyper-V, WSL) as
// WSAEACCES rather than WSAEADDRINUSE; both are treated as "in use" so the
// Finder moves on to another candidate.
func isAddrInUse(err error) bool {
	return errors.Is(err, windows.WSAEADDRINUSE) || errors.Is(err, windows.WSAEACCES)
}
