package port

import (
	"errors"
	"fmt"

	"github.com/shinji-kodama/dynaport/internal/model"
)

var (
	// ErrPortInUse is returned by a probe when the OS reports the address as
	// already in use. The Finder retries on it; it never reaches Finder callers.
	ErrPortInUse = errors.New("port already in use")

	// ErrNoPortAvailable matches ExhaustedError and NotEnoughPortsError.
	ErrNoPortAvailable = errors.New("no port available")

	// ErrInvalidPort is wrapped by BindError when a probe is asked for a port
	// outside 1-65535.
	ErrInvalidPort = errors.New("invalid port")
)

// BindError reports a probe that failed for a reason other than the port
// being in use: permission denied, resource exhaustion, a bad bind address.
// Retrying with another port would not help, so the Finder stops on it.
type BindError struct {
	Port     int
	Protocol string
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s port %d: %v", e.Protocol, e.Port, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when a search ends without finding a free port.
type ExhaustedError struct {
	// Attempts is the number of candidates drawn or probed.
	Attempts int

	// Range is the range that was searched.
	Range model.Range
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no free port in range %s after %d attempts", e.Range, e.Attempts)
}

// Is makes errors.Is(err, ErrNoPortAvailable) true.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrNoPortAvailable
}

// NotEnoughPortsError is returned by LowestNRegisteredPorts when fewer than
// the wanted number of free ports exist.
type NotEnoughPortsError struct {
	Wanted int
	Got    int
}

func (e *NotEnoughPortsError) Error() string {
	return fmt.Sprintf("wanted %d ports but there are only %d available", e.Wanted, e.Got)
}

// Is makes errors.Is(err, ErrNoPortAvailable) true.
func (e *NotEnoughPortsError) Is(target error) bool {
	return target == ErrNoPortAvailable
}
