// Package dynaport returns ports in the IANA registered range (1024-49151)
// that are not bound on the local machine.
//
//	p, err := dynaport.RandomRegisteredPort()
//	if err != nil {
//		return err
//	}
//	srv := &http.Server{Addr: fmt.Sprintf(":%d", p)}
//
// A returned port was free when it was probed. It is not reserved: another
// process may bind it before the caller does, so callers should be ready to
// retry.
//
// Probes bind TCP on all interfaces by default. Use NewFinder with options
// to probe UDP, a single address, or to make the random search
// deterministic.
package dynaport

import (
	"context"

	"github.com/shinji-kodama/dynaport/internal/model"
	"github.com/shinji-kodama/dynaport/internal/port"
)

// Registered range boundaries.
const (
	LowestPort  = model.LowestRegisteredPort
	HighestPort = model.HighestRegisteredPort
)

// DefaultMaxAttempts is the number of random candidates tried before
// RandomRegisteredPort gives up.
const DefaultMaxAttempts = port.DefaultMaxAttempts

type (
	// Finder searches the registered range. See NewFinder.
	Finder = port.Finder

	// Option configures a Finder.
	Option = port.Option

	// Source yields uniformly distributed integers in [0, n).
	Source = port.Source

	// Protocol selects which socket types are probed.
	Protocol = model.Protocol

	// BindError reports a probe failure other than "port in use".
	BindError = port.BindError

	// ExhaustedError reports a search that found no free port.
	ExhaustedError = port.ExhaustedError

	// NotEnoughPortsError reports that LowestNRegisteredPorts found too few ports.
	NotEnoughPortsError = port.NotEnoughPortsError
)

// Protocols accepted by WithProtocol.
const (
	TCP  = model.ProtocolTCP
	UDP  = model.ProtocolUDP
	Both = model.ProtocolBoth
)

// ErrNoPortAvailable matches ExhaustedError and NotEnoughPortsError.
var ErrNoPortAvailable = port.ErrNoPortAvailable

// Finder options.
var (
	WithSource      = port.WithSource
	WithSeed        = port.WithSeed
	WithAddress     = port.WithAddress
	WithProtocol    = port.WithProtocol
	WithMaxAttempts = port.WithMaxAttempts
	WithExcluded    = port.WithExcluded
)

// NewFinder creates a Finder. Without options it probes TCP on all
// interfaces, draws from the process-wide random source and gives up after
// DefaultMaxAttempts candidates.
func NewFinder(opts ...Option) *Finder {
	return port.NewFinder(opts...)
}

// RandomRegisteredPort returns a random free port in 1024-49151.
func RandomRegisteredPort() (int, error) {
	return port.NewFinder().RandomRegisteredPort(context.Background())
}

// LowestRegisteredPort returns the lowest free port in 1024-49151.
func LowestRegisteredPort() (int, error) {
	return port.NewFinder().LowestRegisteredPort(context.Background())
}

// HighestRegisteredPort returns the highest free port in 1024-49151.
func HighestRegisteredPort() (int, error) {
	return port.NewFinder().HighestRegisteredPort(context.Background())
}

// LowestNRegisteredPorts returns the n lowest free ports in 1024-49151.
func LowestNRegisteredPorts(n int) ([]int, error) {
	return port.NewFinder().LowestNRegisteredPorts(context.Background(), n)
}
