package port

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shinji-kodama/dynaport/internal/logger"
	"github.com/shinji-kodama/dynaport/internal/model"
)

// DefaultMaxAttempts bounds the random search. With ~48000 candidates a
// hundred consecutive in-use ports only happens on a saturated host.
const DefaultMaxAttempts = 100

// Source yields uniformly distributed integers in [0, n).
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// globalSource draws from the process-wide math/rand/v2 generator, which is
// seeded randomly and safe for concurrent use.
type globalSource struct{}

func (globalSource) IntN(n int) int {
	return rand.IntN(n)
}

// NewSeededSource returns a deterministic Source for the given seed.
// The returned source is not safe for concurrent use.
func NewSeededSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed))
}

// Prober tests a single port. *Scanner is the production implementation.
type Prober interface {
	Probe(port int, protocol model.Protocol) error
}

// Finder searches the registered port range for a port that is currently
// free.
//
// The zero value is not usable; create one with NewFinder. A Finder holds no
// mutable state after construction, so it is safe for concurrent use as long
// as its Source is.
type Finder struct {
	prober      Prober
	source      Source
	protocol    model.Protocol
	maxAttempts int
	excluded    map[int]struct{}
	log         *logger.Logger
}

// Option configures a Finder.
type Option func(*Finder)

// WithSource sets the random source for RandomRegisteredPort.
func WithSource(src Source) Option {
	return func(f *Finder) {
		if src != nil {
			f.source = src
		}
	}
}

// WithSeed makes RandomRegisteredPort deterministic.
func WithSeed(seed uint64) Option {
	return WithSource(NewSeededSource(seed))
}

// WithProber replaces the Scanner used to test candidates.
func WithProber(p Prober) Option {
	return func(f *Finder) {
		if p != nil {
			f.prober = p
		}
	}
}

// WithAddress probes on the given host address instead of the wildcard.
func WithAddress(address string) Option {
	return WithProber(NewScannerWithAddress(address))
}

// WithProtocol selects the protocol candidates are probed with.
// Invalid values are ignored and the default (TCP) is kept.
func WithProtocol(p model.Protocol) Option {
	return func(f *Finder) {
		if p.IsValid() {
			f.protocol = p
		}
	}
}

// WithMaxAttempts bounds RandomRegisteredPort. Values below 1 select
// DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(f *Finder) {
		if n < 1 {
			n = DefaultMaxAttempts
		}
		f.maxAttempts = n
	}
}

// WithExcluded adds ports that must never be returned, such as ports
// published by stopped containers that will be reclaimed on restart.
func WithExcluded(ports ...int) Option {
	return func(f *Finder) {
		for _, p := range ports {
			f.excluded[p] = struct{}{}
		}
	}
}

// WithLogger sets the logger probe results are reported to.
func WithLogger(l *logger.Logger) Option {
	return func(f *Finder) {
		if l != nil {
			f.log = l.WithComponent("finder")
		}
	}
}

// NewFinder creates a Finder that probes TCP on the wildcard address with
// the process-wide random source and DefaultMaxAttempts.
func NewFinder(opts ...Option) *Finder {
	f := &Finder{
		prober:      NewScanner(),
		source:      globalSource{},
		protocol:    model.ProtocolTCP,
		maxAttempts: DefaultMaxAttempts,
		excluded:    make(map[int]struct{}),
		log:         logger.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Protocol returns the protocol candidates are probed with.
func (f *Finder) Protocol() model.Protocol {
	return f.protocol
}

// MaxAttempts returns the random search bound.
func (f *Finder) MaxAttempts() int {
	return f.maxAttempts
}

// IsExcluded reports whether port was excluded with WithExcluded.
func (f *Finder) IsExcluded(port int) bool {
	_, ok := f.excluded[port]
	return ok
}

// RandomRegisteredPort returns a random port in 1024-49151 that was free at
// the moment it was probed.
//
// Algorithm:
//  1. Draw a candidate uniformly from the registered range.
//  2. Skip it if it is excluded.
//  3. Probe it. Free: return it. In use: go back to 1.
//  4. Any other probe failure is returned as is (a *BindError).
//
// Every drawn candidate counts as an attempt. After MaxAttempts attempts the
// search fails with an *ExhaustedError. The context is checked before each
// attempt.
func (f *Finder) RandomRegisteredPort(ctx context.Context) (int, error) {
	start := time.Now()
	r := model.RegisteredRange

	attempts := 0
	for attempts < f.maxAttempts {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		attempts++

		candidate := r.Low + f.source.IntN(r.Size())
		if f.IsExcluded(candidate) {
			f.log.Debug("skipping excluded port", "attempt", attempts, "port", candidate)
			continue
		}

		ok, err := f.try(attempts, candidate)
		if err != nil {
			f.log.SearchFinished("random", attempts, time.Since(start), err)
			return 0, err
		}
		if ok {
			f.log.SearchFinished("random", attempts, time.Since(start), nil)
			return candidate, nil
		}
	}

	err := &ExhaustedError{Attempts: attempts, Range: r}
	f.log.SearchFinished("random", attempts, time.Since(start), err)
	return 0, err
}

// LowestRegisteredPort returns the lowest free port in 1024-49151.
func (f *Finder) LowestRegisteredPort(ctx context.Context) (int, error) {
	return f.single(ctx, "lowest", true)
}

// HighestRegisteredPort returns the highest free port in 1024-49151.
func (f *Finder) HighestRegisteredPort(ctx context.Context) (int, error) {
	return f.single(ctx, "highest", false)
}

// LowestNRegisteredPorts returns the n lowest free ports in 1024-49151 in
// ascending order. If fewer than n ports are free it returns a
// *NotEnoughPortsError.
//
// The ports are not held open, so they are only known to be free
// individually at the time each one was probed.
func (f *Finder) LowestNRegisteredPorts(ctx context.Context, n int) ([]int, error) {
	if n < 1 {
		return nil, fmt.Errorf("number of ports must be at least 1, got %d", n)
	}

	start := time.Now()
	found, attempts, err := f.scan(ctx, n, true)
	if err == nil && len(found) < n {
		err = &NotEnoughPortsError{Wanted: n, Got: len(found)}
	}
	f.log.SearchFinished("lowest-n", attempts, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (f *Finder) single(ctx context.Context, strategy string, ascending bool) (int, error) {
	start := time.Now()
	found, attempts, err := f.scan(ctx, 1, ascending)
	if err == nil && len(found) == 0 {
		err = &ExhaustedError{Attempts: attempts, Range: model.RegisteredRange}
	}
	f.log.SearchFinished(strategy, attempts, time.Since(start), err)
	if err != nil {
		return 0, err
	}
	return found[0], nil
}

// scan walks the registered range from one end and collects up to n free
// ports, skipping excluded and in-use ones. attempts counts the probes made.
// err is only set for a cancelled context or a non in-use probe failure.
func (f *Finder) scan(ctx context.Context, n int, ascending bool) (found []int, attempts int, err error) {
	r := model.RegisteredRange

	candidate, step := r.Low, 1
	if !ascending {
		candidate, step = r.High, -1
	}

	found = make([]int, 0, n)
	for ; r.Contains(candidate) && len(found) < n; candidate += step {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}
		if f.IsExcluded(candidate) {
			continue
		}
		attempts++

		ok, err := f.try(attempts, candidate)
		if err != nil {
			return nil, attempts, err
		}
		if ok {
			found = append(found, candidate)
		}
	}
	return found, attempts, nil
}

// try probes one candidate. It returns (true, nil) when the port is free,
// (false, nil) when it is in use and (false, err) for any other failure.
func (f *Finder) try(attempt, candidate int) (bool, error) {
	err := f.prober.Probe(candidate, f.protocol)
	f.log.Probe(attempt, candidate, f.protocol.String(), err)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrPortInUse):
		return false, nil
	default:
		return false, err
	}
}
