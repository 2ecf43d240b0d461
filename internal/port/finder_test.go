package port

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/dynaport/internal/model"
)

// portSource is a Source that yields a fixed sequence of ports. It fails the
// test when the sequence runs out.
type portSource struct {
	t     *testing.T
	ports []int
	next  int
}

func newPortSource(t *testing.T, ports ...int) *portSource {
	return &portSource{t: t, ports: ports}
}

func (s *portSource) IntN(n int) int {
	require.Less(s.t, s.next, len(s.ports), "random source exhausted")
	p := s.ports[s.next]
	s.next++
	v := p - model.RegisteredRange.Low
	require.True(s.t, v >= 0 && v < n, "port %d outside the drawn range", p)
	return v
}

// fakeProber reports the ports in inUse as taken, returns failErr for the
// ports in fail and records every probe.
type fakeProber struct {
	inUse    map[int]bool
	allInUse bool
	fail     map[int]error
	calls    []int
	protos   []model.Protocol
}

func newFakeProber(inUse ...int) *fakeProber {
	p := &fakeProber{inUse: map[int]bool{}, fail: map[int]error{}}
	for _, port := range inUse {
		p.inUse[port] = true
	}
	return p
}

func (p *fakeProber) Probe(port int, protocol model.Protocol) error {
	p.calls = append(p.calls, port)
	p.protos = append(p.protos, protocol)
	if err, ok := p.fail[port]; ok {
		return err
	}
	if p.allInUse || p.inUse[port] {
		return fmt.Errorf("tcp :%d: %w", port, ErrPortInUse)
	}
	return nil
}

// TestRandomRegisteredPort_RetriesOnce verifies that a candidate reported as
// in use is discarded and the next candidate is returned.
func TestRandomRegisteredPort_RetriesOnce(t *testing.T) {
	prober := newFakeProber(30000)
	finder := NewFinder(WithSource(newPortSource(t, 30000, 30001)), WithProber(prober))

	port, err := finder.RandomRegisteredPort(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 30001, port)
	assert.Equal(t, []int{30000, 30001}, prober.calls, "exactly one retry")
}

// TestRandomRegisteredPort_Exhausted verifies that the search stops after
// exactly MaxAttempts in-use candidates.
func TestRandomRegisteredPort_Exhausted(t *testing.T) {
	const maxAttempts = 7

	ports := make([]int, maxAttempts)
	for i := range ports {
		ports[i] = 20000 + i
	}
	prober := &fakeProber{allInUse: true}
	finder := NewFinder(
		WithSource(newPortSource(t, ports...)),
		WithProber(prober),
		WithMaxAttempts(maxAttempts),
	)

	_, err := finder.RandomRegisteredPort(context.Background())
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, maxAttempts, exhausted.Attempts)
	assert.Equal(t, model.RegisteredRange, exhausted.Range)
	assert.ErrorIs(t, err, ErrNoPortAvailable)
	assert.Len(t, prober.calls, maxAttempts)
}

// TestRandomRegisteredPort_BindErrorNotRetried verifies that a probe failure
// other than "in use" is returned immediately.
func TestRandomRegisteredPort_BindErrorNotRetried(t *testing.T) {
	denied := &BindError{Port: 30000, Protocol: "tcp", Err: errors.New("permission denied")}
	prober := newFakeProber()
	prober.fail[30000] = denied

	finder := NewFinder(WithSource(newPortSource(t, 30000, 30001)), WithProber(prober))

	_, err := finder.RandomRegisteredPort(context.Background())
	require.Error(t, err)

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Same(t, denied, bindErr)
	assert.NotErrorIs(t, err, ErrNoPortAvailable)
	assert.Equal(t, []int{30000}, prober.calls)
}

// TestRandomRegisteredPort_SkipsExcluded verifies that an excluded candidate
// is never probed nor returned, and still counts as an attempt.
func TestRandomRegisteredPort_SkipsExcluded(t *testing.T) {
	prober := newFakeProber()
	finder := NewFinder(
		WithSource(newPortSource(t, 30000, 30002)),
		WithProber(prober),
		WithExcluded(30000),
	)

	port, err := finder.RandomRegisteredPort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30002, port)
	assert.Equal(t, []int{30002}, prober.calls)

	exhausting := NewFinder(
		WithSource(newPortSource(t, 30000, 30000)),
		WithProber(newFakeProber()),
		WithExcluded(30000),
		WithMaxAttempts(2),
	)
	_, err = exhausting.RandomRegisteredPort(context.Background())
	assert.ErrorIs(t, err, ErrNoPortAvailable)
}

func TestRandomRegisteredPort_ContextCancelled(t *testing.T) {
	prober := newFakeProber()
	finder := NewFinder(WithProber(prober))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := finder.RandomRegisteredPort(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, prober.calls)
}

func TestRandomRegisteredPort_UsesProtocol(t *testing.T) {
	prober := newFakeProber()
	finder := NewFinder(
		WithSource(newPortSource(t, 4000)),
		WithProber(prober),
		WithProtocol(model.ProtocolBoth),
	)

	_, err := finder.RandomRegisteredPort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Protocol{model.ProtocolBoth}, prober.protos)
	assert.Equal(t, model.ProtocolBoth, finder.Protocol())
}

// TestRandomRegisteredPort_Seeded verifies that two finders with the same
// seed draw the same candidate.
func TestRandomRegisteredPort_Seeded(t *testing.T) {
	a := NewFinder(WithSeed(42), WithProber(newFakeProber()))
	b := NewFinder(WithSeed(42), WithProber(newFakeProber()))

	pa, err := a.RandomRegisteredPort(context.Background())
	require.NoError(t, err)
	pb, err := b.RandomRegisteredPort(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pa, pb)
	assert.True(t, model.RegisteredRange.Contains(pa))
}

func TestNewFinder_Defaults(t *testing.T) {
	finder := NewFinder()
	assert.Equal(t, model.ProtocolTCP, finder.Protocol())
	assert.Equal(t, DefaultMaxAttempts, finder.MaxAttempts())

	assert.Equal(t, DefaultMaxAttempts, NewFinder(WithMaxAttempts(0)).MaxAttempts())
	assert.Equal(t, DefaultMaxAttempts, NewFinder(WithMaxAttempts(-3)).MaxAttempts())
	assert.Equal(t, model.ProtocolTCP, NewFinder(WithProtocol("sctp")).Protocol())
}

func TestLowestRegisteredPort(t *testing.T) {
	prober := newFakeProber(1024, 1025)
	finder := NewFinder(WithProber(prober))

	port, err := finder.LowestRegisteredPort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1026, port)
	assert.Equal(t, []int{1024, 1025, 1026}, prober.calls)
}

func TestHighestRegisteredPort(t *testing.T) {
	prober := newFakeProber(49151)
	finder := NewFinder(WithProber(prober), WithExcluded(49150))

	port, err := finder.HighestRegisteredPort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 49149, port)
	assert.Equal(t, []int{49151, 49149}, prober.calls, "excluded port is not probed")
}

func TestLowestRegisteredPort_Exhausted(t *testing.T) {
	finder := NewFinder(WithProber(&fakeProber{allInUse: true}))

	_, err := finder.LowestRegisteredPort(context.Background())

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, model.RegisteredRange.Size(), exhausted.Attempts)
	assert.ErrorIs(t, err, ErrNoPortAvailable)
}

func TestLowestNRegisteredPorts(t *testing.T) {
	finder := NewFinder(WithProber(newFakeProber(1025)))

	ports, err := finder.LowestNRegisteredPorts(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1024, 1026, 1027}, ports)
}

func TestLowestNRegisteredPorts_InvalidCount(t *testing.T) {
	finder := NewFinder(WithProber(newFakeProber()))

	_, err := finder.LowestNRegisteredPorts(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1")
}

// TestLowestNRegisteredPorts_NotEnough verifies the error reports how many
// ports were wanted and how many were found.
func TestLowestNRegisteredPorts_NotEnough(t *testing.T) {
	prober := &fakeProber{allInUse: true}
	prober.fail = map[int]error{1024: nil, 1025: nil}
	finder := NewFinder(WithProber(prober))

	_, err := finder.LowestNRegisteredPorts(context.Background(), 3)

	var notEnough *NotEnoughPortsError
	require.ErrorAs(t, err, &notEnough)
	assert.Equal(t, 3, notEnough.Wanted)
	assert.Equal(t, 2, notEnough.Got)
	assert.ErrorIs(t, err, ErrNoPortAvailable)
	assert.Equal(t, "wanted 3 ports but there are only 2 available", err.Error())
}

func TestScan_BindErrorAborts(t *testing.T) {
	prober := newFakeProber()
	prober.fail[1025] = &BindError{Port: 1025, Protocol: "tcp", Err: errors.New("too many open files")}
	finder := NewFinder(WithProber(prober))

	_, err := finder.LowestNRegisteredPorts(context.Background(), 5)

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, []int{1024, 1025}, prober.calls)
}

// The tests below use real sockets.

// TestRandomRegisteredPort_Real verifies the returned port is in range and
// can be bound right after the call.
func TestRandomRegisteredPort_Real(t *testing.T) {
	finder := NewFinder()

	for i := 0; i < 5; i++ {
		port, err := finder.RandomRegisteredPort(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, port, 1024)
		assert.LessOrEqual(t, port, 49151)

		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		require.NoError(t, err, "returned port %d must be bindable", port)
		require.NoError(t, l.Close())
	}
}

// TestRandomRegisteredPort_DetectsBoundPort binds 30000 before the search and
// forces the source to draw 30000 then 30001.
func TestRandomRegisteredPort_DetectsBoundPort(t *testing.T) {
	l, err := net.Listen("tcp", ":30000")
	if err != nil {
		t.Skipf("port 30000 unavailable on this host: %v", err)
	}
	defer func() { _ = l.Close() }()

	if !NewScanner().IsPortAvailable(30001, model.ProtocolTCP) {
		t.Skip("port 30001 unavailable on this host")
	}

	finder := NewFinder(WithSource(newPortSource(t, 30000, 30001)))

	port, err := finder.RandomRegisteredPort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30001, port)
}

func TestRandomRegisteredPort_Concurrent(t *testing.T) {
	finder := NewFinder()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := finder.RandomRegisteredPort(context.Background())
			if err == nil && !model.RegisteredRange.Contains(port) {
				err = fmt.Errorf("port %d out of range", port)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
