package port

import (
	"fmt"
	"net"
	"strconv"

	"github.com/shinji-kodama/dynaport/internal/model"
)

// Scanner checks whether specific ports are available on the host machine.
//
// It asks the operating system's network stack directly (net.Listen /
// net.ListenPacket) instead of parsing /proc/net/* or shelling out to
// `lsof` or `ss`.
//
// By default the Scanner binds the wildcard address (":port"), which
// conflicts with a socket bound to that port on any interface. A specific
// bind address such as "127.0.0.1" only observes conflicts on that address
// (and on wildcard sockets).
type Scanner struct {
	// address is the host part of the bind address. Empty means wildcard.
	address string
}

// NewScanner creates a Scanner that binds the wildcard address.
func NewScanner() *Scanner {
	return &Scanner{}
}

// NewScannerWithAddress creates a Scanner that binds the given host address.
// An empty address is the wildcard.
func NewScannerWithAddress(address string) *Scanner {
	return &Scanner{address: address}
}

// Address returns the host part of the bind address ("" for wildcard).
func (s *Scanner) Address() string {
	return s.address
}

// Probe binds a transient socket on port for each network of protocol and
// closes it immediately.
//
// It returns nil when every bind succeeded, an error wrapping ErrPortInUse
// when the OS reports the address as taken, and a *BindError for any other
// failure. For ProtocolBoth the TCP bind is attempted first; the UDP bind is
// only attempted if TCP succeeded.
func (s *Scanner) Probe(port int, protocol model.Protocol) error {
	if err := model.ValidatePort(port); err != nil {
		return &BindError{Port: port, Protocol: protocol.String(), Err: fmt.Errorf("%w: %v", ErrInvalidPort, err)}
	}

	addr := net.JoinHostPort(s.address, strconv.Itoa(port))
	for _, network := range protocol.Networks() {
		if err := bind(network, addr); err != nil {
			if isAddrInUse(err) {
				return fmt.Errorf("%s %s: %w", network, addr, ErrPortInUse)
			}
			return &BindError{Port: port, Protocol: network, Err: err}
		}
	}
	return nil
}

// bind opens and closes a single listener.
func bind(network, addr string) error {
	switch network {
	case "udp":
		conn, err := net.ListenPacket(network, addr)
		if err != nil {
			return err
		}
		return conn.Close()
	default:
		listener, err := net.Listen(network, addr)
		if err != nil {
			return err
		}
		return listener.Close()
	}
}

// IsPortAvailable reports whether Probe succeeds for port.
func (s *Scanner) IsPortAvailable(port int, protocol model.Protocol) bool {
	return s.Probe(port, protocol) == nil
}

// Check probes each port once and reports the result in input order.
func (s *Scanner) Check(ports []int, protocol model.Protocol) []model.PortStatus {
	statuses := make([]model.PortStatus, 0, len(ports))
	for _, p := range ports {
		status := model.PortStatus{Port: p, Protocol: protocol}
		if err := s.Probe(p, protocol); err != nil {
			status.Reason = err.Error()
		} else {
			status.Available = true
		}
		statuses = append(statuses, status)
	}
	return statuses
}
