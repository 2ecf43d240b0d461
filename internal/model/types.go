package model

import (
	"fmt"
	"strings"
)

// Port range boundaries as defined by IANA.
//
//	Well Known Ports:        0-1023
//	Registered Ports:     1024-49151
//	Dynamic/Private Ports: 49152-65535
const (
	// MinPort is the lowest port number a socket can be bound to explicitly.
	// Port 0 asks the OS to pick a port and is never a valid candidate.
	MinPort = 1

	// MaxPort is the highest valid TCP/UDP port number (2^16 - 1).
	MaxPort = 65535

	// LowestRegisteredPort is the first port of the IANA registered range.
	LowestRegisteredPort = 1024

	// HighestRegisteredPort is the last port of the IANA registered range.
	HighestRegisteredPort = 49151
)

// Range is an inclusive range of port numbers.
type Range struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// RegisteredRange is the IANA registered port range, 1024-49151.
var RegisteredRange = Range{Low: LowestRegisteredPort, High: HighestRegisteredPort}

// Size returns the number of ports in the range. An inverted range has size 0.
func (r Range) Size() int {
	if r.High < r.Low {
		return 0
	}
	return r.High - r.Low + 1
}

// Contains reports whether port lies within the range.
func (r Range) Contains(port int) bool {
	return port >= r.Low && port <= r.High
}

// String returns the range as "low-high".
func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Low, r.High)
}

// Protocol selects which socket types a bind probe opens.
//
// TCP and UDP are independent address spaces at the OS level: a port may be
// bound for TCP and free for UDP. ProtocolBoth requires the port to be free
// in both.
type Protocol string

const (
	// ProtocolTCP probes with a TCP listener. This is the default.
	ProtocolTCP Protocol = "tcp"

	// ProtocolUDP probes with a UDP packet listener.
	ProtocolUDP Protocol = "udp"

	// ProtocolBoth probes TCP first, then UDP.
	ProtocolBoth Protocol = "both"
)

// String returns the string representation of Protocol.
func (p Protocol) String() string {
	return string(p)
}

// IsValid checks whether the Protocol value is one of the predefined values.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolTCP, ProtocolUDP, ProtocolBoth:
		return true
	default:
		return false
	}
}

// Networks returns the Go network names ("tcp", "udp") a probe for this
// protocol has to bind, in probe order.
func (p Protocol) Networks() []string {
	switch p {
	case ProtocolUDP:
		return []string{"udp"}
	case ProtocolBoth:
		return []string{"tcp", "udp"}
	default:
		return []string{"tcp"}
	}
}

// ParseProtocol converts a string to a Protocol. Matching is
// case-insensitive and an empty string yields ProtocolTCP.
func ParseProtocol(s string) (Protocol, error) {
	if strings.TrimSpace(s) == "" {
		return ProtocolTCP, nil
	}
	p := Protocol(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid protocol: %q (valid: tcp, udp, both)", s)
	}
	return p, nil
}

// ValidatePort checks that port can be bound explicitly (1-65535).
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("port %d out of range (%d-%d)", port, MinPort, MaxPort)
	}
	return nil
}

// PortStatus is the result of checking a single port.
type PortStatus struct {
	// Port is the checked port number.
	Port int `json:"port"`

	// Protocol is the protocol the port was probed with.
	Protocol Protocol `json:"protocol"`

	// Available is true when the bind probe succeeded.
	Available bool `json:"available"`

	// Reason holds the probe error when Available is false.
	Reason string `json:"reason,omitempty"`
}

// PortBinding is a host port published by a Docker container.
type PortBinding struct {
	// Port is the host-side port number.
	Port int `json:"port"`

	// Protocol is "tcp" or "udp" as reported by Docker.
	Protocol string `json:"protocol"`

	// Container is the container name, without Docker's leading "/".
	Container string `json:"container"`
}

// String returns "port/protocol (container)".
func (b PortBinding) String() string {
	return fmt.Sprintf("%d/%s (%s)", b.Port, b.Protocol, b.Container)
}
