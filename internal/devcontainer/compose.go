package devcontainer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/dynaport/internal/model"
)

// DefaultComposeFiles are the Compose file names read from the project root
// when there is no devcontainer.json, in the order Docker Compose prefers
// them. Only the first one found is read.
var DefaultComposeFiles = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yaml",
	"docker-compose.yml",
}

// composeFile is the part of a Compose file that declares host ports.
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Ports []composePort `yaml:"ports"`
}

// composePort is one entry of a service's "ports" list. It accepts the
// short syntax ("8080:80", "127.0.0.1:5432:5432/udp", 3000) and the long
// syntax mapping.
type composePort struct {
	short string
	long  *composeLongPort
}

type composeLongPort struct {
	Target    int    `yaml:"target"`
	Published string `yaml:"published"`
	Protocol  string `yaml:"protocol"`
	HostIP    string `yaml:"host_ip"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *composePort) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		p.short = node.Value
		return nil
	case yaml.MappingNode:
		p.long = &composeLongPort{}
		return node.Decode(p.long)
	default:
		return fmt.Errorf("line %d: unsupported port entry", node.Line)
	}
}

// bindings returns the host ports of the entry. Container-only ports,
// unparsable entries and interpolated values yield nothing.
func (p composePort) bindings(service string) []model.PortBinding {
	if p.long != nil {
		proto := p.long.Protocol
		if proto == "" {
			proto = model.ProtocolTCP.String()
		}
		return expandHostPorts(p.long.Published, proto, service)
	}

	mappings, err := nat.ParsePortSpec(p.short)
	if err != nil {
		return nil
	}
	var out []model.PortBinding
	for _, m := range mappings {
		out = append(out, expandHostPorts(m.Binding.HostPort, m.Port.Proto(), service)...)
	}
	return out
}

// expandHostPorts turns a host port or "start-end" range into bindings.
func expandHostPorts(hostPort, proto, service string) []model.PortBinding {
	if hostPort == "" {
		return nil
	}
	start, end, err := nat.ParsePortRange(hostPort)
	if err != nil {
		return nil
	}
	out := make([]model.PortBinding, 0, end-start+1)
	for p := start; p <= end; p++ {
		out = append(out, model.PortBinding{Port: int(p), Protocol: proto, Container: service})
	}
	return out
}

// ParseCompose decodes a Compose file and returns the host ports published
// by its services, ordered by service name and then declaration order.
func ParseCompose(data []byte) ([]model.PortBinding, error) {
	var cf composeFile
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse compose file: %w", err)
	}

	services := make([]string, 0, len(cf.Services))
	for name := range cf.Services {
		services = append(services, name)
	}
	sort.Strings(services)

	var out []model.PortBinding
	for _, name := range services {
		for _, p := range cf.Services[name].Ports {
			out = append(out, p.bindings(name)...)
		}
	}
	return out, nil
}

// LoadCompose reads and parses the Compose file at path.
func LoadCompose(path string) ([]model.PortBinding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file: %w", err)
	}
	bindings, err := ParseCompose(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bindings, nil
}

// UnmarshalYAML lets "published" be written as a number or a string.
func (l *composeLongPort) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Target    int       `yaml:"target"`
		Published yaml.Node `yaml:"published"`
		Protocol  string    `yaml:"protocol"`
		HostIP    string    `yaml:"host_ip"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	l.Target = raw.Target
	l.Protocol = raw.Protocol
	l.HostIP = raw.HostIP
	if raw.Published.Kind == yaml.ScalarNode {
		l.Published = raw.Published.Value
	}
	return nil
}
