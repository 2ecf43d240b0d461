package devcontainer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/dynaport/internal/model"
)

// ErrNotFound is returned by FindDevContainerJSON when neither standard
// location holds a devcontainer.json.
var ErrNotFound = errors.New("devcontainer.json not found")

// defaultService names the owner of ports declared outside any Compose
// service.
const defaultService = "devcontainer"

// RawDevContainer holds the devcontainer.json fields that declare ports.
// Other fields are ignored during parsing.
//
// Several fields are interface{} because devcontainer.json allows more than
// one value type for them (dockerComposeFile is a string or an array).
type RawDevContainer struct {
	Name string `json:"name"`

	// DockerComposeFile is a path, or an array of paths, relative to the
	// devcontainer.json file.
	DockerComposeFile interface{} `json:"dockerComposeFile,omitempty"`

	// ForwardPorts entries are a number or a "service:port" string. The IDE
	// forwards each one to the same port on localhost.
	ForwardPorts []interface{} `json:"forwardPorts,omitempty"`

	// AppPort is a number, a "host:container" string, or an array of these.
	AppPort interface{} `json:"appPort,omitempty"`
}

// LoadConfig reads devcontainer.json at path and strips JSONC comments and
// trailing commas before decoding.
func LoadConfig(path string) (*RawDevContainer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read devcontainer.json: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes devcontainer.json contents.
func ParseConfig(data []byte) (*RawDevContainer, error) {
	var raw RawDevContainer
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse devcontainer.json: %w", err)
	}
	return &raw, nil
}

// HostPorts returns the host ports claimed by forwardPorts and appPort.
// Entries that do not parse are skipped.
func HostPorts(raw *RawDevContainer) []model.PortBinding {
	var out []model.PortBinding

	for _, fp := range raw.ForwardPorts {
		switch v := fp.(type) {
		case float64:
			// JSON numbers decode to float64 into interface{}.
			out = appendPort(out, int(v), defaultService)
		case string:
			service, p, ok := parseServicePort(v)
			if ok {
				out = appendPort(out, p, service)
			}
		}
	}

	var appPorts []interface{}
	switch v := raw.AppPort.(type) {
	case nil:
	case []interface{}:
		appPorts = v
	default:
		appPorts = []interface{}{v}
	}
	for _, ap := range appPorts {
		switch v := ap.(type) {
		case float64:
			out = appendPort(out, int(v), defaultService)
		case string:
			if p, ok := parseAppPort(v); ok {
				out = appendPort(out, p, defaultService)
			}
		}
	}

	return out
}

func appendPort(out []model.PortBinding, p int, owner string) []model.PortBinding {
	if model.ValidatePort(p) != nil {
		return out
	}
	return append(out, model.PortBinding{Port: p, Protocol: model.ProtocolTCP.String(), Container: owner})
}

// parseServicePort parses "5432" or "db:5432".
func parseServicePort(s string) (string, int, bool) {
	service, portStr, found := strings.Cut(s, ":")
	if !found {
		service, portStr = defaultService, s
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false
	}
	return service, p, true
}

// parseAppPort parses "3000" or "8080:3000" and returns the host side.
func parseAppPort(s string) (int, bool) {
	host, _, _ := strings.Cut(s, ":")
	p, err := strconv.Atoi(host)
	if err != nil {
		return 0, false
	}
	return p, true
}

// ComposeFiles returns the dockerComposeFile entries as a slice, or nil
// when the field is unset.
func ComposeFiles(raw *RawDevContainer) []string {
	switch v := raw.DockerComposeFile.(type) {
	case string:
		return []string{v}
	case []interface{}:
		files := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				files = append(files, s)
			}
		}
		return files
	default:
		return nil
	}
}

// FindDevContainerJSON returns the path of the project's devcontainer.json.
// It checks .devcontainer/devcontainer.json, then .devcontainer.json.
func FindDevContainerJSON(projectPath string) (string, error) {
	candidates := []string{
		filepath.Join(projectPath, ".devcontainer", "devcontainer.json"),
		filepath.Join(projectPath, ".devcontainer.json"),
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNotFound, projectPath)
}
