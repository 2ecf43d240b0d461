// Package config loads the optional dynaport configuration file.
//
// The file may be YAML (.yaml, .yml) or JSON with comments (.json, .jsonc).
// JSONC is stripped with github.com/tidwall/jsonc before decoding with
// encoding/json, and YAML is decoded with gopkg.in/yaml.v3. A missing file
// is not an error: every field has a default and CLI flags override the
// file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/dynaport/internal/logger"
	"github.com/shinji-kodama/dynaport/internal/model"
)

// DefaultFileNames are the file names searched, in order, when no path is
// given explicitly.
var DefaultFileNames = []string{
	".dynaport.yaml",
	".dynaport.yml",
	".dynaport.jsonc",
	".dynaport.json",
}

// Config is the decoded configuration file.
type Config struct {
	// Protocol is "tcp", "udp" or "both". Empty means tcp.
	Protocol string `yaml:"protocol" json:"protocol"`

	// Address is the host address probes bind. Empty means the wildcard.
	Address string `yaml:"address" json:"address"`

	// MaxAttempts bounds the random search. 0 means the default.
	MaxAttempts int `yaml:"maxAttempts" json:"maxAttempts"`

	// Seed makes the random search deterministic when set.
	Seed *uint64 `yaml:"seed" json:"seed"`

	// Exclude lists ports that are never returned.
	Exclude []int `yaml:"exclude" json:"exclude"`

	// ExcludeDocker excludes ports published by Docker containers.
	ExcludeDocker bool `yaml:"excludeDocker" json:"excludeDocker"`

	// ExcludeProject excludes host ports declared by the project's
	// devcontainer.json and Compose files.
	ExcludeProject bool `yaml:"excludeProject" json:"excludeProject"`

	// Log configures diagnostics on stderr.
	Log LogConfig `yaml:"log" json:"log"`
}

// LogConfig is the "log" section of the configuration file.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	if _, err := model.ParseProtocol(c.Protocol); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("maxAttempts must not be negative, got %d", c.MaxAttempts)
	}
	for _, p := range c.Exclude {
		if err := model.ValidatePort(p); err != nil {
			return fmt.Errorf("exclude: %w", err)
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := logger.ParseFormat(c.Log.Format); err != nil {
		return err
	}
	return nil
}

// Load reads and validates the configuration file at path. The format is
// chosen by file extension; unknown extensions are tried as YAML, which is
// a superset of plain JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates configuration data. ext selects the decoder
// (".json" / ".jsonc" for JSONC, anything else for YAML).
func Parse(data []byte, ext string) (*Config, error) {
	cfg := &Config{}

	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty YAML document decodes to io.EOF; treat it as defaults.
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find returns the first of DefaultFileNames that exists in dir, or "" when
// none does.
func Find(dir string) string {
	for _, name := range DefaultFileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// Resolve loads the configuration for the CLI. An explicit path must exist.
// Without one, dir is searched with Find and a missing file yields an empty
// configuration. The returned path is the file that was loaded, if any.
func Resolve(explicit, dir string) (*Config, string, error) {
	path := explicit
	if path == "" {
		path = Find(dir)
		if path == "" {
			return &Config{}, "", nil
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
