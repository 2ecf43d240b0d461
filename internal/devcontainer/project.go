package devcontainer

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/shinji-kodama/dynaport/internal/model"
)

// ProjectPorts returns the host ports declared by the project in dir,
// deduplicated and sorted by port then protocol.
//
// When dir has a devcontainer.json, its forwardPorts and appPort are read
// together with every Compose file it references. Otherwise the first of
// DefaultComposeFiles found in dir is read. A project with neither yields
// no ports and no error.
func ProjectPorts(dir string) ([]model.PortBinding, error) {
	var bindings []model.PortBinding

	dcPath, err := FindDevContainerJSON(dir)
	switch {
	case err == nil:
		raw, err := LoadConfig(dcPath)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, HostPorts(raw)...)

		base := filepath.Dir(dcPath)
		for _, f := range ComposeFiles(raw) {
			if !filepath.IsAbs(f) {
				f = filepath.Join(base, f)
			}
			found, err := LoadCompose(f)
			if err != nil {
				return nil, err
			}
			bindings = append(bindings, found...)
		}
	case errors.Is(err, ErrNotFound):
		if f := findCompose(dir); f != "" {
			found, err := LoadCompose(f)
			if err != nil {
				return nil, err
			}
			bindings = append(bindings, found...)
		}
	default:
		return nil, err
	}

	return dedupe(bindings), nil
}

func findCompose(dir string) string {
	for _, name := range DefaultComposeFiles {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// dedupe keeps the first owner seen for each port and protocol.
func dedupe(bindings []model.PortBinding) []model.PortBinding {
	type key struct {
		port  int
		proto string
	}
	seen := make(map[key]struct{}, len(bindings))
	out := make([]model.PortBinding, 0, len(bindings))
	for _, b := range bindings {
		k := key{b.Port, b.Protocol}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Port != out[j].Port {
			return out[i].Port < out[j].Port
		}
		return out[i].Protocol < out[j].Protocol
	})
	return out
}
