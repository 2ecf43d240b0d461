// Package devcontainer reads the host ports a project claims in its
// development container setup, so that dynaport does not hand them out to
// something else.
//
// Two sources are read:
//
//   - devcontainer.json: forwardPorts and appPort. The file is JSONC, so
//     comments are stripped with github.com/tidwall/jsonc before decoding.
//   - Docker Compose files referenced by dockerComposeFile, or the
//     conventional compose.yaml / docker-compose.yml at the project root
//     when there is no devcontainer.json. Service "ports" in both short
//     and long syntax are decoded with gopkg.in/yaml.v3.
//
// Entries that cannot be resolved to a fixed host port (container-only
// ports, variable interpolation) are skipped.
package devcontainer
