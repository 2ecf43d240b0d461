package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/dynaport/internal/model"
	"github.com/shinji-kodama/dynaport/internal/port"
)

// runCLI executes a fresh root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// busyPort binds an OS-assigned TCP port on all interfaces until the test ends.
func busyPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l.Addr().(*net.TCPAddr).Port
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	p := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return p
}

func TestRandomCommand_Text(t *testing.T) {
	out, err := runCLI(t, "random")
	require.NoError(t, err)

	p, err := strconv.Atoi(strings.TrimSpace(out))
	require.NoError(t, err, "output %q", out)
	assert.True(t, model.RegisteredRange.Contains(p))
}

func TestRandomCommand_JSON(t *testing.T) {
	out, err := runCLI(t, "random", "--json", "--seed", "42", "--protocol", "both")
	require.NoError(t, err)

	var res portResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, model.RegisteredRange.Contains(res.Port))
	assert.Equal(t, "both", res.Protocol)
}

func TestLowestCommand_Count(t *testing.T) {
	out, err := runCLI(t, "lowest", "--count", "2", "--json")
	require.NoError(t, err)

	var res portsResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Ports, 2)
	assert.Less(t, res.Ports[0], res.Ports[1])
	assert.GreaterOrEqual(t, res.Ports[0], model.LowestRegisteredPort)
	assert.Equal(t, "tcp", res.Protocol)
}

func TestLowestCommand_InvalidCount(t *testing.T) {
	_, err := runCLI(t, "lowest", "--count", "0")
	require.Error(t, err)
	assert.Equal(t, model.ExitInvalidConfig, ExitCodeFor(err))
}

func TestHighestCommand(t *testing.T) {
	out, err := runCLI(t, "highest")
	require.NoError(t, err)

	p, err := strconv.Atoi(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.LessOrEqual(t, p, model.HighestRegisteredPort)
	assert.True(t, model.RegisteredRange.Contains(p))
}

// TestHighestCommand_Exclude verifies that --exclude skips the top port.
func TestHighestCommand_Exclude(t *testing.T) {
	out, err := runCLI(t, "highest", "--exclude", "49151")
	require.NoError(t, err)

	p, err := strconv.Atoi(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.NotEqual(t, 49151, p)
}

func TestCheckCommand(t *testing.T) {
	busy := busyPort(t)
	free := freePort(t)

	out, err := runCLI(t, "check", strconv.Itoa(busy), strconv.Itoa(free))
	require.Error(t, err, "a busy port makes check fail")
	assert.Equal(t, model.ExitNoPortAvailable, ExitCodeFor(err))
	assert.Contains(t, err.Error(), "1 of 2 ports unavailable")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "PORT")
	assert.Contains(t, lines[1], "in use")
	assert.Contains(t, lines[2], "free")
}

func TestCheckCommand_AllFreeJSON(t *testing.T) {
	free := freePort(t)

	out, err := runCLI(t, "check", strconv.Itoa(free), "--json")
	require.NoError(t, err)

	var res map[string][]model.PortStatus
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res["ports"], 1)
	assert.True(t, res["ports"][0].Available)
	assert.Equal(t, free, res["ports"][0].Port)
}

func TestCheckCommand_Excluded(t *testing.T) {
	free := freePort(t)

	out, err := runCLI(t, "check", strconv.Itoa(free), "--exclude", strconv.Itoa(free))
	require.Error(t, err)
	assert.Contains(t, out, "excluded")
}

func TestCheckCommand_InvalidArgument(t *testing.T) {
	_, err := runCLI(t, "check", "http")
	require.Error(t, err)
	assert.Equal(t, model.ExitInvalidConfig, ExitCodeFor(err))
}

// TestExcludeDocker verifies that ports published by containers are
// excluded when --exclude-docker is set.
func TestExcludeDocker(t *testing.T) {
	free := freePort(t)

	original := publishedPortsFunc
	t.Cleanup(func() { publishedPortsFunc = original })
	publishedPortsFunc = func(context.Context) ([]model.PortBinding, error) {
		return []model.PortBinding{{Port: free, Protocol: "tcp", Container: "db"}}, nil
	}

	out, err := runCLI(t, "check", strconv.Itoa(free), "--exclude-docker")
	require.Error(t, err)
	assert.Contains(t, out, "excluded")

	// Without the flag Docker is not consulted.
	publishedPortsFunc = func(context.Context) ([]model.PortBinding, error) {
		return nil, errors.New("docker must not be called")
	}
	_, err = runCLI(t, "check", strconv.Itoa(free))
	assert.NoError(t, err)
}

func TestExcludeDocker_Unavailable(t *testing.T) {
	original := publishedPortsFunc
	t.Cleanup(func() { publishedPortsFunc = original })
	publishedPortsFunc = func(context.Context) ([]model.PortBinding, error) {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "Docker socket not found", errors.New("no socket"))
	}

	_, err := runCLI(t, "random", "--exclude-docker")
	require.Error(t, err)
	assert.Equal(t, model.ExitDockerNotRunning, ExitCodeFor(err))
}

// TestExcludeProject verifies that ports declared by devcontainer.json in
// the working directory are excluded with --exclude-project.
func TestExcludeProject(t *testing.T) {
	free := freePort(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".devcontainer.json"),
		[]byte(fmt.Sprintf(`{"forwardPorts": [%d] // app
}`, free)), 0o644))
	t.Chdir(dir)

	out, err := runCLI(t, "check", strconv.Itoa(free), "--exclude-project")
	require.Error(t, err)
	assert.Contains(t, out, "excluded")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".devcontainer.json"), []byte(`{"forwardPorts": [`), 0o644))
	_, err = runCLI(t, "random", "--exclude-project")
	require.Error(t, err)
	assert.Equal(t, model.ExitInvalidConfig, ExitCodeFor(err))
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("protocol: sctp\n"), 0o644))
	_, err := runCLI(t, "random", "--config", bad)
	require.Error(t, err)
	assert.Equal(t, model.ExitInvalidConfig, ExitCodeFor(err))

	good := filepath.Join(dir, "good.jsonc")
	require.NoError(t, os.WriteFile(good, []byte(`{"protocol": "udp" /* udp only */}`), 0o644))
	out, err := runCLI(t, "random", "--config", good, "--json")
	require.NoError(t, err)
	var res portResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "udp", res.Protocol)

	// Flags override the file.
	out, err = runCLI(t, "random", "--config", good, "--protocol", "tcp", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "tcp", res.Protocol)
}

func TestInvalidProtocolFlag(t *testing.T) {
	_, err := runCLI(t, "random", "--protocol", "icmp")
	require.Error(t, err)
	assert.Equal(t, model.ExitInvalidConfig, ExitCodeFor(err))
}

func TestParsePortArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []int
		wantErr bool
	}{
		{name: "single", args: []string{"3000"}, want: []int{3000}},
		{name: "order preserved", args: []string{"5432", "3000"}, want: []int{5432, 3000}},
		{name: "range", args: []string{"30000-30002"}, want: []int{30000, 30001, 30002}},
		{name: "single port range", args: []string{"8080-8080"}, want: []int{8080}},
		{name: "not a number", args: []string{"http"}, wantErr: true},
		{name: "bad range end", args: []string{"10-x"}, wantErr: true},
		{name: "inverted range", args: []string{"20-10"}, wantErr: true},
		{name: "zero", args: []string{"0"}, wantErr: true},
		{name: "too high", args: []string{"65536"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePortArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ExitCode
	}{
		{name: "nil", err: nil, want: model.ExitSuccess},
		{name: "cli error", err: model.NewCLIError(model.ExitDockerNotRunning, "x"), want: model.ExitDockerNotRunning},
		{name: "exhausted", err: &port.ExhaustedError{Attempts: 3}, want: model.ExitNoPortAvailable},
		{name: "not enough", err: &port.NotEnoughPortsError{Wanted: 2, Got: 1}, want: model.ExitNoPortAvailable},
		{name: "bind", err: &port.BindError{Port: 1, Protocol: "tcp", Err: errors.New("denied")}, want: model.ExitBindFailed},
		{name: "wrapped bind", err: fmt.Errorf("ctx: %w", &port.BindError{Err: errors.New("x")}), want: model.ExitBindFailed},
		{name: "other", err: errors.New("boom"), want: model.ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestSearchError(t *testing.T) {
	err := searchError(&port.ExhaustedError{Attempts: 100, Range: model.RegisteredRange})
	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitNoPortAvailable, cliErr.Code)
	assert.ErrorIs(t, err, port.ErrNoPortAvailable)

	err = searchError(&port.BindError{Port: 1024, Protocol: "tcp", Err: errors.New("denied")})
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitBindFailed, cliErr.Code)

	plain := errors.New("plain")
	assert.Same(t, plain, searchError(plain))
}

func TestPrintError(t *testing.T) {
	t.Cleanup(func() { jsonOutput = false })
	err := model.WrapCLIError(model.ExitNoPortAvailable, "no free port found", errors.New("exhausted"))

	jsonOutput = false
	buf := &bytes.Buffer{}
	printError(buf, err)
	assert.Equal(t, "Error: no free port found: exhausted\n", buf.String())

	jsonOutput = true
	buf.Reset()
	printError(buf, err)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	assert.Equal(t, "no free port found", body["error"]["message"])
	assert.Equal(t, "exhausted", body["error"]["detail"])
	assert.EqualValues(t, model.ExitNoPortAvailable, body["error"]["code"])
}
