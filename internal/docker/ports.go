package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"github.com/shinji-kodama/dynaport/internal/model"
)

// containerAPI is the subset of the Docker SDK client used here.
// *client.Client satisfies it.
type containerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// PublishedPorts returns the host ports published by every container on the
// daemon, running or not, sorted by port then protocol.
//
// Running containers report their bound ports in the list response.
// Stopped containers report nothing there, so their HostConfig port
// bindings are read with an inspect call.
func (c *Client) PublishedPorts(ctx context.Context) ([]model.PortBinding, error) {
	return publishedPorts(ctx, c.api)
}

func publishedPorts(ctx context.Context, api containerAPI) ([]model.PortBinding, error) {
	containers, err := api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "failed to list Docker containers", err)
	}

	seen := make(map[model.PortBinding]struct{})
	var bindings []model.PortBinding
	add := func(b model.PortBinding) {
		if _, dup := seen[b]; dup {
			return
		}
		seen[b] = struct{}{}
		bindings = append(bindings, b)
	}

	for _, summary := range containers {
		name := containerName(summary)

		if summary.State == "running" {
			for _, p := range summary.Ports {
				if p.PublicPort == 0 {
					continue
				}
				add(model.PortBinding{Port: int(p.PublicPort), Protocol: p.Type, Container: name})
			}
			continue
		}

		inspect, err := api.ContainerInspect(ctx, summary.ID)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitDockerNotRunning,
				fmt.Sprintf("failed to inspect container %s", name), err)
		}
		if inspect.ContainerJSONBase == nil || inspect.HostConfig == nil {
			continue
		}
		for _, b := range portMapBindings(inspect.HostConfig.PortBindings) {
			b.Container = name
			add(b)
		}
	}

	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Port != bindings[j].Port {
			return bindings[i].Port < bindings[j].Port
		}
		return bindings[i].Protocol < bindings[j].Protocol
	})
	return bindings, nil
}

// portMapBindings flattens a HostConfig port map into host port bindings.
// Bindings without a fixed host port (Docker picks one at start) are
// skipped, as are host port ranges that fail to parse.
func portMapBindings(portMap nat.PortMap) []model.PortBinding {
	var out []model.PortBinding
	for containerPort, hostBindings := range portMap {
		for _, hb := range hostBindings {
			if hb.HostPort == "" {
				continue
			}
			start, end, err := nat.ParsePortRange(hb.HostPort)
			if err != nil {
				continue
			}
			for p := start; p <= end; p++ {
				out = append(out, model.PortBinding{Port: int(p), Protocol: containerPort.Proto()})
			}
		}
	}
	return out
}

// containerName returns the first name of the container without Docker's
// leading "/", falling back to the short ID.
func containerName(c container.Summary) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

// Ports returns the distinct port numbers of bindings in ascending order.
func Ports(bindings []model.PortBinding) []int {
	seen := make(map[int]struct{}, len(bindings))
	ports := make([]int, 0, len(bindings))
	for _, b := range bindings {
		if _, dup := seen[b.Port]; dup {
			continue
		}
		seen[b.Port] = struct{}{}
		ports = append(ports, b.Port)
	}
	sort.Ints(ports)
	return ports
}

// FormatBindings joins bindings as "port/proto (container)" for log output.
func FormatBindings(bindings []model.PortBinding) string {
	if len(bindings) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ", ")
}
