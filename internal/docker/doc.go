// Package docker discovers host ports published by Docker containers.
//
// A stopped container does not hold its published ports, so a bind probe
// sees them as free, yet `docker start` will fail if something else took
// them in the meantime. The ports returned here are meant to be excluded
// from the search.
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
