// Package model defines the value types shared by the dynaport packages.
//
// Everything here is a transient value: port ranges, protocols, the result
// of a port check and the ports published by Docker containers. Nothing is
// persisted.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
