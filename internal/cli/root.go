// Package cli implements the cobra-based CLI commands for dynaport.
//
// Each subcommand (random, lowest, highest, check) is defined in its own
// file within this package. This file defines the root command that serves
// as the parent for all subcommands and handles global flags and exit codes.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/dynaport/internal/model"
	"github.com/shinji-kodama/dynaport/internal/port"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput switches command output and errors to JSON.
	jsonOutput bool

	// verbose lowers the log level to debug, which logs every probe.
	verbose bool

	// search holds the flags that configure the port search.
	search searchFlags
)

// searchFlags are the persistent flags that override the config file.
type searchFlags struct {
	configPath     string
	protocol       string
	address        string
	maxAttempts    int
	seed           uint64
	exclude        []int
	excludeDocker  bool
	excludeProject bool
}

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action; it only provides
// help text and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dynaport",
		Short: "Find free ports in the registered range (1024-49151)",
		Long: `dynaport finds a port in the IANA registered range (1024-49151) that is
not bound on this machine, by binding a short-lived socket on the candidate
and closing it again.

A reported port is free at the moment of the check only. It is not
reserved, so another process may bind it before you do.`,

		// Errors are printed by Execute in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	search = searchFlags{}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every probe to stderr")
	flags.StringVar(&search.configPath, "config", "", "Config file (default: .dynaport.{yaml,yml,jsonc,json} in the working directory)")
	flags.StringVarP(&search.protocol, "protocol", "p", "", "Protocol to probe: tcp, udp, both (default tcp)")
	flags.StringVar(&search.address, "address", "", "Host address to bind when probing (default: all interfaces)")
	flags.IntVar(&search.maxAttempts, "max-attempts", 0, fmt.Sprintf("Random candidates to try before giving up (default %d)", port.DefaultMaxAttempts))
	flags.Uint64Var(&search.seed, "seed", 0, "Seed for a reproducible random search")
	flags.IntSliceVar(&search.exclude, "exclude", nil, "Ports never to return (repeatable, comma separated)")
	flags.BoolVar(&search.excludeDocker, "exclude-docker", false, "Also exclude host ports published by Docker containers")
	flags.BoolVar(&search.excludeProject, "exclude-project", false, "Also exclude host ports declared by devcontainer.json and Compose files in the working directory")

	rootCmd.AddCommand(NewRandomCommand())
	rootCmd.AddCommand(NewLowestCommand())
	rootCmd.AddCommand(NewHighestCommand())
	rootCmd.AddCommand(NewCheckCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code matching the error.
// This is the main entry point called from main.go.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(int(ExitCodeFor(err)))
	}
}

// ExitCodeFor maps an error returned by a command to a process exit code.
// CLIError carries its own code; port errors are classified by type.
func ExitCodeFor(err error) model.ExitCode {
	if err == nil {
		return model.ExitSuccess
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}

	var bindErr *port.BindError
	switch {
	case errors.Is(err, port.ErrNoPortAvailable):
		return model.ExitNoPortAvailable
	case errors.As(err, &bindErr):
		return model.ExitBindFailed
	default:
		return model.ExitGeneralError
	}
}

// searchError wraps a Finder error into a CLIError with a fitting exit code.
func searchError(err error) error {
	var bindErr *port.BindError
	switch {
	case errors.Is(err, port.ErrNoPortAvailable):
		return model.WrapCLIError(model.ExitNoPortAvailable, "no free port found", err)
	case errors.As(err, &bindErr):
		return model.WrapCLIError(model.ExitBindFailed, "cannot probe ports", err)
	default:
		return err
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, err error) {
	message := err.Error()
	var detail error

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		message = cliErr.Message
		detail = cliErr.Err
	}

	if jsonOutput {
		body := map[string]any{
			"message": message,
			"code":    int(ExitCodeFor(err)),
		}
		if detail != nil {
			body["detail"] = detail.Error()
		}
		data, _ := json.MarshalIndent(map[string]any{"error": body}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if detail != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, detail)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
