package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// portResult is the JSON output of the commands returning a single port.
type portResult struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
}

// NewRandomCommand creates the "random" command.
func NewRandomCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "random",
		Short: "Print a random free port in 1024-49151",
		Long: `Draw random ports from the registered range (1024-49151) until one can be
bound, then print it. The search gives up after --max-attempts candidates.

Examples:
  dynaport random
  dynaport random --protocol both
  dynaport random --seed 42 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			p, err := s.finder.RandomRegisteredPort(cmd.Context())
			if err != nil {
				return searchError(err)
			}
			return printPort(cmd, p, s.protocol.String())
		},
	}
}

// printPort writes a single port as text or JSON.
func printPort(cmd *cobra.Command, p int, protocol string) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), portResult{Port: p, Protocol: protocol})
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), p)
	return err
}
