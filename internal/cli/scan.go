package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/dynaport/internal/model"
)

// portsResult is the JSON output of "lowest --count N".
type portsResult struct {
	Ports    []int  `json:"ports"`
	Protocol string `json:"protocol"`
}

// NewLowestCommand creates the "lowest" command.
func NewLowestCommand() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "lowest",
		Short: "Print the lowest free port(s) in 1024-49151",
		Long: `Probe the registered range upward from 1024 and print the first free port,
or the first --count free ports, one per line.

Examples:
  dynaport lowest
  dynaport lowest --count 3 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return model.NewCLIError(model.ExitInvalidConfig,
					fmt.Sprintf("--count must be at least 1, got %d", count))
			}

			s, err := newSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			if count == 1 {
				p, err := s.finder.LowestRegisteredPort(cmd.Context())
				if err != nil {
					return searchError(err)
				}
				return printPort(cmd, p, s.protocol.String())
			}

			ports, err := s.finder.LowestNRegisteredPorts(cmd.Context(), count)
			if err != nil {
				return searchError(err)
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), portsResult{Ports: ports, Protocol: s.protocol.String()})
			}
			for _, p := range ports {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of ports to print")

	return cmd
}

// NewHighestCommand creates the "highest" command.
func NewHighestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "highest",
		Short: "Print the highest free port in 1024-49151",
		Long: `Probe the registered range downward from 49151 and print the first free port.

Examples:
  dynaport highest
  dynaport highest --protocol udp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			p, err := s.finder.HighestRegisteredPort(cmd.Context())
			if err != nil {
				return searchError(err)
			}
			return printPort(cmd, p, s.protocol.String())
		},
	}
}
