package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/dynaport/internal/model"
	"github.com/shinji-kodama/dynaport/internal/port"
)

// NewCheckCommand creates the "check" command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check PORT|LOW-HIGH...",
		Short: "Report whether ports are free",
		Long: `Probe each given port (or inclusive range) and print whether it is free.
Excluded ports are reported as unavailable without being probed.

The command exits with status 4 when any port is unavailable, so it can
guard a script:

  dynaport check 8080 && ./serve --port 8080

Examples:
  dynaport check 3000 5432
  dynaport check 30000-30010 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := parsePortArgs(args)
			if err != nil {
				return model.WrapCLIError(model.ExitInvalidConfig, "invalid port argument", err)
			}

			s, err := newSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			statuses := make([]model.PortStatus, 0, len(ports))
			for _, p := range ports {
				if s.finder.IsExcluded(p) {
					statuses = append(statuses, model.PortStatus{Port: p, Protocol: s.protocol, Reason: "excluded"})
					continue
				}
				statuses = append(statuses, s.scanner.Check([]int{p}, s.protocol)...)
			}

			if err := printStatuses(cmd.OutOrStdout(), statuses); err != nil {
				return err
			}

			unavailable := 0
			for _, st := range statuses {
				if !st.Available {
					unavailable++
				}
			}
			if unavailable > 0 {
				return model.NewCLIError(model.ExitNoPortAvailable,
					fmt.Sprintf("%d of %d ports unavailable", unavailable, len(statuses)))
			}
			return nil
		},
	}
}

// parsePortArgs expands "PORT" and "LOW-HIGH" arguments into a list of
// ports, preserving argument order.
func parsePortArgs(args []string) ([]int, error) {
	var ports []int
	for _, arg := range args {
		lowStr, highStr, isRange := strings.Cut(arg, "-")
		low, err := strconv.Atoi(strings.TrimSpace(lowStr))
		if err != nil {
			return nil, fmt.Errorf("%q is not a port number", arg)
		}
		high := low
		if isRange {
			high, err = strconv.Atoi(strings.TrimSpace(highStr))
			if err != nil {
				return nil, fmt.Errorf("%q is not a port range", arg)
			}
		}

		for _, p := range []int{low, high} {
			if err := model.ValidatePort(p); err != nil {
				return nil, err
			}
		}
		if high < low {
			return nil, fmt.Errorf("range %q is inverted", arg)
		}

		for p := low; p <= high; p++ {
			ports = append(ports, p)
		}
	}
	return ports, nil
}

// printStatuses writes the check results as a table or JSON document.
//
// The table format is:
//
//	PORT    PROTOCOL  STATUS
//	3000    tcp       free
//	5432    tcp       in use
func printStatuses(w io.Writer, statuses []model.PortStatus) error {
	if jsonOutput {
		return printJSON(w, map[string][]model.PortStatus{"ports": statuses})
	}

	if _, err := fmt.Fprintf(w, "%-7s %-9s %s\n", "PORT", "PROTOCOL", "STATUS"); err != nil {
		return err
	}
	for _, st := range statuses {
		if _, err := fmt.Fprintf(w, "%-7d %-9s %s\n", st.Port, st.Protocol, statusText(st)); err != nil {
			return err
		}
	}
	return nil
}

// statusText condenses a PortStatus into a short table cell.
func statusText(st model.PortStatus) string {
	switch {
	case st.Available:
		return "free"
	case st.Reason == "excluded":
		return "excluded"
	case strings.Contains(st.Reason, port.ErrPortInUse.Error()):
		return "in use"
	default:
		return "error: " + st.Reason
	}
}
