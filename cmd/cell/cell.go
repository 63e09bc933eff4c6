// Package cell provides the resolver debugging command.
package cell

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/internal/grid"
)

// Command creates the cell command. It prints the grid cell a position and
// heading resolve to without touching configuration or storage.
func Command() *cobra.Command {
	var (
		columns int
		policy  string
	)

	cmd := &cobra.Command{
		Use:   "cell <x> <y> <heading>",
		Short: "Resolve a position and heading to a grid cell",
		Long:  "Print the grid cell id a photo taken at (x, y) with the given heading would be assigned to.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseArgs(args)
			if err != nil {
				return err
			}

			p, err := grid.PolicyByName(policy)
			if err != nil {
				return err
			}
			resolver, err := grid.New(columns, p)
			if err != nil {
				return err
			}

			id, err := resolver.Resolve(values[0], values[1], values[2])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}

	cmd.Flags().IntVar(&columns, "columns", grid.MaxColumns, "Number of lettered grid columns (1-26)")
	cmd.Flags().StringVar(&policy, "policy", "quadrant", "Placement policy: quadrant or nearestline")

	return cmd
}

func parseArgs(args []string) ([3]float64, error) {
	var values [3]float64
	names := [3]string{"x", "y", "heading"}
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return values, fmt.Errorf("invalid %s %q: %w", names[i], arg, err)
		}
		values[i] = v
	}
	return values, nil
}
