// Package clearall deletes every photo, observation and stored image.
package clearall

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/internal/analysis"
	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/errors"
)

// ErrNotConfirmed is returned when clear runs without --yes.
var ErrNotConfirmed = errors.NewStd("refusing to delete all photos without --yes")

// Command creates the clear command.
func Command(settings *conf.Settings) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all photos, observations and images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return ErrNotConfirmed
			}

			rt, err := analysis.Open(settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if err := rt.ClearAll(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "all photos deleted")
			return err
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")

	return cmd
}
