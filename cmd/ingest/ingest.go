// Package ingest adds a photo from a local image file.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/internal/analysis"
	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/errors"
)

// Options are the photo position flags.
type Options struct {
	Longitude float64
	Latitude  float64
	Heading   float64
}

// Command creates the ingest command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "ingest <image>",
		Short: "Add a photo from an image file",
		Long:  "Store a JPEG, PNG, BMP, TIFF or WebP image as a new pending photo taken at the given position and heading.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := analysis.Open(settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			return Run(cmd.Context(), rt, args[0], opts, cmd.OutOrStdout())
		},
	}

	setupFlags(cmd, opts)

	return cmd
}

// Run ingests path and prints the new photo id.
func Run(ctx context.Context, rt *analysis.Runtime, path string, opts *Options, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	photo, err := rt.Ingest(ctx, f, opts.Longitude, opts.Latitude, opts.Heading)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "photo %d stored\n", photo.ID)
	return err
}

// setupFlags configures flags specific to the ingest command.
func setupFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().Float64Var(&opts.Longitude, "lon", 0, "Longitude (grid x) where the photo was taken")
	cmd.Flags().Float64Var(&opts.Latitude, "lat", 0, "Latitude (grid y) where the photo was taken")
	cmd.Flags().Float64Var(&opts.Heading, "heading", 0, "Camera heading in degrees")
	_ = cmd.MarkFlagRequired("lon")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("heading")
}
