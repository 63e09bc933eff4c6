// Package serve provides the long running API server command.
package serve

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/internal/analysis"
	"github.com/fieldscan/fieldscan/internal/conf"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		port   string
		listen string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serve the photo upload and analysis API until interrupted with SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.WebServer.Enabled = true
			if cmd.Flags().Changed("port") {
				settings.WebServer.Port = port
			}
			if cmd.Flags().Changed("listen") {
				settings.Telemetry.Enabled = true
				settings.Telemetry.Listen = listen
			}

			rt, err := analysis.Open(settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return analysis.Serve(ctx, rt)
		},
	}

	setupFlags(cmd, &port, &listen)

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, port, listen *string) {
	cmd.Flags().StringVarP(port, "port", "p", conf.DefaultWebServerPort, "HTTP API port")
	cmd.Flags().StringVar(listen, "listen", "", "Standalone metrics listener address, e.g. 0.0.0.0:9090")
}
