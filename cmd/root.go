// Package cmd holds the fieldscan command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/cmd/cell"
	"github.com/fieldscan/fieldscan/cmd/clearall"
	"github.com/fieldscan/fieldscan/cmd/ingest"
	"github.com/fieldscan/fieldscan/cmd/process"
	"github.com/fieldscan/fieldscan/cmd/serve"
	"github.com/fieldscan/fieldscan/cmd/stats"
	"github.com/fieldscan/fieldscan/internal/buildinfo"
	"github.com/fieldscan/fieldscan/internal/conf"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
}

// RootCommand creates and returns the root command. The configuration is
// loaded into settings before any subcommand other than cell runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "fieldscan",
		Short:         "Corn field photo analysis",
		Long:          "Store geo-tagged field photos, analyze them in batches and report plant measurements per grid cell.",
		Version:       buildinfo.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, flags)

	cellCmd := cell.Command()
	subcommands := []*cobra.Command{
		serve.Command(settings),
		process.Command(settings),
		stats.Command(settings),
		ingest.Command(settings),
		clearall.Command(settings),
		cellCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// the resolver debugging command needs no configuration
		if cmd.Name() == cellCmd.Name() {
			return nil
		}
		return initialize(cmd, flags, settings)
	}

	return rootCmd
}

// initialize loads the configuration into settings. Command line flags take
// precedence over the file and the environment.
func initialize(cmd *cobra.Command, flags *globalFlags, settings *conf.Settings) error {
	loaded, err := conf.Load(flags.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("debug") {
		loaded.Debug = flags.debug
	}

	*settings = *loaded
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, flags *globalFlags) {
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the configuration file (default: search standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug output")
}
