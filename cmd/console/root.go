package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/emporia/console/internal/app"
)

// BuildVersion is set at link time.
var BuildVersion = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "console",
		Short:         "Emporia admin console",
		Long:          "HTTP server and operational commands for the Emporia admin console.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSeedCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the console version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Printf("%s\n", BuildVersion)
			},
		},
	)
	return root
}

// loadRuntime reads configuration and builds the process logger.
func loadRuntime() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
