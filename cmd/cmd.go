package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/dripworks/dripper/internal/config"
	"github.com/dripworks/dripper/pkg/logger"
	"github.com/dripworks/dripper/pkg/logger/slogx"
	"github.com/spf13/cobra"
)

var cmd = &cobra.Command{
	Use:           "dripper",
	Long:          `Scheduled reward jobs for the drip economy: asset drips, token transfers, ticket mints and listing warnings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	var configFile string

	// Add global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file, E.g. `./config.yaml`")
	flags.Bool("debug", false, "enable debug logging")

	// Bind flags to configuration
	config.BindPFlag("logger.debug", flags.Lookup("debug"))

	// Initialize configuration and logger on start command
	cobra.OnInitialize(func() {
		config := config.Parse(configFile)

		if err := logger.Init(config.Logger); err != nil {
			logger.Panic("Failed to initialize logger", slogx.Error(err), slog.Any("config", config.Logger))
		}
	})
}

func Execute(ctx context.Context) {
	// Register sub-commands
	cmd.AddCommand(
		NewVersionCommand(),
		NewRewardsCommand(),
		NewTransferCommand(),
		NewTicketsCommand(),
		NewMirrorCommand(),
		NewSalewarnCommand(),
	)

	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Error("Command failed", slogx.Error(err))
		os.Exit(1)
	}
}
