package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfrund/huddle/internal/app"
	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/logging"
)

var envFiles []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub server",
	Long: `Run the hub server until interrupted.

Configuration is read from the environment, after loading the given dotenv
files (".env" by default). On SIGINT or SIGTERM every WebSocket connection is
closed with "going away" before the process exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFiles...)
		if err != nil {
			return err
		}
		logging.New(cfg.LogFormat, cfg.LogLevel)
		slog.Info("Starting huddle", "version", version, "party", cfg.Party, "state_backend", cfg.StateBackend)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return app.New(cfg).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv files to load before reading the environment")
	rootCmd.AddCommand(serveCmd)
}
