package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/bootstrap"
	"github.com/smartyellow/services/config"
	"github.com/spf13/cobra"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the services HTTP server.

The server will:
  - Load configuration from services.yaml (or --config)
  - Or load configuration from SERVICES_* environment variables
  - Open the document store, the attachment bucket and the publisher
  - Resolve the service entity against the plugin settings
  - Serve /services behind bearer token authentication

Plugin settings and the log level are reloaded when the config file
changes or the process receives SIGHUP.

Examples:
  services serve
  services serve --config /etc/services/services.yaml
  services serve --hot-reload=false

  # Docker (env vars only):
  SERVICES_DATABASE_DRIVER=postgres SERVICES_DATABASE_DSN=postgres://... services serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	holder, err := loadHolder(cfgFile)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(context.Background(), holder, bootstrap.Options{WatchConfig: hotReload})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}

// loadHolder loads the config file when present and the environment
// otherwise. Only a file-backed holder can reload.
func loadHolder(path string) (*config.Holder, error) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "config").Logger()

	if _, err := os.Stat(path); err == nil {
		holder, err := config.NewHolder(path, logger)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		return holder, nil
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	logger.Info().Str("path", path).Msg("config file not found, using environment variables")
	return config.NewStaticHolder(cfg, logger), nil
}
