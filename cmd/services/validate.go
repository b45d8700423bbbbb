package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/bootstrap"
	"github.com/smartyellow/services/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and entity definition",
	Long: `Validate the services configuration.

Checks:
  - YAML syntax is valid and values are in range
  - Plugin settings are known to the manifest
  - The service entity resolves against the settings
  - Backends are reachable (optional)

Examples:
  services validate
  services validate --config /etc/services/services.yaml --check-backends`,
	RunE: runValidate,
}

var validateCheckBackends bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckBackends, "check-backends", false, "connect to database, bucket and publisher")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)
	fmt.Fprintf(out, "  %s Database: %s\n", checkMark, cfg.Database.Driver)
	fmt.Fprintf(out, "  %s Bucket: %s\n", checkMark, cfg.Bucket.Driver)
	fmt.Fprintf(out, "  %s Publisher: %s\n", checkMark, cfg.Publisher.Driver)

	engine, err := bootstrap.NewEngine(bootstrap.EngineConfig{Pipeline: cfg.Pipeline, Logger: zerolog.Nop()})
	if err != nil {
		fmt.Fprintf(out, "  %s Entity definition\n", crossMark)
		return err
	}
	s, err := engine.Resolve(cfg.Plugin)
	if err != nil {
		fmt.Fprintf(out, "  %s Entity resolves\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Entity %s resolves: %d fields, %d hooks\n", checkMark, s.Entity, len(s.Fields), len(s.Hooks))

	if validateCheckBackends {
		if err := checkBackends(out, cfg); err != nil {
			return err
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkBackends(out io.Writer, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger := zerolog.Nop()

	var failed int
	report := func(name string, check func() error) {
		if err := check(); err != nil {
			fmt.Fprintf(out, "  %s %s reachable\n", crossMark, name)
			fmt.Fprintf(out, "      Error: %v\n", err)
			failed++
			return
		}
		fmt.Fprintf(out, "  %s %s reachable\n", checkMark, name)
	}

	report("Database", func() error {
		p, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		if p.Check != nil {
			return p.Check.HealthCheck(ctx)
		}
		return nil
	})
	report("Bucket", func() error {
		p, err := bootstrap.OpenBucket(ctx, cfg.Bucket, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		return nil
	})
	report("Publisher", func() error {
		p, err := bootstrap.OpenPublisher(ctx, cfg.Publisher, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		return nil
	})

	if failed > 0 {
		return fmt.Errorf("%d backend(s) unreachable", failed)
	}
	return nil
}
