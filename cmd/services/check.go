package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/smartyellow/services/bootstrap"
	"github.com/smartyellow/services/config"
	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/formatter"
	"github.com/smartyellow/services/core/runtime"
	"github.com/smartyellow/services/core/storage"
	"github.com/smartyellow/services/ports"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <file.json>",
	Short: "Validate a service without storing it",
	Long: `Run a service through the entity pipeline in validate-only mode and
print the field errors. Nothing is written to the store or the bucket.

Use - to read the service from stdin. With --id the file is checked as
an update of the stored service with that id.

Examples:
  services check service.json
  services check --id abc123 patch.json
  cat service.json | services check --offline -
  services check --format yaml service.json`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

var (
	checkID      string
	checkUser    string
	checkOffline bool
	checkFormat  string
)

// errBlocked signals field errors; they are already printed.
var errBlocked = errors.New("service has field errors")

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkID, "id", "", "check as an update of this stored service")
	checkCmd.Flags().StringVar(&checkUser, "user", "cli", "user id the check runs as")
	checkCmd.Flags().BoolVar(&checkOffline, "offline", false, "check without store access (no uniqueness checks)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "o", "json", "error output format (table, json, yaml)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	f, err := outputFormatter(checkFormat)
	if err != nil {
		return err
	}
	submitted, err := readValues(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := bootstrap.NewLogger(config.LoggingConfig{Level: "warn", Format: "console"}, cmd.ErrOrStderr())

	engine, err := bootstrap.NewEngine(bootstrap.EngineConfig{Pipeline: cfg.Pipeline, Logger: logger})
	if err != nil {
		return err
	}
	s, err := engine.Resolve(cfg.Plugin)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st := ports.NoStorage
	if !checkOffline {
		store, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		bucket, err := bootstrap.OpenBucket(ctx, cfg.Bucket, logger)
		if err != nil {
			return err
		}
		defer bucket.Close()
		st = ports.Storage{State: ports.StorageAvailable, Store: store.Value, Bucket: bucket.Value}
	}

	in := runtime.RunInput{
		New:          submitted,
		NewEntity:    checkID == "",
		ValidateOnly: true,
		User:         ports.User{ID: checkUser},
		Storage:      st,
	}
	if checkID != "" {
		if !st.Available() {
			return errors.New("--id needs store access, drop --offline")
		}
		old, err := st.Store.Collection(s.Store).Get(ctx, checkID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("service %s not found", checkID)
		}
		if err != nil {
			return err
		}
		in.Old = old
	}

	out, err := engine.Pipeline.Run(ctx, in)
	if err != nil {
		return err
	}
	return printOutcome(cmd.OutOrStdout(), f, out)
}

func printOutcome(w io.Writer, f formatter.Formatter, out runtime.Outcome) error {
	if !out.Blocked() {
		fmt.Fprintf(w, "%s service is valid\n", checkMark)
		return nil
	}
	fmt.Fprintf(w, "%s %d field error(s)\n", crossMark, out.Errors.Len())
	if err := f.FormatErrors(w, &out.Errors); err != nil {
		return err
	}
	return errBlocked
}

// outputFormatter returns the registered formatter with the given name.
func outputFormatter(name string) (formatter.Formatter, error) {
	f, ok := formatter.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown format %q, want one of %v", name, formatter.List())
	}
	return f, nil
}

func readValues(stdin io.Reader, path string) (document.Values, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var v document.Values
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if v == nil {
		return nil, fmt.Errorf("%s: expected a JSON object", path)
	}
	return v, nil
}
