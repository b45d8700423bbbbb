package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/bootstrap"
	"github.com/smartyellow/services/config"
	"github.com/smartyellow/services/core/formatter"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/core/storage"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored services",
	Long: `List the stored services, newest first.

The columns are the list formats the entity definition enables. A search
text is matched against the filter fields, like the search endpoint.

Examples:
  services list
  services list --search hosting --lang en
  services list --format json --columns id,name,status`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored service",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var (
	listFormat   string
	listColumns  []string
	listSearch   string
	listLangs    []string
	listLimit    int
	listNoHeader bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)

	for _, cmd := range []*cobra.Command{listCmd, showCmd} {
		cmd.Flags().StringVarP(&listFormat, "format", "o", "table", "output format (table, json, yaml)")
		cmd.Flags().StringSliceVar(&listColumns, "columns", nil, "field keys to show")
		cmd.Flags().StringSliceVar(&listLangs, "lang", nil, "locale shown in tables and searched by --search")
	}
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "search text")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum number of services (0 = all)")
	listCmd.Flags().BoolVar(&listNoHeader, "no-header", false, "omit the table header")
}

// readStore resolves the schema and opens the configured store.
func readStore(ctx context.Context, logger zerolog.Logger) (*schema.Schema, bootstrap.Provider[storage.Store], error) {
	var none bootstrap.Provider[storage.Store]

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, none, fmt.Errorf("config error: %w", err)
	}
	if cfg.Database.Driver == "memory" {
		return nil, none, errors.New("the memory database is private to the server process")
	}

	engine, err := bootstrap.NewEngine(bootstrap.EngineConfig{Pipeline: cfg.Pipeline, Logger: logger})
	if err != nil {
		return nil, none, err
	}
	s, err := engine.Resolve(cfg.Plugin)
	if err != nil {
		return nil, none, err
	}

	store, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, none, err
	}
	return s, store, nil
}

func formatOptions() formatter.FormatOptions {
	opts := formatter.FormatOptions{Columns: listColumns, NoHeader: listNoHeader}
	if len(listLangs) > 0 {
		opts.Locale = listLangs[0]
	}
	return opts
}

func runList(cmd *cobra.Command, args []string) error {
	f, err := outputFormatter(listFormat)
	if err != nil {
		return err
	}
	ctx := context.Background()
	logger := bootstrap.NewLogger(config.LoggingConfig{Level: "warn", Format: "console"}, cmd.ErrOrStderr())

	s, store, err := readStore(ctx, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := storage.Search(s.Filters(), listSearch, listLangs)
	if err != nil {
		return err
	}
	q.Sort = []storage.Sort{{Path: schema.Path{"log", "created", "on"}, Desc: true}}
	q.Limit = listLimit

	cur, err := store.Value.Collection(s.Store).Find(ctx, q)
	if err != nil {
		return err
	}
	records, err := storage.ToArray(ctx, cur)
	if err != nil {
		return err
	}
	return f.FormatList(cmd.OutOrStdout(), s, records, formatOptions())
}

func runShow(cmd *cobra.Command, args []string) error {
	f, err := outputFormatter(listFormat)
	if err != nil {
		return err
	}
	ctx := context.Background()
	logger := bootstrap.NewLogger(config.LoggingConfig{Level: "warn", Format: "console"}, cmd.ErrOrStderr())

	s, store, err := readStore(ctx, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	id := strings.TrimSpace(args[0])
	rec, err := store.Value.Collection(s.Store).Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("service %s not found", id)
	}
	if err != nil {
		return err
	}
	return f.FormatRecord(cmd.OutOrStdout(), s, rec, formatOptions())
}
