package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/sqcatalog/internal/config"
	"github.com/liliang-cn/sqcatalog/pkg/catalog"
	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/filter"
	"github.com/liliang-cn/sqcatalog/pkg/pagination"
	"github.com/liliang-cn/sqcatalog/pkg/store"
	"github.com/liliang-cn/sqcatalog/pkg/store/memory"
	"github.com/liliang-cn/sqcatalog/pkg/store/postgres"
	"github.com/liliang-cn/sqcatalog/pkg/store/sqlite"
)

var (
	envFile     string
	driver      string
	dbPath      string
	postgresDSN string
	fixtures    string
	verbose     bool
)

// backend is a store that also takes fixture writes
type backend interface {
	store.Store
	store.Writer
}

var rootCmd = &cobra.Command{
	Use:           "sqcatalog",
	Short:         "Query an entity catalog",
	Long:          `A command-line interface for listing, filtering and tracing the ancestry of catalog entities stored in SQLite or PostgreSQL.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the catalog schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		success(cmd.OutOrStdout(), "catalog initialized (%s)", cfg.Driver)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <fixtures.yaml>",
	Short: "Load entities and references from a YAML fixture file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readFixtures(args[0])
		if err != nil {
			return err
		}

		_, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		entities, refs, err := seed(cmd.Context(), b, f)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "seeded %d entities and %d references", entities, refs)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities matching a filter",
	Example: `  sqcatalog list --filter '{"key":"kind","matchValueIn":["component"]}' --limit 20
  sqcatalog list --after eyJsaW1pdCI6MjAsIm9mZnNldCI6MjB9 --fields kind,metadata.name`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filterJSON, _ := cmd.Flags().GetString("filter")
		after, _ := cmd.Flags().GetString("after")
		fields, _ := cmd.Flags().GetString("fields")
		outputJSON, _ := cmd.Flags().GetBool("json")

		f, err := filter.Parse([]byte(filterJSON))
		if err != nil {
			return err
		}

		cfg, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		req := &catalog.EntitiesRequest{Filter: f, Pagination: &pagination.Request{}}
		if cmd.Flags().Changed("limit") {
			limit, _ := cmd.Flags().GetInt("limit")
			req.Pagination.Limit = &limit
		} else if cfg.DefaultLimit > 0 {
			limit := cfg.DefaultLimit
			req.Pagination.Limit = &limit
		}
		if cmd.Flags().Changed("offset") {
			offset, _ := cmd.Flags().GetInt("offset")
			req.Pagination.Offset = &offset
		}
		if after != "" {
			req.Pagination.After = &after
		}
		if fields != "" {
			req.Fields = catalog.FieldsProjector(strings.Split(fields, ",")...)
		}

		resp, err := newCatalog(cfg, b).ListEntities(cmd.Context(), req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			return writeJSON(out, resp)
		}

		if len(resp.Entities) == 0 {
			warning(out, "no entities matched")
			return nil
		}
		for _, e := range resp.Entities {
			ref, err := core.RefOf(e)
			if err != nil {
				ref = "(projected)"
			}
			if uid := e.UID(); uid != "" {
				fmt.Fprintf(out, "%s\t%s\n", cyan.Sprint(ref), uid)
			} else {
				fmt.Fprintln(out, cyan.Sprint(ref))
			}
		}
		if resp.PageInfo.HasNextPage {
			fmt.Fprintf(out, "\nnext page: --after %s\n", resp.PageInfo.EndCursor)
		}
		return nil
	},
}

var ancestryCmd = &cobra.Command{
	Use:   "ancestry <entity-ref>",
	Short: "Show every ancestor of an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputJSON, _ := cmd.Flags().GetBool("json")

		cfg, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		resp, err := newCatalog(cfg, b).Ancestry(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			return writeJSON(out, resp)
		}

		fmt.Fprintf(out, "Ancestry of %s\n", cyan.Sprint(resp.RootEntityRef))
		for _, item := range resp.Items {
			ref, _ := core.RefOf(item.Entity)
			if len(item.ParentEntityRefs) == 0 {
				fmt.Fprintf(out, "  %s\n", ref)
				continue
			}
			fmt.Fprintf(out, "  %s <- %s\n", ref, strings.Join(item.ParentEntityRefs, ", "))
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <entity-id>",
	Short: "Remove an entity by its identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		if err := newCatalog(cfg, b).RemoveEntityByUID(cmd.Context(), args[0]); err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "entity %s removed", args[0])
		return nil
	},
}

// loadConfig reads the environment and applies explicitly set flags on top
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Driver = driver
	}
	if flags.Changed("db") {
		cfg.SQLitePath = dbPath
	}
	if flags.Changed("dsn") {
		cfg.PostgresDSN = postgresDSN
	}
	if verbose {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) core.Logger {
	if cfg.Debug {
		return core.NewStdLogger(core.LevelDebug)
	}
	return core.NewStdLogger(core.LevelWarn)
}

// openBackend opens and initializes the configured store, seeding it from
// --fixtures when given
func openBackend(cmd *cobra.Command) (config.Config, backend, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cfg, nil, err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()

	var b backend
	switch cfg.Driver {
	case config.DriverSQLite:
		sqliteCfg := sqlite.DefaultConfig()
		sqliteCfg.Path = cfg.SQLitePath
		sqliteCfg.Logger = logger
		s, err := sqlite.NewWithConfig(sqliteCfg)
		if err != nil {
			return cfg, nil, fmt.Errorf("failed to open store: %w", err)
		}
		if err := s.Init(ctx); err != nil {
			_ = s.Close()
			return cfg, nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		b = s
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.PostgresDSN, postgres.WithLogger(logger), postgres.WithMigrations())
		if err != nil {
			return cfg, nil, fmt.Errorf("failed to open store: %w", err)
		}
		b = s
	case config.DriverMemory:
		b = memory.NewWithLogger(logger)
	}

	if fixtures != "" {
		f, err := readFixtures(fixtures)
		if err == nil {
			_, _, err = seed(ctx, b, f)
		}
		if err != nil {
			_ = b.Close()
			return cfg, nil, err
		}
	}

	return cfg, b, nil
}

func newCatalog(cfg config.Config, s store.Store) *catalog.Catalog {
	return catalog.NewWithConfig(s, catalog.Config{
		AncestryParallelism: cfg.AncestryParallelism,
		Logger:              newLogger(cfg),
	})
}

func writeJSON(w interface{ Write([]byte) (int, error) }, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", config.DriverSQLite, "Store driver: sqlite, postgres or memory")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "catalog.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&postgresDSN, "dsn", "", "PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&fixtures, "fixtures", "", "YAML fixture file loaded before the command runs")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	listCmd.Flags().String("filter", "", "Filter as JSON")
	listCmd.Flags().Int("limit", 0, "Maximum number of entities")
	listCmd.Flags().Int("offset", 0, "Number of entities to skip")
	listCmd.Flags().String("after", "", "Cursor returned by a previous page")
	listCmd.Flags().String("fields", "", "Comma-separated fields to return, e.g. kind,metadata.name")
	listCmd.Flags().Bool("json", false, "Output as JSON")

	ancestryCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(initCmd, seedCmd, listCmd, ancestryCmd, removeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(string(core.KindOf(err)), err)
		stop()
		os.Exit(1)
	}
}
