// Kestrel Import - Loads the flat-file dataset into SQLite or PostgreSQL.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/dataset"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

var Version = "dev"

type options struct {
	envFile    string
	dataDir    string
	driver     string
	sqlitePath string
	dryRun     bool
	verbose    bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:     "kestrel-import",
		Short:   "Kestrel Import - copy the dataset files into a SQL store",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", "", "load KESTREL_* variables from this file")
	flags.StringVar(&opts.driver, "driver", "", "database driver (sqlite, postgres)")
	flags.StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite database file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(importCmd(opts))
	rootCmd.AddCommand(statusCmd(opts))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func importCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Read the flat files and replace the stored tables",
		Long: `Read the transaction, label, user and MCC files and write them to the
configured SQL store in one transaction. Rows already stored are replaced.

Examples:
  kestrel-import import --data-dir ./data
  kestrel-import import --driver postgres --env-file .env
  kestrel-import import --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "directory holding the dataset files")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "read the files and report counts without writing")

	return cmd
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the row counts of the stored tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), opts)
		},
	}
}

func loadConfig(opts *options) (*domain.Config, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, err
	}

	if opts.dataDir != "" {
		cfg.Dataset.Dir = opts.dataDir
	}
	if opts.driver != "" {
		cfg.Repository.Driver = opts.driver
	}
	if opts.sqlitePath != "" {
		cfg.Repository.SQLitePath = opts.sqlitePath
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Repository.Driver)
	}
	return cfg, nil
}

func runImport(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	src := dataset.NewFileSource(cfg.Dataset)
	snap, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}
	slog.Info("dataset read",
		"source", src.Name(),
		"counts", snap.Counts(),
		"missing", snap.Missing,
	)

	if opts.dryRun {
		return printJSON(snap.Counts())
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer repo.Close()

	stats, err := repo.Import(ctx, snap)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	slog.Info("import complete",
		"driver", cfg.Repository.Driver,
		"transactions", stats.Transactions,
		"labels", stats.Labels,
		"users", stats.Users,
		"mcc_codes", stats.MCCCodes,
		"duration", stats.Duration,
	)
	return printJSON(stats)
}

func runStatus(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer repo.Close()

	snap, err := repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read repository: %w", err)
	}

	return printJSON(map[string]any{
		"snapshot": snap.ID,
		"counts":   snap.Counts(),
		"missing":  snap.Missing,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
