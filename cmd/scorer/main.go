// Command scorer scores every wallet in an Aave V2 transaction dump and
// writes the CSV exports and analysis to the output directory.
//
// Usage:
//
//	scorer [flags] <transactions.json>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mbd888/walletscore/internal/config"
	"github.com/mbd888/walletscore/internal/events"
	"github.com/mbd888/walletscore/internal/logging"
	"github.com/mbd888/walletscore/internal/pipeline"
	"github.com/mbd888/walletscore/internal/report"
	"github.com/mbd888/walletscore/internal/scoring"
	"github.com/mbd888/walletscore/internal/store"
	"github.com/mbd888/walletscore/internal/traces"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("scorer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outputDir := fs.String("output-dir", "", "Output directory for CSVs and analysis (default $OUTPUT_DIR)")
	workers := fs.Int("workers", -1, "Partitions scored in parallel, 0 for one per CPU (default $WORKERS)")
	noPersist := fs.Bool("no-persist", false, "Do not save the run even when DATABASE_URL is set")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: scorer [flags] <transactions.json>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one transactions file")
	}
	inputPath := fs.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}

	logger := logging.NewWithWriter(stderr, cfg.LogLevel, cfg.LogFormat)

	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	engine, err := scoring.NewEngine(cfg.Scoring())
	if err != nil {
		return fmt.Errorf("scoring model: %w", err)
	}

	start := time.Now()
	evs, stats, err := events.LoadAaveFile(inputPath)
	if err != nil {
		return err
	}
	logger.Info("transactions loaded",
		"path", inputPath,
		"records", stats.Records,
		"missing_wallets", stats.MissingWallets,
		"bad_timestamps", stats.BadTimestamps,
		"bad_amounts", stats.BadAmounts,
		"bad_prices", stats.BadPrices,
		"unknown_actions", stats.UnknownActions,
		"load_ms", time.Since(start).Milliseconds(),
	)

	runID := store.NewRunID()
	ctx = logging.WithLogger(logging.WithRunID(ctx, runID), logger)

	rs, err := pipeline.New(engine, pipeline.WithWorkers(cfg.Workers)).Run(ctx, evs)
	if err != nil {
		return fmt.Errorf("score wallets: %w", err)
	}

	analysis := report.Analyze(rs)
	analysis.RunID = runID
	paths, err := report.WriteFiles(cfg.OutputDir, rs, engine, analysis)
	if err != nil {
		return err
	}

	if cfg.DatabaseURL != "" && !*noPersist {
		if err := persist(ctx, cfg.DatabaseURL, runID, rs, logger); err != nil {
			return err
		}
	}

	fmt.Fprintln(stdout, pipeline.Describe(rs))
	for _, p := range paths {
		fmt.Fprintf(stdout, "  - %s\n", p)
	}
	return nil
}

// persist saves the finished run to PostgreSQL, applying migrations first.
func persist(ctx context.Context, dsn, runID string, rs *pipeline.ResultSet, logger *slog.Logger) error {
	db, err := store.OpenPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	pg := store.NewPostgresStore(db)
	if err := pg.Migrate(ctx); err != nil {
		return err
	}

	run := store.NewRun(rs)
	run.ID = runID
	if err := pg.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	logger.Info("run saved", "run_id", runID, "wallets", run.Wallets)
	return nil
}
