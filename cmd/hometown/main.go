// Command hometown extracts the ANEEL SIGEL wind turbine layer, converts each
// page to Parquet and consolidates everything into one cleaned CSV.
//
// Usage:
//
//	hometown [-force] [-output name.csv] <run|extract|transform|consolidate|serve|inspect|clean>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/victor-cakess/hometown/internal/adapter/csvfile"
	"github.com/victor-cakess/hometown/internal/adapter/httpadapter"
	kafkaadapter "github.com/victor-cakess/hometown/internal/adapter/kafka"
	"github.com/victor-cakess/hometown/internal/adapter/notify"
	"github.com/victor-cakess/hometown/internal/adapter/objectstore"
	"github.com/victor-cakess/hometown/internal/adapter/parquet"
	"github.com/victor-cakess/hometown/internal/adapter/sigel"
	"github.com/victor-cakess/hometown/internal/adapter/sqlite"
	"github.com/victor-cakess/hometown/internal/config"
	"github.com/victor-cakess/hometown/internal/observability"
	"github.com/victor-cakess/hometown/internal/pipeline"
)

const usage = `usage: hometown [flags] <command>

commands:
  run          extract, transform and consolidate (default)
  extract      download raw pages when the remote layer changed
  transform    convert raw pages to Parquet
  consolidate  merge Parquet files into the cleaned CSV
  serve        run on SCHEDULE_INTERVAL and expose HTTP endpoints
  inspect      print a summary of the newest consolidated CSV
  clean        remove consolidated CSV files

flags:
`

func main() {
	force := flag.Bool("force", false, "ignore freshness and idempotency checks")
	output := flag.String("output", "", "consolidated CSV file name (generated when empty)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd := "run"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cmd, cfg, pipeline.RunOptions{Force: *force, Output: *output}); err != nil {
		if errors.Is(err, errUnknownCommand) {
			fmt.Fprintf(os.Stderr, "%v\n\n", err)
			flag.Usage()
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUnknownCommand = errors.New("unknown command")

// app holds the wired pipeline and whatever must be closed on exit.
type app struct {
	runner       *pipeline.Runner
	consolidator *pipeline.Consolidator
	closers      []namedCloser
	logger       *slog.Logger
}

type namedCloser struct {
	name string
	c    io.Closer
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].c.Close(); err != nil {
			a.logger.Error("close error", "component", a.closers[i].name, "error", err)
		}
	}
}

func run(cmd string, cfg *config.Config, opts pipeline.RunOptions) error {
	switch cmd {
	case "run", "extract", "transform", "consolidate", "serve", "inspect", "clean":
	default:
		return fmt.Errorf("%w %q", errUnknownCommand, cmd)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := wire(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer a.close()

	switch cmd {
	case "serve":
		return a.serve(ctx, cfg)
	case "inspect":
		return a.inspect()
	case "clean":
		_, err := a.consolidator.CleanOutputs()
		if err != nil {
			logger.Error("clean failed", "error", err)
		}
		return err
	}

	err = a.once(ctx, cmd, opts)
	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
	}
	return err
}

func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	a := &app{logger: logger}

	client := sigel.NewClient(cfg.Fetcher(), metrics, logger)
	extractor := pipeline.NewExtractor(client, cfg.Extraction(), logger, metrics)
	transformer := pipeline.NewTransformer(parquet.NewStore(), cfg.Transformation(), logger, metrics)
	a.consolidator = pipeline.NewConsolidator(parquet.NewStore(), csvfile.NewStore(), cfg.Consolidation(), logger, metrics)

	var history pipeline.HistoryStore
	if cfg.HistoryDB != "" {
		h, err := sqlite.Open(ctx, cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, namedCloser{"history", h})
		history = h
	} else {
		logger.Info("run history disabled")
	}

	var sinks []pipeline.Sink
	if cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(cfg, logger)
		a.closers = append(a.closers, namedCloser{"kafka writer", w})
		sinks = append(sinks, w)
		logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic)
	}
	if cfg.MinioEnabled {
		arch, err := objectstore.NewArchiver(cfg, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		sinks = append(sinks, arch)
		logger.Info("minio sink enabled", "bucket", cfg.MinioBucket)
	}
	if cfg.AMQPURL != "" {
		sinks = append(sinks, notify.NewNotifier(cfg, logger))
		logger.Info("amqp sink enabled", "queue", cfg.AMQPQueue)
	}

	a.runner = pipeline.NewRunner(extractor, transformer, a.consolidator, history, logger, metrics, sinks...)
	return a, nil
}

func (a *app) once(ctx context.Context, cmd string, opts pipeline.RunOptions) error {
	switch cmd {
	case "extract":
		files, err := a.runner.Extract(ctx, opts)
		if err == nil {
			a.logger.Info("extraction complete", "files", len(files))
		}
		return err
	case "transform":
		files, err := a.runner.Transform(ctx, opts)
		if err == nil {
			a.logger.Info("transformation complete", "files", len(files))
		}
		return err
	case "consolidate":
		res, err := a.runner.Consolidate(ctx, opts)
		if err == nil {
			a.logger.Info("consolidation complete", "output", res.Path, "rows", res.Rows, "skipped", res.Skipped)
		}
		return err
	default:
		_, err := a.runner.Run(ctx, opts)
		return err
	}
}

func (a *app) inspect() error {
	path, summary, err := a.consolidator.Inspect()
	if err != nil {
		a.logger.Error("inspect failed", "error", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"file": path, "summary": summary})
}

// serve runs the pipeline every cfg.ScheduleInterval, starting immediately,
// and serves the HTTP endpoints until ctx is cancelled.
func (a *app) serve(ctx context.Context, cfg *config.Config) error {
	srv := httpadapter.NewServer(cfg.HTTPAddr, a.runner, a.runner, a.consolidator, a.logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()
	_, err := scheduler.Every(cfg.ScheduleInterval).Do(func() {
		if _, err := a.runner.Run(ctx, pipeline.RunOptions{}); err != nil {
			a.logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		a.logger.Error("schedule pipeline failed", "error", err)
		return err
	}
	scheduler.StartAsync()
	a.logger.Info("scheduler started", "interval", cfg.ScheduleInterval)

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	scheduler.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
