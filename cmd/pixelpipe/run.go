package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dcshock/pixelpipe/batch"
	"github.com/dcshock/pixelpipe/config"
	"github.com/dcshock/pixelpipe/dataset"
	"github.com/dcshock/pixelpipe/logging"
	"github.com/dcshock/pixelpipe/observer"
	"github.com/dcshock/pixelpipe/pipeline"
	"github.com/dcshock/pixelpipe/sink"
	"github.com/dcshock/pixelpipe/tasks"
)

type runFlags struct {
	input       string
	output      string
	workers     int
	overwrite   bool
	metricsAddr string
	logLevel    string
}

func newRunCmd(configPath *string) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline over every input pixel",
		Long: `Run the configured pipeline over every pixel of the input datasets and
write one JSON line of record slots per pixel.

Examples:
  # Write results to stdout
  pixelpipe run -c pipeline.yaml

  # Resume into an existing output file, exposing metrics
  pixelpipe run -c pipeline.yaml -o results.jsonl --metrics-addr :9100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, *configPath, f)
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "input file for a single-dataset config (overrides input_file)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "JSON lines output file, - for stdout")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "concurrent pixels (default run.workers, then GOMAXPROCS)")
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "reprocess pixels already in the output (default pipeline.overwrite)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "override logging.level")
	return cmd
}

func runPipeline(cmd *cobra.Command, configPath string, f runFlags) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg, f); err != nil {
		return err
	}
	log, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	p, err := config.BuildPipeline(tasks.NewRegistry(), cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := observer.NewMetrics(reg)
	if f.metricsAddr != "" {
		stop := serveMetrics(ctx, log, f.metricsAddr, reg)
		defer stop()
	}

	src, err := dataset.Open(cfg.Data.Datasets)
	if err != nil {
		return err
	}
	defer src.Close()

	var out sink.Sink
	if f.output == "-" {
		out = sink.NewJSONLines(cmd.OutOrStdout())
	} else {
		out, err = sink.OpenJSONLines(f.output, cfg.Pipeline.Overwrite)
		if err != nil {
			return err
		}
	}

	runner := &batch.Runner{
		Pipeline:  p,
		Sink:      out,
		Workers:   cfg.Run.Workers,
		Overwrite: cfg.Pipeline.Overwrite,
		Output:    cfg.Pipeline.Output,
		Observer:  pipeline.MultiObserver{observer.NewLogObserver(log), metrics},
		Logger:    log,
		Metrics:   metrics,
	}
	sum, runErr := runner.Run(ctx, src)
	if err := out.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("close output: %w", err))
	}
	if sum != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d processed, %d skipped, %d failed, %d empty in %s\n",
			sum.RunID, sum.Processed, sum.Skipped, sum.Failed, sum.Empty, sum.Duration.Round(time.Millisecond))
	}
	return runErr
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, f runFlags) error {
	if f.input != "" {
		if len(cfg.Data.Datasets) != 1 {
			return fmt.Errorf("--input needs exactly one dataset, config has %d", len(cfg.Data.Datasets))
		}
		for _, d := range cfg.Data.Datasets {
			d.InputFile = f.input
		}
	}
	if cmd.Flags().Changed("workers") {
		cfg.Run.Workers = f.workers
	}
	if cmd.Flags().Changed("overwrite") {
		cfg.Pipeline.Overwrite = f.overwrite
	}
	if f.logLevel != "" {
		if _, err := logging.LevelFromString(f.logLevel); err != nil {
			return err
		}
		cfg.Logging.Level = f.logLevel
	}
	return nil
}

// serveMetrics exposes reg on addr until the returned stop is called.
func serveMetrics(ctx context.Context, log *logging.Logger, addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info(ctx, "serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
