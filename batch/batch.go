// Package batch runs a pipeline over every pixel of a source with bounded
// parallelism and hands results to a sink.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dcshock/pixelpipe/dataset"
	"github.com/dcshock/pixelpipe/logging"
	"github.com/dcshock/pixelpipe/observer"
	"github.com/dcshock/pixelpipe/pipeline"
	"github.com/dcshock/pixelpipe/sink"
)

var tracer = otel.Tracer("pixelpipe/batch")

// Source yields pixels until io.EOF. dataset.PixelReader satisfies it.
type Source interface {
	Next() (*dataset.Pixel, error)
}

// Runner drives a pipeline over a pixel source.
type Runner struct {
	Pipeline *pipeline.Pipeline
	Sink     sink.Sink
	// Workers bounds concurrently running pixels; <= 0 means GOMAXPROCS.
	Workers int
	// Overwrite reprocesses pixels the sink already holds.
	Overwrite bool
	// Output names the record slots written per pixel; empty writes all.
	Output    []string
	Observer  pipeline.Observer
	Logger    *logging.Logger
	Metrics   *observer.Metrics
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// PixelFailure is one pixel that failed. Task is empty when the failure
// happened outside a task.
type PixelFailure struct {
	Row, Col int
	Task     string
	Err      error
}

// Summary describes a finished batch run.
type Summary struct {
	RunID     string
	Processed int // pixels that ran, including failures
	Skipped   int
	Failed    int
	Empty     int // pixels whose every record slot is empty
	Duration  time.Duration
	Failures  []PixelFailure
}

// Run processes every pixel from src. Pixel failures are logged and
// counted in the summary; the error is non-nil only when the source or
// the sink fails, or ctx is cancelled. Cancellation stops dispatching new
// pixels and lets running ones finish.
func (r *Runner) Run(ctx context.Context, src Source) (*Summary, error) {
	if r.Pipeline == nil || r.Sink == nil {
		return nil, errors.New("batch: pipeline and sink are required")
	}
	declared := r.Pipeline.RecordSlots()
	for _, name := range r.Output {
		if !slices.Contains(declared, name) {
			return nil, fmt.Errorf("batch: output slot %q is not produced by any task", name)
		}
	}
	log := r.Logger
	if log == nil {
		log = logging.NewNop()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	tr := r.Tracer
	if tr == nil {
		tr = tracer
	}

	sum := &Summary{RunID: uuid.New().String()}
	ctx = logging.WithRunID(ctx, sum.RunID)
	start := time.Now()
	log.Info(ctx, "batch started",
		zap.String("pipeline", r.Pipeline.Name),
		zap.Int("workers", workers),
		zap.Bool("overwrite", r.Overwrite),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var dispatchErr error
	for {
		if err := gctx.Err(); err != nil {
			break
		}
		px, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			dispatchErr = fmt.Errorf("read pixel: %w", err)
			break
		}
		if !r.Overwrite {
			done, err := r.Sink.Exists(gctx, px.Row, px.Col)
			if err != nil {
				dispatchErr = fmt.Errorf("check output for pixel (%d, %d): %w", px.Row, px.Col, err)
				break
			}
			if done {
				mu.Lock()
				sum.Skipped++
				mu.Unlock()
				if r.Metrics != nil {
					r.Metrics.RecordSkipped()
				}
				log.Trace(ctx, "pixel skipped", zap.Int("row", px.Row), zap.Int("col", px.Col))
				continue
			}
		}
		g.Go(func() error {
			return r.process(gctx, tr, log, sum, &mu, px)
		})
	}
	waitErr := g.Wait()
	sum.Duration = time.Since(start)
	sort.Slice(sum.Failures, func(i, j int) bool {
		a, b := sum.Failures[i], sum.Failures[j]
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})

	err := errors.Join(dispatchErr, waitErr)
	if err == nil {
		err = ctx.Err()
	}
	fields := []zap.Field{
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("empty", sum.Empty),
		zap.Duration("duration", sum.Duration),
	}
	if err != nil {
		log.Error(ctx, "batch stopped", append(fields, zap.Error(err))...)
		return sum, err
	}
	log.Info(ctx, "batch finished", fields...)
	return sum, nil
}

// process runs one pixel. Only sink failures are returned; they stop the
// batch. A started pixel runs to completion even if the batch is
// cancelled.
func (r *Runner) process(ctx context.Context, tr trace.Tracer, log *logging.Logger, sum *Summary, mu *sync.Mutex, px *dataset.Pixel) error {
	ctx, span := tr.Start(context.WithoutCancel(ctx), "batch.pixel", trace.WithAttributes(
		attribute.Int("pixel.row", px.Row),
		attribute.Int("pixel.col", px.Col),
		attribute.Int("pixel.observations", px.Len()),
	))
	defer span.End()

	in := &pipeline.Pixel{Row: px.Row, Col: px.Col, Dates: px.Dates, Data: px.Bands}
	slots, err := r.Pipeline.RunPixel(ctx, in, &pipeline.RunOptions{Observer: r.Observer, RunID: sum.RunID})
	if err != nil {
		task := pipeline.FailedTask(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "pixel failed")
		span.SetAttributes(attribute.String("pixel.failed_task", task))
		log.Warn(ctx, "pixel failed",
			zap.Int("row", px.Row),
			zap.Int("col", px.Col),
			zap.String("task", task),
			zap.Error(err),
		)
		mu.Lock()
		sum.Processed++
		sum.Failed++
		sum.Failures = append(sum.Failures, PixelFailure{Row: px.Row, Col: px.Col, Task: task, Err: err})
		mu.Unlock()
		return nil
	}

	records, err := pipeline.Select(slots, r.Output)
	if err != nil {
		return fmt.Errorf("pixel (%d, %d): %w", px.Row, px.Col, err)
	}
	segments := 0
	for _, segs := range records {
		segments += len(segs)
	}
	span.SetAttributes(attribute.Int("pixel.segments", segments))

	mu.Lock()
	sum.Processed++
	if segments == 0 {
		sum.Empty++
	}
	mu.Unlock()

	res := &sink.Result{Row: px.Row, Col: px.Col, RunID: sum.RunID, Pipeline: r.Pipeline.Name, Records: records}
	if err := r.Sink.Write(ctx, res); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("write pixel (%d, %d): %w", px.Row, px.Col, err)
	}
	return nil
}
