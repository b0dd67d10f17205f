package observer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dcshock/pixelpipe/logging"
	"github.com/dcshock/pixelpipe/pipeline"
)

// LogObserver logs pixel and task lifecycle events.
type LogObserver struct {
	log *logging.Logger
}

// NewLogObserver returns an Observer writing to log. A nil log discards.
func NewLogObserver(log *logging.Logger) *LogObserver {
	if log == nil {
		log = logging.NewNop()
	}
	return &LogObserver{log: log.Named("pixel")}
}

func pixelFields(runID string, px *pipeline.Pixel) []zap.Field {
	return []zap.Field{
		zap.String("run_id", runID),
		zap.Int("row", px.Row),
		zap.Int("col", px.Col),
	}
}

// BeforePixel implements pipeline.Observer.
func (o *LogObserver) BeforePixel(ctx context.Context, runID string, px *pipeline.Pixel) error {
	o.log.Debug(ctx, "pixel started", append(pixelFields(runID, px), zap.Int("observations", len(px.Dates)))...)
	return nil
}

// AfterPixel implements pipeline.Observer.
func (o *LogObserver) AfterPixel(ctx context.Context, runID string, px *pipeline.Pixel, result *pipeline.Slots, err error) error {
	fields := pixelFields(runID, px)
	if err != nil {
		o.log.Warn(ctx, "pixel failed", append(fields, zap.Error(err))...)
		return nil
	}
	for slot, segs := range result.Record {
		fields = append(fields, zap.Int("segments."+slot, len(segs)))
	}
	o.log.Debug(ctx, "pixel finished", fields...)
	return nil
}

// BeforeTask implements pipeline.Observer.
func (o *LogObserver) BeforeTask(ctx context.Context, runID string, px *pipeline.Pixel, index int, task string) error {
	o.log.Trace(ctx, "task started", append(pixelFields(runID, px), zap.Int("index", index), zap.String("task", task))...)
	return nil
}

// AfterTask implements pipeline.Observer.
func (o *LogObserver) AfterTask(ctx context.Context, runID string, px *pipeline.Pixel, index int, task string, taskErr error, duration time.Duration) error {
	fields := append(pixelFields(runID, px),
		zap.Int("index", index),
		zap.String("task", task),
		zap.Duration("duration", duration),
	)
	if taskErr != nil {
		o.log.Warn(ctx, "task failed", append(fields, zap.Error(taskErr))...)
		return nil
	}
	o.log.Trace(ctx, "task finished", fields...)
	return nil
}
