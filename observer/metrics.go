package observer

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dcshock/pixelpipe/pipeline"
)

const namespace = "pixelpipe"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultEmpty   = "empty"
	ResultSkipped = "skipped"
)

// Metrics holds Prometheus metrics for pipeline runs and implements
// pipeline.Observer.
//
// Metrics:
//   - pixelpipe_pixels_total{result} - pixels by outcome
//   - pixelpipe_tasks_total{task,result} - task executions
//   - pixelpipe_task_duration_seconds{task} - task execution time
//   - pixelpipe_segments_total{slot} - segments written per record slot
//   - pixelpipe_breaks_total{slot} - closed segments per record slot
type Metrics struct {
	PixelsTotal  *prometheus.CounterVec
	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	Segments     *prometheus.CounterVec
	Breaks       *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		PixelsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pixels_total",
				Help:      "Total number of pixels processed by outcome",
			},
			[]string{"result"},
		),
		TasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of task executions",
			},
			[]string{"task", "result"},
		),
		TaskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of task execution in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
			},
			[]string{"task"},
		),
		Segments: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "segments_total",
				Help:      "Total number of segments produced per record slot",
			},
			[]string{"slot"},
		),
		Breaks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaks_total",
				Help:      "Total number of detected breaks per record slot",
			},
			[]string{"slot"},
		),
	}
}

// RecordSkipped counts a pixel skipped because its output already exists.
func (m *Metrics) RecordSkipped() {
	m.PixelsTotal.WithLabelValues(ResultSkipped).Inc()
}

// BeforePixel implements pipeline.Observer.
func (m *Metrics) BeforePixel(context.Context, string, *pipeline.Pixel) error { return nil }

// AfterPixel implements pipeline.Observer.
func (m *Metrics) AfterPixel(_ context.Context, _ string, _ *pipeline.Pixel, result *pipeline.Slots, err error) error {
	if err != nil {
		m.PixelsTotal.WithLabelValues(ResultFailed).Inc()
		return nil
	}
	total := 0
	for slot, segs := range result.Record {
		total += len(segs)
		m.Segments.WithLabelValues(slot).Add(float64(len(segs)))
		breaks := 0
		for _, s := range segs {
			if !s.Open() {
				breaks++
			}
		}
		m.Breaks.WithLabelValues(slot).Add(float64(breaks))
	}
	if total == 0 && len(result.Record) > 0 {
		m.PixelsTotal.WithLabelValues(ResultEmpty).Inc()
		return nil
	}
	m.PixelsTotal.WithLabelValues(ResultSuccess).Inc()
	return nil
}

// BeforeTask implements pipeline.Observer.
func (m *Metrics) BeforeTask(context.Context, string, *pipeline.Pixel, int, string) error { return nil }

// AfterTask implements pipeline.Observer.
func (m *Metrics) AfterTask(_ context.Context, _ string, _ *pipeline.Pixel, _ int, task string, taskErr error, duration time.Duration) error {
	result := ResultSuccess
	if taskErr != nil {
		result = ResultFailed
	}
	m.TasksTotal.WithLabelValues(task, result).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(duration.Seconds())
	return nil
}
