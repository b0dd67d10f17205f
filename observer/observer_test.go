package observer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/dcshock/pixelpipe/logging"
	"github.com/dcshock/pixelpipe/pipeline"
	"github.com/dcshock/pixelpipe/record"
)

// counter returns the value of the counter family name whose labels match.
func counter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func closed(start, end, brk float64) record.Segment {
	s := record.Segment{Start: start, End: end}
	s.Close(brk)
	return s
}

func TestMetrics_PixelOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ctx := context.Background()
	px := &pipeline.Pixel{Row: 1, Col: 2}

	ok := &pipeline.Slots{Record: map[string][]record.Segment{
		"ccdc": {closed(1, 10, 11), {Start: 12, End: 20}},
	}}
	require.NoError(t, m.AfterPixel(ctx, "run", px, ok, nil))
	empty := &pipeline.Slots{Record: map[string][]record.Segment{"ccdc": {}}}
	require.NoError(t, m.AfterPixel(ctx, "run", px, empty, nil))
	require.NoError(t, m.AfterPixel(ctx, "run", px, nil, errors.New("boom")))
	m.RecordSkipped()

	assert.Equal(t, 1.0, counter(t, reg, "pixelpipe_pixels_total", map[string]string{"result": ResultSuccess}))
	assert.Equal(t, 1.0, counter(t, reg, "pixelpipe_pixels_total", map[string]string{"result": ResultEmpty}))
	assert.Equal(t, 1.0, counter(t, reg, "pixelpipe_pixels_total", map[string]string{"result": ResultFailed}))
	assert.Equal(t, 1.0, counter(t, reg, "pixelpipe_pixels_total", map[string]string{"result": ResultSkipped}))
	assert.Equal(t, 2.0, counter(t, reg, "pixelpipe_segments_total", map[string]string{"slot": "ccdc"}))
	assert.Equal(t, 1.0, counter(t, reg, "pixelpipe_breaks_total", map[string]string{"slot": "ccdc"}))
}

func TestMetrics_Tasks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ctx := context.Background()
	px := &pipeline.Pixel{}

	require.NoError(t, m.AfterTask(ctx, "run", px, 0, "ndvi", nil, time.Millisecond))
	require.NoError(t, m.AfterTask(ctx, "run", px, 0, "ndvi", nil, time.Millisecond))
	require.NoError(t, m.AfterTask(ctx, "run", px, 1, "ccdc", errors.New("singular"), time.Millisecond))

	assert.Equal(t, 2.0, counter(t, reg, "pixelpipe_tasks_total", map[string]string{"task": "ndvi", "result": ResultSuccess}))
	assert.Equal(t, 1.0, counter(t, reg, "pixelpipe_tasks_total", map[string]string{"task": "ccdc", "result": ResultFailed}))

	families, err := reg.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, mf := range families {
		if mf.GetName() == "pixelpipe_task_duration_seconds" {
			for _, metric := range mf.GetMetric() {
				samples += metric.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, uint64(3), samples)
}

func TestLogObserver(t *testing.T) {
	tl := logging.NewTestLogger()
	o := NewLogObserver(tl.Logger)
	ctx := context.Background()
	px := &pipeline.Pixel{Row: 3, Col: 9, Dates: []float64{1, 2}}

	require.NoError(t, o.BeforePixel(ctx, "run-1", px))
	require.NoError(t, o.BeforeTask(ctx, "run-1", px, 0, "ccdc"))
	require.NoError(t, o.AfterTask(ctx, "run-1", px, 0, "ccdc", errors.New("singular"), time.Millisecond))
	require.NoError(t, o.AfterPixel(ctx, "run-1", px, nil, errors.New("task failed")))

	tl.AssertLogged(t, zapcore.DebugLevel, "pixel started")
	tl.AssertLogged(t, logging.TraceLevel, "task started")
	tl.AssertLogged(t, zapcore.WarnLevel, "task failed")
	tl.AssertLogged(t, zapcore.WarnLevel, "pixel failed")

	entries := tl.FilterMessage("pixel failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(3), fields["row"])
	assert.Equal(t, int64(9), fields["col"])
	assert.Equal(t, "run-1", fields["run_id"])
}

func TestObservers_WithPipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	tl := logging.NewTestLogger()

	run := func(ctx context.Context, v *pipeline.View) (*pipeline.Output, error) {
		o := pipeline.NewOutput()
		o.Record["seg"] = []record.Segment{{Start: v.Dates[0], End: v.Dates[len(v.Dates)-1], NObs: len(v.Dates)}}
		return o, nil
	}
	p, err := pipeline.New("test", []string{"red"}, []pipeline.Task{{
		Spec: pipeline.Spec{
			Name:    "seg",
			Require: pipeline.Contract{Data: []string{"red"}},
			Output:  pipeline.Contract{Record: []string{"seg"}},
		},
		Run: run,
	}})
	require.NoError(t, err)

	px := &pipeline.Pixel{Dates: []float64{1, 2, 3}, Data: map[string][]float64{"red": {1, 2, 3}}}
	opts := &pipeline.RunOptions{Observer: pipeline.MultiObserver{NewLogObserver(tl.Logger), m}, RunID: "r"}
	_, err = p.RunPixel(context.Background(), px, opts)
	require.NoError(t, err)

	assert.Equal(t, 1.0, counter(t, reg, "pixelpipe_pixels_total", map[string]string{"result": ResultSuccess}))
	assert.Equal(t, 1.0, counter(t, reg, "pixelpipe_tasks_total", map[string]string{"task": "seg", "result": ResultSuccess}))
	tl.AssertLogged(t, zapcore.DebugLevel, "pixel finished")
}
