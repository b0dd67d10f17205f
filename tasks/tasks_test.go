package tasks

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcshock/pixelpipe/config"
	"github.com/dcshock/pixelpipe/pipeline"
)

const day0 = 730120.0

const pipelineYAML = `
version: "0.1"
data:
  datasets:
    landsat:
      reader: csv
      band_names: [red, nir]
      min_values: [0, 0]
      max_values: [10000, 10000]
      input_file: pixels.csv
pipeline:
  tasks:
    ndvi:
      task: norm_diff
      require: {data: [nir, red]}
      output: {data: [ndvi]}
      config: {a: nir, b: red}
    refit:
      task: robust_refit
      require: {data: [red], record: [ccdc]}
      output: {record: [ccdc_rlm]}
      config: {design: "1 + x"}
    segment:
      task: ccdc
      require: {data: [red]}
      output: {record: [ccdc]}
      config:
        consecutive: 5
        design: "1 + x"
        min_obs: 8
        estimator: ols
`

// trend returns n observations 16 days apart of a gentle trend with
// alternating +/-0.5 noise.
func trend(n int) ([]float64, []float64) {
	dates := make([]float64, n)
	y := make([]float64, n)
	for i := range dates {
		dates[i] = day0 + 16*float64(i)
		noise := 0.5
		if i%2 == 1 {
			noise = -0.5
		}
		y[i] = 100 + 0.05*float64(i) + noise
	}
	return dates, y
}

func buildPipeline(t *testing.T, yml string) *pipeline.Pipeline {
	t.Helper()
	cfg, err := config.Parse([]byte(yml))
	require.NoError(t, err)
	p, err := config.BuildPipeline(NewRegistry(), cfg)
	require.NoError(t, err)
	return p
}

func TestRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{CCDC, EWMA, NormDiff, RobustRefit}, NewRegistry().Names())
}

func TestPipeline_EndToEnd(t *testing.T) {
	p := buildPipeline(t, pipelineYAML)
	var order []string
	for _, task := range p.Tasks {
		order = append(order, task.Name)
	}
	assert.Equal(t, []string{"ndvi", "segment", "refit"}, order)

	dates, red := trend(40)
	for i := 25; i < 30; i++ {
		red[i] += 50
	}
	nir := make([]float64, len(red))
	for i := range nir {
		nir[i] = 3 * red[i]
	}
	px := &pipeline.Pixel{Row: 4, Col: 7, Dates: dates, Data: map[string][]float64{"red": red, "nir": nir}}

	out, err := p.RunPixel(context.Background(), px, nil)
	require.NoError(t, err)

	for _, v := range out.Data["ndvi"] {
		assert.InDelta(t, 0.5, v, 1e-12)
	}

	segs := out.Record["ccdc"]
	require.Len(t, segs, 2)
	assert.Equal(t, dates[24], segs[0].End)
	assert.Equal(t, dates[25], segs[0].BreakAt())
	assert.Equal(t, dates[30], segs[1].Start)
	assert.True(t, segs[1].Open())
	for _, s := range segs {
		assert.Equal(t, 4, s.Row)
		assert.Equal(t, 7, s.Col)
	}

	refit := out.Record["ccdc_rlm"]
	require.Len(t, refit, 2)
	assert.Equal(t, segs[0].Start, refit[0].Start)
	assert.Equal(t, segs[0].Break, refit[0].Break)
	fitted := func(coef []float64, at float64) float64 { return coef[0] + coef[1]*at }
	assert.InDelta(t, fitted(segs[0].Coef[0], dates[10]), fitted(refit[0].Coef[0], dates[10]), 0.5)
}

func TestCCDC_ShippedDefaults(t *testing.T) {
	yml := `
data:
  datasets:
    landsat:
      band_names: [red, nir]
      min_values: [0, 0]
      max_values: [10000, 10000]
pipeline:
  tasks:
    segment:
      task: ccdc
      require: {data: [red, nir]}
      output: {record: [ccdc]}
`
	p := buildPipeline(t, yml)
	dates, red := trend(40)
	nir := make([]float64, len(red))
	for i := range nir {
		nir[i] = 3000 - 0.5*float64(i)
		if i%2 == 0 {
			nir[i] += 0.4
		}
	}

	t.Run("stable", func(t *testing.T) {
		out, err := p.RunPixel(context.Background(), &pipeline.Pixel{
			Dates: dates, Data: map[string][]float64{"red": red, "nir": nir},
		}, nil)
		require.NoError(t, err)
		segs := out.Record["ccdc"]
		require.Len(t, segs, 1)
		assert.True(t, segs[0].Open())
		assert.Equal(t, 40, segs[0].NObs)
	})

	t.Run("break", func(t *testing.T) {
		jumped := append([]float64(nil), red...)
		for i := 25; i < 30; i++ {
			jumped[i] += 50
		}
		out, err := p.RunPixel(context.Background(), &pipeline.Pixel{
			Dates: dates, Data: map[string][]float64{"red": jumped, "nir": nir},
		}, nil)
		require.NoError(t, err)
		segs := out.Record["ccdc"]
		require.Len(t, segs, 2)
		assert.Equal(t, dates[24], segs[0].End)
		assert.Equal(t, dates[25], segs[0].BreakAt())
		assert.True(t, segs[1].Open())
		assert.Equal(t, dates[30], segs[1].Start)
	})
}

func TestPipeline_NoValidFitBandGivesEmptyRecords(t *testing.T) {
	yml := `
data:
  datasets:
    landsat:
      band_names: [red, nir]
pipeline:
  tasks:
    ndvi:
      task: norm_diff
      require: {data: [nir, red]}
      output: {data: [ndvi]}
      config: {a: nir, b: red}
    segment:
      task: ccdc
      require: {data: [ndvi]}
      output: {record: [ccdc]}
      config: {design: "1 + x", min_obs: 4}
`
	p := buildPipeline(t, yml)
	dates, nir := trend(20)
	red := make([]float64, len(nir))
	for i := range red {
		red[i] = math.NaN()
	}
	px := &pipeline.Pixel{Dates: dates, Data: map[string][]float64{"red": red, "nir": nir}}

	out, err := p.RunPixel(context.Background(), px, nil)
	require.NoError(t, err)
	segs, ok := out.Record["ccdc"]
	require.True(t, ok)
	assert.NotNil(t, segs)
	assert.Empty(t, segs)
}

func TestNormDiff(t *testing.T) {
	spec := pipeline.Spec{
		Name:    "ndvi",
		Type:    NormDiff,
		Require: pipeline.Contract{Data: []string{"nir", "red"}},
		Output:  pipeline.Contract{Data: []string{"ndvi"}},
		Config:  map[string]any{"a": "nir", "b": "red", "scale": "10000"},
	}
	run, err := newNormDiff(spec, pipeline.Env{})
	require.NoError(t, err)

	out, err := run(context.Background(), &pipeline.View{
		Dates: []float64{1, 2, 3, 4},
		Data: map[string][]float64{
			"nir": {3, 0, math.NaN(), 1},
			"red": {1, 0, 1, 3},
		},
	})
	require.NoError(t, err)
	got := out.Data["ndvi"]
	assert.InDelta(t, 5000, got[0], 1e-9)
	assert.True(t, math.IsNaN(got[1]))
	assert.True(t, math.IsNaN(got[2]))
	assert.InDelta(t, -5000, got[3], 1e-9)
}

func TestFactories_RejectBadConfig(t *testing.T) {
	data := pipeline.Contract{Data: []string{"red", "nir"}}
	rec := pipeline.Contract{Record: []string{"out"}}
	cases := []struct {
		name    string
		factory pipeline.Factory
		spec    pipeline.Spec
	}{
		{"norm_diff unknown key", newNormDiff, pipeline.Spec{
			Require: data, Output: pipeline.Contract{Data: []string{"x"}},
			Config: map[string]any{"a": "nir", "b": "red", "sclae": 2},
		}},
		{"norm_diff band not required", newNormDiff, pipeline.Spec{
			Require: data, Output: pipeline.Contract{Data: []string{"x"}},
			Config: map[string]any{"a": "swir1", "b": "red"},
		}},
		{"norm_diff record output", newNormDiff, pipeline.Spec{
			Require: data, Output: rec,
			Config: map[string]any{"a": "nir", "b": "red"},
		}},
		{"ccdc bad estimator", newCCDC, pipeline.Spec{
			Require: data, Output: rec, Config: map[string]any{"estimator": "huber"},
		}},
		{"ccdc bad design", newCCDC, pipeline.Spec{
			Require: data, Output: rec, Config: map[string]any{"design": "1 + y"},
		}},
		{"ccdc bad score", newCCDC, pipeline.Spec{
			Require: data, Output: rec, Config: map[string]any{"score": "median"},
		}},
		{"ccdc unknown test band", newCCDC, pipeline.Spec{
			Require: data, Output: rec, Config: map[string]any{"test_bands": []any{"blue"}},
		}},
		{"ccdc min_rmse length", newCCDC, pipeline.Spec{
			Require: pipeline.Contract{Data: []string{"red", "nir", "swir1"}}, Output: rec,
			Config: map[string]any{"min_rmse": []any{1, 2}},
		}},
		{"ccdc negative threshold", newCCDC, pipeline.Spec{
			Require: data, Output: rec, Config: map[string]any{"threshold": -1},
		}},
		{"ccdc zero consecutive", newCCDC, pipeline.Spec{
			Require: data, Output: rec, Config: map[string]any{"consecutive": 0},
		}},
		{"ccdc negative consecutive", newCCDC, pipeline.Spec{
			Require: data, Output: rec, Config: map[string]any{"consecutive": -2},
		}},
		{"ccdc negative min_span", newCCDC, pipeline.Spec{
			Require: data, Output: rec, Config: map[string]any{"min_span": -1},
		}},
		{"ccdc data output", newCCDC, pipeline.Spec{
			Require: data, Output: pipeline.Contract{Data: []string{"x"}},
		}},
		{"ccdc screening band", newCCDC, pipeline.Spec{
			Require: data, Output: rec,
			Config: map[string]any{"screening": map[string]any{"green": "green", "swir1": "nir"}},
		}},
		{"refit no record", newRobustRefit, pipeline.Spec{Require: data, Output: rec}},
		{"ewma two bands", newEWMA, pipeline.Spec{Require: data, Output: rec}},
		{"ewma bad std", newEWMA, pipeline.Spec{
			Require: pipeline.Contract{Data: []string{"red"}}, Output: rec,
			Config: map[string]any{"std_type": "iqr"},
		}},
		{"ewma bad lambda", newEWMA, pipeline.Spec{
			Require: pipeline.Contract{Data: []string{"red"}}, Output: rec,
			Config: map[string]any{"lambda": 2},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.factory(tc.spec, pipeline.Env{})
			assert.Error(t, err)
		})
	}
}

func TestCCDC_MinRMSEFromRanges(t *testing.T) {
	raw := ccdcConfig{Design: "1 + x"}
	cfg, err := raw.build([]string{"red", "nir"}, pipeline.Env{Ranges: map[string][2]float64{
		"red": {0, 10000},
	}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, cfg.MinRMSE)

	raw.MinRMSE = []float64{5}
	cfg, err = raw.build([]string{"red", "nir"}, pipeline.Env{})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 5}, cfg.MinRMSE)
}

func TestCCDC_Options(t *testing.T) {
	raw := ccdcConfig{
		TestBands: []string{"nir"},
		Estimator: "lasso",
		Lambda:    0.1,
		Score:     "max",
		Screening: &screeningConfig{Green: "nir", SWIR1: "red"},
	}
	cfg, err := raw.build([]string{"red", "nir"}, pipeline.Env{})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, cfg.TestBands)
	assert.Zero(t, cfg.Consecutive, "unset falls back to the engine default")
	assert.NotNil(t, cfg.Formula)
	require.NotNil(t, cfg.Screen)
	assert.Equal(t, 1, cfg.Screen.Green)
	assert.Equal(t, 0, cfg.Screen.SWIR1)
}

func TestCCDC_Consecutive(t *testing.T) {
	spec := pipeline.Spec{
		Name:    "segment",
		Type:    CCDC,
		Require: pipeline.Contract{Data: []string{"red"}},
		Output:  pipeline.Contract{Record: []string{"ccdc"}},
		Config:  map[string]any{"consecutive": "3"},
	}
	var raw ccdcConfig
	require.NoError(t, decode(spec, &raw))
	cfg, err := raw.build(spec.Require.Data, pipeline.Env{})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Consecutive)
}

func TestEWMA_Task(t *testing.T) {
	spec := pipeline.Spec{
		Name:    "chart",
		Type:    EWMA,
		Require: pipeline.Contract{Data: []string{"ndvi"}},
		Output:  pipeline.Contract{Record: []string{"ewma"}},
		Config:  map[string]any{"std_type": "mr"},
	}
	run, err := newEWMA(spec, pipeline.Env{})
	require.NoError(t, err)

	dates := make([]float64, 40)
	y := make([]float64, 40)
	for i := range y {
		dates[i] = day0 + 16*float64(i)
		y[i] = 10
		if i >= 20 {
			y[i] = 20
		}
		if i%2 == 1 {
			y[i]++
		}
	}
	out, err := run(context.Background(), &pipeline.View{Dates: dates, Data: map[string][]float64{"ndvi": y}})
	require.NoError(t, err)
	segs := out.Record["ewma"]
	require.Len(t, segs, 2)
	assert.False(t, segs[0].Open())
	assert.True(t, segs[1].Open())

	_, err = run(context.Background(), &pipeline.View{
		Dates: []float64{1, 2},
		Data:  map[string][]float64{"ndvi": {1, math.NaN()}},
	})
	assert.True(t, pipeline.IsInsufficient(err))
}
