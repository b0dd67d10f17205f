package ccdc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcshock/pixelpipe/design"
	"github.com/dcshock/pixelpipe/record"
	"github.com/dcshock/pixelpipe/regress"
)

const day0 = 730120.0

// series returns n observations 16 days apart of a gentle trend with
// alternating +/-0.5 noise.
func series(n int) ([]float64, []float64) {
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

// twoBands returns series(n) and a second band with its own level, slope
// and +/-0.3 noise.
func twoBands(n int) ([]float64, [][]float64) {
	dates, red := series(n)
	nir := make([]float64, n)
	for i := range nir {
		noise := 0.3
		if i%2 == 1 {
			noise = -0.3
		}
		nir[i] = 300 - 0.02*float64(i) + noise
	}
	return dates, [][]float64{red, nir}
}

func trendConfig(t *testing.T) Config {
	t.Helper()
	f, err := design.Lookup("1 + x")
	require.NoError(t, err)
	return Config{
		Consecutive: 5,
		Threshold:   DefaultThreshold,
		MinObs:      8,
		Formula:     f,
		Estimator:   regress.OLS{},
	}
}

func TestRun_DetectsBreak(t *testing.T) {
	dates, y := series(40)
	for i := 25; i < 30; i++ {
		y[i] += 10 * 0.5 * 10
	}

	segs, err := Run(dates, [][]float64{y}, trendConfig(t))
	require.NoError(t, err)
	require.Len(t, segs, 2)

	first := segs[0]
	assert.Equal(t, dates[0], first.Start)
	assert.Equal(t, dates[24], first.End)
	require.False(t, first.Open())
	assert.Equal(t, dates[25], first.BreakAt())
	assert.Equal(t, 25, first.NObs)

	second := segs[1]
	assert.True(t, second.Open())
	assert.Equal(t, dates[30], second.Start)
	assert.Equal(t, dates[39], second.End)
	assert.Equal(t, 10, second.NObs)

	assert.Less(t, first.End, first.BreakAt())
	assert.LessOrEqual(t, first.BreakAt(), second.Start)
}

func TestRun_StableSeriesIsOneOpenSegment(t *testing.T) {
	dates, y := series(40)
	cfg := trendConfig(t)
	cfg.Estimator = nil // default RLM

	segs, err := Run(dates, [][]float64{y}, cfg)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Open())
	assert.Equal(t, 40, segs[0].NObs)
	assert.InDelta(t, 0.5, segs[0].RMSE[0], 0.1)
	assert.Len(t, segs[0].Coef[0], 2)
}

func TestRun_DefaultConfigDetectsSingleBreak(t *testing.T) {
	dates, Y := twoBands(40)
	for i := 25; i < 30; i++ {
		Y[0][i] += 50
	}

	segs, err := Run(dates, Y, Config{})
	require.NoError(t, err)
	require.Len(t, segs, 2)

	first := segs[0]
	require.False(t, first.Open())
	assert.Equal(t, dates[0], first.Start)
	assert.Equal(t, dates[24], first.End)
	assert.Equal(t, dates[25], first.BreakAt())
	assert.Len(t, first.Coef, 2)
	assert.Len(t, first.Coef[0], 4)

	second := segs[1]
	assert.True(t, second.Open())
	assert.Equal(t, dates[30], second.Start)
	assert.Equal(t, dates[39], second.End)
}

func TestRun_DefaultConfigStableSeries(t *testing.T) {
	dates, Y := twoBands(80)

	segs, err := Run(dates, Y, Config{})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Open())
	assert.Equal(t, dates[0], segs[0].Start)
	assert.Equal(t, 80, segs[0].NObs)
}

func TestRun_TrainingNeedsAYearForSeasonalDesign(t *testing.T) {
	// 20 observations span 304 days: enough for MinObs, not for a year.
	dates, y := series(20)
	segs, err := Run(dates, [][]float64{y}, Config{})
	require.NoError(t, err)
	assert.Empty(t, segs)

	segs, err = Run(dates, [][]float64{y}, Config{MinSpan: 250})
	require.NoError(t, err)
	assert.NotEmpty(t, segs)
}

func TestRun_InfIsInvalid(t *testing.T) {
	dates, y := series(40)
	y[5] = math.Inf(1)
	y[9] = math.Inf(-1)
	segs, err := Run(dates, [][]float64{y}, trendConfig(t))
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 38, segs[0].NObs)
}

func TestRun_IsDeterministic(t *testing.T) {
	dates, y := series(40)
	for i := 25; i < 30; i++ {
		y[i] += 50
	}
	cfg := trendConfig(t)
	a, err := Run(dates, [][]float64{y}, cfg)
	require.NoError(t, err)
	b, err := Run(dates, [][]float64{y}, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRun_BreakNearEndKeepsRunInFinalSegment(t *testing.T) {
	dates, y := series(40)
	for i := 33; i < 40; i++ {
		y[i] += 50
	}
	segs, err := Run(dates, [][]float64{y}, trendConfig(t))
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, dates[33], segs[0].BreakAt())
	assert.Equal(t, dates[32], segs[0].End)

	last := segs[1]
	assert.True(t, last.Open())
	assert.Equal(t, dates[33], last.Start)
	assert.Equal(t, dates[39], last.End)
	assert.Equal(t, 7, last.NObs)
}

func TestRun_InterruptedAnomaliesAreIgnored(t *testing.T) {
	dates, y := series(40)
	for _, i := range []int{20, 21, 22, 24, 25} {
		y[i] += 50
	}
	segs, err := Run(dates, [][]float64{y}, trendConfig(t))
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Open())
	assert.Equal(t, 35, segs[0].NObs)
}

func TestRun_AllInvalid(t *testing.T) {
	dates, _ := series(10)
	y := make([]float64, 10)
	for i := range y {
		y[i] = math.NaN()
	}
	_, err := Run(dates, [][]float64{y}, trendConfig(t))
	assert.ErrorIs(t, err, ErrInsufficientObservations)
}

func TestRun_TooShortYieldsNoSegments(t *testing.T) {
	dates, y := series(5)
	segs, err := Run(dates, [][]float64{y}, trendConfig(t))
	require.NoError(t, err)
	assert.NotNil(t, segs)
	assert.Empty(t, segs)
}

func TestRun_DropsInvalidObservations(t *testing.T) {
	dates, y := series(40)
	y[3] = math.NaN()
	y[17] = math.NaN()
	segs, err := Run(dates, [][]float64{y}, trendConfig(t))
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 38, segs[0].NObs)
}

func TestRun_RejectsBadInput(t *testing.T) {
	dates, y := series(10)

	_, err := Run(dates, [][]float64{y[:5]}, trendConfig(t))
	assert.Error(t, err)

	unsorted := append([]float64(nil), dates...)
	unsorted[3], unsorted[4] = unsorted[4], unsorted[3]
	_, err = Run(unsorted, [][]float64{y}, trendConfig(t))
	assert.Error(t, err)

	cfg := trendConfig(t)
	cfg.TestBands = []int{2}
	_, err = Run(dates, [][]float64{y}, cfg)
	assert.Error(t, err)
}

func TestConfig_Defaults(t *testing.T) {
	p, err := Config{}.resolve(3)
	require.NoError(t, err)
	assert.Equal(t, 4, p.ncoef)
	assert.Equal(t, 6, p.MinObs)
	assert.Equal(t, design.DaysPerYear, p.MinSpan)
	assert.Equal(t, DefaultConsecutive, p.Consecutive)
	assert.Equal(t, DefaultThreshold, p.Threshold)
	assert.Equal(t, []int{0, 1, 2}, p.TestBands)
	assert.IsType(t, regress.RLM{}, p.Estimator)
	assert.IsType(t, NormScorer{}, p.Scorer)
}

func TestConfig_MinSpan(t *testing.T) {
	f, err := design.Lookup("1 + x")
	require.NoError(t, err)
	p, err := Config{Formula: f}.resolve(1)
	require.NoError(t, err)
	assert.Zero(t, p.MinSpan, "no seasonal term, no minimum span")

	p, err = Config{MinSpan: 200}.resolve(1)
	require.NoError(t, err)
	assert.Equal(t, 200.0, p.MinSpan)

	_, err = Config{MinSpan: -1}.resolve(1)
	assert.Error(t, err)
}

func TestScorers(t *testing.T) {
	resid := []float64{3, -4}
	rmse := []float64{1, 1}
	assert.InDelta(t, 5, NormScorer{}.Score(resid, rmse), 1e-12)
	assert.InDelta(t, 4, MaxScorer{}.Score(resid, rmse), 1e-12)
	assert.InDelta(t, 5/math.Sqrt2, MeanScorer{}.Score(resid, rmse), 1e-12)
}

func TestScreen_DropsCloudAndShadow(t *testing.T) {
	n := 30
	dates := make([]float64, n)
	green := make([]float64, n)
	swir := make([]float64, n)
	for i := range dates {
		dates[i] = day0 + 16*float64(i)
		green[i] = 800 + float64(i%3)
		swir[i] = 1500 - float64(i%3)
	}
	green[7] += 2000
	swir[12] -= 2000

	ts, ys := screen(dates, [][]float64{green, swir}, &Screen{Green: 0, SWIR1: 1})
	require.Len(t, ts, n-2)
	assert.NotContains(t, ts, dates[7])
	assert.NotContains(t, ts, dates[12])
	assert.Len(t, ys[0], n-2)
	assert.Len(t, ys[1], n-2)
}

func TestRobustRefit_DownweightsOutlier(t *testing.T) {
	dates, y := series(40)
	y[10] += 50

	cfg := trendConfig(t)
	segs, err := Run(dates, [][]float64{y}, cfg)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	before := record.CloneAll(segs)

	out, err := RobustRefit(dates, [][]float64{y}, segs, cfg.Formula)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, before, segs, "input records must not change")

	row := cfg.Formula.Row(dates[20], nil)
	m := regress.Model{Coef: out[0].Coef[0]}
	assert.InDelta(t, 100+0.05*20, m.Predict(row), 1)
	assert.Equal(t, segs[0].Start, out[0].Start)
	assert.Equal(t, segs[0].End, out[0].End)
}

func TestRobustRefit_Empty(t *testing.T) {
	out, err := RobustRefit(nil, nil, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
