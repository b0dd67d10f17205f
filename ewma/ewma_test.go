package ewma

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alternating(n int, level func(i int) float64) ([]float64, []float64) {
	dates := make([]float64, n)
	y := make([]float64, n)
	for i := range y {
		dates[i] = 730120 + 16*float64(i)
		y[i] = level(i) + 1
		if i%2 == 1 {
			y[i] = level(i) - 1
		}
	}
	return dates, y
}

func TestSmooth(t *testing.T) {
	z := Smooth([]float64{10, 0}, 5, 0.5)
	assert.InDeltaSlice(t, []float64{7.5, 3.75}, z, 1e-12)
}

func TestBoundary_ConvergesToAsymptote(t *testing.T) {
	cl := Boundary(200, 2, 3, 0.2)
	for i := 1; i < len(cl); i++ {
		assert.GreaterOrEqual(t, cl[i], cl[i-1])
	}
	assert.InDelta(t, 3*2*math.Sqrt(0.2/1.8), cl[len(cl)-1], 1e-9)
	assert.InDelta(t, 3*2*0.2, cl[0], 1e-12)
}

func TestSampleSD_BiasCorrected(t *testing.T) {
	// sd(1..4) = 1.290994, c4(4) = 0.921318
	assert.InDelta(t, 1.290994/0.921318, SampleSD([]float64{1, 2, 3, 4}), 1e-5)
}

func TestMovingRangeSD(t *testing.T) {
	assert.InDelta(t, 2/1.128, MovingRangeSD([]float64{1, 3, 2, 5}, 2), 1e-12)
	assert.True(t, math.IsNaN(MovingRangeSD([]float64{1}, 2)))
}

func TestTest_StableSeries(t *testing.T) {
	_, y := alternating(40, func(int) float64 { return 10 })
	res, err := Test(y, Options{})
	require.NoError(t, err)
	assert.False(t, res.Signif)
	assert.InDelta(t, 10, res.Center, 1e-12)
	assert.Len(t, res.Process, 40)
}

func TestSegments_Stable(t *testing.T) {
	dates, y := alternating(40, func(int) float64 { return 10 })
	y[5] = math.NaN()
	segs, _, err := Segments(dates, y, Options{})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Open())
	assert.Equal(t, 39, segs[0].NObs)
	assert.Equal(t, dates[0], segs[0].Start)
	assert.Equal(t, dates[39], segs[0].End)
}

func TestSegments_Shift(t *testing.T) {
	dates, y := alternating(40, func(i int) float64 {
		if i < 20 {
			return 10
		}
		return 20
	})
	segs, res, err := Segments(dates, y, Options{Std: MR})
	require.NoError(t, err)
	require.True(t, res.Signif)
	require.Len(t, segs, 2)
	assert.False(t, segs[0].Open())
	assert.Equal(t, dates[res.Index], segs[0].BreakAt())
	assert.Equal(t, dates[res.Index], segs[1].Start)
	assert.True(t, segs[1].Open())
	assert.Equal(t, 40, segs[0].NObs+segs[1].NObs)
}

func TestTest_InvalidInput(t *testing.T) {
	_, err := Test([]float64{1}, Options{})
	assert.ErrorIs(t, err, ErrTooShort)

	_, err = Test([]float64{1, 2, 3}, Options{Lambda: 1.5})
	assert.Error(t, err)

	_, err = Test([]float64{1, 2, 3}, Options{Std: "IQR"})
	assert.Error(t, err)
}
