// Package ewma implements the exponentially weighted moving average control
// chart test for a structural break in a single series.
package ewma

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/dcshock/pixelpipe/record"
)

// StdType selects how the process standard deviation is estimated.
type StdType string

const (
	// SD is the c4-corrected sample standard deviation.
	SD StdType = "SD"
	// MR is the moving range estimate.
	MR StdType = "MR"
)

const (
	DefaultLambda = 0.2
	DefaultCrit   = 3.0
)

// ErrTooShort is returned for series with fewer than two observations.
var ErrTooShort = errors.New("ewma: need at least two observations")

// d2[n] is the expected range of n standard normal variables.
var d2 = [...]float64{
	math.NaN(), math.NaN(), 1.128, 1.693, 2.059, 2.326, 2.534, 2.704,
	2.847, 2.970, 3.078, 3.173, 3.258, 3.336, 3.407, 3.472,
	3.532, 3.588, 3.640, 3.689, 3.735, 3.778, 3.819, 3.858,
	3.895, 3.931,
}

// Options parameterize Test. Zero values select defaults.
type Options struct {
	Lambda float64 // memory, in (0, 1]
	Crit   float64 // control limit in standard deviations
	Std    StdType
}

func (o Options) withDefaults() (Options, error) {
	if o.Lambda == 0 {
		o.Lambda = DefaultLambda
	}
	if o.Lambda < 0 || o.Lambda > 1 {
		return o, fmt.Errorf("ewma: lambda %v outside (0, 1]", o.Lambda)
	}
	if o.Crit == 0 {
		o.Crit = DefaultCrit
	}
	if o.Crit < 0 {
		return o, fmt.Errorf("ewma: crit %v must be positive", o.Crit)
	}
	switch o.Std {
	case "":
		o.Std = SD
	case SD, MR:
	default:
		return o, fmt.Errorf("ewma: unknown std type %q", o.Std)
	}
	return o, nil
}

// Result is the outcome of Test.
type Result struct {
	Process []float64
	Center  float64
	StdDev  float64
	// Index is the first control-limit violation when Signif, otherwise
	// the index of the largest absolute process value.
	Index  int
	Score  float64
	Signif bool
}

// Test runs the EWMA chart over y, which must be in time order with no
// missing values.
func Test(y []float64, opts Options) (*Result, error) {
	if len(y) < 2 {
		return nil, ErrTooShort
	}
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	center := stat.Mean(y, nil)
	var sd float64
	if o.Std == MR {
		sd = MovingRangeSD(y, 2)
	} else {
		sd = SampleSD(y)
	}
	process := Smooth(y, center, o.Lambda)
	limit := Boundary(len(y), sd, o.Crit, o.Lambda)

	res := &Result{Process: process, Center: center, StdDev: sd}
	for i, z := range process {
		if math.Abs(z-center) > limit[i] {
			res.Index, res.Score, res.Signif = i, z, true
			return res, nil
		}
	}
	for i, z := range process {
		if math.Abs(z) > math.Abs(process[res.Index]) {
			res.Index = i
		}
	}
	res.Score = process[res.Index]
	return res, nil
}

// Smooth returns the EWMA process z[i] = lambda*y[i] + (1-lambda)*z[i-1]
// seeded with start.
func Smooth(y []float64, start, lambda float64) []float64 {
	z := make([]float64, len(y))
	prev := start
	for i, v := range y {
		prev = lambda*v + (1-lambda)*prev
		z[i] = prev
	}
	return z
}

// Boundary returns the control limit half-width at each of n steps.
func Boundary(n int, sd, crit, lambda float64) []float64 {
	cl := make([]float64, n)
	for i := range cl {
		k := float64(i + 1)
		cl[i] = crit * sd * math.Sqrt(lambda/(2-lambda)*(1-math.Pow(1-lambda, 2*k)))
	}
	return cl
}

// SampleSD is the sample standard deviation divided by the c4 bias
// correction for normal data.
func SampleSD(y []float64) float64 {
	return stat.StdDev(y, nil) / c4(float64(len(y)))
}

func c4(n float64) float64 {
	a, _ := math.Lgamma(n / 2)
	b, _ := math.Lgamma((n - 1) / 2)
	return math.Sqrt(2/(n-1)) * math.Exp(a-b)
}

// MovingRangeSD estimates the standard deviation from the mean range of
// windows of k consecutive observations. k is clamped to [2, 25].
func MovingRangeSD(y []float64, k int) float64 {
	k = max(2, min(k, len(d2)-1))
	n := len(y)
	if n < k {
		return math.NaN()
	}
	var d float64
	for i := 0; i+k <= n; i++ {
		lo, hi := y[i], y[i]
		for _, v := range y[i+1 : i+k] {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		d += hi - lo
	}
	return d / float64(n-k+1) / d2[k]
}

// Segments runs Test over the valid observations of y and describes the
// result as segment records: one open segment when there is no break,
// otherwise a closed segment ending before the first violation and an open
// one starting at it. Coef[0] holds the segment mean and RMSE the segment
// standard deviation.
//
// A violation at the first observation cannot split the series, so the
// earliest violation after it is used.
func Segments(dates, y []float64, opts Options) ([]record.Segment, *Result, error) {
	if len(dates) != len(y) {
		return nil, nil, fmt.Errorf("ewma: %d dates for %d values", len(dates), len(y))
	}
	var t, v []float64
	for i, x := range y {
		if !math.IsNaN(x) && !math.IsNaN(dates[i]) {
			t = append(t, dates[i])
			v = append(v, x)
		}
	}
	res, err := Test(v, opts)
	if err != nil {
		return nil, nil, err
	}
	split := -1
	if res.Signif {
		split = res.Index
		if split == 0 {
			split = firstViolation(res, v, opts, 1)
		}
	}
	if split <= 0 {
		return []record.Segment{summarize(t, v)}, res, nil
	}
	before := summarize(t[:split], v[:split])
	before.Close(t[split])
	return []record.Segment{before, summarize(t[split:], v[split:])}, res, nil
}

func firstViolation(res *Result, y []float64, opts Options, from int) int {
	o, _ := opts.withDefaults()
	limit := Boundary(len(y), res.StdDev, o.Crit, o.Lambda)
	for i := from; i < len(res.Process); i++ {
		if math.Abs(res.Process[i]-res.Center) > limit[i] {
			return i
		}
	}
	return -1
}

func summarize(t, y []float64) record.Segment {
	var sd float64
	if len(y) > 1 {
		sd = stat.StdDev(y, nil)
	}
	return record.Segment{
		Start: t[0],
		End:   t[len(t)-1],
		Coef:  [][]float64{{stat.Mean(y, nil)}},
		RMSE:  []float64{sd},
		NObs:  len(y),
	}
}
