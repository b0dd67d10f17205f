package ccdc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/dcshock/pixelpipe/design"
	"github.com/dcshock/pixelpipe/regress"
)

const (
	defaultScreenCrit = 400
	minScreenObs      = 5
)

// screen drops observations a robust fit over the whole series marks as
// cloud (bright green) or shadow (dark SWIR1). The fit uses an annual and a
// series-length harmonic so real change is not mistaken for noise. The
// series is returned unchanged when it is too short to fit.
func screen(t []float64, y [][]float64, s *Screen) ([]float64, [][]float64) {
	n := len(t)
	if n < minScreenObs {
		return t, y
	}
	crit := s.Crit
	if crit <= 0 {
		crit = defaultScreenCrit
	}
	nyear := math.Max(1, math.Ceil((t[n-1]-t[0])/design.DaysPerYear))
	w := 2 * math.Pi / design.DaysPerYear
	X := mat.NewDense(n, 5, nil)
	for i, d := range t {
		X.SetRow(i, []float64{
			1,
			math.Cos(w * d), math.Sin(w * d),
			math.Cos(w * d / nyear), math.Sin(w * d / nyear),
		})
	}

	rlm := regress.RLM{}
	green, err := rlm.Fit(X, y[s.Green])
	if err != nil {
		return t, y
	}
	swir, err := rlm.Fit(X, y[s.SWIR1])
	if err != nil {
		return t, y
	}

	keep := make([]int, 0, n)
	for i := range t {
		if green.Resid[i] < crit && swir.Resid[i] > -crit {
			keep = append(keep, i)
		}
	}
	if len(keep) == n {
		return t, y
	}
	ot := make([]float64, len(keep))
	oy := make([][]float64, len(y))
	for b := range y {
		oy[b] = make([]float64, len(keep))
	}
	for j, i := range keep {
		ot[j] = t[i]
		for b := range y {
			oy[b][j] = y[b][i]
		}
	}
	return ot, oy
}
