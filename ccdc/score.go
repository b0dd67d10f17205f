package ccdc

import "math"

// Scorer reduces one observation's per-band residuals to a test statistic
// compared against Config.Threshold. Slices are aligned to the test bands;
// rmse is already floored.
type Scorer interface {
	Score(resid, rmse []float64) float64
}

// NormScorer is the Euclidean norm of RMSE-normalized absolute residuals,
// the YATSM statistic.
type NormScorer struct{}

// Score implements Scorer.
func (NormScorer) Score(resid, rmse []float64) float64 {
	var ss float64
	for i, r := range resid {
		z := math.Abs(r) / rmse[i]
		ss += z * z
	}
	return math.Sqrt(ss)
}

// MaxScorer is the largest RMSE-normalized absolute residual over the test
// bands; a break in any single band is enough.
type MaxScorer struct{}

// Score implements Scorer.
func (MaxScorer) Score(resid, rmse []float64) float64 {
	var m float64
	for i, r := range resid {
		m = math.Max(m, math.Abs(r)/rmse[i])
	}
	return m
}

// MeanScorer is the root mean square of normalized residuals, so the
// threshold does not grow with the number of test bands.
type MeanScorer struct{}

// Score implements Scorer.
func (MeanScorer) Score(resid, rmse []float64) float64 {
	if len(resid) == 0 {
		return 0
	}
	return NormScorer{}.Score(resid, rmse) / math.Sqrt(float64(len(resid)))
}
