package regress

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// OLS is ordinary least squares.
type OLS struct{}

// Fit implements Estimator.
func (OLS) Fit(X mat.Matrix, y []float64) (*Model, error) {
	n, _, err := checkDims(X, y)
	if err != nil {
		return nil, err
	}
	w := ones(n)
	coef, err := weightedLeastSquares(X, y, w)
	if err != nil {
		return nil, err
	}
	return newModel(X, y, coef, w), nil
}

// TukeyC is the default biweight tuning constant (95% efficiency under
// normal errors).
const TukeyC = 4.685

// madNormalizer converts a median absolute deviation to a normal-consistent
// standard deviation.
const madNormalizer = 0.6745

// RLM is robust linear regression by IRLS with Tukey's biweight norm and a
// MAD scale estimate, re-estimated every iteration.
type RLM struct {
	C       float64 // tuning constant; 0 means TukeyC
	MaxIter int     // 0 means 50
	Tol     float64 // convergence on relative deviance change; 0 means 1e-8
}

// Fit implements Estimator.
func (r RLM) Fit(X mat.Matrix, y []float64) (*Model, error) {
	n, _, err := checkDims(X, y)
	if err != nil {
		return nil, err
	}
	c, maxIter, tol := r.C, r.MaxIter, r.Tol
	if c <= 0 {
		c = TukeyC
	}
	if maxIter <= 0 {
		maxIter = 50
	}
	if tol <= 0 {
		tol = 1e-8
	}

	w := ones(n)
	coef, err := weightedLeastSquares(X, y, w)
	if err != nil {
		return nil, err
	}
	m := newModel(X, y, coef, w)
	dev := deviance(m.Resid, w)
	for iter := 0; iter < maxIter; iter++ {
		scale := mad(m.Resid)
		if scale == 0 {
			break
		}
		next := make([]float64, n)
		for i, e := range m.Resid {
			next[i] = tukeyWeight(e/scale, c)
		}
		coef, err := weightedLeastSquares(X, y, next)
		if err != nil {
			// Too many observations rejected; keep the previous iterate.
			break
		}
		m = newModel(X, y, coef, next)
		nd := deviance(m.Resid, next)
		if math.Abs(nd-dev) <= tol*math.Max(math.Abs(dev), 1e-300) {
			break
		}
		dev = nd
	}
	return m, nil
}

func tukeyWeight(u, c float64) float64 {
	if math.Abs(u) > c {
		return 0
	}
	t := 1 - (u/c)*(u/c)
	return t * t
}

// mad is the median absolute deviation about zero, normalized to a
// standard deviation.
func mad(resid []float64) float64 {
	abs := make([]float64, len(resid))
	for i, e := range resid {
		abs[i] = math.Abs(e)
	}
	sort.Float64s(abs)
	n := len(abs)
	var med float64
	if n%2 == 1 {
		med = abs[n/2]
	} else {
		med = (abs[n/2-1] + abs[n/2]) / 2
	}
	return med / madNormalizer
}

func deviance(resid, w []float64) float64 {
	var d float64
	for i, e := range resid {
		d += w[i] * e * e
	}
	return d
}

// Lasso is L1-penalized least squares solved by cyclic coordinate descent on
// standardized columns, minimizing (1/2n)||y - Xb||^2 + Lambda*sum|b_j|.
// A constant column, when present, is left unpenalized.
type Lasso struct {
	Lambda  float64
	MaxIter int     // 0 means 1000
	Tol     float64 // max coefficient change; 0 means 1e-7
}

// Fit implements Estimator.
func (l Lasso) Fit(X mat.Matrix, y []float64) (*Model, error) {
	n, p, err := checkDims(X, y)
	if err != nil {
		return nil, err
	}
	maxIter, tol := l.MaxIter, l.Tol
	if maxIter <= 0 {
		maxIter = 1000
	}
	if tol <= 0 {
		tol = 1e-7
	}
	w := ones(n)
	std := newStandardizer(X, w)
	Z := std.apply(X)

	var ymean float64
	if std.icol >= 0 {
		for _, v := range y {
			ymean += v
		}
		ymean /= float64(n)
	}
	resid := make([]float64, n)
	for i := range resid {
		resid[i] = y[i] - ymean
	}

	// column squared norms / n
	norm := make([]float64, p)
	for j := 0; j < p; j++ {
		if j == std.icol {
			continue
		}
		var s float64
		for i := 0; i < n; i++ {
			s += Z.At(i, j) * Z.At(i, j)
		}
		norm[j] = s / float64(n)
	}

	b := make([]float64, p)
	for iter := 0; iter < maxIter; iter++ {
		maxDelta := 0.0
		for j := 0; j < p; j++ {
			if j == std.icol || norm[j] == 0 {
				continue
			}
			var rho float64
			for i := 0; i < n; i++ {
				rho += Z.At(i, j) * (resid[i] + Z.At(i, j)*b[j])
			}
			rho /= float64(n)
			nb := softThreshold(rho, l.Lambda) / norm[j]
			if d := nb - b[j]; d != 0 {
				for i := 0; i < n; i++ {
					resid[i] -= Z.At(i, j) * d
				}
				maxDelta = math.Max(maxDelta, math.Abs(d))
				b[j] = nb
			}
		}
		if maxDelta < tol {
			break
		}
	}
	if std.icol >= 0 {
		// standardized non-constant columns are centered, so the intercept
		// carries the mean of y
		b[std.icol] = ymean / std.c
	}
	return newModel(X, y, std.restore(b), w), nil
}

func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}
