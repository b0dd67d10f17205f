package regress

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// constantColumn returns the index of a column whose entries are all equal
// and nonzero, or -1.
func constantColumn(X mat.Matrix) int {
	n, p := X.Dims()
	for j := 0; j < p; j++ {
		v := X.At(0, j)
		if v == 0 {
			continue
		}
		same := true
		for i := 1; i < n; i++ {
			if X.At(i, j) != v {
				same = false
				break
			}
		}
		if same {
			return j
		}
	}
	return -1
}

// standardizer maps design columns to a well-conditioned basis: each
// non-constant column is centered (when an intercept exists) and scaled to
// unit spread. Ordinal-day trends are nearly collinear with the intercept
// otherwise.
type standardizer struct {
	icol  int
	c     float64 // value held by the constant column
	mean  []float64
	scale []float64
}

func newStandardizer(X mat.Matrix, w []float64) *standardizer {
	n, p := X.Dims()
	s := &standardizer{icol: constantColumn(X), mean: make([]float64, p), scale: make([]float64, p)}
	if s.icol >= 0 {
		s.c = X.At(0, s.icol)
	}
	var wsum float64
	for i := 0; i < n; i++ {
		wsum += w[i]
	}
	for j := 0; j < p; j++ {
		s.scale[j] = 1
		if j == s.icol {
			continue
		}
		if s.icol >= 0 && wsum > 0 {
			var m float64
			for i := 0; i < n; i++ {
				m += w[i] * X.At(i, j)
			}
			s.mean[j] = m / wsum
		}
		var ss float64
		for i := 0; i < n; i++ {
			d := X.At(i, j) - s.mean[j]
			ss += d * d
		}
		if sd := math.Sqrt(ss / float64(n)); sd > 0 {
			s.scale[j] = sd
		}
	}
	return s
}

func (s *standardizer) apply(X mat.Matrix) *mat.Dense {
	n, p := X.Dims()
	out := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			out.Set(i, j, (X.At(i, j)-s.mean[j])/s.scale[j])
		}
	}
	return out
}

// restore maps coefficients in the standardized basis back to the original
// design columns.
func (s *standardizer) restore(b []float64) []float64 {
	out := make([]float64, len(b))
	var shift float64
	for j := range b {
		if j == s.icol {
			continue
		}
		out[j] = b[j] / s.scale[j]
		shift += out[j] * s.mean[j]
	}
	if s.icol >= 0 {
		out[s.icol] = b[s.icol] - shift/s.c
	}
	return out
}

// weightedLeastSquares solves min sum w_i (y_i - x_i b)^2.
func weightedLeastSquares(X mat.Matrix, y, w []float64) ([]float64, error) {
	n, p := X.Dims()
	std := newStandardizer(X, w)
	Z := std.apply(X)
	rhs := mat.NewVecDense(n, nil)
	active := 0
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		if sw > 0 {
			active++
		}
		rhs.SetVec(i, sw*y[i])
		row := Z.RawRowView(i)
		for j := range row {
			row[j] *= sw
		}
	}
	if active < p {
		return nil, ErrSingular
	}
	var qr mat.QR
	qr.Factorize(Z)
	if c := qr.Cond(); math.IsInf(c, 0) || math.IsNaN(c) || c > 1e12 {
		return nil, ErrSingular
	}
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, rhs); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, ErrSingular
		}
		return nil, err
	}
	b := make([]float64, p)
	for j := range b {
		b[j] = beta.AtVec(j)
	}
	return std.restore(b), nil
}
