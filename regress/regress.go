// Package regress fits per-band linear models against a design matrix.
//
// Three estimators satisfy the Estimator contract: OLS (QR least squares),
// RLM (iteratively reweighted least squares with Tukey's biweight, which
// downweights large-residual observations such as unmasked clouds) and Lasso
// (coordinate descent with an unpenalized intercept). All are deterministic.
package regress

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingular is returned when the design is rank deficient for the
	// observations being fit.
	ErrSingular = errors.New("regress: singular design matrix")
	// ErrTooFewObservations is returned when there are fewer rows than columns.
	ErrTooFewObservations = errors.New("regress: fewer observations than coefficients")
)

// Model is a fitted linear model for one band.
type Model struct {
	Coef    []float64
	Resid   []float64
	Weights []float64 // final observation weights; all 1 for OLS
	RMSE    float64   // sqrt(sum(resid^2) / n), unweighted
	NObs    int
}

// Predict evaluates the model at one design row.
func (m *Model) Predict(row []float64) float64 {
	return floats.Dot(m.Coef, row)
}

// Estimator fits y against design X.
type Estimator interface {
	Fit(X mat.Matrix, y []float64) (*Model, error)
}

// Name returns a short label for an estimator, used in logs.
func Name(e Estimator) string {
	switch e.(type) {
	case OLS, *OLS:
		return "ols"
	case RLM, *RLM:
		return "rlm"
	case Lasso, *Lasso:
		return "lasso"
	default:
		return fmt.Sprintf("%T", e)
	}
}

func checkDims(X mat.Matrix, y []float64) (int, int, error) {
	n, p := X.Dims()
	if n != len(y) {
		return 0, 0, fmt.Errorf("regress: design has %d rows, target has %d", n, len(y))
	}
	if n < p {
		return 0, 0, ErrTooFewObservations
	}
	return n, p, nil
}

func newModel(X mat.Matrix, y, coef, weights []float64) *Model {
	n, _ := X.Dims()
	fitted := mat.NewVecDense(n, nil)
	fitted.MulVec(X, mat.NewVecDense(len(coef), coef))
	resid := make([]float64, n)
	var rss float64
	for i := range resid {
		resid[i] = y[i] - fitted.AtVec(i)
		rss += resid[i] * resid[i]
	}
	return &Model{
		Coef:    coef,
		Resid:   resid,
		Weights: weights,
		RMSE:    math.Sqrt(rss / float64(n)),
		NObs:    n,
	}
}

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
