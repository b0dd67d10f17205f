package ccdc

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/dcshock/pixelpipe/design"
	"github.com/dcshock/pixelpipe/record"
	"github.com/dcshock/pixelpipe/regress"
)

// RobustRefit refits every segment with a Tukey RLM over the observations
// inside [Start, End], keeping only the terms whose original coefficient is
// nonzero. The input records are not modified.
//
// Segments with too few observations for the retained terms, or whose
// refit is singular, are copied unchanged.
func RobustRefit(dates []float64, Y [][]float64, segs []record.Segment, f *design.Formula) ([]record.Segment, error) {
	out := record.CloneAll(segs)
	if len(segs) == 0 {
		return out, nil
	}
	if f == nil {
		return nil, errors.New("ccdc: refit needs a design")
	}
	for b, y := range Y {
		if len(y) != len(dates) {
			return nil, fmt.Errorf("ccdc: band %d has %d values for %d dates", b, len(y), len(dates))
		}
	}
	t, y := dropInvalid(dates, Y)
	ncol := f.NumCols()
	rlm := regress.RLM{}
	row := make([]float64, ncol)

	for s := range out {
		seg := &out[s]
		if len(seg.Coef) != len(y) {
			return nil, fmt.Errorf("ccdc: segment %d has %d bands, data has %d", s, len(seg.Coef), len(y))
		}
		if len(seg.RMSE) != len(y) {
			seg.RMSE = make([]float64, len(y))
		}
		var idx []int
		for i, d := range t {
			if seg.Contains(d) {
				idx = append(idx, i)
			}
		}
		for b := range y {
			coef := seg.Coef[b]
			if len(coef) != ncol {
				return nil, fmt.Errorf("ccdc: segment %d band %d has %d coefficients, design has %d", s, b, len(coef), ncol)
			}
			var cols []int
			for j, c := range coef {
				if c != 0 {
					cols = append(cols, j)
				}
			}
			if len(cols) == 0 || len(idx) < len(cols) {
				continue
			}
			X := mat.NewDense(len(idx), len(cols), nil)
			yb := make([]float64, len(idx))
			for r, i := range idx {
				f.Row(t[i], row)
				for k, j := range cols {
					X.Set(r, k, row[j])
				}
				yb[r] = y[b][i]
			}
			m, err := rlm.Fit(X, yb)
			if errors.Is(err, regress.ErrSingular) || errors.Is(err, regress.ErrTooFewObservations) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("ccdc: refit segment %d band %d: %w", s, b, err)
			}
			full := make([]float64, ncol)
			for k, j := range cols {
				full[j] = m.Coef[k]
			}
			seg.Coef[b] = full
			seg.RMSE[b] = m.RMSE
		}
	}
	return out, nil
}
