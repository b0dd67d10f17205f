package ccdc

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/dcshock/pixelpipe/record"
	"github.com/dcshock/pixelpipe/regress"
)

// State is a segmentation state machine state.
type State int

const (
	ColdStart State = iota
	Monitoring
	BreakDetected
	Done
)

func (s State) String() string {
	switch s {
	case ColdStart:
		return "COLD_START"
	case Monitoring:
		return "MONITORING"
	case BreakDetected:
		return "BREAK_DETECTED"
	case Done:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Run segments one pixel. dates are ordinal days in non-decreasing order;
// Y[b][i] is band b at dates[i], NaN when invalid. Observations invalid in
// any band are dropped before segmentation.
//
// Records are returned ordered by time. The only error for well-formed
// input is ErrInsufficientObservations when nothing is valid.
func Run(dates []float64, Y [][]float64, cfg Config) ([]record.Segment, error) {
	if len(Y) == 0 {
		return nil, errors.New("ccdc: no bands")
	}
	for b, y := range Y {
		if len(y) != len(dates) {
			return nil, fmt.Errorf("ccdc: band %d has %d values for %d dates", b, len(y), len(dates))
		}
	}
	for i := 1; i < len(dates); i++ {
		if dates[i] < dates[i-1] {
			return nil, fmt.Errorf("ccdc: dates not sorted at index %d", i)
		}
	}
	p, err := cfg.resolve(len(Y))
	if err != nil {
		return nil, err
	}

	t, y := dropInvalid(dates, Y)
	if len(t) == 0 {
		return nil, ErrInsufficientObservations
	}
	if p.Screen != nil {
		t, y = screen(t, y, p.Screen)
	}
	X, err := p.Formula.Matrix(t)
	if err != nil {
		return nil, err
	}
	e := &engine{p: p, t: t, y: y, X: X}
	return e.run()
}

func dropInvalid(dates []float64, Y [][]float64) ([]float64, [][]float64) {
	keep := make([]int, 0, len(dates))
	for i, d := range dates {
		if math.IsNaN(d) {
			continue
		}
		ok := true
		for _, band := range Y {
			if !record.Valid(band[i]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	t := make([]float64, len(keep))
	y := make([][]float64, len(Y))
	for b := range Y {
		y[b] = make([]float64, len(keep))
	}
	for j, i := range keep {
		t[j] = dates[i]
		for b := range Y {
			y[b][j] = Y[b][i]
		}
	}
	return t, y
}

type engine struct {
	p *params
	t []float64
	y [][]float64
	X *mat.Dense

	state State
	segs  []record.Segment
	// runStart is the first observation of the anomalous run that closed
	// the last segment.
	runStart int
}

// segment is the active model while monitoring.
type segment struct {
	members []int
	models  []*regress.Model
	fitted  int // len(members) at the last fit
}

func (e *engine) run() ([]record.Segment, error) {
	n := len(e.t)
	start := 0
	e.state = ColdStart
	for e.state != Done {
		switch e.state {
		case ColdStart:
			seg, next, err := e.train(start)
			if err != nil {
				return nil, err
			}
			if seg == nil {
				if err := e.tail(start); err != nil {
					return nil, err
				}
				e.state = Done
				continue
			}
			after, err := e.monitor(seg, next)
			if err != nil {
				return nil, err
			}
			if after < 0 {
				e.state = Done
				continue
			}
			start = after
			if start >= n {
				if err := e.tail(start); err != nil {
					return nil, err
				}
				e.state = Done
			}
		default:
			e.state = Done
		}
	}
	if e.segs == nil {
		e.segs = []record.Segment{}
	}
	return e.segs, nil
}

// train looks for a stable training window starting at or after start. It
// returns nil when the series is exhausted first.
func (e *engine) train(start int) (*segment, int, error) {
	n := len(e.t)
	lo := start
	hi := lo + e.p.MinObs
	for hi <= n {
		if e.p.MinSpan > 0 && e.t[hi-1]-e.t[lo] <= e.p.MinSpan {
			hi++
			continue
		}
		members := seq(lo, hi)
		models, err := e.fit(members)
		if errors.Is(err, regress.ErrSingular) {
			hi++
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		if e.score(models, lo) > e.p.Threshold || e.score(models, hi-1) > e.p.Threshold {
			lo++
			hi = lo + e.p.MinObs
			continue
		}
		return &segment{members: members, models: models, fitted: len(members)}, hi, nil
	}
	return nil, 0, nil
}

// monitor tests observations from index next onward. It returns the index
// that seeds the next cold start, or -1 when the series ran out.
func (e *engine) monitor(seg *segment, next int) (int, error) {
	e.state = Monitoring
	var run []int
	for i := next; i < len(e.t); i++ {
		if e.score(seg.models, i) > e.p.Threshold {
			run = append(run, i)
			if len(run) < e.p.Consecutive {
				continue
			}
			e.state = BreakDetected
			rec, err := e.finalize(seg)
			if err != nil {
				return 0, err
			}
			rec.Close(e.t[run[0]])
			e.segs = append(e.segs, rec)
			e.runStart = run[0]
			e.state = ColdStart
			return i + 1, nil
		}
		// An interrupted run was noise; drop it.
		run = run[:0]
		seg.members = append(seg.members, i)
		if len(seg.members)-seg.fitted >= e.p.RefitEvery {
			if err := e.refit(seg); err != nil {
				return 0, err
			}
		}
	}
	rec, err := e.finalize(seg)
	if err != nil {
		return 0, err
	}
	e.segs = append(e.segs, rec)
	return -1, nil
}

// tail handles observations left after the last break that cannot train a
// model. They form a final open segment, which takes the anomalous run back
// when fewer than MinObs observations follow it. A pixel that never trained
// yields no segments.
func (e *engine) tail(start int) error {
	if len(e.segs) == 0 {
		return nil
	}
	if len(e.t)-start < e.p.MinObs {
		start = e.runStart
	}
	members := seq(start, len(e.t))
	seg := &segment{members: members}
	if len(members) > e.p.ncoef {
		models, err := e.fitWith(regress.OLS{}, members)
		if err == nil {
			seg.models = models
			seg.fitted = len(members)
		} else if !errors.Is(err, regress.ErrSingular) {
			return err
		}
	}
	e.segs = append(e.segs, e.record(seg))
	return nil
}

func (e *engine) refit(seg *segment) error {
	models, err := e.fit(seg.members)
	if errors.Is(err, regress.ErrSingular) {
		// keep the current models until the window is informative again
		return nil
	}
	if err != nil {
		return err
	}
	seg.models = models
	seg.fitted = len(seg.members)
	return nil
}

func (e *engine) finalize(seg *segment) (record.Segment, error) {
	if len(seg.members) > seg.fitted {
		if err := e.refit(seg); err != nil {
			return record.Segment{}, err
		}
	}
	return e.record(seg), nil
}

func (e *engine) record(seg *segment) record.Segment {
	nb := len(e.y)
	rec := record.Segment{
		Start: e.t[seg.members[0]],
		End:   e.t[seg.members[len(seg.members)-1]],
		Coef:  make([][]float64, nb),
		RMSE:  make([]float64, nb),
		NObs:  len(seg.members),
	}
	for b := 0; b < nb; b++ {
		if seg.models == nil {
			rec.Coef[b] = make([]float64, e.p.ncoef)
			continue
		}
		rec.Coef[b] = append([]float64(nil), seg.models[b].Coef...)
		rec.RMSE[b] = seg.models[b].RMSE
	}
	return rec
}

func (e *engine) fit(members []int) ([]*regress.Model, error) {
	return e.fitWith(e.p.Estimator, members)
}

func (e *engine) fitWith(est regress.Estimator, members []int) ([]*regress.Model, error) {
	X := e.rows(members)
	models := make([]*regress.Model, len(e.y))
	yb := make([]float64, len(members))
	for b, band := range e.y {
		for j, i := range members {
			yb[j] = band[i]
		}
		m, err := est.Fit(X, yb)
		if err != nil {
			return nil, fmt.Errorf("band %d: %w", b, err)
		}
		models[b] = m
	}
	return models, nil
}

func (e *engine) rows(members []int) *mat.Dense {
	X := mat.NewDense(len(members), e.p.ncoef, nil)
	for j, i := range members {
		X.SetRow(j, e.X.RawRowView(i))
	}
	return X
}

// score is the test statistic of observation i under models.
func (e *engine) score(models []*regress.Model, i int) float64 {
	row := e.X.RawRowView(i)
	resid := make([]float64, len(e.p.TestBands))
	rmse := make([]float64, len(e.p.TestBands))
	for k, b := range e.p.TestBands {
		resid[k] = e.y[b][i] - models[b].Predict(row)
		rmse[k] = math.Max(models[b].RMSE, e.p.floor[k])
	}
	return e.p.Scorer.Score(resid, rmse)
}

func seq(lo, hi int) []int {
	out := make([]int, hi-lo)
	for i := range out {
		out[i] = lo + i
	}
	return out
}
