package ccdc

import (
	"errors"
	"fmt"
	"math"

	"github.com/dcshock/pixelpipe/design"
	"github.com/dcshock/pixelpipe/regress"
)

// Defaults follow the published YATSM parameterization.
const (
	DefaultConsecutive = 5
	DefaultThreshold   = 2.56
	DefaultDesign      = "1 + x + harm(x, 1)"
	minRMSEFloor       = 1e-9
)

// ErrInsufficientObservations is returned when no observation is valid in
// every band.
var ErrInsufficientObservations = errors.New("ccdc: no valid observations")

// Config parameterizes a segmentation run. Zero values select defaults.
type Config struct {
	// Consecutive is the anomaly run length that triggers a break.
	Consecutive int
	// Threshold is the critical test statistic returned by Scorer.
	Threshold float64
	// MinObs is the training window size. Zero means ceil(1.5 * ncoef),
	// never less than ncoef+1.
	MinObs int
	// MinSpan is the time a training window must exceed, in days. Zero
	// means a year when the design has a harmonic term, else no minimum.
	MinSpan float64
	// RefitEvery is how many new member observations trigger a rolling
	// refit. Zero means ncoef.
	RefitEvery int
	// MinRMSE floors each fit band's RMSE when scoring. Missing entries use
	// a tiny positive floor.
	MinRMSE []float64
	// TestBands are indices into the band slice tested for change. Nil
	// tests every band.
	TestBands []int
	// Formula is the design; nil means DefaultDesign.
	Formula *design.Formula
	// Estimator fits each band; nil means regress.RLM{}.
	Estimator regress.Estimator
	// Scorer turns residuals into a test statistic; nil means NormScorer.
	Scorer Scorer
	// Screen enables multitemporal cloud/shadow screening.
	Screen *Screen
}

// Screen configures the multitemporal outlier screen (Zhu and Woodcock
// 2014) over the green and SWIR1 bands.
type Screen struct {
	Green int     // band index
	SWIR1 int     // band index
	Crit  float64 // residual cutoff; 0 means 400
}

type params struct {
	Config
	ncoef int
	nband int
	floor []float64
}

func (c Config) resolve(nband int) (*params, error) {
	p := &params{Config: c, nband: nband}
	if p.Formula == nil {
		f, err := design.Lookup(DefaultDesign)
		if err != nil {
			return nil, err
		}
		p.Formula = f
	}
	p.ncoef = p.Formula.NumCols()
	if p.Consecutive == 0 {
		p.Consecutive = DefaultConsecutive
	}
	if p.Consecutive < 0 {
		return nil, fmt.Errorf("ccdc: consecutive must be > 0, got %d", p.Consecutive)
	}
	if p.Threshold == 0 {
		p.Threshold = DefaultThreshold
	}
	if p.Threshold < 0 || math.IsNaN(p.Threshold) {
		return nil, fmt.Errorf("ccdc: threshold must be > 0, got %v", p.Threshold)
	}
	if p.MinSpan < 0 || math.IsNaN(p.MinSpan) {
		return nil, fmt.Errorf("ccdc: min_span must be >= 0, got %v", p.MinSpan)
	}
	if p.MinSpan == 0 && p.Formula.HasHarmonic() {
		p.MinSpan = design.DaysPerYear
	}
	if p.MinObs == 0 {
		p.MinObs = int(math.Ceil(1.5 * float64(p.ncoef)))
	}
	if p.MinObs <= p.ncoef {
		p.MinObs = p.ncoef + 1
	}
	if p.RefitEvery <= 0 {
		p.RefitEvery = p.ncoef
	}
	if p.Estimator == nil {
		p.Estimator = regress.RLM{}
	}
	if p.TestBands == nil {
		p.TestBands = make([]int, nband)
		for i := range p.TestBands {
			p.TestBands[i] = i
		}
	}
	for _, b := range p.TestBands {
		if b < 0 || b >= nband {
			return nil, fmt.Errorf("ccdc: test band %d out of range [0, %d)", b, nband)
		}
	}
	if len(p.MinRMSE) > nband {
		return nil, fmt.Errorf("ccdc: %d min_rmse values for %d bands", len(p.MinRMSE), nband)
	}
	p.floor = make([]float64, len(p.TestBands))
	for i, b := range p.TestBands {
		p.floor[i] = minRMSEFloor
		if b < len(p.MinRMSE) && p.MinRMSE[b] > 0 {
			p.floor[i] = p.MinRMSE[b]
		}
	}
	if p.Scorer == nil {
		p.Scorer = NormScorer{}
	}
	if s := p.Screen; s != nil {
		if s.Green < 0 || s.Green >= nband || s.SWIR1 < 0 || s.SWIR1 >= nband {
			return nil, fmt.Errorf("ccdc: screening bands %d/%d out of range", s.Green, s.SWIR1)
		}
	}
	return p, nil
}
