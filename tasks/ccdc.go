package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/dcshock/pixelpipe/ccdc"
	"github.com/dcshock/pixelpipe/design"
	"github.com/dcshock/pixelpipe/pipeline"
	"github.com/dcshock/pixelpipe/regress"
)

// rmseRangeFraction of a band's valid range is its default RMSE floor.
const rmseRangeFraction = 1e-4

type ccdcConfig struct {
	Consecutive *int             `mapstructure:"consecutive"`
	Threshold   float64          `mapstructure:"threshold"`
	Design      string           `mapstructure:"design"`
	MinObs      int              `mapstructure:"min_obs"`
	MinRMSE     []float64        `mapstructure:"min_rmse"`
	RefitEvery  int              `mapstructure:"refit_every"`
	MinSpan     float64          `mapstructure:"min_span"`
	TestBands   []string         `mapstructure:"test_bands"`
	Estimator   string           `mapstructure:"estimator"`
	Lambda      float64          `mapstructure:"lambda"`
	Score       string           `mapstructure:"score"`
	Screening   *screeningConfig `mapstructure:"screening"`
}

type screeningConfig struct {
	Green string  `mapstructure:"green"`
	SWIR1 string  `mapstructure:"swir1"`
	Crit  float64 `mapstructure:"crit"`
}

// newCCDC segments the required data bands, in require order, into one
// record slot.
func newCCDC(spec pipeline.Spec, env pipeline.Env) (pipeline.TaskFunc, error) {
	var raw ccdcConfig
	if err := decode(spec, &raw); err != nil {
		return nil, err
	}
	out, err := oneRecordOutput(spec)
	if err != nil {
		return nil, err
	}
	bands := spec.Require.Data
	if len(bands) == 0 {
		return nil, fmt.Errorf("ccdc: require at least one data band")
	}
	cfg, err := raw.build(bands, env)
	if err != nil {
		return nil, fmt.Errorf("ccdc: %w", err)
	}
	// surface parameter errors at build time
	if _, err := ccdc.Run(nil, make([][]float64, len(bands)), cfg); err != nil && !errors.Is(err, ccdc.ErrInsufficientObservations) {
		return nil, err
	}

	return func(ctx context.Context, in *pipeline.View) (*pipeline.Output, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		Y := make([][]float64, len(bands))
		for i, b := range bands {
			Y[i] = in.Band(b)
		}
		segs, err := ccdc.Run(in.Dates, Y, cfg)
		if errors.Is(err, ccdc.ErrInsufficientObservations) {
			return nil, &pipeline.InsufficientObservationsError{Task: spec.Name, Err: err}
		}
		if err != nil {
			return nil, err
		}
		o := pipeline.NewOutput()
		o.Record[out] = segs
		return o, nil
	}, nil
}

func (c ccdcConfig) build(bands []string, env pipeline.Env) (ccdc.Config, error) {
	cfg := ccdc.Config{
		Threshold:  c.Threshold,
		MinObs:     c.MinObs,
		MinSpan:    c.MinSpan,
		RefitEvery: c.RefitEvery,
	}
	if c.Consecutive != nil {
		if *c.Consecutive <= 0 {
			return cfg, fmt.Errorf("consecutive must be > 0, got %d", *c.Consecutive)
		}
		cfg.Consecutive = *c.Consecutive
	}
	text := c.Design
	if text == "" {
		text = ccdc.DefaultDesign
	}
	f, err := design.Lookup(text)
	if err != nil {
		return cfg, err
	}
	cfg.Formula = f

	est, err := estimator(c.Estimator, c.Lambda)
	if err != nil {
		return cfg, err
	}
	cfg.Estimator = est

	switch c.Score {
	case "", "norm":
		cfg.Scorer = ccdc.NormScorer{}
	case "max":
		cfg.Scorer = ccdc.MaxScorer{}
	case "mean":
		cfg.Scorer = ccdc.MeanScorer{}
	default:
		return cfg, fmt.Errorf("unknown score %q (use norm, max or mean)", c.Score)
	}

	for _, name := range c.TestBands {
		i, err := bandIndex(bands, name, "test")
		if err != nil {
			return cfg, err
		}
		cfg.TestBands = append(cfg.TestBands, i)
	}

	switch {
	case len(c.MinRMSE) == 1 && len(bands) > 1:
		cfg.MinRMSE = make([]float64, len(bands))
		for i := range cfg.MinRMSE {
			cfg.MinRMSE[i] = c.MinRMSE[0]
		}
	case len(c.MinRMSE) > 0:
		if len(c.MinRMSE) != len(bands) {
			return cfg, fmt.Errorf("min_rmse has %d values for %d bands", len(c.MinRMSE), len(bands))
		}
		cfg.MinRMSE = c.MinRMSE
	default:
		cfg.MinRMSE = make([]float64, len(bands))
		for i, b := range bands {
			if r, ok := env.Ranges[b]; ok {
				cfg.MinRMSE[i] = (r[1] - r[0]) * rmseRangeFraction
			}
		}
	}

	if s := c.Screening; s != nil {
		green, err := bandIndex(bands, s.Green, "screening green")
		if err != nil {
			return cfg, err
		}
		swir1, err := bandIndex(bands, s.SWIR1, "screening swir1")
		if err != nil {
			return cfg, err
		}
		cfg.Screen = &ccdc.Screen{Green: green, SWIR1: swir1, Crit: s.Crit}
	}
	return cfg, nil
}

func estimator(name string, lambda float64) (regress.Estimator, error) {
	switch name {
	case "", "rlm":
		return regress.RLM{}, nil
	case "ols":
		return regress.OLS{}, nil
	case "lasso":
		if lambda < 0 {
			return nil, fmt.Errorf("lasso lambda must be >= 0, got %v", lambda)
		}
		return regress.Lasso{Lambda: lambda}, nil
	default:
		return nil, fmt.Errorf("unknown estimator %q (use rlm, ols or lasso)", name)
	}
}
