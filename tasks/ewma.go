package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dcshock/pixelpipe/ewma"
	"github.com/dcshock/pixelpipe/pipeline"
)

type ewmaConfig struct {
	Lambda  float64 `mapstructure:"lambda"`
	Crit    float64 `mapstructure:"crit"`
	StdType string  `mapstructure:"std_type"`
}

// newEWMA runs an EWMA control chart over the one required data band and
// writes one or two segments split at the first signal.
func newEWMA(spec pipeline.Spec, _ pipeline.Env) (pipeline.TaskFunc, error) {
	var cfg ewmaConfig
	if err := decode(spec, &cfg); err != nil {
		return nil, err
	}
	if len(spec.Require.Data) != 1 {
		return nil, fmt.Errorf("ewma: require exactly one data band")
	}
	out, err := oneRecordOutput(spec)
	if err != nil {
		return nil, err
	}
	opts := ewma.Options{
		Lambda: cfg.Lambda,
		Crit:   cfg.Crit,
		Std:    ewma.StdType(strings.ToUpper(cfg.StdType)),
	}
	// validate now; a two-point series always passes the length check
	if _, err := ewma.Test([]float64{0, 1}, opts); err != nil {
		return nil, err
	}
	band := spec.Require.Data[0]

	return func(ctx context.Context, v *pipeline.View) (*pipeline.Output, error) {
		segs, _, err := ewma.Segments(v.Dates, v.Band(band), opts)
		if errors.Is(err, ewma.ErrTooShort) {
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
