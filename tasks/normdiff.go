package tasks

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/dcshock/pixelpipe/pipeline"
)

type normDiffConfig struct {
	A     string  `mapstructure:"a"`
	B     string  `mapstructure:"b"`
	Scale float64 `mapstructure:"scale"`
}

// newNormDiff computes scale*(a-b)/(a+b), e.g. NDVI from nir and red.
// Invalid inputs and a zero sum give NaN.
func newNormDiff(spec pipeline.Spec, _ pipeline.Env) (pipeline.TaskFunc, error) {
	cfg := normDiffConfig{Scale: 1}
	if err := decode(spec, &cfg); err != nil {
		return nil, err
	}
	if cfg.A == "" || cfg.B == "" {
		return nil, fmt.Errorf("norm_diff: a and b are required")
	}
	for _, b := range []string{cfg.A, cfg.B} {
		if !slices.Contains(spec.Require.Data, b) {
			return nil, fmt.Errorf("norm_diff: band %q must be required", b)
		}
	}
	if len(spec.Output.Data) != 1 || len(spec.Output.Record) != 0 {
		return nil, fmt.Errorf("norm_diff: output must be exactly one data slot")
	}
	out := spec.Output.Data[0]
	return func(ctx context.Context, in *pipeline.View) (*pipeline.Output, error) {
		a, b := in.Band(cfg.A), in.Band(cfg.B)
		res := make([]float64, len(in.Dates))
		for i := range res {
			sum := a[i] + b[i]
			if math.IsNaN(sum) || sum == 0 {
				res[i] = math.NaN()
				continue
			}
			res[i] = cfg.Scale * (a[i] - b[i]) / sum
		}
		o := pipeline.NewOutput()
		o.Data[out] = res
		return o, nil
	}, nil
}
