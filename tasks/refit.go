package tasks

import (
	"context"
	"fmt"

	"github.com/dcshock/pixelpipe/ccdc"
	"github.com/dcshock/pixelpipe/design"
	"github.com/dcshock/pixelpipe/pipeline"
)

type refitConfig struct {
	Design string `mapstructure:"design"`
}

// newRobustRefit refits the one required record slot against the required
// data bands, which must match the bands the records were fit on.
func newRobustRefit(spec pipeline.Spec, _ pipeline.Env) (pipeline.TaskFunc, error) {
	var cfg refitConfig
	if err := decode(spec, &cfg); err != nil {
		return nil, err
	}
	if len(spec.Require.Record) != 1 {
		return nil, fmt.Errorf("robust_refit: require exactly one record slot")
	}
	if len(spec.Require.Data) == 0 {
		return nil, fmt.Errorf("robust_refit: require at least one data band")
	}
	out, err := oneRecordOutput(spec)
	if err != nil {
		return nil, err
	}
	text := cfg.Design
	if text == "" {
		text = ccdc.DefaultDesign
	}
	f, err := design.Lookup(text)
	if err != nil {
		return nil, fmt.Errorf("robust_refit: %w", err)
	}
	in := spec.Require.Record[0]
	bands := spec.Require.Data

	return func(ctx context.Context, v *pipeline.View) (*pipeline.Output, error) {
		Y := make([][]float64, len(bands))
		for i, b := range bands {
			Y[i] = v.Band(b)
		}
		segs, err := ccdc.RobustRefit(v.Dates, Y, v.Record[in], f)
		if err != nil {
			return nil, err
		}
		o := pipeline.NewOutput()
		o.Record[out] = segs
		return o, nil
	}, nil
}
