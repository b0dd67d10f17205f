// Package tasks holds the built-in task types and registers them.
package tasks

import (
	"fmt"
	"slices"

	"github.com/go-viper/mapstructure/v2"

	"github.com/dcshock/pixelpipe/config"
	"github.com/dcshock/pixelpipe/pipeline"
)

// Task type names.
const (
	NormDiff    = "norm_diff"
	CCDC        = "ccdc"
	RobustRefit = "robust_refit"
	EWMA        = "ewma"
)

// Register installs the built-in task types.
func Register(reg *config.Registry) {
	reg.Register(NormDiff, newNormDiff)
	reg.Register(CCDC, newCCDC)
	reg.Register(RobustRefit, newRobustRefit)
	reg.Register(EWMA, newEWMA)
}

// NewRegistry returns a frozen registry holding the built-in tasks.
func NewRegistry() *config.Registry {
	reg := config.NewRegistry()
	Register(reg)
	reg.Freeze()
	return reg
}

// decode fills out from a task's config map. Unknown keys are errors so
// typos fail at startup.
func decode(spec pipeline.Spec, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(spec.Config); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func oneRecordOutput(spec pipeline.Spec) (string, error) {
	if len(spec.Output.Record) != 1 || len(spec.Output.Data) != 0 {
		return "", fmt.Errorf("%s: output must be exactly one record slot", spec.Type)
	}
	return spec.Output.Record[0], nil
}

func bandIndex(fit []string, name, what string) (int, error) {
	i := slices.Index(fit, name)
	if i < 0 {
		return 0, fmt.Errorf("%s band %q is not a required data slot", what, name)
	}
	return i, nil
}
