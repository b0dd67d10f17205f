package config

import (
	"fmt"
	"sort"

	"github.com/dcshock/pixelpipe/pipeline"
)

// InitialSlots returns the band names datasets supply, by dataset name
// then band order.
func InitialSlots(cfg *Config) []string {
	names := make([]string, 0, len(cfg.Data.Datasets))
	for name := range cfg.Data.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []string
	for _, name := range names {
		out = append(out, cfg.Data.Datasets[name].BandNames...)
	}
	return out
}

// BuildEnv collects what task factories may consult from the datasets.
func BuildEnv(cfg *Config) pipeline.Env {
	env := pipeline.Env{Ranges: make(map[string][2]float64)}
	for _, d := range cfg.Data.Datasets {
		for band, r := range d.Ranges() {
			env.Ranges[band] = r
		}
	}
	return env
}

// BuildPipeline instantiates every configured task through the registry
// and resolves the task graph. Unknown task types, bad task configuration
// and graph errors all fail here, before any pixel runs.
func BuildPipeline(reg *Registry, cfg *Config) (*pipeline.Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	env := BuildEnv(cfg)
	tasks := make([]pipeline.Task, 0, len(cfg.Pipeline.Tasks))
	for _, tc := range cfg.Pipeline.Tasks {
		factory, err := reg.Lookup(tc.Task)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", tc.Name, err)
		}
		spec := tc.Spec()
		run, err := factory(spec, env)
		if err != nil {
			return nil, fmt.Errorf("task %q (%s): %w", tc.Name, tc.Task, err)
		}
		if tc.Timeout > 0 {
			run = pipeline.WithTimeout(run, tc.Timeout.Duration())
		}
		tasks = append(tasks, pipeline.Task{Spec: spec, Run: pipeline.Recover(run)})
	}
	name := cfg.Pipeline.Name
	if name == "" {
		name = "pixelpipe"
	}
	return pipeline.New(name, InitialSlots(cfg), tasks)
}
