package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dcshock/pixelpipe/dataset"
	"github.com/dcshock/pixelpipe/logging"
	"github.com/dcshock/pixelpipe/pipeline"
)

// Config is the root of a pixelpipe configuration file.
type Config struct {
	Version  string         `yaml:"version"`
	Data     DataConfig     `yaml:"data"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Run      RunConfig      `yaml:"run"`
	Logging  logging.Config `yaml:"logging"`
}

// DataConfig lists input datasets by name.
type DataConfig struct {
	Datasets map[string]*dataset.Descriptor `yaml:"datasets"`
}

// PipelineConfig describes the task graph.
type PipelineConfig struct {
	Name      string `yaml:"name"`
	Overwrite bool   `yaml:"overwrite"`
	// Output selects the record slots written per pixel; empty writes all.
	Output []string `yaml:"output"`
	Tasks  TaskList `yaml:"tasks"`
}

// RunConfig tunes the batch driver.
type RunConfig struct {
	Workers int `yaml:"workers"`
}

// TaskConfig is a single task entry. In YAML, tasks are a mapping from
// task name to entry:
//
//	ndvi:
//	  task: norm_diff
//	  require: {data: [nir, red]}
//	  output: {data: [ndvi]}
//	  config: {a: nir, b: red}
//	  timeout: 5s
type TaskConfig struct {
	Name    string            `yaml:"-"`
	Task    string            `yaml:"task"`
	Require pipeline.Contract `yaml:"require"`
	Output  pipeline.Contract `yaml:"output"`
	Config  map[string]any    `yaml:"config"`
	// Timeout applied around the task per pixel (e.g. "5s").
	Timeout Duration `yaml:"timeout,omitempty"`
}

// Spec converts the entry to a pipeline spec.
func (t TaskConfig) Spec() pipeline.Spec {
	return pipeline.Spec{Name: t.Name, Type: t.Task, Require: t.Require, Output: t.Output, Config: t.Config}
}

// TaskList keeps tasks in document order, which is the tie-break order
// when resolving the graph.
type TaskList []TaskConfig

// UnmarshalYAML decodes a task mapping, preserving key order.
func (l *TaskList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: tasks must be a mapping of name to task", value.Line)
	}
	out := make(TaskList, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var tc TaskConfig
		if err := value.Content[i+1].Decode(&tc); err != nil {
			return fmt.Errorf("task %q: %w", value.Content[i].Value, err)
		}
		tc.Name = value.Content[i].Value
		out = append(out, tc)
	}
	*l = out
	return nil
}

// MarshalYAML encodes the list back to a mapping in list order.
func (l TaskList) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, tc := range l {
		var val yaml.Node
		if err := val.Encode(tc); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: tc.Name}, &val)
	}
	return node, nil
}

// Names returns task names in order.
func (l TaskList) Names() []string {
	out := make([]string, len(l))
	for i, t := range l {
		out[i] = t.Name
	}
	return out
}

// Duration is a time.Duration that unmarshals from YAML strings (e.g. "60s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	if d == 0 {
		return nil, nil
	}
	return time.Duration(d).String(), nil
}

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Parse parses YAML bytes into a Config and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	for name, d := range cfg.Data.Datasets {
		if d == nil {
			return nil, fmt.Errorf("dataset %q: empty definition", name)
		}
		d.Name = name
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks datasets and task entries. Graph validity is checked by
// BuildPipeline.
func (c *Config) Validate() error {
	for _, d := range c.Data.Datasets {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	for _, t := range c.Pipeline.Tasks {
		if t.Task == "" {
			return fmt.Errorf("task %q: task type required", t.Name)
		}
		if t.Output.Empty() {
			return fmt.Errorf("task %q: no outputs", t.Name)
		}
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("run.workers must be >= 0, got %d", c.Run.Workers)
	}
	return nil
}
