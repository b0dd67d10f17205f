package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. PIXELPIPE_RUN_WORKERS.
	EnvPrefix         = "PIXELPIPE_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load reads a YAML config file, then applies environment overrides.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PIXELPIPE_RUN_WORKERS, PIXELPIPE_LOGGING_LEVEL, etc.)
//  2. YAML config file
//
// Environment variables drop the prefix, are lowercased and split on the
// first underscore into section and field:
//
//	PIXELPIPE_PIPELINE_OVERWRITE -> pipeline.overwrite
//	PIXELPIPE_RUN_WORKERS        -> run.workers
//	PIXELPIPE_LOGGING_LEVEL      -> logging.level
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), maxConfigFileSize)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadBytes(content)
}

// LoadBytes is Load over in-memory YAML.
func LoadBytes(content []byte) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), kyaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := koanf.New(".")
	if err := overrides.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	for key, raw := range overrides.All() {
		if err := k.Set(key, scalar(fmt.Sprint(raw))); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	merged, err := yaml.Marshal(k.Raw())
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged config: %w", err)
	}
	cfg, err := Parse(merged)
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	order, err := taskOrder(content)
	if err != nil {
		return nil, err
	}
	cfg.Pipeline.Tasks.reorder(order)
	return cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// scalar types an environment string the way YAML would.
func scalar(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case bool, int, float64, string:
		return v
	}
	return s
}

// taskOrder returns pipeline.tasks keys in document order.
func taskOrder(content []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	tasks := child(child(doc.Content[0], "pipeline"), "tasks")
	if tasks == nil || tasks.Kind != yaml.MappingNode {
		return nil, nil
	}
	var out []string
	for i := 0; i+1 < len(tasks.Content); i += 2 {
		out = append(out, tasks.Content[i].Value)
	}
	return out, nil
}

func child(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// reorder sorts tasks by their index in order; unknown names keep their
// relative order at the end.
func (l TaskList) reorder(order []string) {
	rank := func(name string) int {
		if i := slices.Index(order, name); i >= 0 {
			return i
		}
		return len(order)
	}
	slices.SortStableFunc(l, func(a, b TaskConfig) int {
		return rank(a.Name) - rank(b.Name)
	})
}
