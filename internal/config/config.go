// Package config loads pipeline-wide parameters from an optional YAML
// file, with programmatic defaults for everything the file omits.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Pipeline holds the tunable parameters of the optimizing backend.
type Pipeline struct {
	// InlineThreshold is the maximum number of LIR statements a callee
	// may have to be eligible for inlining.
	InlineThreshold int `yaml:"inline_threshold"`

	// HeapWords is the interpreter heap capacity in 64-bit words.
	HeapWords int `yaml:"heap_words"`

	// Diagnostics enables S-expression dumps of each stage's IR.
	Diagnostics bool `yaml:"diagnostics"`
}

// Default returns the built-in pipeline defaults.
func Default() Pipeline {
	return Pipeline{
		InlineThreshold: 40,
		HeapWords:       10240,
		Diagnostics:     false,
	}
}

// Load reads a YAML config file and overlays it on Default(). A missing
// file is not an error; it simply yields the defaults.
func Load(path string) (Pipeline, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}

	return cfg, nil
}
