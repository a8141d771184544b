// Package config holds the model hyperparameters and sampling defaults
// (A1), loadable from YAML the way the teacher loads its own run-time
// configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Hyperparams bundles the fixed model shape and the sampling/runtime
// defaults listed in §6 of the spec this engine implements.
type Hyperparams struct {
	Dim        int `yaml:"dim"`
	NLayers    int `yaml:"n_layers"`
	NHeads     int `yaml:"n_heads"`
	NKVHeads   int `yaml:"n_kv_heads"`
	HeadDim    int `yaml:"head_dim"`
	RMSNormEps float32 `yaml:"rms_norm_eps"`
	RopeTheta  float32 `yaml:"rope_theta"`

	Temperature float32 `yaml:"temperature"`
	TopP        float32 `yaml:"top_p"`

	MaxWorkers int `yaml:"max_workers"`

	CalibrationWarmups int `yaml:"calibration_warmups"`
	CalibrationRepeats int `yaml:"calibration_repeats"`
}

// Default returns the as-defaulted hyperparameters from §6.
func Default() Hyperparams {
	return Hyperparams{
		Dim:                4096,
		NLayers:            32,
		NHeads:             32,
		NKVHeads:           8,
		HeadDim:            128,
		RMSNormEps:         1e-5,
		RopeTheta:          500000,
		Temperature:        0.6,
		TopP:               0.9,
		MaxWorkers:         8,
		CalibrationWarmups: 1,
		CalibrationRepeats: 10,
	}
}

// Load reads a YAML file at path, starting from Default() and overriding
// whatever fields the file sets.
func Load(path string) (Hyperparams, error) {
	h := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Hyperparams{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &h); err != nil {
		return Hyperparams{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return h, nil
}
