// Package config loads run configuration from JSON, INI or YAML files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig     = errors.New("invalid run config")
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// RunConfig is the file form of a training or evolution run. Absent keys
// keep the values from Default.
type RunConfig struct {
	Network NetworkConfig `json:"network" yaml:"network"`
	Train   TrainConfig   `json:"train" yaml:"train"`
	Evolve  EvolveConfig  `json:"evolve" yaml:"evolve"`
	Neat    NeatConfig    `json:"neat" yaml:"neat"`
	Store   StoreConfig   `json:"store" yaml:"store"`
}

type NetworkConfig struct {
	Architecture string `json:"architecture" yaml:"architecture" ini:"architecture"`
	Hidden       []int  `json:"hidden" yaml:"hidden" ini:"hidden" delim:","`
	Dataset      string `json:"dataset" yaml:"dataset" ini:"dataset"`
	// Outputs is the number of trailing CSV columns read as targets.
	Outputs      int    `json:"outputs" yaml:"outputs" ini:"outputs"`
	Seed         int64  `json:"seed" yaml:"seed" ini:"seed"`
}

type TrainConfig struct {
	Rate       float64 `json:"rate" yaml:"rate" ini:"rate"`
	Iterations int     `json:"iterations" yaml:"iterations" ini:"iterations"`
	Error      float64 `json:"error" yaml:"error" ini:"error"`
	Cost       string  `json:"cost" yaml:"cost" ini:"cost"`
	Shuffle    bool    `json:"shuffle" yaml:"shuffle" ini:"shuffle"`
	Momentum   float64 `json:"momentum" yaml:"momentum" ini:"momentum"`
	Dropout    float64 `json:"dropout" yaml:"dropout" ini:"dropout"`
	Clear      bool    `json:"clear" yaml:"clear" ini:"clear"`
	RatePolicy string  `json:"rate_policy" yaml:"rate_policy" ini:"rate_policy"`
	Log        int     `json:"log" yaml:"log" ini:"log"`
}

type EvolveConfig struct {
	Iterations int     `json:"iterations" yaml:"iterations" ini:"iterations"`
	Error      float64 `json:"error" yaml:"error" ini:"error"`
	Growth     float64 `json:"growth" yaml:"growth" ini:"growth"`
	Amount     int     `json:"amount" yaml:"amount" ini:"amount"`
	Cost       string  `json:"cost" yaml:"cost" ini:"cost"`
	Clear      bool    `json:"clear" yaml:"clear" ini:"clear"`
	Log        int     `json:"log" yaml:"log" ini:"log"`
}

type NeatConfig struct {
	PopulationSize int     `json:"population_size" yaml:"population_size" ini:"population_size"`
	Elitism        int     `json:"elitism" yaml:"elitism" ini:"elitism"`
	MutationRate   float64 `json:"mutation_rate" yaml:"mutation_rate" ini:"mutation_rate"`
	MutationAmount int     `json:"mutation_amount" yaml:"mutation_amount" ini:"mutation_amount"`
	Mutations      string  `json:"mutations" yaml:"mutations" ini:"mutations"`
	Selection      string  `json:"selection" yaml:"selection" ini:"selection"`
	Equal          bool    `json:"equal" yaml:"equal" ini:"equal"`
	Workers        int     `json:"workers" yaml:"workers" ini:"workers"`
}

type StoreConfig struct {
	Kind         string `json:"kind" yaml:"kind" ini:"kind"`
	DBPath       string `json:"db_path" yaml:"db_path" ini:"db_path"`
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir" ini:"artifacts_dir"`
}

func Default() RunConfig {
	return RunConfig{
		Network: NetworkConfig{Dataset: "xor", Seed: 1},
		Train: TrainConfig{
			Rate:       0.3,
			Iterations: 10000,
			Error:      0.005,
			Cost:       "mse",
			RatePolicy: "fixed",
		},
		Evolve: EvolveConfig{
			Iterations: 1000,
			Error:      0.005,
			Growth:     0.0001,
			Amount:     1,
			Cost:       "mse",
		},
		Neat: NeatConfig{
			PopulationSize: 50,
			Elitism:        5,
			MutationRate:   0.3,
			MutationAmount: 1,
			Mutations:      "ffw",
			Selection:      "power",
			Workers:        1,
		},
		Store: StoreConfig{
			DBPath:       "gatenet.db",
			ArtifactsDir: "runs",
		},
	}
}

// Load reads path over Default. The format follows the file extension:
// .json, .ini, .yaml or .yml.
func Load(path string) (RunConfig, error) {
	cfg := Default()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, err
		}
		if ext == ".json" {
			err = json.Unmarshal(data, &cfg)
		} else {
			err = yaml.Unmarshal(data, &cfg)
		}
		if err != nil {
			return RunConfig{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".ini":
		if err := loadINI(path, &cfg); err != nil {
			return RunConfig{}, err
		}
	default:
		return RunConfig{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

func loadINI(path string, cfg *RunConfig) error {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, path)
	if err != nil {
		return fmt.Errorf("failed to load config file '%s': %w", path, err)
	}
	sections := []struct {
		name   string
		target any
	}{
		{"network", &cfg.Network},
		{"train", &cfg.Train},
		{"evolve", &cfg.Evolve},
		{"neat", &cfg.Neat},
		{"store", &cfg.Store},
	}
	for _, s := range sections {
		if !file.HasSection(s.name) {
			continue
		}
		if err := file.Section(s.name).MapTo(s.target); err != nil {
			return fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}
	return nil
}

func (c RunConfig) Validate() error {
	for _, h := range c.Network.Hidden {
		if h <= 0 {
			return fmt.Errorf("%w: hidden layer sizes must be > 0", ErrInvalidConfig)
		}
	}
	if c.Network.Outputs < 0 {
		return fmt.Errorf("%w: outputs must be >= 0", ErrInvalidConfig)
	}
	if c.Train.Rate < 0 || c.Train.Iterations < 0 {
		return fmt.Errorf("%w: train rate and iterations must be >= 0", ErrInvalidConfig)
	}
	if c.Train.Dropout < 0 || c.Train.Dropout >= 1 {
		return fmt.Errorf("%w: dropout must be in [0, 1)", ErrInvalidConfig)
	}
	if c.Evolve.Iterations < 0 || c.Evolve.Amount < 0 || c.Evolve.Growth < 0 {
		return fmt.Errorf("%w: evolve iterations, amount and growth must be >= 0", ErrInvalidConfig)
	}
	if c.Neat.PopulationSize <= 0 {
		return fmt.Errorf("%w: population size must be > 0", ErrInvalidConfig)
	}
	if c.Neat.Elitism < 0 || c.Neat.Elitism > c.Neat.PopulationSize {
		return fmt.Errorf("%w: elitism must be in [0, population size]", ErrInvalidConfig)
	}
	if c.Neat.MutationRate < 0 || c.Neat.MutationRate > 1 {
		return fmt.Errorf("%w: mutation rate must be in [0, 1]", ErrInvalidConfig)
	}
	if c.Neat.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0", ErrInvalidConfig)
	}
	return nil
}
