package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFormatsOverlayDefaults(t *testing.T) {
	want := Default()
	want.Network.Architecture = "perceptron"
	want.Network.Hidden = []int{4, 3}
	want.Train.Rate = 0.5
	want.Train.Shuffle = true
	want.Neat.PopulationSize = 30
	want.Neat.Selection = "tournament:4:0.7"
	want.Store.Kind = "memory"

	cases := []struct {
		name string
		file string
		body string
	}{
		{
			name: "json",
			file: "run.json",
			body: `{
  "network": {"architecture": "perceptron", "hidden": [4, 3]},
  "train": {"rate": 0.5, "shuffle": true},
  "neat": {"population_size": 30, "selection": "tournament:4:0.7"},
  "store": {"kind": "memory"}
}`,
		},
		{
			name: "ini",
			file: "run.ini",
			body: `[network]
architecture = perceptron
hidden = 4,3

[train]
rate = 0.5
shuffle = true

[neat]
population_size = 30
selection = tournament:4:0.7

[store]
kind = memory
`,
		},
		{
			name: "yaml",
			file: "run.yml",
			body: `network:
  architecture: perceptron
  hidden: [4, 3]
train:
  rate: 0.5
  shuffle: true
neat:
  population_size: 30
  selection: "tournament:4:0.7"
store:
  kind: memory
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Load(writeConfig(t, tc.file, tc.body))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("unexpected config\nwant %+v\ngot  %+v", want, got)
			}
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "population", body: `{"neat": {"population_size": 0}}`},
		{name: "elitism", body: `{"neat": {"population_size": 4, "elitism": 5}}`},
		{name: "mutation rate", body: `{"neat": {"mutation_rate": 1.5}}`},
		{name: "dropout", body: `{"train": {"dropout": 1}}`},
		{name: "hidden", body: `{"network": {"hidden": [3, 0]}}`},
		{name: "growth", body: `{"evolve": {"growth": -1}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "bad.json", tc.body))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(writeConfig(t, "run.toml", "x = 1")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "broken.json", "{")); err == nil {
		t.Fatal("expected parse error")
	}
}
