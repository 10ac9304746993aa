// Package dataset loads training sets for the CLI and client: a few built-in
// truth tables plus CSV and JSON files.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gatenet/internal/network"
)

var (
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrInvalidDataset = errors.New("invalid dataset")
)

var builtins = map[string][]network.Sample{
	"xor": {
		{Input: []float64{0, 0}, Output: []float64{0}},
		{Input: []float64{0, 1}, Output: []float64{1}},
		{Input: []float64{1, 0}, Output: []float64{1}},
		{Input: []float64{1, 1}, Output: []float64{0}},
	},
	"and": {
		{Input: []float64{0, 0}, Output: []float64{0}},
		{Input: []float64{0, 1}, Output: []float64{0}},
		{Input: []float64{1, 0}, Output: []float64{0}},
		{Input: []float64{1, 1}, Output: []float64{1}},
	},
	"or": {
		{Input: []float64{0, 0}, Output: []float64{0}},
		{Input: []float64{0, 1}, Output: []float64{1}},
		{Input: []float64{1, 0}, Output: []float64{1}},
		{Input: []float64{1, 1}, Output: []float64{1}},
	},
	"not": {
		{Input: []float64{0}, Output: []float64{1}},
		{Input: []float64{1}, Output: []float64{0}},
	},
}

func Builtin(name string) ([]network.Sample, bool) {
	set, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return clone(set), true
}

func ListBuiltins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load resolves a built-in name or a .csv/.json path. outputs is the number of
// trailing CSV columns used as targets; 0 means 1.
func Load(name string, outputs int) ([]network.Sample, error) {
	if set, ok := Builtin(name); ok {
		return set, nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".csv" && ext != ".json" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if ext == ".json" {
		return ReadJSON(file)
	}
	return ReadCSV(file, outputs)
}

// ReadJSON decodes an array of {"input": [...], "output": [...]} objects.
func ReadJSON(r io.Reader) ([]network.Sample, error) {
	var set []network.Sample
	if err := json.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidDataset, err)
	}
	if err := check(set); err != nil {
		return nil, err
	}
	return set, nil
}

// ReadCSV splits every row into inputs and the last outputs columns as
// targets. A first row that does not parse as numbers is taken as a header.
func ReadCSV(r io.Reader, outputs int) ([]network.Sample, error) {
	if outputs <= 0 {
		outputs = 1
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var set []network.Sample
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row+1, err)
		}
		row++
		if blankRecord(record) {
			continue
		}
		values, err := parseRow(record)
		if err != nil {
			if row == 1 {
				continue
			}
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidDataset, row, err)
		}
		if len(values) <= outputs {
			return nil, fmt.Errorf("%w: row %d has %d columns, need more than %d", ErrInvalidDataset, row, len(values), outputs)
		}
		split := len(values) - outputs
		set = append(set, network.Sample{Input: values[:split:split], Output: values[split:]})
	}
	if err := check(set); err != nil {
		return nil, err
	}
	return set, nil
}

// Sizes reports the input and output width of a checked set.
func Sizes(set []network.Sample) (int, int) {
	if len(set) == 0 {
		return 0, 0
	}
	return len(set[0].Input), len(set[0].Output)
}

func check(set []network.Sample) error {
	if len(set) == 0 {
		return fmt.Errorf("%w: no samples", ErrInvalidDataset)
	}
	in, out := Sizes(set)
	if in == 0 || out == 0 {
		return fmt.Errorf("%w: samples need inputs and outputs", ErrInvalidDataset)
	}
	for i, s := range set {
		if len(s.Input) != in || len(s.Output) != out {
			return fmt.Errorf("%w: sample %d has shape %d/%d, want %d/%d", ErrInvalidDataset, i, len(s.Input), len(s.Output), in, out)
		}
	}
	return nil
}

func parseRow(record []string) ([]float64, error) {
	values := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func clone(set []network.Sample) []network.Sample {
	out := make([]network.Sample, len(set))
	for i, s := range set {
		out[i] = network.Sample{
			Input:  append([]float64(nil), s.Input...),
			Output: append([]float64(nil), s.Output...),
		}
	}
	return out
}
