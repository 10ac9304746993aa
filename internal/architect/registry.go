package architect

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"gatenet/internal/network"
)

var ErrArchitectureNotFound = errors.New("architecture not found")

// Shape describes a network by its input size, hidden layer sizes and output
// size. For Random the hidden sizes are summed into one node count.
type Shape struct {
	Input  int
	Hidden []int
	Output int
}

func (s Shape) sizes() []int {
	out := make([]int, 0, len(s.Hidden)+2)
	out = append(out, s.Input)
	out = append(out, s.Hidden...)
	return append(out, s.Output)
}

type BuildFn func(rng *rand.Rand, shape Shape) (*network.Network, error)

var architectures = map[string]BuildFn{
	"direct": func(rng *rand.Rand, s Shape) (*network.Network, error) {
		return network.New(s.Input, s.Output, rng)
	},
	"perceptron": func(rng *rand.Rand, s Shape) (*network.Network, error) {
		return Perceptron(rng, s.sizes()...)
	},
	"random": func(rng *rand.Rand, s Shape) (*network.Network, error) {
		hidden := 0
		for _, h := range s.Hidden {
			hidden += h
		}
		return Random(rng, s.Input, hidden, s.Output, RandomOptions{})
	},
	"lstm": func(rng *rand.Rand, s Shape) (*network.Network, error) {
		return LSTM(rng, DefaultLSTMOptions(), s.sizes()...)
	},
	"gru": func(rng *rand.Rand, s Shape) (*network.Network, error) {
		return GRU(rng, s.sizes()...)
	},
	"hopfield": func(rng *rand.Rand, s Shape) (*network.Network, error) {
		if s.Input != s.Output {
			return nil, fmt.Errorf("%w: hopfield needs equal input and output sizes", network.ErrSizeMismatch)
		}
		return Hopfield(rng, s.Input)
	},
}

// Build constructs the named architecture. With no hidden layers every name
// except hopfield falls back to a direct input to output network.
func Build(name string, rng *rand.Rand, shape Shape) (*network.Network, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "direct"
	}
	fn, ok := architectures[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArchitectureNotFound, name)
	}
	if len(shape.Hidden) == 0 && key != "hopfield" {
		fn = architectures["direct"]
	}
	return fn(rng, shape)
}

func ListArchitectures() []string {
	names := make([]string, 0, len(architectures))
	for name := range architectures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
