// Package architect assembles common topologies through the network builder.
package architect

import (
	"errors"
	"fmt"
	"math/rand"

	"gatenet/internal/network"
	"gatenet/internal/nn"
)

var ErrTooFewLayers = errors.New("not enough layers (minimum 3)")

func checkLayers(sizes []int) error {
	if len(sizes) < 3 {
		return fmt.Errorf("%w: got %d", ErrTooFewLayers, len(sizes))
	}
	for i, s := range sizes {
		if s <= 0 {
			return fmt.Errorf("%w: layer %d has size %d", network.ErrInvalidSize, i, s)
		}
	}
	return nil
}

// Perceptron builds a fully connected feed-forward network, one group per
// layer.
func Perceptron(rng *rand.Rand, layers ...int) (*network.Network, error) {
	if err := checkLayers(layers); err != nil {
		return nil, err
	}
	b, err := network.NewBuilder(rng)
	if err != nil {
		return nil, err
	}
	parts := make([]network.Part, 0, len(layers))
	var prev *network.Group
	for _, size := range layers {
		g := b.Group(size)
		if prev != nil {
			if _, err := prev.Connect(g, network.AllToAll, nil); err != nil {
				return nil, err
			}
		}
		parts = append(parts, g)
		prev = g
	}
	return b.Construct(parts...)
}

// RandomOptions sets how many structural elements Random adds. Zero
// Connections means twice the hidden count.
type RandomOptions struct {
	Connections     int
	BackConnections int
	SelfConnections int
	Gates           int
}

// Random grows a network from a direct input/output one by applying AddNode
// hidden times and then the connection, back connection, self connection
// and gate mutations. Mutations with nothing left to act on are skipped.
func Random(rng *rand.Rand, input, hidden, output int, opts RandomOptions) (*network.Network, error) {
	n, err := network.New(input, output, rng)
	if err != nil {
		return nil, err
	}
	if hidden < 0 {
		return nil, fmt.Errorf("%w: hidden=%d", network.ErrInvalidSize, hidden)
	}
	connections := opts.Connections
	if connections == 0 {
		connections = hidden * 2
	}
	steps := []struct {
		kind  network.MutationKind
		count int
	}{
		{network.AddNode, hidden},
		{network.AddConn, connections - hidden},
		{network.AddBackConn, opts.BackConnections},
		{network.AddSelfConn, opts.SelfConnections},
		{network.AddGate, opts.Gates},
	}
	for _, step := range steps {
		m := network.DefaultMutation(step.kind)
		for i := 0; i < step.count; i++ {
			if err := n.Mutate(rng, m); err != nil && !errors.Is(err, network.ErrNoMutationTarget) {
				return nil, err
			}
		}
	}
	return n, nil
}

// Hopfield builds a single-layer network of step units, fully connected from
// input to output.
func Hopfield(rng *rand.Rand, size int) (*network.Network, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size=%d", network.ErrInvalidSize, size)
	}
	b, err := network.NewBuilder(rng)
	if err != nil {
		return nil, err
	}
	input, output := b.Group(size), b.Group(size)
	if _, err := input.Connect(output, network.AllToAll, nil); err != nil {
		return nil, err
	}
	input.SetRole(network.RoleInput)
	output.SetRole(network.RoleOutput)
	output.SetSquash(nn.Step)
	return b.Construct(input, output)
}
