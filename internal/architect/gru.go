package architect

import (
	"math/rand"

	"gatenet/internal/network"
	"gatenet/internal/nn"
)

type gruLayer struct {
	update   *network.Group
	inverse  *network.Group
	reset    *network.Group
	memory   *network.Group
	output   *network.Group
	previous *network.Group
}

// newGRULayer wires one gated recurrent unit block. previous holds the last
// output through unit-weight identity constants; inverse feeds 1-update into
// the memory path.
func newGRULayer(b *network.Builder, size int) (*gruLayer, error) {
	l := &gruLayer{
		update:   b.Group(size),
		inverse:  b.Group(size),
		reset:    b.Group(size),
		memory:   b.Group(size),
		output:   b.Group(size),
		previous: b.Group(size),
	}
	l.previous.SetBias(0)
	l.previous.SetSquash(nn.Identity)
	l.previous.SetRole(network.RoleConstant)
	l.memory.SetSquash(nn.Tanh)
	l.inverse.SetBias(0)
	l.inverse.SetSquash(nn.Inverse)
	l.inverse.SetRole(network.RoleConstant)
	l.update.SetBias(1)
	l.reset.SetBias(0)

	one := 1.0
	if _, err := l.previous.Connect(l.update, network.AllToAll, nil); err != nil {
		return nil, err
	}
	if _, err := l.update.Connect(l.inverse, network.OneToOne, &one); err != nil {
		return nil, err
	}
	if _, err := l.previous.Connect(l.reset, network.AllToAll, nil); err != nil {
		return nil, err
	}
	reset, err := l.previous.Connect(l.memory, network.AllToAll, nil)
	if err != nil {
		return nil, err
	}
	if err := l.reset.Gate(reset, network.GateOutput); err != nil {
		return nil, err
	}
	keep, err := l.previous.Connect(l.output, network.AllToAll, nil)
	if err != nil {
		return nil, err
	}
	write, err := l.memory.Connect(l.output, network.AllToAll, nil)
	if err != nil {
		return nil, err
	}
	if err := l.update.Gate(keep, network.GateOutput); err != nil {
		return nil, err
	}
	if err := l.inverse.Gate(write, network.GateOutput); err != nil {
		return nil, err
	}
	if _, err := l.output.Connect(l.previous, network.OneToOne, &one); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *gruLayer) input(from *network.Group) error {
	for _, g := range []*network.Group{l.update, l.reset, l.memory} {
		if _, err := from.Connect(g, network.AllToAll, nil); err != nil {
			return err
		}
	}
	return nil
}

func (l *gruLayer) parts() []network.Part {
	return []network.Part{l.update, l.inverse, l.reset, l.memory, l.output, l.previous}
}

// GRU builds a network of stacked gated recurrent units. sizes lists the
// input size, one size per unit layer and the output size.
func GRU(rng *rand.Rand, sizes ...int) (*network.Network, error) {
	if err := checkLayers(sizes); err != nil {
		return nil, err
	}
	b, err := network.NewBuilder(rng)
	if err != nil {
		return nil, err
	}
	inputLayer := b.Group(sizes[0])
	parts := []network.Part{inputLayer}
	previous := inputLayer
	for _, size := range sizes[1 : len(sizes)-1] {
		l, err := newGRULayer(b, size)
		if err != nil {
			return nil, err
		}
		if err := l.input(previous); err != nil {
			return nil, err
		}
		parts = append(parts, l.parts()...)
		previous = l.output
	}
	outputLayer := b.Group(sizes[len(sizes)-1])
	if _, err := previous.Connect(outputLayer, network.AllToAll, nil); err != nil {
		return nil, err
	}
	parts = append(parts, outputLayer)
	return b.Construct(parts...)
}
