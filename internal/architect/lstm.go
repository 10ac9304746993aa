package architect

import (
	"math/rand"

	"gatenet/internal/network"
)

// LSTMOptions toggles the optional wiring of LSTM blocks. Use
// DefaultLSTMOptions for the usual setup.
type LSTMOptions struct {
	MemoryToMemory bool
	OutputToMemory bool
	OutputToGates  bool
	InputToOutput  bool
	InputToDeep    bool
}

func DefaultLSTMOptions() LSTMOptions {
	return LSTMOptions{InputToOutput: true, InputToDeep: true}
}

// LSTM builds a network of stacked memory blocks. sizes lists the input
// size, one size per block and the output size. Each block has input,
// forget and output gates around a self-connected memory cell; the last
// block writes straight into the output layer.
func LSTM(rng *rand.Rand, opts LSTMOptions, sizes ...int) (*network.Network, error) {
	if err := checkLayers(sizes); err != nil {
		return nil, err
	}
	b, err := network.NewBuilder(rng)
	if err != nil {
		return nil, err
	}
	blocks := sizes[1 : len(sizes)-1]
	inputLayer := b.Group(sizes[0])
	inputLayer.SetRole(network.RoleInput)
	outputLayer := b.Group(sizes[len(sizes)-1])
	outputLayer.SetRole(network.RoleOutput)

	parts := []network.Part{inputLayer}
	previous := inputLayer
	for i, size := range blocks {
		last := i == len(blocks)-1
		inputGate, forgetGate, memoryCell, outputGate := b.Group(size), b.Group(size), b.Group(size), b.Group(size)
		outputBlock := outputLayer
		if !last {
			outputBlock = b.Group(size)
		}
		inputGate.SetBias(1)
		forgetGate.SetBias(1)
		outputGate.SetBias(1)

		input, err := previous.Connect(memoryCell, network.AllToAll, nil)
		if err != nil {
			return nil, err
		}
		for _, gate := range []*network.Group{inputGate, outputGate, forgetGate} {
			if _, err := previous.Connect(gate, network.AllToAll, nil); err != nil {
				return nil, err
			}
		}
		for _, gate := range []*network.Group{inputGate, forgetGate, outputGate} {
			if _, err := memoryCell.Connect(gate, network.AllToAll, nil); err != nil {
				return nil, err
			}
		}
		forget, err := memoryCell.Connect(memoryCell, network.OneToOne, nil)
		if err != nil {
			return nil, err
		}
		output, err := memoryCell.Connect(outputBlock, network.AllToAll, nil)
		if err != nil {
			return nil, err
		}
		if err := inputGate.Gate(input, network.GateInput); err != nil {
			return nil, err
		}
		if err := forgetGate.Gate(forget, network.GateSelf); err != nil {
			return nil, err
		}
		if err := outputGate.Gate(output, network.GateOutput); err != nil {
			return nil, err
		}

		gatedInputs := func(from *network.Group, pattern network.ConnectPattern) error {
			conns, err := from.Connect(memoryCell, pattern, nil)
			if err != nil {
				return err
			}
			return inputGate.Gate(conns, network.GateInput)
		}
		if opts.InputToDeep && i > 0 {
			if err := gatedInputs(inputLayer, network.AllToAll); err != nil {
				return nil, err
			}
		}
		if opts.MemoryToMemory {
			if err := gatedInputs(memoryCell, network.AllToElse); err != nil {
				return nil, err
			}
		}
		if opts.OutputToMemory {
			if err := gatedInputs(outputLayer, network.AllToAll); err != nil {
				return nil, err
			}
		}
		if opts.OutputToGates {
			for _, gate := range []*network.Group{inputGate, forgetGate, outputGate} {
				if _, err := outputLayer.Connect(gate, network.AllToAll, nil); err != nil {
					return nil, err
				}
			}
		}

		parts = append(parts, inputGate, forgetGate, memoryCell, outputGate)
		if !last {
			parts = append(parts, outputBlock)
		}
		previous = outputBlock
	}

	if opts.InputToOutput {
		if _, err := inputLayer.Connect(outputLayer, network.AllToAll, nil); err != nil {
			return nil, err
		}
	}
	parts = append(parts, outputLayer)
	return b.Construct(parts...)
}
