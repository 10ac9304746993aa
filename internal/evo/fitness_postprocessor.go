package evo

import (
	"math"

	"gatenet/internal/network"
)

const sizeProportionalEfficiency = 0.05

// FitnessPostprocessor adjusts raw fitness after evaluation and before
// ranking. It must be safe for concurrent use.
type FitnessPostprocessor interface {
	Name() string
	Process(n *network.Network, fitness float64) float64
}

type NoopFitnessPostprocessor struct{}

func (NoopFitnessPostprocessor) Name() string {
	return "none"
}

func (NoopFitnessPostprocessor) Process(_ *network.Network, fitness float64) float64 {
	return fitness
}

// GrowthPenalty subtracts Growth per node, connection and gate.
type GrowthPenalty struct {
	Growth float64
}

func (GrowthPenalty) Name() string {
	return "growth"
}

func (p GrowthPenalty) Process(n *network.Network, fitness float64) float64 {
	return fitness - float64(n.Complexity())*p.Growth
}

// SizeProportionalPostprocessor divides fitness by a small power of the
// network complexity. Intended for non-negative fitness.
type SizeProportionalPostprocessor struct{}

func (SizeProportionalPostprocessor) Name() string {
	return "size_proportional"
}

func (SizeProportionalPostprocessor) Process(n *network.Network, fitness float64) float64 {
	complexity := float64(n.Complexity())
	if complexity < 1 {
		complexity = 1
	}
	return fitness / math.Pow(complexity, sizeProportionalEfficiency)
}
