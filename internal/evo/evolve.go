package evo

import (
	"context"
	"fmt"
	"math"
	"time"

	"gatenet/internal/model"
	"gatenet/internal/network"
	"gatenet/internal/nn"
)

const (
	defaultEvolveError  = 0.005
	defaultEvolveGrowth = 0.0001
)

// EvolveProgress is reported to Schedule callbacks and progress logs.
type EvolveProgress struct {
	Generation int
	Error      float64
	Score      float64
}

type Schedule struct {
	Iterations int
	Func       func(EvolveProgress)
}

// EvolveOptions configures Evolve. Amount 0 means 1. Error 0 means 0.005 and
// a negative Error runs to the generation cap. Growth is used as given; see
// DefaultEvolveOptions for the usual value.
type EvolveOptions struct {
	Cost       nn.Cost
	Amount     int
	Growth     float64
	Iterations int
	Error      float64
	Clear      bool
	Log        int
	Schedule   *Schedule
	Neat       Config
}

func DefaultEvolveOptions() EvolveOptions {
	return EvolveOptions{
		Cost:   nn.MSE,
		Amount: 1,
		Growth: defaultEvolveGrowth,
		Error:  defaultEvolveError,
		Neat:   DefaultConfig(),
	}
}

type EvolveResult struct {
	// Error is the test error plus growth penalty of the best network.
	Error       float64
	Generations int
	Elapsed     time.Duration
	Diagnostics []model.GenerationDiagnostics
	// Population is the last generation, unscored.
	Population []model.NetworkRecord
}

// Evolve searches for a network that fits set, starting from copies of net,
// and replaces net with the best network found.
func Evolve(ctx context.Context, net *network.Network, set []network.Sample, opts EvolveOptions) (EvolveResult, error) {
	if len(set) == 0 {
		return EvolveResult{}, fmt.Errorf("%w: empty dataset", network.ErrInvalidOptions)
	}
	for i, s := range set {
		if len(s.Input) != net.Input() || len(s.Output) != net.Output() {
			return EvolveResult{}, fmt.Errorf("%w: sample %d has %d/%d values, network is %d/%d",
				network.ErrSizeMismatch, i, len(s.Input), len(s.Output), net.Input(), net.Output())
		}
	}
	if !opts.Cost.Valid() {
		return EvolveResult{}, fmt.Errorf("%w: cost %s", network.ErrInvalidOptions, opts.Cost)
	}
	if opts.Iterations < 0 || opts.Amount < 0 || opts.Growth < 0 {
		return EvolveResult{}, fmt.Errorf("%w: iterations, amount and growth must be >= 0", network.ErrInvalidOptions)
	}
	amount := opts.Amount
	if amount == 0 {
		amount = 1
	}
	target := opts.Error
	if target == 0 {
		target = defaultEvolveError
	}
	if target < 0 && opts.Iterations == 0 {
		return EvolveResult{}, fmt.Errorf("%w: evolution needs a target error or a generation cap", network.ErrInvalidOptions)
	}

	cfg := opts.Neat
	cfg.Template = net
	cfg.Postprocessor = GrowthPenalty{Growth: opts.Growth}
	cfg.Fitness = func(_ context.Context, n *network.Network) (float64, error) {
		score := 0.0
		for i := 0; i < amount; i++ {
			if opts.Clear {
				n.Clear()
			}
			res, err := n.Test(set, opts.Cost)
			if err != nil {
				return 0, err
			}
			score -= res.Error
		}
		return score / float64(amount), nil
	}
	neat, err := NewNeat(cfg)
	if err != nil {
		return EvolveResult{}, err
	}
	logger := neat.logger

	start := time.Now()
	var (
		best        *network.Network
		bestScore   = math.Inf(-1)
		diagnostics []model.GenerationDiagnostics
	)
	errValue := math.Inf(1)
	for errValue > target && (opts.Iterations == 0 || neat.Generation() < opts.Iterations) {
		diag, err := neat.Evolve(ctx)
		if err != nil {
			return EvolveResult{}, err
		}
		diagnostics = append(diagnostics, diag)

		fittest, err := neat.Fittest(ctx)
		if err != nil {
			return EvolveResult{}, err
		}
		score, _ := fittest.Score()
		errValue = -score
		if best == nil || score > bestScore {
			bestScore = score
			best = fittest.Clone()
		}

		progress := EvolveProgress{Generation: neat.Generation(), Error: errValue, Score: score}
		if opts.Log > 0 && neat.Generation()%opts.Log == 0 {
			logger.Info("evolve progress", "generation", progress.Generation, "error", progress.Error, "nodes", fittest.NodeCount())
		}
		if opts.Schedule != nil && opts.Schedule.Func != nil && opts.Schedule.Iterations > 0 &&
			neat.Generation()%opts.Schedule.Iterations == 0 {
			opts.Schedule.Func(progress)
		}
	}

	if best == nil {
		return EvolveResult{}, fmt.Errorf("%w: no generation was run", network.ErrInvalidOptions)
	}
	if opts.Clear {
		best.Clear()
	}
	best.ClearScore()
	net.Replace(best)

	return EvolveResult{
		Error:       -bestScore,
		Generations: neat.Generation(),
		Elapsed:     time.Since(start),
		Diagnostics: diagnostics,
		Population:  neat.Export(),
	}, nil
}
