package evo

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gatenet/internal/network"
	"gatenet/internal/nn"
)

func evolveOptions(seed int64) EvolveOptions {
	opts := DefaultEvolveOptions()
	opts.Neat.PopulationSize = 20
	opts.Neat.Elitism = 2
	opts.Neat.Seed = seed
	opts.Neat.MutationRate = 0.6
	return opts
}

func TestEvolveReplacesNetworkWithBestFound(t *testing.T) {
	net, err := network.New(2, 1, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	opts := evolveOptions(3)
	opts.Iterations = 30
	opts.Error = 0.02

	res, err := Evolve(context.Background(), net, orSet, opts)
	if err != nil {
		t.Fatalf("evolve: %v", err)
	}
	if res.Generations == 0 || res.Generations > 30 {
		t.Fatalf("unexpected generation count %d", res.Generations)
	}
	if len(res.Diagnostics) != res.Generations {
		t.Fatalf("expected one diagnostics entry per generation, got %d", len(res.Diagnostics))
	}
	if len(res.Population) != 20 {
		t.Fatalf("expected final population of 20, got %d", len(res.Population))
	}
	if _, ok := net.Score(); ok {
		t.Fatal("replaced network should carry no score")
	}
	if err := net.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	test, err := net.Test(orSet, nn.MSE)
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	want := test.Error + float64(net.Complexity())*opts.Growth
	if math.Abs(res.Error-want) > 1e-9 {
		t.Fatalf("reported error %f does not match replaced network %f", res.Error, want)
	}
	if res.Generations < 30 && res.Error > 0.02 {
		t.Fatalf("stopped early at error %f", res.Error)
	}
}

func TestEvolveBestScoreIsMonotonic(t *testing.T) {
	net, err := network.New(2, 1, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	opts := evolveOptions(5)
	opts.Neat.Elitism = 1
	opts.Iterations = 20
	opts.Error = -1

	res, err := Evolve(context.Background(), net, orSet, opts)
	if err != nil {
		t.Fatalf("evolve: %v", err)
	}
	if res.Generations != 20 {
		t.Fatalf("expected 20 generations, got %d", res.Generations)
	}
	for i := 1; i < len(res.Diagnostics); i++ {
		if res.Diagnostics[i].BestScore < res.Diagnostics[i-1].BestScore {
			t.Fatalf("best score dropped at generation %d: %f -> %f",
				i, res.Diagnostics[i-1].BestScore, res.Diagnostics[i].BestScore)
		}
	}
}

func TestEvolveScheduleAndClear(t *testing.T) {
	net, err := network.New(2, 1, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	opts := evolveOptions(7)
	opts.Iterations = 6
	opts.Error = -1
	opts.Clear = true
	opts.Amount = 2
	var calls []int
	opts.Schedule = &Schedule{Iterations: 2, Func: func(p EvolveProgress) {
		calls = append(calls, p.Generation)
		if p.Error != -p.Score {
			t.Errorf("progress error %f does not mirror score %f", p.Error, p.Score)
		}
	}}
	if _, err := Evolve(context.Background(), net, orSet, opts); err != nil {
		t.Fatalf("evolve: %v", err)
	}
	if len(calls) != 3 || calls[0] != 2 || calls[2] != 6 {
		t.Fatalf("unexpected schedule calls %v", calls)
	}
}

func TestEvolveRejectsBadOptions(t *testing.T) {
	net, err := network.New(2, 1, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	tests := []struct {
		name   string
		set    []network.Sample
		mutate func(*EvolveOptions)
		want   error
	}{
		{name: "empty_set", set: nil, want: network.ErrInvalidOptions},
		{name: "sample_size", set: []network.Sample{{Input: []float64{1}, Output: []float64{1}}}, want: network.ErrSizeMismatch},
		{name: "cost", set: orSet, mutate: func(o *EvolveOptions) { o.Cost = nn.Cost(99) }, want: network.ErrInvalidOptions},
		{name: "no_stop", set: orSet, mutate: func(o *EvolveOptions) { o.Error = -1 }, want: network.ErrInvalidOptions},
		{name: "negative_growth", set: orSet, mutate: func(o *EvolveOptions) { o.Growth = -1 }, want: network.ErrInvalidOptions},
		{name: "neat_config", set: orSet, mutate: func(o *EvolveOptions) { o.Iterations = 1; o.Neat.Elitism = 100 }, want: ErrInvalidConfig},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := evolveOptions(1)
			if tc.mutate != nil {
				tc.mutate(&opts)
			}
			if _, err := Evolve(context.Background(), net, tc.set, opts); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestEvolveStopsOnCancelledContext(t *testing.T) {
	net, err := network.New(2, 1, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	before := net.ToRecord()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Evolve(ctx, net, orSet, evolveOptions(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if after := net.ToRecord(); after.Nodes[2].Bias != before.Nodes[2].Bias {
		t.Fatal("network changed on a cancelled run")
	}
}
