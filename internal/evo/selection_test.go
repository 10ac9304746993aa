package evo

import (
	"errors"
	"math/rand"
	"testing"

	"gatenet/internal/network"
)

func scoredPopulation(t *testing.T, scores ...float64) []*network.Network {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	out := make([]*network.Network, 0, len(scores))
	for _, s := range scores {
		n, err := network.New(1, 1, rng)
		if err != nil {
			t.Fatalf("new network: %v", err)
		}
		n.SetScore(s)
		out = append(out, n)
	}
	return out
}

func TestSelectorsRequireRandomSource(t *testing.T) {
	pop := scoredPopulation(t, 1, 0)
	for _, s := range []Selector{PowerSelector{Power: 4}, FitnessProportionateSelector{}, TournamentSelector{Size: 1, Probability: 0.5}} {
		if _, err := s.PickParent(nil, pop); err == nil {
			t.Fatalf("%s: expected error without random source", s.Name())
		}
		if _, err := s.PickParent(rand.New(rand.NewSource(1)), nil); err == nil {
			t.Fatalf("%s: expected error on empty population", s.Name())
		}
	}
}

func TestPowerSelectorFavoursTopRank(t *testing.T) {
	pop := scoredPopulation(t, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0)
	rng := rand.New(rand.NewSource(2))
	counts := make(map[*network.Network]int)
	for i := 0; i < 2000; i++ {
		p, err := PowerSelector{Power: 4}.PickParent(rng, pop)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		counts[p]++
	}
	if counts[pop[0]] <= counts[pop[len(pop)-1]] {
		t.Fatalf("expected top rank to dominate: top=%d bottom=%d", counts[pop[0]], counts[pop[len(pop)-1]])
	}
	if counts[pop[0]] < 900 {
		t.Fatalf("expected roughly 56%% top picks, got %d of 2000", counts[pop[0]])
	}
}

func TestPowerSelectorResortsUnorderedPopulation(t *testing.T) {
	pop := scoredPopulation(t, 0, 5, 1)
	best := pop[1]
	if _, err := (PowerSelector{Power: 2}).PickParent(rand.New(rand.NewSource(3)), pop); err != nil {
		t.Fatalf("pick parent: %v", err)
	}
	if pop[0] != best {
		t.Fatal("expected population to be re-sorted best first")
	}
}

func TestFitnessProportionateShiftsNegativeScores(t *testing.T) {
	pop := scoredPopulation(t, 3, -1, -1)
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 200; i++ {
		p, err := FitnessProportionateSelector{}.PickParent(rng, pop)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if p != pop[0] {
			t.Fatal("expected only the positive-weight network to be picked")
		}
	}
}

func TestFitnessProportionateFallsBackToUniform(t *testing.T) {
	pop := scoredPopulation(t, 0, 0, 0)
	rng := rand.New(rand.NewSource(5))
	seen := make(map[*network.Network]bool)
	for i := 0; i < 100; i++ {
		p, err := FitnessProportionateSelector{}.PickParent(rng, pop)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		seen[p] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected all networks to be picked, got %d", len(seen))
	}
}

func TestTournamentSelector(t *testing.T) {
	pop := scoredPopulation(t, 4, 3, 2, 1, 0)
	rng := rand.New(rand.NewSource(6))

	if _, err := (TournamentSelector{Size: 6, Probability: 0.5}).PickParent(rng, pop); !errors.Is(err, ErrTournamentTooLarge) {
		t.Fatalf("expected tournament too large, got %v", err)
	}

	top := 0
	for i := 0; i < 500; i++ {
		p, err := TournamentSelector{Size: 5, Probability: 1}.PickParent(rng, pop)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if p == pop[0] {
			top++
		}
	}
	// the best network is in a 5-draw pool with probability 1-(4/5)^5
	if top < 250 {
		t.Fatalf("expected the best network in most tournaments, got %d of 500", top)
	}

	for i := 0; i < 50; i++ {
		p, err := TournamentSelector{Size: 1, Probability: 0}.PickParent(rng, pop)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if p == nil {
			t.Fatal("expected a parent")
		}
	}
}
