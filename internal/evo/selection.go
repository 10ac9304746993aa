package evo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gatenet/internal/network"
)

var ErrTournamentTooLarge = errors.New("tournament size exceeds population size")

// Selector chooses a parent from a population ranked by descending score.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []*network.Network) (*network.Network, error)
}

func scoreOf(n *network.Network) float64 {
	s, _ := n.Score()
	return s
}

func sortByScore(population []*network.Network) {
	sort.SliceStable(population, func(i, j int) bool {
		return scoreOf(population[i]) > scoreOf(population[j])
	})
}

func checkPick(rng *rand.Rand, ranked []*network.Network) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return fmt.Errorf("population is empty")
	}
	return nil
}

// PowerSelector samples rank floor(r^Power * N) for uniform r, so higher
// powers favour the top of the ranking more strongly. The population is
// re-sorted in place when it is found out of order.
type PowerSelector struct {
	Power float64
}

func (PowerSelector) Name() string {
	return "power"
}

func (s PowerSelector) PickParent(rng *rand.Rand, ranked []*network.Network) (*network.Network, error) {
	if err := checkPick(rng, ranked); err != nil {
		return nil, err
	}
	if s.Power <= 0 {
		return nil, fmt.Errorf("power must be > 0: %v", s.Power)
	}
	if len(ranked) > 1 && scoreOf(ranked[0]) < scoreOf(ranked[1]) {
		sortByScore(ranked)
	}
	idx := int(math.Pow(rng.Float64(), s.Power) * float64(len(ranked)))
	return ranked[min(idx, len(ranked)-1)], nil
}

// FitnessProportionateSelector is roulette-wheel sampling. Negative scores
// are handled by shifting every score by the magnitude of the lowest one.
type FitnessProportionateSelector struct{}

func (FitnessProportionateSelector) Name() string {
	return "fitness_proportionate"
}

func (FitnessProportionateSelector) PickParent(rng *rand.Rand, ranked []*network.Network) (*network.Network, error) {
	if err := checkPick(rng, ranked); err != nil {
		return nil, err
	}
	total := 0.0
	lowest := 0.0
	for _, n := range ranked {
		s := scoreOf(n)
		lowest = min(lowest, s)
		total += s
	}
	shift := math.Abs(lowest)
	total += shift * float64(len(ranked))

	r := rng.Float64() * total
	acc := 0.0
	for _, n := range ranked {
		acc += scoreOf(n) + shift
		if r < acc {
			return n, nil
		}
	}
	// all scores equal after shifting
	return ranked[rng.Intn(len(ranked))], nil
}

// TournamentSelector draws Size random individuals and walks them best
// first, accepting each with Probability. The last one is always accepted.
type TournamentSelector struct {
	Size        int
	Probability float64
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []*network.Network) (*network.Network, error) {
	if err := checkPick(rng, ranked); err != nil {
		return nil, err
	}
	if s.Size <= 0 {
		return nil, fmt.Errorf("tournament size must be > 0: %d", s.Size)
	}
	if s.Size > len(ranked) {
		return nil, fmt.Errorf("%w: size=%d population=%d", ErrTournamentTooLarge, s.Size, len(ranked))
	}
	pool := make([]*network.Network, s.Size)
	for i := range pool {
		pool[i] = ranked[rng.Intn(len(ranked))]
	}
	sortByScore(pool)
	for i, n := range pool {
		if i == len(pool)-1 || rng.Float64() < s.Probability {
			return n, nil
		}
	}
	return pool[len(pool)-1], nil
}
