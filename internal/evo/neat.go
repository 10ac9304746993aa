// Package evo evolves populations of networks: evaluation, selection,
// crossover and structural mutation, one generation at a time.
package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"gatenet/internal/model"
	"gatenet/internal/network"
)

var ErrInvalidConfig = errors.New("invalid neat config")

// FitnessFunc scores one network. Higher is better. It is called
// concurrently for distinct networks when Workers > 1.
type FitnessFunc func(ctx context.Context, n *network.Network) (float64, error)

type Config struct {
	PopulationSize int
	// Elitism is the number of top networks carried over unchanged.
	Elitism        int
	MutationRate   float64
	MutationAmount int
	Mutations      []network.Mutation
	Selector       Selector
	Postprocessor  FitnessPostprocessor
	// Equal makes crossover treat both parents as equally fit.
	Equal   bool
	Workers int

	Seed   int64
	Rand   *rand.Rand
	Logger *slog.Logger

	// Template seeds the initial population. When nil a direct
	// Input x Output network is used.
	Template *network.Network
	Input    int
	Output   int

	Fitness FitnessFunc
}

func DefaultConfig() Config {
	return Config{
		PopulationSize: 50,
		MutationRate:   0.3,
		MutationAmount: 1,
		Mutations:      network.MutationsFFW(),
		Selector:       PowerSelector{Power: 4},
		Postprocessor:  NoopFitnessPostprocessor{},
		Workers:        1,
	}
}

// Neat is a generational evolution controller. It is not safe for
// concurrent use.
type Neat struct {
	cfg        Config
	rng        *rand.Rand
	logger     *slog.Logger
	population []*network.Network
	generation int
	noops      int
}

func NewNeat(cfg Config) (*Neat, error) {
	def := DefaultConfig()
	if cfg.PopulationSize == 0 {
		cfg.PopulationSize = def.PopulationSize
	}
	if cfg.MutationRate == 0 {
		cfg.MutationRate = def.MutationRate
	}
	if cfg.MutationAmount == 0 {
		cfg.MutationAmount = def.MutationAmount
	}
	if len(cfg.Mutations) == 0 {
		cfg.Mutations = def.Mutations
	}
	if cfg.Selector == nil {
		cfg.Selector = def.Selector
	}
	if cfg.Postprocessor == nil {
		cfg.Postprocessor = def.Postprocessor
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	if cfg.Fitness == nil {
		return nil, fmt.Errorf("%w: fitness function is required", ErrInvalidConfig)
	}
	if cfg.PopulationSize < 0 {
		return nil, fmt.Errorf("%w: population size must be > 0", ErrInvalidConfig)
	}
	if cfg.Elitism < 0 || cfg.Elitism > cfg.PopulationSize {
		return nil, fmt.Errorf("%w: elitism must be in [0, population size]", ErrInvalidConfig)
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("%w: mutation rate must be in [0, 1]", ErrInvalidConfig)
	}
	if cfg.MutationAmount < 0 {
		return nil, fmt.Errorf("%w: mutation amount must be >= 0", ErrInvalidConfig)
	}
	if t, ok := cfg.Selector.(TournamentSelector); ok && t.Size > cfg.PopulationSize {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, ErrTournamentTooLarge)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	template := cfg.Template
	if template == nil {
		if cfg.Input <= 0 || cfg.Output <= 0 {
			return nil, fmt.Errorf("%w: template or input/output sizes are required", ErrInvalidConfig)
		}
		var err error
		template, err = network.New(cfg.Input, cfg.Output, rng)
		if err != nil {
			return nil, err
		}
	}
	cfg.Input, cfg.Output = template.Input(), template.Output()

	rec := template.ToRecord()
	population := make([]*network.Network, cfg.PopulationSize)
	for i := range population {
		n, err := network.FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: template: %w", ErrInvalidConfig, err)
		}
		population[i] = n
	}

	return &Neat{
		cfg:        cfg,
		rng:        rng,
		logger:     logger,
		population: population,
	}, nil
}

func (ne *Neat) Generation() int { return ne.generation }

// Population returns the live population slice. Its order is the last
// ranking, or creation order before any evaluation.
func (ne *Neat) Population() []*network.Network { return ne.population }

func (ne *Neat) scored() bool {
	for _, n := range ne.population {
		if _, ok := n.Score(); !ok {
			return false
		}
	}
	return true
}

// Evaluate scores every network that has no score yet.
func (ne *Neat) Evaluate(ctx context.Context) error {
	pending := make([]*network.Network, 0, len(ne.population))
	for _, n := range ne.population {
		if _, ok := n.Score(); !ok {
			pending = append(pending, n)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	return ne.evaluatePopulation(ctx, pending)
}

func (ne *Neat) evaluatePopulation(ctx context.Context, population []*network.Network) error {
	type job struct {
		idx int
		net *network.Network
	}
	type result struct {
		idx     int
		fitness float64
		err     error
	}

	jobs := make(chan job)
	results := make(chan result, len(population))

	workerCount := min(ne.cfg.Workers, len(population))

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				fitness, err := ne.cfg.Fitness(ctx, j.net)
				if err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				fitness = ne.cfg.Postprocessor.Process(j.net, fitness)
				if math.IsNaN(fitness) {
					fitness = math.Inf(-1)
				}
				results <- result{idx: j.idx, fitness: fitness}
			}
		}()
	}

	for i := range population {
		jobs <- job{idx: i, net: population[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	scores := make([]float64, len(population))
	for res := range results {
		if res.err != nil {
			return fmt.Errorf("evaluate network %d: %w", res.idx, res.err)
		}
		scores[res.idx] = res.fitness
	}
	for i, n := range population {
		n.SetScore(scores[i])
	}
	return nil
}

// Evolve runs one generation and returns the diagnostics of the evaluated
// population it bred from.
func (ne *Neat) Evolve(ctx context.Context) (model.GenerationDiagnostics, error) {
	if err := ctx.Err(); err != nil {
		return model.GenerationDiagnostics{}, err
	}
	if err := ne.Evaluate(ctx); err != nil {
		return model.GenerationDiagnostics{}, err
	}
	sortByScore(ne.population)
	diag := summarizeGeneration(ne.population, ne.generation)

	next := make([]*network.Network, 0, ne.cfg.PopulationSize)
	for i := 0; i < ne.cfg.Elitism; i++ {
		elite := ne.population[i].Clone()
		// re-scored next generation from the same fresh state as offspring
		elite.Clear()
		next = append(next, elite)
	}

	noops := 0
	for len(next) < ne.cfg.PopulationSize {
		child, err := ne.offspring()
		if err != nil {
			return diag, err
		}
		n, err := ne.mutate(child)
		if err != nil {
			return diag, err
		}
		noops += n
		next = append(next, child)
	}
	for _, n := range next {
		n.ClearScore()
	}

	ne.population = next
	ne.noops += noops
	diag.NoopMutations = noops
	ne.generation++
	return diag, nil
}

func (ne *Neat) offspring() (*network.Network, error) {
	a, err := ne.cfg.Selector.PickParent(ne.rng, ne.population)
	if err != nil {
		return nil, fmt.Errorf("select parent (%s): %w", ne.cfg.Selector.Name(), err)
	}
	b, err := ne.cfg.Selector.PickParent(ne.rng, ne.population)
	if err != nil {
		return nil, fmt.Errorf("select parent (%s): %w", ne.cfg.Selector.Name(), err)
	}
	return network.CrossOver(a, b, ne.rng, ne.cfg.Equal)
}

// mutate applies MutationAmount random operators with probability
// MutationRate and returns how many of them had nothing to act on.
func (ne *Neat) mutate(n *network.Network) (int, error) {
	if ne.rng.Float64() > ne.cfg.MutationRate {
		return 0, nil
	}
	noops := 0
	for i := 0; i < ne.cfg.MutationAmount; i++ {
		m := ne.cfg.Mutations[ne.rng.Intn(len(ne.cfg.Mutations))]
		err := n.Mutate(ne.rng, m)
		switch {
		case err == nil:
		case errors.Is(err, network.ErrNoMutationTarget):
			noops++
			ne.logger.Warn("mutation skipped", "generation", ne.generation, "err", err)
		default:
			return noops, err
		}
	}
	return noops, nil
}

func summarizeGeneration(ranked []*network.Network, generation int) model.GenerationDiagnostics {
	if len(ranked) == 0 {
		return model.GenerationDiagnostics{Generation: generation}
	}
	total := 0.0
	minScore := scoreOf(ranked[0])
	var nodes, conns, gates int
	for _, n := range ranked {
		s := scoreOf(n)
		total += s
		minScore = min(minScore, s)
		sum := n.Summary()
		nodes += sum.Nodes
		conns += sum.Connections
		gates += sum.Gates
	}
	size := float64(len(ranked))
	return model.GenerationDiagnostics{
		Generation:      generation,
		BestScore:       scoreOf(ranked[0]),
		MeanScore:       total / size,
		MinScore:        minScore,
		MeanNodes:       float64(nodes) / size,
		MeanConnections: float64(conns) / size,
		MeanGates:       float64(gates) / size,
	}
}

// Fittest evaluates the population if needed and returns its best network.
// The returned network is owned by the population.
func (ne *Neat) Fittest(ctx context.Context) (*network.Network, error) {
	if err := ne.Evaluate(ctx); err != nil {
		return nil, err
	}
	sortByScore(ne.population)
	return ne.population[0], nil
}

// Average evaluates the population if needed and returns its mean score.
func (ne *Neat) Average(ctx context.Context) (float64, error) {
	if err := ne.Evaluate(ctx); err != nil {
		return 0, err
	}
	total := 0.0
	for _, n := range ne.population {
		total += scoreOf(n)
	}
	return total / float64(len(ne.population)), nil
}

// NoopMutations is the number of mutations skipped so far for lack of a
// target.
func (ne *Neat) NoopMutations() int { return ne.noops }

func (ne *Neat) Export() []model.NetworkRecord {
	out := make([]model.NetworkRecord, 0, len(ne.population))
	for _, n := range ne.population {
		out = append(out, n.ToRecord())
	}
	return out
}

// Import replaces the population with unscored networks restored from
// records. All records must match the controller's input and output sizes.
// The population size follows the number of records.
func (ne *Neat) Import(records []model.NetworkRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: empty population", ErrInvalidConfig)
	}
	if len(records) < ne.cfg.Elitism {
		return fmt.Errorf("%w: %d networks cannot hold elitism %d", ErrInvalidConfig, len(records), ne.cfg.Elitism)
	}
	population := make([]*network.Network, 0, len(records))
	for i, rec := range records {
		n, err := network.FromRecord(rec)
		if err != nil {
			return fmt.Errorf("import network %d: %w", i, err)
		}
		if n.Input() != ne.cfg.Input || n.Output() != ne.cfg.Output {
			return fmt.Errorf("import network %d: %w: got %d/%d want %d/%d",
				i, network.ErrSizeMismatch, n.Input(), n.Output(), ne.cfg.Input, ne.cfg.Output)
		}
		population = append(population, n)
	}
	ne.population = population
	ne.cfg.PopulationSize = len(population)
	return nil
}
