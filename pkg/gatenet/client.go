// Package gatenet is the public entry point for training, evolving and
// inspecting stored networks.
package gatenet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gatenet/internal/architect"
	"gatenet/internal/config"
	"gatenet/internal/dataset"
	"gatenet/internal/evo"
	"gatenet/internal/model"
	"gatenet/internal/network"
	"gatenet/internal/nn"
	"gatenet/internal/stats"
	"gatenet/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "gatenet.db"

	// fixed width so timestamps sort as strings
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	ErrNetworkNotFound = errors.New("network not found")
	ErrRunNotFound     = errors.New("run not found")
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	artifactsDir string
	exportsDir   string

	initMu      sync.Mutex
	initialized bool
}

// NetworkRef names a network either by its store id or by the run whose
// artifacts hold it. At most one field is set.
type NetworkRef struct {
	NetworkID string
	RunID     string
}

func (r NetworkRef) empty() bool {
	return strings.TrimSpace(r.NetworkID) == "" && strings.TrimSpace(r.RunID) == ""
}

// RunRequest starts a train or evolve run. When From names a network it is
// used as the starting point instead of a freshly built one.
type RunRequest struct {
	Config config.RunConfig
	From   NetworkRef
}

type RunSummary struct {
	RunID        string
	Kind         model.RunKind
	NetworkID    string
	PopulationID string
	ArtifactsDir string
	FinalError   float64
	Iterations   int
	Elapsed      time.Duration
	ErrorHistory []float64
	Network      network.Summary
}

type TestRequest struct {
	Network NetworkRef
	Dataset string
	Outputs int
	Cost    string
}

type TestSummary struct {
	Network NetworkRef
	Samples int
	Error   float64
	Elapsed time.Duration
}

type NetworkInfo struct {
	ID      string
	Score   *float64
	Input   int
	Output  int
	Summary network.Summary
	Record  model.NetworkRecord
}

type RunsRequest struct {
	Limit int
	Kind  model.RunKind
}

type RunItem struct {
	RunID        string
	Kind         model.RunKind
	Dataset      string
	Iterations   int
	FinalError   float64
	NetworkID    string
	CreatedAtUTC string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Init opens the store. Every other method calls it on first use.
func (c *Client) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Train fits a network to the configured dataset with backpropagation and
// stores the result.
func (c *Client) Train(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	set, err := dataset.Load(cfg.Network.Dataset, cfg.Network.Outputs)
	if err != nil {
		return RunSummary{}, err
	}
	rng := rand.New(rand.NewSource(cfg.Network.Seed))
	net, err := c.startNetwork(ctx, req, set, rng)
	if err != nil {
		return RunSummary{}, err
	}

	opts, err := trainOptions(cfg.Train, rng, c.logger)
	if err != nil {
		return RunSummary{}, err
	}
	var history []float64
	opts.Schedule = &network.Schedule{Iterations: 1, Func: func(p network.Progress) {
		history = append(history, p.Error)
	}}
	if err := ctx.Err(); err != nil {
		return RunSummary{}, err
	}
	res, err := net.Train(set, opts)
	if err != nil {
		return RunSummary{}, err
	}

	return c.record(ctx, runOutcome{
		kind:       model.RunTrain,
		cfg:        cfg,
		net:        net,
		finalError: res.Error,
		iterations: res.Iterations,
		elapsed:    res.Elapsed,
		history:    history,
	})
}

// Evolve runs neuro-evolution on the configured dataset and stores the best
// network and the final population.
func (c *Client) Evolve(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	set, err := dataset.Load(cfg.Network.Dataset, cfg.Network.Outputs)
	if err != nil {
		return RunSummary{}, err
	}
	rng := rand.New(rand.NewSource(cfg.Network.Seed))
	net, err := c.startNetwork(ctx, req, set, rng)
	if err != nil {
		return RunSummary{}, err
	}

	opts, err := evolveOptions(cfg, rng, c.logger)
	if err != nil {
		return RunSummary{}, err
	}
	var history []float64
	opts.Schedule = &evo.Schedule{Iterations: 1, Func: func(p evo.EvolveProgress) {
		history = append(history, p.Error)
	}}
	res, err := evo.Evolve(ctx, net, set, opts)
	if err != nil {
		return RunSummary{}, err
	}

	return c.record(ctx, runOutcome{
		kind:        model.RunEvolve,
		cfg:         cfg,
		net:         net,
		finalError:  res.Error,
		iterations:  res.Generations,
		elapsed:     res.Elapsed,
		history:     history,
		diagnostics: res.Diagnostics,
		population:  res.Population,
	})
}

// Test measures a stored network's error on a dataset.
func (c *Client) Test(ctx context.Context, req TestRequest) (TestSummary, error) {
	net, _, err := c.loadNetwork(ctx, req.Network)
	if err != nil {
		return TestSummary{}, err
	}
	set, err := dataset.Load(req.Dataset, req.Outputs)
	if err != nil {
		return TestSummary{}, err
	}
	cost, err := parseCost(req.Cost)
	if err != nil {
		return TestSummary{}, err
	}
	res, err := net.Test(set, cost)
	if err != nil {
		return TestSummary{}, err
	}
	return TestSummary{
		Network: req.Network,
		Samples: len(set),
		Error:   res.Error,
		Elapsed: res.Elapsed,
	}, nil
}

func (c *Client) Inspect(ctx context.Context, ref NetworkRef) (NetworkInfo, error) {
	net, snapshot, err := c.loadNetwork(ctx, ref)
	if err != nil {
		return NetworkInfo{}, err
	}
	return NetworkInfo{
		ID:      snapshot.ID,
		Score:   snapshot.Score,
		Input:   net.Input(),
		Output:  net.Output(),
		Summary: net.Summary(),
		Record:  snapshot.Network,
	}, nil
}

// Activate feeds one input vector through a stored network without recording
// traces.
func (c *Client) Activate(ctx context.Context, ref NetworkRef, input []float64) ([]float64, error) {
	net, _, err := c.loadNetwork(ctx, ref)
	if err != nil {
		return nil, err
	}
	return net.ActivateNoTrace(input)
}

func (c *Client) Networks(ctx context.Context) ([]string, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListNetworks(ctx)
}

// Runs lists runs from the artifacts run index, newest first. The index
// outlives the in-memory store.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, min(len(entries), req.Limit))
	for _, e := range entries {
		if len(out) == req.Limit {
			break
		}
		if req.Kind != "" && e.Kind != req.Kind {
			continue
		}
		out = append(out, RunItem{
			RunID:        e.RunID,
			Kind:         e.Kind,
			Dataset:      e.Dataset,
			Iterations:   e.Iterations,
			FinalError:   e.FinalError,
			NetworkID:    e.NetworkID,
			CreatedAtUTC: e.CreatedAtUTC,
		})
	}
	return out, nil
}

// StoredRuns lists the run records kept in the store, oldest first.
func (c *Client) StoredRuns(ctx context.Context) ([]model.RunRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRuns(ctx)
}

// History returns the per-iteration error curve of a run and, for evolve
// runs, its generation diagnostics.
func (c *Client) History(ctx context.Context, runID string) ([]float64, []model.GenerationDiagnostics, error) {
	if err := c.Init(ctx); err != nil {
		return nil, nil, err
	}
	if _, ok, err := c.store.GetRun(ctx, runID); err != nil {
		return nil, nil, err
	} else if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	history, _, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	diagnostics, _, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return history, diagnostics, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) startNetwork(ctx context.Context, req RunRequest, set []network.Sample, rng *rand.Rand) (*network.Network, error) {
	in, out := dataset.Sizes(set)
	if !req.From.empty() {
		net, snapshot, err := c.loadNetwork(ctx, req.From)
		if err != nil {
			return nil, err
		}
		if net.Input() != in || net.Output() != out {
			return nil, fmt.Errorf("%w: network %s is %d/%d, dataset is %d/%d",
				network.ErrSizeMismatch, snapshot.ID, net.Input(), net.Output(), in, out)
		}
		return net, nil
	}
	return architect.Build(req.Config.Network.Architecture, rng, architect.Shape{
		Input:  in,
		Hidden: req.Config.Network.Hidden,
		Output: out,
	})
}

// loadNetwork restores a network from the store, or from a run's artifacts
// when ref names a run.
func (c *Client) loadNetwork(ctx context.Context, ref NetworkRef) (*network.Network, model.NetworkSnapshot, error) {
	if err := c.Init(ctx); err != nil {
		return nil, model.NetworkSnapshot{}, err
	}
	if ref.empty() {
		return nil, model.NetworkSnapshot{}, errors.New("network id or run id is required")
	}
	if ref.NetworkID != "" && ref.RunID != "" {
		return nil, model.NetworkSnapshot{}, errors.New("use either network id or run id")
	}

	var snapshot model.NetworkSnapshot
	if ref.RunID != "" {
		rec, ok, err := stats.ReadNetwork(c.artifactsDir, ref.RunID)
		if err != nil {
			return nil, model.NetworkSnapshot{}, err
		}
		if !ok {
			return nil, model.NetworkSnapshot{}, fmt.Errorf("%w: %s", ErrRunNotFound, ref.RunID)
		}
		snapshot = model.NetworkSnapshot{VersionedRecord: storage.Versioned(), ID: ref.RunID, Network: rec}
	} else {
		stored, ok, err := c.store.GetNetwork(ctx, ref.NetworkID)
		if err != nil {
			return nil, model.NetworkSnapshot{}, err
		}
		if !ok {
			return nil, model.NetworkSnapshot{}, fmt.Errorf("%w: %s", ErrNetworkNotFound, ref.NetworkID)
		}
		snapshot = stored
	}
	net, err := network.FromRecord(snapshot.Network)
	if err != nil {
		return nil, model.NetworkSnapshot{}, fmt.Errorf("restore network %s: %w", snapshot.ID, err)
	}
	return net, snapshot, nil
}

type runOutcome struct {
	kind        model.RunKind
	cfg         config.RunConfig
	net         *network.Network
	finalError  float64
	iterations  int
	elapsed     time.Duration
	history     []float64
	diagnostics []model.GenerationDiagnostics
	population  []model.NetworkRecord
}

// record persists a finished run to the store and the artifacts directory.
func (c *Client) record(ctx context.Context, o runOutcome) (RunSummary, error) {
	now := time.Now().UTC()
	runID := fmt.Sprintf("%s-%s", o.kind, uuid.NewString())
	networkID := uuid.NewString()
	rec := o.net.ToRecord()

	score := -o.finalError
	if err := c.store.SaveNetwork(ctx, model.NetworkSnapshot{
		VersionedRecord: storage.Versioned(),
		ID:              networkID,
		Score:           &score,
		Network:         rec,
	}); err != nil {
		return RunSummary{}, err
	}

	var populationID string
	if len(o.population) > 0 {
		populationID = runID + "-population"
		if err := c.store.SavePopulation(ctx, model.PopulationSnapshot{
			VersionedRecord: storage.Versioned(),
			ID:              populationID,
			Generation:      o.iterations,
			Networks:        o.population,
		}); err != nil {
			return RunSummary{}, err
		}
	}
	if err := c.store.SaveFitnessHistory(ctx, runID, o.history); err != nil {
		return RunSummary{}, err
	}
	if len(o.diagnostics) > 0 {
		if err := c.store.SaveGenerationDiagnostics(ctx, runID, o.diagnostics); err != nil {
			return RunSummary{}, err
		}
	}
	if err := c.store.SaveRun(ctx, model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		Kind:            o.kind,
		CreatedAtUTC:    now.Format(timestampLayout),
		Dataset:         o.cfg.Network.Dataset,
		FinalError:      o.finalError,
		Iterations:      o.iterations,
		ElapsedMS:       o.elapsed.Milliseconds(),
		NetworkID:       networkID,
		PopulationID:    populationID,
	}); err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config:                artifactConfig(runID, o.kind, o.cfg),
		ErrorHistory:          o.history,
		FinalError:            o.finalError,
		Network:               rec,
		GenerationDiagnostics: o.diagnostics,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.WriteErrorHistoryCSV(runDir, o.history); err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		Kind:         o.kind,
		Dataset:      o.cfg.Network.Dataset,
		Iterations:   o.iterations,
		FinalError:   o.finalError,
		NetworkID:    networkID,
		CreatedAtUTC: now.Format(timestampLayout),
	}); err != nil {
		return RunSummary{}, err
	}
	c.logger.Info("run recorded", "run_id", runID, "kind", o.kind, "network_id", networkID, "error", o.finalError)

	return RunSummary{
		RunID:        runID,
		Kind:         o.kind,
		NetworkID:    networkID,
		PopulationID: populationID,
		ArtifactsDir: runDir,
		FinalError:   o.finalError,
		Iterations:   o.iterations,
		Elapsed:      o.elapsed,
		ErrorHistory: o.history,
		Network:      o.net.Summary(),
	}, nil
}

func parseCost(name string) (nn.Cost, error) {
	if strings.TrimSpace(name) == "" {
		return nn.MSE, nil
	}
	return nn.ParseCost(name)
}

func trainOptions(cfg config.TrainConfig, rng *rand.Rand, logger *slog.Logger) (network.TrainOptions, error) {
	cost, err := parseCost(cfg.Cost)
	if err != nil {
		return network.TrainOptions{}, err
	}
	policy, err := nn.ParseRatePolicy(cfg.RatePolicy)
	if err != nil {
		return network.TrainOptions{}, err
	}
	return network.TrainOptions{
		Rate:       cfg.Rate,
		Iterations: cfg.Iterations,
		Error:      cfg.Error,
		Cost:       cost,
		Shuffle:    cfg.Shuffle,
		Momentum:   cfg.Momentum,
		Dropout:    cfg.Dropout,
		Clear:      cfg.Clear,
		Log:        cfg.Log,
		RatePolicy: policy,
		Rand:       rng,
		Logger:     logger,
	}, nil
}

func evolveOptions(cfg config.RunConfig, rng *rand.Rand, logger *slog.Logger) (evo.EvolveOptions, error) {
	cost, err := parseCost(cfg.Evolve.Cost)
	if err != nil {
		return evo.EvolveOptions{}, err
	}
	opts := evo.DefaultEvolveOptions()
	if strings.TrimSpace(cfg.Neat.Selection) != "" {
		selector, err := evo.ParseSelector(cfg.Neat.Selection)
		if err != nil {
			return evo.EvolveOptions{}, err
		}
		opts.Neat.Selector = selector
	}
	mutations, err := network.ParseMutationSet(cfg.Neat.Mutations)
	if err != nil {
		return evo.EvolveOptions{}, err
	}

	opts.Cost = cost
	opts.Amount = cfg.Evolve.Amount
	opts.Growth = cfg.Evolve.Growth
	opts.Iterations = cfg.Evolve.Iterations
	opts.Error = cfg.Evolve.Error
	opts.Clear = cfg.Evolve.Clear
	opts.Log = cfg.Evolve.Log

	opts.Neat.PopulationSize = cfg.Neat.PopulationSize
	opts.Neat.Elitism = cfg.Neat.Elitism
	opts.Neat.MutationRate = cfg.Neat.MutationRate
	opts.Neat.MutationAmount = cfg.Neat.MutationAmount
	opts.Neat.Mutations = mutations
	opts.Neat.Equal = cfg.Neat.Equal
	opts.Neat.Workers = cfg.Neat.Workers
	opts.Neat.Rand = rng
	opts.Neat.Logger = logger
	return opts, nil
}

func artifactConfig(runID string, kind model.RunKind, cfg config.RunConfig) stats.RunConfig {
	out := stats.RunConfig{
		RunID:        runID,
		Kind:         kind,
		Dataset:      cfg.Network.Dataset,
		Architecture: cfg.Network.Architecture,
		Hidden:       cfg.Network.Hidden,
		Seed:         cfg.Network.Seed,
	}
	switch kind {
	case model.RunTrain:
		out.Cost = cfg.Train.Cost
		out.Rate = cfg.Train.Rate
		out.Momentum = cfg.Train.Momentum
		out.Iterations = cfg.Train.Iterations
		out.Error = cfg.Train.Error
		out.Shuffle = cfg.Train.Shuffle
		out.Dropout = cfg.Train.Dropout
	case model.RunEvolve:
		out.Cost = cfg.Evolve.Cost
		out.Iterations = cfg.Evolve.Iterations
		out.Error = cfg.Evolve.Error
		out.Growth = cfg.Evolve.Growth
		out.PopulationSize = cfg.Neat.PopulationSize
		out.Elitism = cfg.Neat.Elitism
		out.MutationRate = cfg.Neat.MutationRate
		out.MutationAmount = cfg.Neat.MutationAmount
		out.Mutations = cfg.Neat.Mutations
		out.Selection = cfg.Neat.Selection
		out.Workers = cfg.Neat.Workers
	}
	return out
}
