package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"

	"gatenet/internal/architect"
	"gatenet/internal/config"
	"gatenet/internal/dataset"
	"gatenet/internal/evo"
	"gatenet/internal/model"
	"gatenet/internal/storage"
	"gatenet/pkg/gatenet"
)

const exportsDir = "exports"

var stdout io.Writer = os.Stdout

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "train":
		return runTrain(ctx, args[1:])
	case "evolve":
		return runEvolve(ctx, args[1:])
	case "test":
		return runTest(ctx, args[1:])
	case "inspect":
		return runInspect(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "list":
		return runList(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// commonFlags are shared by every subcommand. Flags bound to the run config
// override values loaded from -config.
type commonFlags struct {
	binder     *binder
	configPath *string
	verbose    *bool
	quiet      *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	b := newBinder(fs)
	b.String("store", "store backend: memory|sqlite", func(c *config.RunConfig) *string { return &c.Store.Kind })
	b.String("db-path", "sqlite database path", func(c *config.RunConfig) *string { return &c.Store.DBPath })
	b.String("artifacts-dir", "run artifacts directory", func(c *config.RunConfig) *string { return &c.Store.ArtifactsDir })
	b.String("dataset", "dataset: "+strings.Join(dataset.ListBuiltins(), "|")+" or a .csv/.json path", func(c *config.RunConfig) *string { return &c.Network.Dataset })
	b.Int("outputs", "trailing csv columns read as targets", func(c *config.RunConfig) *int { return &c.Network.Outputs })
	b.Int64("seed", "rng seed", func(c *config.RunConfig) *int64 { return &c.Network.Seed })
	return &commonFlags{
		binder:     b,
		configPath: fs.String("config", "", "optional run config path (.json|.ini|.yaml)"),
		verbose:    fs.Bool("v", false, "verbose logging"),
		quiet:      fs.Bool("quiet", false, "log errors only"),
	}
}

func (f *commonFlags) load() (config.RunConfig, error) {
	return f.binder.load(*f.configPath)
}

func (f *commonFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	switch {
	case *f.quiet:
		level = slog.LevelError
	case *f.verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (f *commonFlags) client(cfg config.RunConfig) (*gatenet.Client, error) {
	storeKind := cfg.Store.Kind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	return gatenet.New(gatenet.Options{
		StoreKind:    storeKind,
		DBPath:       cfg.Store.DBPath,
		ArtifactsDir: cfg.Store.ArtifactsDir,
		ExportsDir:   exportsDir,
		Logger:       f.logger(),
	})
}

func addNetworkFlags(b *binder) {
	b.String("arch", "architecture: "+strings.Join(architect.ListArchitectures(), "|"), func(c *config.RunConfig) *string { return &c.Network.Architecture })
	b.Ints("hidden", "comma separated hidden layer sizes", func(c *config.RunConfig) *[]int { return &c.Network.Hidden })
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	common := addCommonFlags(fs)
	b := common.binder
	addNetworkFlags(b)
	b.Float64("rate", "learning rate", func(c *config.RunConfig) *float64 { return &c.Train.Rate })
	b.Int("iterations", "iteration cap (0 runs to -error)", func(c *config.RunConfig) *int { return &c.Train.Iterations })
	b.Float64("error", "target error (negative runs to -iterations)", func(c *config.RunConfig) *float64 { return &c.Train.Error })
	b.Float64("momentum", "momentum", func(c *config.RunConfig) *float64 { return &c.Train.Momentum })
	b.String("cost", "cost function", func(c *config.RunConfig) *string { return &c.Train.Cost })
	b.Bool("shuffle", "shuffle the dataset every iteration", func(c *config.RunConfig) *bool { return &c.Train.Shuffle })
	b.Float64("dropout", "hidden node dropout in [0, 1)", func(c *config.RunConfig) *float64 { return &c.Train.Dropout })
	b.String("rate-policy", "learning rate policy: fixed|step|exp|inv", func(c *config.RunConfig) *string { return &c.Train.RatePolicy })
	b.Int("log", "log progress every n iterations (0 disables)", func(c *config.RunConfig) *int { return &c.Train.Log })
	networkID := fs.String("network", "", "continue from a stored network id")
	fromRun := fs.String("from-run", "", "continue from the network of a previous run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := common.client(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Train(ctx, gatenet.RunRequest{
		Config: cfg,
		From:   gatenet.NetworkRef{NetworkID: *networkID, RunID: *fromRun},
	})
	if err != nil {
		return err
	}
	printRunSummary("trained", summary)
	return nil
}

func runEvolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evolve", flag.ContinueOnError)
	common := addCommonFlags(fs)
	b := common.binder
	addNetworkFlags(b)
	b.Int("population", "population size", func(c *config.RunConfig) *int { return &c.Neat.PopulationSize })
	b.Int("elitism", "networks carried over unchanged", func(c *config.RunConfig) *int { return &c.Neat.Elitism })
	b.Float64("mutation-rate", "probability of each mutation attempt", func(c *config.RunConfig) *float64 { return &c.Neat.MutationRate })
	b.Int("mutation-amount", "mutation attempts per offspring", func(c *config.RunConfig) *int { return &c.Neat.MutationAmount })
	b.String("mutations", "mutation set: all|ffw or a comma separated list", func(c *config.RunConfig) *string { return &c.Neat.Mutations })
	b.String("selection", "parent selection: "+strings.Join(evo.ListSelectors(), "|")+" with optional :params", func(c *config.RunConfig) *string { return &c.Neat.Selection })
	b.Bool("equal", "treat crossover parents as equally fit", func(c *config.RunConfig) *bool { return &c.Neat.Equal })
	b.Int("workers", "fitness evaluation workers", func(c *config.RunConfig) *int { return &c.Neat.Workers })
	b.Int("iterations", "generation cap (0 runs to -error)", func(c *config.RunConfig) *int { return &c.Evolve.Iterations })
	b.Float64("error", "target error (negative runs to -iterations)", func(c *config.RunConfig) *float64 { return &c.Evolve.Error })
	b.Float64("growth", "complexity penalty per node, connection and gate", func(c *config.RunConfig) *float64 { return &c.Evolve.Growth })
	b.Int("amount", "tests averaged per fitness evaluation", func(c *config.RunConfig) *int { return &c.Evolve.Amount })
	b.String("cost", "cost function", func(c *config.RunConfig) *string { return &c.Evolve.Cost })
	b.Bool("clear", "clear network state before each test", func(c *config.RunConfig) *bool { return &c.Evolve.Clear })
	b.Int("log", "log progress every n generations (0 disables)", func(c *config.RunConfig) *int { return &c.Evolve.Log })
	networkID := fs.String("network", "", "seed the population from a stored network id")
	fromRun := fs.String("from-run", "", "seed the population from the network of a previous run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := common.client(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Evolve(ctx, gatenet.RunRequest{
		Config: cfg,
		From:   gatenet.NetworkRef{NetworkID: *networkID, RunID: *fromRun},
	})
	if err != nil {
		return err
	}
	printRunSummary("evolved", summary)
	return nil
}

func runTest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	common := addCommonFlags(fs)
	networkID := fs.String("network", "", "stored network id")
	runID := fs.String("run-id", "", "test the network of a previous run")
	cost := fs.String("cost", "mse", "cost function")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := common.client(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	res, err := client.Test(ctx, gatenet.TestRequest{
		Network: gatenet.NetworkRef{NetworkID: *networkID, RunID: *runID},
		Dataset: cfg.Network.Dataset,
		Outputs: cfg.Network.Outputs,
		Cost:    *cost,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "tested dataset=%s samples=%s cost=%s error=%.6f elapsed=%s\n",
		cfg.Network.Dataset, humanize.Comma(int64(res.Samples)), *cost, res.Error, res.Elapsed.Round(time.Microsecond))
	return nil
}

func runInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	common := addCommonFlags(fs)
	networkID := fs.String("network", "", "stored network id")
	runID := fs.String("run-id", "", "inspect the network of a previous run")
	jsonOut := fs.Bool("json", false, "emit the network record as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := common.client(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	info, err := client.Inspect(ctx, gatenet.NetworkRef{NetworkID: *networkID, RunID: *runID})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info.Record)
	}

	table := uitable.New()
	table.MaxColWidth = 50
	table.AddRow("ID", info.ID)
	table.AddRow("INPUT", info.Input)
	table.AddRow("OUTPUT", info.Output)
	table.AddRow("NODES", info.Summary.Nodes)
	table.AddRow("HIDDEN", info.Summary.Hidden)
	table.AddRow("CONNECTIONS", info.Summary.Connections)
	table.AddRow("SELF CONNECTIONS", info.Summary.SelfConnections)
	table.AddRow("GATES", info.Summary.Gates)
	table.AddRow("FEED FORWARD", info.Summary.FeedForward)
	if info.Score != nil {
		table.AddRow("SCORE", strconv.FormatFloat(*info.Score, 'f', 6, 64))
	}
	fmt.Fprintln(stdout, table)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	kind := fs.String("kind", "", "only list runs of this kind: train|evolve")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	switch model.RunKind(*kind) {
	case "", model.RunTrain, model.RunEvolve:
	default:
		return fmt.Errorf("unknown run kind: %s", *kind)
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := common.client(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, gatenet.RunsRequest{Limit: *limit, Kind: model.RunKind(*kind)})
	if err != nil {
		return err
	}
	if *jsonOut {
		type runsItem struct {
			RunID        string  `json:"run_id"`
			Kind         string  `json:"kind"`
			Dataset      string  `json:"dataset"`
			Iterations   int     `json:"iterations"`
			FinalError   float64 `json:"final_error"`
			NetworkID    string  `json:"network_id"`
			CreatedAtUTC string  `json:"created_at_utc"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem{
				RunID:        item.RunID,
				Kind:         string(item.Kind),
				Dataset:      item.Dataset,
				Iterations:   item.Iterations,
				FinalError:   item.FinalError,
				NetworkID:    item.NetworkID,
				CreatedAtUTC: item.CreatedAtUTC,
			})
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}

	table := uitable.New()
	table.MaxColWidth = 50
	table.AddRow("RUN", "KIND", "DATASET", "ITERATIONS", "ERROR", "CREATED")
	for _, item := range items {
		created := item.CreatedAtUTC
		if ts, err := time.Parse(time.RFC3339Nano, item.CreatedAtUTC); err == nil {
			created = humanize.Time(ts)
		}
		table.AddRow(item.RunID, item.Kind, item.Dataset, humanize.Comma(int64(item.Iterations)),
			strconv.FormatFloat(item.FinalError, 'f', 6, 64), created)
	}
	fmt.Fprintln(stdout, table)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := common.client(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, gatenet.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runList(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	table := uitable.New()
	table.Wrap = true
	table.MaxColWidth = 60
	table.AddRow("architectures", strings.Join(architect.ListArchitectures(), ", "))
	table.AddRow("selectors", strings.Join(evo.ListSelectors(), ", "))
	table.AddRow("datasets", strings.Join(dataset.ListBuiltins(), ", "))
	fmt.Fprintln(stdout, table)
	return nil
}

func printRunSummary(verb string, s gatenet.RunSummary) {
	fmt.Fprintf(stdout, "%s run_id=%s network_id=%s iterations=%s error=%.6f elapsed=%s nodes=%d connections=%d gates=%d\n",
		verb,
		s.RunID,
		s.NetworkID,
		humanize.Comma(int64(s.Iterations)),
		s.FinalError,
		s.Elapsed.Round(time.Millisecond),
		s.Network.Nodes,
		s.Network.Connections,
		s.Network.Gates,
	)
	fmt.Fprintf(stdout, "artifacts=%s\n", s.ArtifactsDir)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: gatenetctl <train|evolve|test|inspect|runs|export|list> [flags]", msg)
}
