package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gatenet/internal/model"
	"gatenet/internal/stats"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	orig := stdout
	stdout = buf
	t.Cleanup(func() {
		stdout = orig
	})
	return buf
}

func TestRunRequiresKnownCommand(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
	if err := run(context.Background(), []string{"serve"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestTrainInspectTestAndExportFromArtifacts(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	artifactsDir := filepath.Join(base, "runs")
	out := captureStdout(t)

	err := run(ctx, []string{
		"train",
		"-store", "memory",
		"-artifacts-dir", artifactsDir,
		"-arch", "perceptron",
		"-hidden", "3",
		"-iterations", "30",
		"-error", "-1",
		"-seed", "4",
		"-quiet",
	})
	if err != nil {
		t.Fatalf("train command: %v", err)
	}
	if !strings.HasPrefix(out.String(), "trained run_id=train-") {
		t.Fatalf("unexpected train output %q", out.String())
	}

	entries, err := stats.ListRunIndex(artifactsDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("list run index: %+v err=%v", entries, err)
	}
	runID := entries[0].RunID
	if entries[0].Kind != model.RunTrain || entries[0].Iterations != 30 {
		t.Fatalf("unexpected index entry %+v", entries[0])
	}

	out.Reset()
	if err := run(ctx, []string{"inspect", "-store", "memory", "-artifacts-dir", artifactsDir, "-run-id", runID, "-json"}); err != nil {
		t.Fatalf("inspect command: %v", err)
	}
	var rec model.NetworkRecord
	if err := json.Unmarshal(out.Bytes(), &rec); err != nil {
		t.Fatalf("decode inspect output: %v", err)
	}
	if rec.Input != 2 || rec.Output != 1 || len(rec.Nodes) != 6 {
		t.Fatalf("unexpected inspected record: input=%d output=%d nodes=%d", rec.Input, rec.Output, len(rec.Nodes))
	}

	out.Reset()
	if err := run(ctx, []string{"inspect", "-store", "memory", "-artifacts-dir", artifactsDir, "-run-id", runID}); err != nil {
		t.Fatalf("inspect table: %v", err)
	}
	if !strings.Contains(out.String(), "CONNECTIONS") {
		t.Fatalf("unexpected inspect table %q", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"test", "-store", "memory", "-artifacts-dir", artifactsDir, "-run-id", runID, "-dataset", "xor"}); err != nil {
		t.Fatalf("test command: %v", err)
	}
	if !strings.Contains(out.String(), "samples=4") {
		t.Fatalf("unexpected test output %q", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"runs", "-artifacts-dir", artifactsDir, "-store", "memory"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out.String(), runID) {
		t.Fatalf("expected %s in runs output %q", runID, out.String())
	}

	exportDir := filepath.Join(base, "exports")
	out.Reset()
	if err := run(ctx, []string{"export", "-store", "memory", "-artifacts-dir", artifactsDir, "-latest", "-out", exportDir}); err != nil {
		t.Fatalf("export command: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exportDir, runID, "network.json")); err != nil {
		t.Fatalf("expected exported network: %v", err)
	}
	if err := run(ctx, []string{"export", "-store", "memory", "-artifacts-dir", artifactsDir}); err == nil {
		t.Fatal("expected export error without run id")
	}
}

func TestEvolveCommandWithConfigFile(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	artifactsDir := filepath.Join(base, "runs")
	configPath := filepath.Join(base, "run.yaml")
	body := `network:
  dataset: or
  seed: 3
evolve:
  iterations: 2
  error: -1
neat:
  population_size: 6
  elitism: 1
  selection: fitness_proportionate
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out := captureStdout(t)

	err := run(ctx, []string{
		"evolve",
		"-config", configPath,
		"-store", "memory",
		"-artifacts-dir", artifactsDir,
		"-iterations", "3",
		"-workers", "2",
		"-quiet",
	})
	if err != nil {
		t.Fatalf("evolve command: %v", err)
	}
	if !strings.HasPrefix(out.String(), "evolved run_id=evolve-") {
		t.Fatalf("unexpected evolve output %q", out.String())
	}

	entries, err := stats.ListRunIndex(artifactsDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("list run index: %+v err=%v", entries, err)
	}
	if entries[0].Iterations != 3 || entries[0].Dataset != "or" {
		t.Fatalf("expected flag to override config, got %+v", entries[0])
	}
	cfg, ok, err := stats.ReadRunConfig(artifactsDir, entries[0].RunID)
	if err != nil || !ok {
		t.Fatalf("read run config: ok=%v err=%v", ok, err)
	}
	if cfg.PopulationSize != 6 || cfg.Selection != "fitness_proportionate" || cfg.Workers != 2 {
		t.Fatalf("unexpected stored run config %+v", cfg)
	}
}

func TestBinderAppliesOnlyExplicitFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	common := addCommonFlags(fs)
	addNetworkFlags(common.binder)
	if err := fs.Parse([]string{"-hidden", "4, 2", "-seed", "9"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := common.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Network.Hidden, []int{4, 2}) || cfg.Network.Seed != 9 {
		t.Fatalf("unexpected network config %+v", cfg.Network)
	}
	if cfg.Network.Dataset != "xor" {
		t.Fatalf("expected default dataset, got %s", cfg.Network.Dataset)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	common = addCommonFlags(fs)
	addNetworkFlags(common.binder)
	if err := fs.Parse([]string{"-hidden", "4,x"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := common.load(); err == nil {
		t.Fatal("expected error for bad hidden sizes")
	}
}

func TestListCommand(t *testing.T) {
	out := captureStdout(t)
	if err := run(context.Background(), []string{"list"}); err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"perceptron", "tournament", "xor"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in %q", want, out.String())
		}
	}
}
