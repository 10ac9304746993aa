package storage

import (
	"context"

	"gatenet/internal/model"
)

// Store persists networks, populations and the history of training and
// evolution runs. Lookups report absence with a false flag, not an error.
type Store interface {
	Init(ctx context.Context) error
	SaveNetwork(ctx context.Context, snapshot model.NetworkSnapshot) error
	GetNetwork(ctx context.Context, id string) (model.NetworkSnapshot, bool, error)
	ListNetworks(ctx context.Context) ([]string, error)
	SavePopulation(ctx context.Context, population model.PopulationSnapshot) error
	GetPopulation(ctx context.Context, id string) (model.PopulationSnapshot, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}
