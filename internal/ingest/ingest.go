package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yuhis0727/sumaslo-analyzer/internal/aggregator"
	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// Run statuses recorded in ingest_logs
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Store defines the persistence operations the ingest service needs
type Store interface {
	GetOrCreateStore(ctx context.Context, name string, area, sourceURL *string) (*models.Store, error)
	GetOrCreateModel(ctx context.Context, name string) (*models.ModelCatalogEntry, error)
	UpsertReading(ctx context.Context, reading *models.Reading) error
	CreateIngestLog(ctx context.Context, runID string, storeID *int64) (*models.IngestLog, error)
	UpdateIngestLog(ctx context.Context, id int64, status string, savedCount int, errorMessage *string) error
}

// MachineData is one machine's telemetry in an incoming batch
type MachineData struct {
	MachineNumber       int     `json:"machine_number"`
	ModelName           string  `json:"model_name"`
	GameCount           *int    `json:"game_count"`
	BigBonus            *int    `json:"big_bonus"`
	RegularBonus        *int    `json:"regular_bonus"`
	ArtCount            *int    `json:"art_count"`
	TotalDifference     *int    `json:"total_difference"`
	BBProbability       *string `json:"bb_probability"`
	RBProbability       *string `json:"rb_probability"`
	CombinedProbability *string `json:"combined_probability"`
}

// Batch is one store-day of machine telemetry
type Batch struct {
	StoreName string        `json:"store_name"`
	Area      *string       `json:"area"`
	SourceURL *string       `json:"source_url"`
	DataDate  time.Time     `json:"data_date"`
	Machines  []MachineData `json:"machines"`
}

// Result reports one completed ingestion run
type Result struct {
	RunID       string             `json:"run_id"`
	StoreID     int64              `json:"store_id"`
	SavedCount  int                `json:"saved_count"`
	Aggregation *aggregator.Result `json:"aggregation,omitempty"`
}

// Service persists incoming batches and triggers aggregation. Every run is
// tracked in ingest_logs under a fresh run ID so partial failures stay
// visible.
type Service struct {
	store    Store
	pipeline *aggregator.Pipeline
}

// NewService creates an ingest service. pipeline may be nil to skip
// aggregation after saving (callers then trigger it separately).
func NewService(store Store, pipeline *aggregator.Pipeline) *Service {
	return &Service{store: store, pipeline: pipeline}
}

// SaveBatch upserts every machine row in the batch, creating the store and
// any unseen model-catalog entries on the way, then runs the aggregation
// pipeline for the batch's date. Rows share the (store, machine, date) key
// with previous runs, so re-ingesting the same day overwrites it.
func (s *Service) SaveBatch(ctx context.Context, batch *Batch) (*Result, error) {
	if batch.StoreName == "" {
		return nil, fmt.Errorf("store name is required")
	}
	if batch.DataDate.IsZero() {
		return nil, fmt.Errorf("data date is required")
	}

	store, err := s.store.GetOrCreateStore(ctx, batch.StoreName, batch.Area, batch.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("get or create store: %w", err)
	}

	runID := uuid.NewString()
	log, err := s.store.CreateIngestLog(ctx, runID, &store.ID)
	if err != nil {
		return nil, fmt.Errorf("create ingest log: %w", err)
	}

	saved, err := s.saveMachines(ctx, store.ID, batch)
	if err != nil {
		msg := err.Error()
		if logErr := s.store.UpdateIngestLog(ctx, log.ID, StatusFailed, saved, &msg); logErr != nil {
			fmt.Printf("❌ Failed to mark ingest run %s failed: %v\n", runID, logErr)
		}
		return nil, err
	}

	if err := s.store.UpdateIngestLog(ctx, log.ID, StatusSuccess, saved, nil); err != nil {
		return nil, fmt.Errorf("close ingest log: %w", err)
	}

	result := &Result{
		RunID:      runID,
		StoreID:    store.ID,
		SavedCount: saved,
	}

	if s.pipeline != nil {
		agg, err := s.pipeline.RunAll(ctx, store.ID, batch.DataDate, 0)
		if err != nil {
			return nil, fmt.Errorf("aggregate after ingest: %w", err)
		}
		result.Aggregation = agg
	}

	return result, nil
}

func (s *Service) saveMachines(ctx context.Context, storeID int64, batch *Batch) (int, error) {
	saved := 0
	for _, m := range batch.Machines {
		if m.ModelName == "" {
			return saved, fmt.Errorf("machine %d: model name is required", m.MachineNumber)
		}

		// Grow the model catalog eagerly so the aggregation pass never
		// races an unseen name.
		if _, err := s.store.GetOrCreateModel(ctx, m.ModelName); err != nil {
			return saved, err
		}

		reading := &models.Reading{
			StoreID:             storeID,
			MachineNumber:       m.MachineNumber,
			ModelName:           m.ModelName,
			GameCount:           m.GameCount,
			BigBonus:            m.BigBonus,
			RegularBonus:        m.RegularBonus,
			ArtCount:            m.ArtCount,
			TotalDifference:     m.TotalDifference,
			BBProbability:       m.BBProbability,
			RBProbability:       m.RBProbability,
			CombinedProbability: m.CombinedProbability,
			DataDate:            batch.DataDate,
		}

		if err := s.store.UpsertReading(ctx, reading); err != nil {
			return saved, fmt.Errorf("machine %d: %w", m.MachineNumber, err)
		}
		saved++
	}

	return saved, nil
}
