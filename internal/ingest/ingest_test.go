package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// mockStore is a hand-rolled in-memory Store for ingest tests
type mockStore struct {
	stores   map[string]*models.Store
	models   map[string]int64
	readings []models.Reading
	logs     []models.IngestLog

	failOnMachine int
}

func newMockStore() *mockStore {
	return &mockStore{
		stores: make(map[string]*models.Store),
		models: make(map[string]int64),
	}
}

func (m *mockStore) GetOrCreateStore(ctx context.Context, name string, area, sourceURL *string) (*models.Store, error) {
	if s, ok := m.stores[name]; ok {
		return s, nil
	}
	s := &models.Store{ID: int64(len(m.stores) + 1), Name: name, Area: area, SourceURL: sourceURL}
	m.stores[name] = s
	return s, nil
}

func (m *mockStore) GetOrCreateModel(ctx context.Context, name string) (*models.ModelCatalogEntry, error) {
	id, ok := m.models[name]
	if !ok {
		id = int64(len(m.models) + 1)
		m.models[name] = id
	}
	return &models.ModelCatalogEntry{ID: id, Name: name}, nil
}

func (m *mockStore) UpsertReading(ctx context.Context, reading *models.Reading) error {
	if m.failOnMachine != 0 && reading.MachineNumber == m.failOnMachine {
		return errors.New("constraint violation")
	}
	m.readings = append(m.readings, *reading)
	return nil
}

func (m *mockStore) CreateIngestLog(ctx context.Context, runID string, storeID *int64) (*models.IngestLog, error) {
	log := models.IngestLog{
		ID:        int64(len(m.logs) + 1),
		RunID:     runID,
		StoreID:   storeID,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	m.logs = append(m.logs, log)
	return &log, nil
}

func (m *mockStore) UpdateIngestLog(ctx context.Context, id int64, status string, savedCount int, errorMessage *string) error {
	for i := range m.logs {
		if m.logs[i].ID == id {
			m.logs[i].Status = status
			m.logs[i].SavedCount = savedCount
			m.logs[i].ErrorMessage = errorMessage
		}
	}
	return nil
}

func intPtr(v int) *int { return &v }

func testBatch() *Batch {
	return &Batch{
		StoreName: "Hall A",
		DataDate:  time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		Machines: []MachineData{
			{MachineNumber: 101, ModelName: "Juggler", TotalDifference: intPtr(1500)},
			{MachineNumber: 102, ModelName: "Hanahana", TotalDifference: intPtr(-200)},
		},
	}
}

func TestSaveBatch(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil)

	result, err := svc.SaveBatch(context.Background(), testBatch())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.SavedCount != 2 {
		t.Errorf("SavedCount = %d, want 2", result.SavedCount)
	}
	if result.RunID == "" {
		t.Error("expected a run ID")
	}
	if len(store.readings) != 2 {
		t.Errorf("persisted readings = %d, want 2", len(store.readings))
	}

	// The model catalog grew lazily from the batch
	if len(store.models) != 2 {
		t.Errorf("model catalog size = %d, want 2", len(store.models))
	}

	if len(store.logs) != 1 {
		t.Fatalf("ingest logs = %d, want 1", len(store.logs))
	}
	if store.logs[0].Status != StatusSuccess {
		t.Errorf("log status = %q, want success", store.logs[0].Status)
	}
	if store.logs[0].SavedCount != 2 {
		t.Errorf("log saved count = %d, want 2", store.logs[0].SavedCount)
	}
}

func TestSaveBatchFailureMarksLogFailed(t *testing.T) {
	store := newMockStore()
	store.failOnMachine = 102
	svc := NewService(store, nil)

	_, err := svc.SaveBatch(context.Background(), testBatch())
	if err == nil {
		t.Fatal("expected error")
	}

	if len(store.logs) != 1 {
		t.Fatalf("ingest logs = %d, want 1", len(store.logs))
	}
	log := store.logs[0]
	if log.Status != StatusFailed {
		t.Errorf("log status = %q, want failed", log.Status)
	}
	// The first machine still saved before the failure
	if log.SavedCount != 1 {
		t.Errorf("log saved count = %d, want 1", log.SavedCount)
	}
	if log.ErrorMessage == nil {
		t.Error("expected an error message on the log")
	}
}

func TestSaveBatchValidation(t *testing.T) {
	svc := NewService(newMockStore(), nil)

	if _, err := svc.SaveBatch(context.Background(), &Batch{DataDate: time.Now()}); err == nil {
		t.Error("expected error for missing store name")
	}

	if _, err := svc.SaveBatch(context.Background(), &Batch{StoreName: "Hall A"}); err == nil {
		t.Error("expected error for missing data date")
	}

	batch := testBatch()
	batch.Machines[0].ModelName = ""
	if _, err := svc.SaveBatch(context.Background(), batch); err == nil {
		t.Error("expected error for missing model name")
	}
}

func TestSaveBatchReusesStore(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil)

	first, err := svc.SaveBatch(context.Background(), testBatch())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.SaveBatch(context.Background(), testBatch())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.StoreID != second.StoreID {
		t.Errorf("store IDs differ across runs: %d vs %d", first.StoreID, second.StoreID)
	}
	if first.RunID == second.RunID {
		t.Error("run IDs must be unique per run")
	}
}
