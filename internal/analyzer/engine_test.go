package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// mockStore is a hand-rolled in-memory Store for engine tests
type mockStore struct {
	stores           map[int64]*models.Store
	readingsByDate   map[string][]models.Reading
	rangeReadings    []models.Reading
	positionReadings []models.Reading
	latestDate       *time.Time
	storeSummaries   []models.StoreDaySummary
	modelSummaries   []models.ModelDaySummary
	histories        []models.PositionHistory
}

func newMockStore() *mockStore {
	return &mockStore{
		stores:         make(map[int64]*models.Store),
		readingsByDate: make(map[string][]models.Reading),
	}
}

func (m *mockStore) GetStore(ctx context.Context, id int64) (*models.Store, error) {
	return m.stores[id], nil
}

func (m *mockStore) GetReadingsByDate(ctx context.Context, storeID int64, date time.Time) ([]models.Reading, error) {
	return m.readingsByDate[date.Format(models.DateFormat)], nil
}

func (m *mockStore) GetReadingsInRange(ctx context.Context, storeID int64, start, end time.Time) ([]models.Reading, error) {
	return m.rangeReadings, nil
}

func (m *mockStore) GetPositionReadings(ctx context.Context, storeID int64, machineNumber int, start, end time.Time) ([]models.Reading, error) {
	return m.positionReadings, nil
}

func (m *mockStore) GetLatestReadingDate(ctx context.Context, storeID int64) (*time.Time, error) {
	return m.latestDate, nil
}

func (m *mockStore) GetStoreDaySummaries(ctx context.Context, storeID int64, start, end time.Time) ([]models.StoreDaySummary, error) {
	return m.storeSummaries, nil
}

func (m *mockStore) GetModelDaySummaries(ctx context.Context, storeID int64, start, end time.Time) ([]models.ModelDaySummary, error) {
	return m.modelSummaries, nil
}

func (m *mockStore) GetPositionHistories(ctx context.Context, storeID int64, start, end time.Time) ([]models.PositionHistory, error) {
	return m.histories, nil
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func testEngine(store *mockStore) *Engine {
	e := NewEngine(store, nil)
	e.now = func() time.Time {
		return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	}
	return e
}

func history(machine, dataCount, positiveDays int, avgDiff, score float64) models.PositionHistory {
	return models.PositionHistory{
		StoreID:           1,
		MachineNumber:     machine,
		DataCount:         dataCount,
		PositiveDays:      positiveDays,
		NegativeDays:      dataCount - positiveDays,
		AverageDifference: avgDiff,
		TotalDifference:   int(avgDiff * float64(dataCount)),
		HighSettingScore:  score,
	}
}

func TestGetRecommendationsInvalidWindow(t *testing.T) {
	store := newMockStore()
	store.stores[1] = &models.Store{ID: 1, Name: "Hall A"}
	engine := testEngine(store)

	for _, days := range []int{-1, 366, 1000} {
		_, err := engine.GetRecommendations(context.Background(), 1, time.Time{}, days, 10)
		if !errors.Is(err, models.ErrInvalidWindow) {
			t.Errorf("window %d: expected ErrInvalidWindow, got %v", days, err)
		}
	}
}

func TestGetRecommendationsUnknownStore(t *testing.T) {
	engine := testEngine(newMockStore())

	_, err := engine.GetRecommendations(context.Background(), 99, time.Time{}, 30, 10)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRecommendationsNoReadings(t *testing.T) {
	store := newMockStore()
	store.stores[1] = &models.Store{ID: 1, Name: "Hall A"}
	engine := testEngine(store)

	_, err := engine.GetRecommendations(context.Background(), 1, time.Time{}, 30, 10)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for store without readings, got %v", err)
	}
}

func TestGetRecommendationsFusion(t *testing.T) {
	latest := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	store := newMockStore()
	store.stores[1] = &models.Store{ID: 1, Name: "Hall A"}
	store.latestDate = &latest
	store.readingsByDate[latest.Format(models.DateFormat)] = []models.Reading{
		{MachineNumber: 101, ModelName: "Juggler", TotalDifference: intPtr(2000), DataDate: latest},
		{MachineNumber: 102, ModelName: "Hanahana", TotalDifference: intPtr(-500), DataDate: latest},
		{MachineNumber: 103, ModelName: "Juggler", TotalDifference: intPtr(100), DataDate: latest},
	}

	// 101 scores high via its stored history; 103 has no history and must
	// fall back to the neutral prior.
	store.histories = []models.PositionHistory{
		history(101, 25, 20, 800, 80),
		history(102, 25, 5, -300, 20),
	}

	// Juggler is favorable (high positive rate over many days).
	store.modelSummaries = []models.ModelDaySummary{
		{ModelID: 1, ModelName: "Juggler", MachineCount: 10, PositiveCount: 8, AverageDifference: floatPtr(900)},
		{ModelID: 2, ModelName: "Hanahana", MachineCount: 10, PositiveCount: 2, AverageDifference: floatPtr(-400)},
	}

	engine := testEngine(store)
	report, err := engine.GetRecommendations(context.Background(), 1, time.Time{}, 30, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(report.Recommendations))
	}

	top := report.Recommendations[0]
	if top.MachineNumber != 101 {
		t.Fatalf("expected machine 101 first, got %d", top.MachineNumber)
	}
	if top.ModelBonus != favorableModelBonus {
		t.Errorf("ModelBonus = %f, want %d", top.ModelBonus, favorableModelBonus)
	}
	if top.TotalScore != 100 {
		// History score 80+8+15+10 clamps to 100, plus model bonus stays clamped
		t.Errorf("TotalScore = %f, want 100", top.TotalScore)
	}
	if top.Confidence != "high" {
		t.Errorf("Confidence = %q, want high", top.Confidence)
	}

	// Machine 103: neutral prior 50 + favorable Juggler bonus 15
	var m103 *models.Recommendation
	for i := range report.Recommendations {
		if report.Recommendations[i].MachineNumber == 103 {
			m103 = &report.Recommendations[i]
		}
	}
	if m103 == nil {
		t.Fatal("machine 103 missing from recommendations")
	}
	if m103.PositionScore != 50 {
		t.Errorf("PositionScore = %f, want neutral 50", m103.PositionScore)
	}
	if m103.TotalScore != 65 {
		t.Errorf("TotalScore = %f, want 65", m103.TotalScore)
	}
	if m103.Confidence != "medium" {
		t.Errorf("Confidence = %q, want medium", m103.Confidence)
	}
}

func TestGetRecommendationsTopNTruncation(t *testing.T) {
	latest := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	store := newMockStore()
	store.stores[1] = &models.Store{ID: 1, Name: "Hall A"}
	store.latestDate = &latest

	var readings []models.Reading
	for i := 1; i <= 15; i++ {
		readings = append(readings, models.Reading{
			MachineNumber: 100 + i, ModelName: "A", TotalDifference: intPtr(100), DataDate: latest,
		})
	}
	store.readingsByDate[latest.Format(models.DateFormat)] = readings

	engine := testEngine(store)
	report, err := engine.GetRecommendations(context.Background(), 1, time.Time{}, 30, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Recommendations) != 5 {
		t.Errorf("expected 5 recommendations, got %d", len(report.Recommendations))
	}

	// Equal scores break ties by machine number ascending
	for i := 1; i < len(report.Recommendations); i++ {
		if report.Recommendations[i-1].MachineNumber > report.Recommendations[i].MachineNumber {
			t.Errorf("tie break out of order at index %d", i)
		}
	}
}

func TestGetMachineDetail(t *testing.T) {
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	store := newMockStore()
	store.stores[1] = &models.Store{ID: 1, Name: "Hall A"}
	store.positionReadings = []models.Reading{
		{MachineNumber: 101, ModelName: "Juggler", TotalDifference: intPtr(1500), DataDate: date},
		{MachineNumber: 101, ModelName: "Juggler", TotalDifference: intPtr(-300), DataDate: date.AddDate(0, 0, -1)},
		{MachineNumber: 101, ModelName: "Juggler", TotalDifference: nil, DataDate: date.AddDate(0, 0, -2)},
	}

	engine := testEngine(store)
	report, err := engine.GetMachineDetail(context.Background(), 1, 101, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := report.Statistics
	if stats.DataCount != 3 {
		t.Errorf("DataCount = %d, want 3", stats.DataCount)
	}
	// Absent differential counts as zero in the detail view
	if stats.TotalDifference != 1200 {
		t.Errorf("TotalDifference = %d, want 1200", stats.TotalDifference)
	}
	if stats.PositiveDays != 1 || stats.NegativeDays != 2 {
		t.Errorf("PositiveDays/NegativeDays = %d/%d, want 1/2", stats.PositiveDays, stats.NegativeDays)
	}
	if stats.MaxDifference != 1500 || stats.MinDifference != -300 {
		t.Errorf("Max/Min = %d/%d, want 1500/-300", stats.MaxDifference, stats.MinDifference)
	}
	if len(report.DailyData) != 3 {
		t.Errorf("DailyData length = %d, want 3", len(report.DailyData))
	}
}

func TestGetMachineDetailNotFound(t *testing.T) {
	store := newMockStore()
	store.stores[1] = &models.Store{ID: 1, Name: "Hall A"}

	engine := testEngine(store)
	_, err := engine.GetMachineDetail(context.Background(), 1, 999, 30)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConfidenceTier(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, "high"},
		{80, "high"},
		{79.999, "medium"},
		{60, "medium"},
		{59.999, "low"},
		{0, "low"},
	}

	for _, tt := range tests {
		if got := confidenceTier(tt.score); got != tt.want {
			t.Errorf("confidenceTier(%f) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
