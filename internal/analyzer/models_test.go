package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

func TestScoreModel(t *testing.T) {
	tests := []struct {
		name         string
		avgDiff      float64
		positiveRate float64
		days         int
		want         float64
	}{
		{"favorable regular", 500, 70, 20, 90},  // 70 + 10 + 10
		{"short observation", 500, 70, 5, 80},   // 70 + 10 + 0
		{"mid observation", 500, 70, 12, 85},    // 70 + 10 + 5
		{"diff bonus capped", 5000, 60, 5, 80},  // 60 + 20 + 0
		{"negative diff no bonus", -200, 30, 20, 40},
		{"clamped at 100", 2000, 95, 25, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreModel(tt.avgDiff, tt.positiveRate, tt.days)
			if got != tt.want {
				t.Errorf("scoreModel(%f, %f, %d) = %f, want %f", tt.avgDiff, tt.positiveRate, tt.days, got, tt.want)
			}
		})
	}
}

func TestAnalyzeModels(t *testing.T) {
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	store := newMockStore()
	store.modelSummaries = []models.ModelDaySummary{
		// Juggler over two days: positive 14 of 20 machines, avg diff 650
		{ModelID: 1, ModelName: "Juggler", DataDate: date.AddDate(0, 0, -1), MachineCount: 10, PositiveCount: 7, AverageDifference: floatPtr(500)},
		{ModelID: 1, ModelName: "Juggler", DataDate: date, MachineCount: 10, PositiveCount: 7, AverageDifference: floatPtr(800)},
		// Hanahana: one day, weak, average differential absent
		{ModelID: 2, ModelName: "Hanahana", DataDate: date, MachineCount: 8, PositiveCount: 1, AverageDifference: nil},
	}

	engine := testEngine(store)
	analysis, err := engine.analyzeModels(context.Background(), 1, date.AddDate(0, 0, -30), date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if analysis.TotalModels != 2 {
		t.Fatalf("TotalModels = %d, want 2", analysis.TotalModels)
	}

	top := analysis.TopModels[0]
	if top.ModelName != "Juggler" {
		t.Fatalf("expected Juggler on top, got %s", top.ModelName)
	}
	if top.AverageDifference != 650 {
		t.Errorf("AverageDifference = %f, want 650", top.AverageDifference)
	}
	if top.PositiveRate != 70 {
		t.Errorf("PositiveRate = %f, want 70", top.PositiveRate)
	}
	// 70 + min(650/50, 20) = 83, short observation so no day bonus
	if top.Score != 83 {
		t.Errorf("Score = %f, want 83", top.Score)
	}
	if !top.IsFavorable {
		t.Error("expected Juggler to be favorable")
	}

	if len(analysis.FavorableModels) != 1 {
		t.Errorf("FavorableModels = %d, want 1", len(analysis.FavorableModels))
	}

	// Absent average differential contributes zero to the fold
	hanahana := analysis.TopModels[1]
	if hanahana.AverageDifference != 0 {
		t.Errorf("Hanahana AverageDifference = %f, want 0", hanahana.AverageDifference)
	}
	if hanahana.IsFavorable {
		t.Error("Hanahana should not be favorable")
	}
}

func TestAnalyzeModelsTopFive(t *testing.T) {
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	store := newMockStore()
	for i := int64(1); i <= 8; i++ {
		store.modelSummaries = append(store.modelSummaries, models.ModelDaySummary{
			ModelID: i, ModelName: string(rune('A' + i - 1)), DataDate: date,
			MachineCount: 10, PositiveCount: int(i), AverageDifference: floatPtr(float64(i * 100)),
		})
	}

	engine := testEngine(store)
	analysis, err := engine.analyzeModels(context.Background(), 1, date.AddDate(0, 0, -30), date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if analysis.TotalModels != 8 {
		t.Errorf("TotalModels = %d, want 8", analysis.TotalModels)
	}
	if len(analysis.TopModels) != 5 {
		t.Errorf("TopModels = %d, want 5", len(analysis.TopModels))
	}
	if analysis.TopModels[0].ModelName != "H" {
		t.Errorf("expected strongest model H first, got %s", analysis.TopModels[0].ModelName)
	}
}
