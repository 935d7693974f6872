package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// analyzeModels scores every machine model observed in the window by
// folding its model-day summaries together.
func (e *Engine) analyzeModels(ctx context.Context, storeID int64, periodStart, periodEnd time.Time) (models.ModelAnalysis, error) {
	summaries, err := e.store.GetModelDaySummaries(ctx, storeID, periodStart, periodEnd)
	if err != nil {
		return models.ModelAnalysis{}, fmt.Errorf("load model day summaries: %w", err)
	}

	type group struct {
		name      string
		days      int
		positive  int
		machines  int
		diffTotal float64
	}

	groups := make(map[int64]*group)
	var order []int64
	for _, s := range summaries {
		g, ok := groups[s.ModelID]
		if !ok {
			g = &group{name: s.ModelName}
			groups[s.ModelID] = g
			order = append(order, s.ModelID)
		}
		g.days++
		g.positive += s.PositiveCount
		g.machines += s.MachineCount
		if s.AverageDifference != nil {
			g.diffTotal += *s.AverageDifference
		}
	}

	scores := make([]models.ModelScore, 0, len(groups))
	for _, id := range order {
		g := groups[id]

		avgDiff := 0.0
		if g.days > 0 {
			avgDiff = g.diffTotal / float64(g.days)
		}

		positiveRate := 0.0
		if g.machines > 0 {
			positiveRate = float64(g.positive) / float64(g.machines) * 100
		}

		score := scoreModel(avgDiff, positiveRate, g.days)

		scores = append(scores, models.ModelScore{
			ModelID:           id,
			ModelName:         g.name,
			Score:             score,
			DaysAnalyzed:      g.days,
			AverageDifference: avgDiff,
			PositiveRate:      positiveRate,
			IsFavorable:       score >= 60,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ModelName < scores[j].ModelName
	})

	favorable := []models.ModelScore{}
	for _, s := range scores {
		if s.IsFavorable {
			favorable = append(favorable, s)
		}
	}

	top := scores
	if len(top) > 5 {
		top = top[:5]
	}

	return models.ModelAnalysis{
		TotalModels:     len(scores),
		FavorableModels: favorable,
		TopModels:       top,
	}, nil
}

// scoreModel computes the model score in [0,100]: positive-rate base,
// average-differential bonus, and a days-observed reliability bonus.
func scoreModel(avgDiff, positiveRate float64, daysObserved int) float64 {
	score := positiveRate

	if avgDiff > 0 {
		score += math.Min(avgDiff/50, 20)
	}

	switch {
	case daysObserved >= 20:
		score += 10
	case daysObserved >= 10:
		score += 5
	}

	return math.Min(score, 100)
}
