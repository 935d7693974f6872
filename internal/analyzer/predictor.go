package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/contracts"
	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

const (
	highSettingCandidateDiff = 2000

	statisticalWeight = 0.4
	learnedWeight     = 0.6

	snapshotHistoryDays = 30
)

// AnalyzeSnapshot estimates the probability that the store is running high
// settings on its most recent data date. The statistical estimate always
// runs; when a learned predictor is configured its output is blended in.
func (e *Engine) AnalyzeSnapshot(ctx context.Context, storeID int64) (*models.SnapshotAnalysis, error) {
	store, err := e.store.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store %d", models.ErrNotFound, storeID)
	}

	latest, err := e.store.GetLatestReadingDate(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no readings for store %d", models.ErrNotFound, storeID)
	}

	readings, err := e.store.GetReadingsByDate(ctx, storeID, *latest)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: no readings for store %d", models.ErrNotFound, storeID)
	}

	features := extractFeatures(readings)

	// History depth raises confidence: a snapshot backed by weeks of
	// summaries is worth more than a first-day read.
	histStart := latest.AddDate(0, 0, -snapshotHistoryDays)
	summaries, err := e.store.GetStoreDaySummaries(ctx, storeID, histStart, *latest)
	if err != nil {
		return nil, err
	}

	statProb := statisticalProbability(features)
	prob := statProb

	var learnedProb *float64
	if e.predictor != nil {
		p, err := e.predictor.Predict(ctx, features)
		if err != nil {
			return nil, fmt.Errorf("learned predictor: %w", err)
		}
		p = clamp01(p)
		learnedProb = &p
		prob = statisticalWeight*statProb + learnedWeight*p
	}

	confidence := math.Min(1, float64(features.MachineCount)/50)
	confidence += math.Min(0.3, float64(len(summaries))*0.05)
	confidence = math.Min(1, confidence)

	performers := highPerformers(readings)

	recommended := make([]int, 0, 5)
	for i, p := range performers {
		if i >= 5 {
			break
		}
		recommended = append(recommended, p.MachineNumber)
	}

	positive := int(features.PositiveRatio * float64(features.MachineCount))

	return &models.SnapshotAnalysis{
		StoreName:              store.Name,
		HighSettingProbability: prob,
		ConfidenceScore:        confidence,
		RecommendedMachines:    recommended,
		AnalysisDetails: models.SnapshotDetails{
			AverageGameCount:      features.AverageGameCount,
			AverageDifference:     features.AverageDifference,
			PositiveMachines:      positive,
			TotalMachines:         features.MachineCount,
			HighPerformers:        performers,
			StatisticalProb:       statProb,
			LearnedProb:           learnedProb,
			AnalysisDate:          latest.Format(models.DateFormat),
			HighSettingCandidates: features.HighSettingCandidates,
			UniqueModels:          features.UniqueModels,
		},
	}, nil
}

// extractFeatures folds one day of readings into the predictor feature set.
// Absent game counts and differentials are excluded from their averages.
func extractFeatures(readings []models.Reading) contracts.PredictorFeatures {
	gameSum, gameN := 0, 0
	diffSum, diffN := 0, 0
	positive := 0
	candidates := 0
	modelSet := make(map[string]struct{})

	for _, r := range readings {
		if r.GameCount != nil {
			gameSum += *r.GameCount
			gameN++
		}
		if r.TotalDifference != nil {
			diffSum += *r.TotalDifference
			diffN++
			if *r.TotalDifference > 0 {
				positive++
			}
			if *r.TotalDifference >= highSettingCandidateDiff {
				candidates++
			}
		}
		modelSet[r.ModelName] = struct{}{}
	}

	f := contracts.PredictorFeatures{
		UniqueModels: len(modelSet),
		MachineCount: len(readings),
	}
	if gameN > 0 {
		f.AverageGameCount = float64(gameSum) / float64(gameN)
	}
	if diffN > 0 {
		f.AverageDifference = float64(diffSum) / float64(diffN)
		f.PositiveRatio = float64(positive) / float64(len(readings))
		f.HighSettingCandidates = float64(candidates) / float64(len(readings))
	}
	return f
}

// statisticalProbability is the hand-tuned estimate: half from the scaled
// average differential, half from the positive ratio, clamped to [0,1].
func statisticalProbability(f contracts.PredictorFeatures) float64 {
	return clamp01(f.AverageDifference/1000*0.5 + f.PositiveRatio*0.5)
}

// highPerformers returns the day's machines ranked by differential, best
// first. Machines without a differential are excluded.
func highPerformers(readings []models.Reading) []models.HighPerformer {
	performers := []models.HighPerformer{}
	for _, r := range readings {
		if r.TotalDifference == nil {
			continue
		}
		performers = append(performers, models.HighPerformer{
			MachineNumber:   r.MachineNumber,
			ModelName:       r.ModelName,
			TotalDifference: *r.TotalDifference,
		})
	}

	sort.SliceStable(performers, func(i, j int) bool {
		if performers[i].TotalDifference != performers[j].TotalDifference {
			return performers[i].TotalDifference > performers[j].TotalDifference
		}
		return performers[i].MachineNumber < performers[j].MachineNumber
	})

	return performers
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
