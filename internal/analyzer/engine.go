package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/contracts"
	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// Default request parameters and bounds
const (
	DefaultWindowDays = 30
	MaxWindowDays     = 365
	DefaultTopN       = 10
	MaxTopN           = 50

	favorableModelBonus = 15
	neutralScore        = 50
)

// Store defines the read-only persistence operations the engine needs
type Store interface {
	GetStore(ctx context.Context, id int64) (*models.Store, error)
	GetReadingsByDate(ctx context.Context, storeID int64, date time.Time) ([]models.Reading, error)
	GetReadingsInRange(ctx context.Context, storeID int64, start, end time.Time) ([]models.Reading, error)
	GetPositionReadings(ctx context.Context, storeID int64, machineNumber int, start, end time.Time) ([]models.Reading, error)
	GetLatestReadingDate(ctx context.Context, storeID int64) (*time.Time, error)
	GetStoreDaySummaries(ctx context.Context, storeID int64, start, end time.Time) ([]models.StoreDaySummary, error)
	GetModelDaySummaries(ctx context.Context, storeID int64, start, end time.Time) ([]models.ModelDaySummary, error)
	GetPositionHistories(ctx context.Context, storeID int64, start, end time.Time) ([]models.PositionHistory, error)
}

// Engine produces explainable scores and ranked recommendations. It never
// writes; it may run concurrently with itself and with aggregation.
type Engine struct {
	store     Store
	predictor contracts.Predictor

	// now is swappable for tests
	now func() time.Time
}

// NewEngine creates a recommendation engine. predictor may be nil; the
// snapshot analyzer then reports its statistical estimate alone.
func NewEngine(store Store, predictor contracts.Predictor) *Engine {
	return &Engine{
		store:     store,
		predictor: predictor,
		now:       time.Now,
	}
}

// GetRecommendations scores positions, models and weekday patterns over the
// trailing window ending at targetDate (today when zero), fuses them for
// every machine present on the store's most recent data date, and returns
// the ranked, explained top-N list.
func (e *Engine) GetRecommendations(ctx context.Context, storeID int64, targetDate time.Time, windowDays, topN int) (*models.RecommendationReport, error) {
	if windowDays == 0 {
		windowDays = DefaultWindowDays
	}
	if windowDays < 1 || windowDays > MaxWindowDays {
		return nil, fmt.Errorf("%w: %d days", models.ErrInvalidWindow, windowDays)
	}

	if topN <= 0 {
		topN = DefaultTopN
	}
	if topN > MaxTopN {
		topN = MaxTopN
	}

	store, err := e.store.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store %d", models.ErrNotFound, storeID)
	}

	if targetDate.IsZero() {
		targetDate = e.today()
	}
	periodStart := targetDate.AddDate(0, 0, -windowDays)

	positionAnalysis, err := e.analyzePositions(ctx, storeID, periodStart, targetDate)
	if err != nil {
		return nil, err
	}

	modelAnalysis, err := e.analyzeModels(ctx, storeID, periodStart, targetDate)
	if err != nil {
		return nil, err
	}

	patternAnalysis, err := e.analyzePatterns(ctx, storeID, periodStart, targetDate)
	if err != nil {
		return nil, err
	}

	recommendations, err := e.fuse(ctx, storeID, positionAnalysis, modelAnalysis, topN)
	if err != nil {
		return nil, err
	}

	return &models.RecommendationReport{
		StoreID:         storeID,
		StoreName:       store.Name,
		AnalysisDate:    targetDate.Format(models.DateFormat),
		Period: models.Period{
			Start: periodStart.Format(models.DateFormat),
			End:   targetDate.Format(models.DateFormat),
			Days:  windowDays,
		},
		Recommendations: recommendations,
		AnalysisDetails: models.AnalysisDetails{
			PositionAnalysis: positionAnalysis,
			ModelAnalysis:    modelAnalysis,
			PatternAnalysis:  patternAnalysis,
		},
	}, nil
}

// fuse combines the position and model signals for every machine present on
// the most recent data date. A position without a score gets the neutral
// prior of 50; a favorable model adds a flat bonus.
func (e *Engine) fuse(ctx context.Context, storeID int64, positions models.PositionAnalysis, modelAnalysis models.ModelAnalysis, topN int) ([]models.Recommendation, error) {
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

	favorable := make(map[string]bool, len(modelAnalysis.FavorableModels))
	for _, m := range modelAnalysis.FavorableModels {
		favorable[m.ModelName] = true
	}

	recommendations := make([]models.Recommendation, 0, len(readings))
	for _, r := range readings {
		positionScore := float64(neutralScore)
		reasons := []string{}

		if ps, ok := positions.Scores[r.MachineNumber]; ok {
			positionScore = ps.Score
			reasons = append(reasons, ps.Reasons...)
		}

		modelBonus := 0.0
		if favorable[r.ModelName] {
			modelBonus = favorableModelBonus
			reasons = append(reasons, fmt.Sprintf("%s tends to get favorable settings", r.ModelName))
		}

		total := math.Min(positionScore+modelBonus, 100)

		recommendations = append(recommendations, models.Recommendation{
			MachineNumber: r.MachineNumber,
			ModelName:     r.ModelName,
			TotalScore:    total,
			PositionScore: positionScore,
			ModelBonus:    modelBonus,
			Reasons:       reasons,
			Confidence:    confidenceTier(total),
		})
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		if recommendations[i].TotalScore != recommendations[j].TotalScore {
			return recommendations[i].TotalScore > recommendations[j].TotalScore
		}
		return recommendations[i].MachineNumber < recommendations[j].MachineNumber
	})

	if len(recommendations) > topN {
		recommendations = recommendations[:topN]
	}

	return recommendations, nil
}

// GetMachineDetail builds the deep-dive report for one physical position
// over the trailing window ending today.
func (e *Engine) GetMachineDetail(ctx context.Context, storeID int64, machineNumber, windowDays int) (*models.MachineDetailReport, error) {
	if windowDays == 0 {
		windowDays = DefaultWindowDays
	}
	if windowDays < 1 || windowDays > MaxWindowDays {
		return nil, fmt.Errorf("%w: %d days", models.ErrInvalidWindow, windowDays)
	}

	store, err := e.store.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store %d", models.ErrNotFound, storeID)
	}

	periodEnd := e.today()
	periodStart := periodEnd.AddDate(0, 0, -windowDays)

	readings, err := e.store.GetPositionReadings(ctx, storeID, machineNumber, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: no readings for machine %d", models.ErrNotFound, machineNumber)
	}

	daily := make([]models.DailyDetail, 0, len(readings))
	diffs := make([]int, 0, len(readings))
	for _, r := range readings {
		diff := 0
		if r.TotalDifference != nil {
			diff = *r.TotalDifference
		}
		diffs = append(diffs, diff)

		daily = append(daily, models.DailyDetail{
			Date:                r.DataDate.Format(models.DateFormat),
			ModelName:           r.ModelName,
			GameCount:           r.GameCount,
			TotalDifference:     diff,
			BigBonus:            r.BigBonus,
			RegularBonus:        r.RegularBonus,
			CombinedProbability: r.CombinedProbability,
		})
	}

	total := 0
	positive := 0
	max, min := diffs[0], diffs[0]
	for _, d := range diffs {
		total += d
		if d > 0 {
			positive++
		}
		if d > max {
			max = d
		}
		if d < min {
			min = d
		}
	}

	avg := float64(total) / float64(len(diffs))
	positiveRate := float64(positive) / float64(len(diffs)) * 100

	return &models.MachineDetailReport{
		StoreID:       storeID,
		MachineNumber: machineNumber,
		Period: models.Period{
			Start: periodStart.Format(models.DateFormat),
			End:   periodEnd.Format(models.DateFormat),
			Days:  windowDays,
		},
		Statistics: models.MachineStatistics{
			DataCount:         len(readings),
			TotalDifference:   total,
			AverageDifference: avg,
			PositiveDays:      positive,
			NegativeDays:      len(diffs) - positive,
			PositiveRate:      positiveRate,
			MaxDifference:     max,
			MinDifference:     min,
		},
		DailyData:           daily,
		RecommendationScore: scoreRawPosition(avg, positiveRate, len(readings)),
	}, nil
}

// confidenceTier maps a fused score to its tier: high at 80 and above,
// medium at 60 and above, low otherwise.
func confidenceTier(score float64) string {
	switch {
	case score >= 80:
		return "high"
	case score >= 60:
		return "medium"
	default:
		return "low"
	}
}

func (e *Engine) today() time.Time {
	now := e.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
