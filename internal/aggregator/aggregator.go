package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// ErrRunInProgress is returned when an aggregation run for the same
// (store, date) key is already holding the run lock.
var ErrRunInProgress = errors.New("aggregation already running for this store and date")

// Store defines the persistence operations the pipeline needs
type Store interface {
	GetReadingsByDate(ctx context.Context, storeID int64, date time.Time) ([]models.Reading, error)
	GetReadingsInRange(ctx context.Context, storeID int64, start, end time.Time) ([]models.Reading, error)
	GetOrCreateModel(ctx context.Context, name string) (*models.ModelCatalogEntry, error)
	UpsertStoreDaySummary(ctx context.Context, summary *models.StoreDaySummary) error
	UpsertModelDaySummaries(ctx context.Context, summaries []models.ModelDaySummary) error
	UpsertPositionHistories(ctx context.Context, histories []models.PositionHistory) error
}

// Pipeline rolls raw readings into the three derived layers. Every layer is
// computed fully in memory and applied as one upsert batch, so re-running
// for the same (store, date) is a full overwrite, never an incremental merge.
type Pipeline struct {
	store Store
	lock  *RunLock
}

// Result bundles one RunAll invocation's outputs
type Result struct {
	StoreSummary      *models.StoreDaySummary  `json:"store_summary"`
	ModelSummaries    []models.ModelDaySummary `json:"model_summaries"`
	PositionHistories []models.PositionHistory `json:"position_histories"`
}

// NewPipeline creates an aggregation pipeline. lock may be nil, in which
// case same-key serialization falls back to the storage layer's upsert
// atomicity.
func NewPipeline(store Store, lock *RunLock) *Pipeline {
	return &Pipeline{store: store, lock: lock}
}

// SummarizeStoreDay aggregates all readings for one store/date into a
// store-day summary. A date with no readings yields (nil, nil): absence,
// not a zero-filled row.
func (p *Pipeline) SummarizeStoreDay(ctx context.Context, storeID int64, date time.Time) (*models.StoreDaySummary, error) {
	readings, err := p.store.GetReadingsByDate(ctx, storeID, date)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}

	if len(readings) == 0 {
		return nil, nil
	}

	summary := buildStoreDaySummary(storeID, date, readings)
	if err := p.store.UpsertStoreDaySummary(ctx, summary); err != nil {
		return nil, err
	}

	return summary, nil
}

// SummarizeModelDay groups one store/date's readings by model name and
// upserts one summary per model, creating catalog entries lazily for
// unseen names.
func (p *Pipeline) SummarizeModelDay(ctx context.Context, storeID int64, date time.Time) ([]models.ModelDaySummary, error) {
	readings, err := p.store.GetReadingsByDate(ctx, storeID, date)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}

	if len(readings) == 0 {
		return nil, nil
	}

	groups := make(map[string][]models.Reading)
	for _, r := range readings {
		groups[r.ModelName] = append(groups[r.ModelName], r)
	}

	// Deterministic output order
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]models.ModelDaySummary, 0, len(groups))
	for _, name := range names {
		entry, err := p.store.GetOrCreateModel(ctx, name)
		if err != nil {
			return nil, err
		}

		s := buildModelDaySummary(storeID, entry, date, groups[name])
		summaries = append(summaries, *s)
	}

	if err := p.store.UpsertModelDaySummaries(ctx, summaries); err != nil {
		return nil, err
	}

	return summaries, nil
}

// UpdatePositionHistory recomputes the rolling-window aggregate for every
// position with at least one present differential inside the inclusive
// window. Positions whose window holds only absent differentials are
// skipped entirely.
func (p *Pipeline) UpdatePositionHistory(ctx context.Context, storeID int64, periodStart, periodEnd time.Time) ([]models.PositionHistory, error) {
	readings, err := p.store.GetReadingsInRange(ctx, storeID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}

	if len(readings) == 0 {
		return nil, nil
	}

	groups := make(map[int][]models.Reading)
	for _, r := range readings {
		groups[r.MachineNumber] = append(groups[r.MachineNumber], r)
	}

	numbers := make([]int, 0, len(groups))
	for n := range groups {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var histories []models.PositionHistory
	for _, n := range numbers {
		h := buildPositionHistory(storeID, n, periodStart, periodEnd, groups[n])
		if h == nil {
			continue
		}
		histories = append(histories, *h)
	}

	if err := p.store.UpsertPositionHistories(ctx, histories); err != nil {
		return nil, err
	}

	return histories, nil
}

// RunAll runs all three aggregations for a single ingestion event. The
// position-history window trails historyWindowDays back from date. Safe to
// re-run: each layer is a full overwrite of the same natural keys.
func (p *Pipeline) RunAll(ctx context.Context, storeID int64, date time.Time, historyWindowDays int) (*Result, error) {
	if historyWindowDays <= 0 {
		historyWindowDays = DefaultHistoryWindowDays
	}

	if p.lock != nil {
		acquired, err := p.lock.Acquire(ctx, storeID, date)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !acquired {
			return nil, ErrRunInProgress
		}
		defer p.lock.Release(ctx, storeID, date)
	}

	storeSummary, err := p.SummarizeStoreDay(ctx, storeID, date)
	if err != nil {
		return nil, fmt.Errorf("summarize store day: %w", err)
	}

	modelSummaries, err := p.SummarizeModelDay(ctx, storeID, date)
	if err != nil {
		return nil, fmt.Errorf("summarize model day: %w", err)
	}

	periodStart := date.AddDate(0, 0, -historyWindowDays)
	positionHistories, err := p.UpdatePositionHistory(ctx, storeID, periodStart, date)
	if err != nil {
		return nil, fmt.Errorf("update position history: %w", err)
	}

	return &Result{
		StoreSummary:      storeSummary,
		ModelSummaries:    modelSummaries,
		PositionHistories: positionHistories,
	}, nil
}

// DefaultHistoryWindowDays is the trailing window used when the caller does
// not specify one.
const DefaultHistoryWindowDays = 30

func buildStoreDaySummary(storeID int64, date time.Time, readings []models.Reading) *models.StoreDaySummary {
	summary := &models.StoreDaySummary{
		StoreID:       storeID,
		DataDate:      date,
		TotalMachines: len(readings),
	}

	var diffs, games []int
	for _, r := range readings {
		if r.TotalDifference != nil {
			diffs = append(diffs, *r.TotalDifference)
		}
		if r.GameCount != nil {
			games = append(games, *r.GameCount)
		}
	}

	for _, d := range diffs {
		if d > 0 {
			summary.PositiveMachines++
		} else if d < 0 {
			summary.NegativeMachines++
		}
	}

	// Absent values stay out of the sums and averages; a day where no
	// reading carried a differential keeps these fields null.
	if len(diffs) > 0 {
		total := sumInts(diffs)
		avg := float64(total) / float64(len(diffs))
		summary.TotalDifference = &total
		summary.AverageDifference = &avg
	}
	if len(games) > 0 {
		avg := float64(sumInts(games)) / float64(len(games))
		summary.AverageGameCount = &avg
	}

	return summary
}

func buildModelDaySummary(storeID int64, entry *models.ModelCatalogEntry, date time.Time, readings []models.Reading) *models.ModelDaySummary {
	summary := &models.ModelDaySummary{
		StoreID:      storeID,
		ModelID:      entry.ID,
		ModelName:    entry.Name,
		DataDate:     date,
		MachineCount: len(readings),
	}

	var diffs, games []int
	for _, r := range readings {
		if r.TotalDifference != nil {
			diffs = append(diffs, *r.TotalDifference)
		}
		if r.GameCount != nil {
			games = append(games, *r.GameCount)
		}
	}

	for _, d := range diffs {
		if d > 0 {
			summary.PositiveCount++
		}
	}

	if len(games) > 0 {
		total := sumInts(games)
		avg := float64(total) / float64(len(games))
		summary.TotalGameCount = &total
		summary.AverageGameCount = &avg
	}
	if len(diffs) > 0 {
		total := sumInts(diffs)
		avg := float64(total) / float64(len(diffs))
		max, min := maxMin(diffs)
		summary.TotalDifference = &total
		summary.AverageDifference = &avg
		summary.MaxDifference = &max
		summary.MinDifference = &min
	}

	return summary
}

// buildPositionHistory returns nil when the group has no present
// differentials, so no row is written for it.
func buildPositionHistory(storeID int64, machineNumber int, periodStart, periodEnd time.Time, readings []models.Reading) *models.PositionHistory {
	var diffs []int
	for _, r := range readings {
		if r.TotalDifference != nil {
			diffs = append(diffs, *r.TotalDifference)
		}
	}

	if len(diffs) == 0 {
		return nil
	}

	positive, negative := 0, 0
	for _, d := range diffs {
		if d > 0 {
			positive++
		} else if d < 0 {
			negative++
		}
	}

	total := sumInts(diffs)
	max, min := maxMin(diffs)

	return &models.PositionHistory{
		StoreID:           storeID,
		MachineNumber:     machineNumber,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		DataCount:         len(readings),
		TotalDifference:   total,
		AverageDifference: float64(total) / float64(len(diffs)),
		PositiveDays:      positive,
		NegativeDays:      negative,
		MaxDifference:     max,
		MinDifference:     min,
		HighSettingScore:  float64(positive) / float64(len(diffs)) * 100,
	}
}

func sumInts(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func maxMin(values []int) (max, min int) {
	max, min = values[0], values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return max, min
}
