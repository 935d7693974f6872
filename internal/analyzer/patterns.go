package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// Monday-first, matching how halls plan weekly events.
var weekdayNames = [7]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// analyzePatterns buckets store-day summaries by day of week and flags the
// weekdays where the hall tends to run favorable settings.
func (e *Engine) analyzePatterns(ctx context.Context, storeID int64, periodStart, periodEnd time.Time) (models.PatternAnalysis, error) {
	summaries, err := e.store.GetStoreDaySummaries(ctx, storeID, periodStart, periodEnd)
	if err != nil {
		return models.PatternAnalysis{}, fmt.Errorf("load store day summaries: %w", err)
	}

	type bucket struct {
		count    int
		diffSum  float64
		positive int
		machines int
	}

	var buckets [7]bucket
	for _, s := range summaries {
		idx := mondayFirst(s.DataDate.Weekday())
		b := &buckets[idx]
		b.count++
		if s.AverageDifference != nil {
			b.diffSum += *s.AverageDifference
		}
		b.positive += s.PositiveMachines
		b.machines += s.TotalMachines
	}

	analysis := []models.WeekdayScore{}
	for idx, b := range buckets {
		if b.count == 0 {
			continue
		}

		avgDiff := b.diffSum / float64(b.count)

		// Aggregate rate across the bucket's days, not an average of
		// per-day rates.
		positiveRate := 0.0
		if b.machines > 0 {
			positiveRate = float64(b.positive) / float64(b.machines) * 100
		}

		analysis = append(analysis, models.WeekdayScore{
			Weekday:           idx,
			WeekdayName:       weekdayNames[idx],
			DataCount:         b.count,
			AverageDifference: avgDiff,
			PositiveRate:      positiveRate,
			IsFavorable:       avgDiff > 0 && positiveRate >= 40,
		})
	}

	sort.SliceStable(analysis, func(i, j int) bool {
		return analysis[i].AverageDifference > analysis[j].AverageDifference
	})

	best := []string{}
	for _, w := range analysis {
		if !w.IsFavorable {
			continue
		}
		best = append(best, w.WeekdayName)
		if len(best) == 3 {
			break
		}
	}

	return models.PatternAnalysis{
		WeekdayAnalysis: analysis,
		BestWeekdays:    best,
	}, nil
}

// mondayFirst maps Go's Sunday-first weekday to a Monday-first index
func mondayFirst(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
