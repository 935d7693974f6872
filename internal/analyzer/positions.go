package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// analyzePositions scores every physical position over the window. Stored
// position histories are preferred; when none match the window the pass
// recomputes directly from raw readings.
func (e *Engine) analyzePositions(ctx context.Context, storeID int64, periodStart, periodEnd time.Time) (models.PositionAnalysis, error) {
	histories, err := e.store.GetPositionHistories(ctx, storeID, periodStart, periodEnd)
	if err != nil {
		return models.PositionAnalysis{}, fmt.Errorf("load position histories: %w", err)
	}

	if len(histories) == 0 {
		return e.analyzePositionsFromRaw(ctx, storeID, periodStart, periodEnd)
	}

	scores := make([]models.PositionScore, 0, len(histories))
	for _, h := range histories {
		positiveRate := 0.0
		if h.DataCount > 0 {
			positiveRate = float64(h.PositiveDays) / float64(h.DataCount) * 100
		}

		scores = append(scores, models.PositionScore{
			MachineNumber:     h.MachineNumber,
			Score:             scorePositionHistory(h),
			DataCount:         h.DataCount,
			AverageDifference: h.AverageDifference,
			PositiveRate:      positiveRate,
			TotalDifference:   h.TotalDifference,
			Reasons:           positionReasons(h),
		})
	}

	return buildPositionAnalysis(scores), nil
}

// analyzePositionsFromRaw is the fallback path when no stored history covers
// the window: the same contract, recomputed from raw readings. Absent
// differentials count as zero here, matching the raw score formula.
func (e *Engine) analyzePositionsFromRaw(ctx context.Context, storeID int64, periodStart, periodEnd time.Time) (models.PositionAnalysis, error) {
	readings, err := e.store.GetReadingsInRange(ctx, storeID, periodStart, periodEnd)
	if err != nil {
		return models.PositionAnalysis{}, fmt.Errorf("load readings: %w", err)
	}

	groups := make(map[int][]int)
	for _, r := range readings {
		diff := 0
		if r.TotalDifference != nil {
			diff = *r.TotalDifference
		}
		groups[r.MachineNumber] = append(groups[r.MachineNumber], diff)
	}

	scores := make([]models.PositionScore, 0, len(groups))
	for machineNumber, diffs := range groups {
		if len(diffs) == 0 {
			continue
		}

		total := 0
		positive := 0
		for _, d := range diffs {
			total += d
			if d > 0 {
				positive++
			}
		}

		avg := float64(total) / float64(len(diffs))
		positiveRate := float64(positive) / float64(len(diffs)) * 100

		scores = append(scores, models.PositionScore{
			MachineNumber:     machineNumber,
			Score:             scoreRawPosition(avg, positiveRate, len(diffs)),
			DataCount:         len(diffs),
			AverageDifference: avg,
			PositiveRate:      positiveRate,
			TotalDifference:   total,
			Reasons:           []string{},
		})
	}

	return buildPositionAnalysis(scores), nil
}

func buildPositionAnalysis(scores []models.PositionScore) models.PositionAnalysis {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].MachineNumber < scores[j].MachineNumber
	})

	byNumber := make(map[int]models.PositionScore, len(scores))
	for _, s := range scores {
		byNumber[s.MachineNumber] = s
	}

	top := scores
	if len(top) > 10 {
		top = top[:10]
	}

	return models.PositionAnalysis{
		TotalPositions: len(scores),
		TopPositions:   top,
		HotNumbers:     hotNumbers(scores),
		Scores:         byNumber,
	}
}

// scorePositionHistory computes the history-path position score in [0,100]:
// favorability base, average-differential bonus, stability bonus on the
// window-level positive-day ratio, and a sample-size reliability bonus.
func scorePositionHistory(h models.PositionHistory) float64 {
	score := h.HighSettingScore

	if h.AverageDifference > 0 {
		score += math.Min(h.AverageDifference/100, 20)
	}

	if h.DataCount > 0 && h.PositiveDays > 0 {
		ratio := float64(h.PositiveDays) / float64(h.DataCount)
		if ratio >= 0.6 {
			score += 15
		} else if ratio >= 0.5 {
			score += 10
		}
	}

	score += reliabilityBonus(h.DataCount)

	return math.Min(score, 100)
}

// scoreRawPosition is the history-independent equivalent: the raw positive
// rate stands in for the favorability base and already carries the
// stability signal, so no separate stability bonus applies.
func scoreRawPosition(avgDiff, positiveRate float64, dataCount int) float64 {
	score := positiveRate

	if avgDiff > 0 {
		score += math.Min(avgDiff/100, 20)
	}

	score += reliabilityBonus(dataCount)

	return math.Min(score, 100)
}

func reliabilityBonus(dataCount int) float64 {
	switch {
	case dataCount >= 20:
		return 10
	case dataCount >= 10:
		return 5
	default:
		return 0
	}
}

// positionReasons renders the human-readable justification strings for a
// history-backed position score.
func positionReasons(h models.PositionHistory) []string {
	reasons := []string{}

	if h.DataCount > 0 && h.PositiveDays > 0 {
		rate := float64(h.PositiveDays) / float64(h.DataCount) * 100
		if rate >= 60 {
			reasons = append(reasons, fmt.Sprintf("high positive rate (%.1f%%)", rate))
		}
	}

	if h.AverageDifference > 500 {
		reasons = append(reasons, fmt.Sprintf("good average differential (+%.0f)", h.AverageDifference))
	}

	if h.DataCount >= 20 {
		reasons = append(reasons, "large sample size, high reliability")
	}

	return reasons
}

// hotNumbers groups scored positions by trailing digit and returns up to
// the top 3 digits whose average score is at least 60.
func hotNumbers(scores []models.PositionScore) []int {
	type bucket struct {
		sum   float64
		count int
	}

	buckets := make(map[int]*bucket)
	for _, s := range scores {
		suffix := s.MachineNumber % 10
		b, ok := buckets[suffix]
		if !ok {
			b = &bucket{}
			buckets[suffix] = b
		}
		b.sum += s.Score
		b.count++
	}

	type hot struct {
		suffix int
		avg    float64
	}

	var hots []hot
	for suffix, b := range buckets {
		avg := b.sum / float64(b.count)
		if avg >= 60 {
			hots = append(hots, hot{suffix: suffix, avg: avg})
		}
	}

	sort.SliceStable(hots, func(i, j int) bool {
		if hots[i].avg != hots[j].avg {
			return hots[i].avg > hots[j].avg
		}
		return hots[i].suffix < hots[j].suffix
	})

	result := []int{}
	for i, h := range hots {
		if i >= 3 {
			break
		}
		result = append(result, h.suffix)
	}

	return result
}
