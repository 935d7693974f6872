package store

import (
	"context"
	"fmt"
	"time"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// UpsertStoreDaySummary overwrites the store-day summary keyed by
// (store, data date)
func (p *Postgres) UpsertStoreDaySummary(ctx context.Context, summary *models.StoreDaySummary) error {
	query := `
		INSERT INTO daily_store_summaries (
			store_id, data_date, total_machines, positive_machines,
			negative_machines, total_difference, average_difference,
			average_game_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (store_id, data_date) DO UPDATE SET
			total_machines = EXCLUDED.total_machines,
			positive_machines = EXCLUDED.positive_machines,
			negative_machines = EXCLUDED.negative_machines,
			total_difference = EXCLUDED.total_difference,
			average_difference = EXCLUDED.average_difference,
			average_game_count = EXCLUDED.average_game_count,
			updated_at = NOW()
		RETURNING id
	`

	err := p.db.QueryRowContext(
		ctx, query,
		summary.StoreID,
		summary.DataDate,
		summary.TotalMachines,
		summary.PositiveMachines,
		summary.NegativeMachines,
		summary.TotalDifference,
		summary.AverageDifference,
		summary.AverageGameCount,
	).Scan(&summary.ID)

	if err != nil {
		return fmt.Errorf("upsert store day summary: %w", err)
	}

	return nil
}

// GetStoreDaySummaries retrieves store-day summaries in an inclusive window
func (p *Postgres) GetStoreDaySummaries(ctx context.Context, storeID int64, start, end time.Time) ([]models.StoreDaySummary, error) {
	query := `
		SELECT id, store_id, data_date, total_machines, positive_machines,
		       negative_machines, total_difference, average_difference,
		       average_game_count
		FROM daily_store_summaries
		WHERE store_id = $1 AND data_date >= $2 AND data_date <= $3
		ORDER BY data_date
	`

	rows, err := p.db.QueryContext(ctx, query, storeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query store day summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.StoreDaySummary
	for rows.Next() {
		var s models.StoreDaySummary
		err := rows.Scan(
			&s.ID, &s.StoreID, &s.DataDate, &s.TotalMachines, &s.PositiveMachines,
			&s.NegativeMachines, &s.TotalDifference, &s.AverageDifference,
			&s.AverageGameCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan store day summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// UpsertModelDaySummaries applies one aggregation run's model-day rows as a
// single transaction so a mid-run failure never leaves a partial layer
func (p *Postgres) UpsertModelDaySummaries(ctx context.Context, summaries []models.ModelDaySummary) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO daily_model_summaries (
			store_id, model_id, data_date, machine_count,
			total_game_count, average_game_count, total_difference,
			average_difference, positive_count, max_difference, min_difference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (store_id, model_id, data_date) DO UPDATE SET
			machine_count = EXCLUDED.machine_count,
			total_game_count = EXCLUDED.total_game_count,
			average_game_count = EXCLUDED.average_game_count,
			total_difference = EXCLUDED.total_difference,
			average_difference = EXCLUDED.average_difference,
			positive_count = EXCLUDED.positive_count,
			max_difference = EXCLUDED.max_difference,
			min_difference = EXCLUDED.min_difference,
			updated_at = NOW()
	`

	for _, s := range summaries {
		_, err := tx.ExecContext(
			ctx, query,
			s.StoreID, s.ModelID, s.DataDate, s.MachineCount,
			s.TotalGameCount, s.AverageGameCount, s.TotalDifference,
			s.AverageDifference, s.PositiveCount, s.MaxDifference, s.MinDifference,
		)
		if err != nil {
			return fmt.Errorf("upsert model day summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetModelDaySummaries retrieves model-day summaries in an inclusive window
func (p *Postgres) GetModelDaySummaries(ctx context.Context, storeID int64, start, end time.Time) ([]models.ModelDaySummary, error) {
	query := `
		SELECT s.id, s.store_id, s.model_id, m.name, s.data_date,
		       s.machine_count, s.total_game_count, s.average_game_count,
		       s.total_difference, s.average_difference, s.positive_count,
		       s.max_difference, s.min_difference
		FROM daily_model_summaries s
		JOIN slot_models m ON m.id = s.model_id
		WHERE s.store_id = $1 AND s.data_date >= $2 AND s.data_date <= $3
		ORDER BY s.data_date, m.name
	`

	rows, err := p.db.QueryContext(ctx, query, storeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query model day summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.ModelDaySummary
	for rows.Next() {
		var s models.ModelDaySummary
		err := rows.Scan(
			&s.ID, &s.StoreID, &s.ModelID, &s.ModelName, &s.DataDate,
			&s.MachineCount, &s.TotalGameCount, &s.AverageGameCount,
			&s.TotalDifference, &s.AverageDifference, &s.PositiveCount,
			&s.MaxDifference, &s.MinDifference,
		)
		if err != nil {
			return nil, fmt.Errorf("scan model day summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// UpsertPositionHistories applies one aggregation run's position-history
// rows as a single transaction
func (p *Postgres) UpsertPositionHistories(ctx context.Context, histories []models.PositionHistory) error {
	if len(histories) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO position_histories (
			store_id, machine_number, period_start, period_end,
			data_count, total_difference, average_difference,
			positive_days, negative_days, max_difference, min_difference,
			high_setting_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (store_id, machine_number, period_start, period_end) DO UPDATE SET
			data_count = EXCLUDED.data_count,
			total_difference = EXCLUDED.total_difference,
			average_difference = EXCLUDED.average_difference,
			positive_days = EXCLUDED.positive_days,
			negative_days = EXCLUDED.negative_days,
			max_difference = EXCLUDED.max_difference,
			min_difference = EXCLUDED.min_difference,
			high_setting_score = EXCLUDED.high_setting_score,
			updated_at = NOW()
	`

	for _, h := range histories {
		_, err := tx.ExecContext(
			ctx, query,
			h.StoreID, h.MachineNumber, h.PeriodStart, h.PeriodEnd,
			h.DataCount, h.TotalDifference, h.AverageDifference,
			h.PositiveDays, h.NegativeDays, h.MaxDifference, h.MinDifference,
			h.HighSettingScore,
		)
		if err != nil {
			return fmt.Errorf("upsert position history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetPositionHistories retrieves stored position histories whose periods fall
// inside the inclusive window
func (p *Postgres) GetPositionHistories(ctx context.Context, storeID int64, start, end time.Time) ([]models.PositionHistory, error) {
	query := `
		SELECT id, store_id, machine_number, period_start, period_end,
		       data_count, total_difference, average_difference,
		       positive_days, negative_days, max_difference, min_difference,
		       high_setting_score
		FROM position_histories
		WHERE store_id = $1 AND period_start >= $2 AND period_end <= $3
		ORDER BY machine_number
	`

	rows, err := p.db.QueryContext(ctx, query, storeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query position histories: %w", err)
	}
	defer rows.Close()

	var histories []models.PositionHistory
	for rows.Next() {
		var h models.PositionHistory
		err := rows.Scan(
			&h.ID, &h.StoreID, &h.MachineNumber, &h.PeriodStart, &h.PeriodEnd,
			&h.DataCount, &h.TotalDifference, &h.AverageDifference,
			&h.PositiveDays, &h.NegativeDays, &h.MaxDifference, &h.MinDifference,
			&h.HighSettingScore,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position history: %w", err)
		}
		histories = append(histories, h)
	}

	return histories, rows.Err()
}

var _ DB = (*Postgres)(nil)
