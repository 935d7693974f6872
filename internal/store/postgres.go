package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// DB defines the persistence operations used across the service
type DB interface {
	Ping(ctx context.Context) error
	Close() error

	// Stores
	CreateStore(ctx context.Context, name string, area, sourceURL *string) (*models.Store, error)
	GetStore(ctx context.Context, id int64) (*models.Store, error)
	ListStores(ctx context.Context, limit, offset int) ([]models.Store, error)
	GetOrCreateStore(ctx context.Context, name string, area, sourceURL *string) (*models.Store, error)

	// Model catalog
	GetOrCreateModel(ctx context.Context, name string) (*models.ModelCatalogEntry, error)

	// Readings
	UpsertReading(ctx context.Context, reading *models.Reading) error
	GetReadingsByDate(ctx context.Context, storeID int64, date time.Time) ([]models.Reading, error)
	GetReadingsInRange(ctx context.Context, storeID int64, start, end time.Time) ([]models.Reading, error)
	GetPositionReadings(ctx context.Context, storeID int64, machineNumber int, start, end time.Time) ([]models.Reading, error)
	GetLatestReadingDate(ctx context.Context, storeID int64) (*time.Time, error)

	// Derived layers
	UpsertStoreDaySummary(ctx context.Context, summary *models.StoreDaySummary) error
	GetStoreDaySummaries(ctx context.Context, storeID int64, start, end time.Time) ([]models.StoreDaySummary, error)
	UpsertModelDaySummaries(ctx context.Context, summaries []models.ModelDaySummary) error
	GetModelDaySummaries(ctx context.Context, storeID int64, start, end time.Time) ([]models.ModelDaySummary, error)
	UpsertPositionHistories(ctx context.Context, histories []models.PositionHistory) error
	GetPositionHistories(ctx context.Context, storeID int64, start, end time.Time) ([]models.PositionHistory, error)

	// Ingest logs
	CreateIngestLog(ctx context.Context, runID string, storeID *int64) (*models.IngestLog, error)
	UpdateIngestLog(ctx context.Context, id int64, status string, savedCount int, errorMessage *string) error
	ListIngestLogs(ctx context.Context, storeID int64, limit int) ([]models.IngestLog, error)

	// Predictions
	SavePrediction(ctx context.Context, prediction *models.Prediction) (int64, error)
	ListPredictions(ctx context.Context, storeID int64, limit int) ([]models.Prediction, error)
}

// Postgres implements DB for PostgreSQL
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against the given DSN
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db}, nil
}

// Ping checks database connectivity
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

// CreateStore inserts a new store
func (p *Postgres) CreateStore(ctx context.Context, name string, area, sourceURL *string) (*models.Store, error) {
	query := `
		INSERT INTO stores (name, area, source_url)
		VALUES ($1, $2, $3)
		RETURNING id, name, area, source_url, created_at, updated_at
	`

	store := &models.Store{}
	err := p.db.QueryRowContext(ctx, query, name, area, sourceURL).Scan(
		&store.ID, &store.Name, &store.Area, &store.SourceURL,
		&store.CreatedAt, &store.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert store: %w", err)
	}

	return store, nil
}

// GetStore retrieves a store by ID, nil if it does not exist
func (p *Postgres) GetStore(ctx context.Context, id int64) (*models.Store, error) {
	query := `
		SELECT id, name, area, source_url, created_at, updated_at
		FROM stores
		WHERE id = $1
	`

	store := &models.Store{}
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&store.ID, &store.Name, &store.Area, &store.SourceURL,
		&store.CreatedAt, &store.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	return store, nil
}

// ListStores retrieves stores ordered by ID
func (p *Postgres) ListStores(ctx context.Context, limit, offset int) ([]models.Store, error) {
	query := `
		SELECT id, name, area, source_url, created_at, updated_at
		FROM stores
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	var stores []models.Store
	for rows.Next() {
		var s models.Store
		err := rows.Scan(&s.ID, &s.Name, &s.Area, &s.SourceURL, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, s)
	}

	return stores, rows.Err()
}

// GetOrCreateStore finds a store by name, creating it on first sight
func (p *Postgres) GetOrCreateStore(ctx context.Context, name string, area, sourceURL *string) (*models.Store, error) {
	query := `
		SELECT id, name, area, source_url, created_at, updated_at
		FROM stores
		WHERE name = $1
	`

	store := &models.Store{}
	err := p.db.QueryRowContext(ctx, query, name).Scan(
		&store.ID, &store.Name, &store.Area, &store.SourceURL,
		&store.CreatedAt, &store.UpdatedAt,
	)
	if err == nil {
		return store, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("query store by name: %w", err)
	}

	return p.CreateStore(ctx, name, area, sourceURL)
}

// GetOrCreateModel finds a catalog entry by model name, creating it lazily.
// The name is the natural key; entries are never deleted.
func (p *Postgres) GetOrCreateModel(ctx context.Context, name string) (*models.ModelCatalogEntry, error) {
	query := `
		INSERT INTO slot_models (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`

	entry := &models.ModelCatalogEntry{}
	err := p.db.QueryRowContext(ctx, query, name).Scan(&entry.ID, &entry.Name)
	if err != nil {
		return nil, fmt.Errorf("get or create model %q: %w", name, err)
	}

	return entry, nil
}

// UpsertReading inserts or overwrites one reading keyed by
// (store, machine number, data date)
func (p *Postgres) UpsertReading(ctx context.Context, reading *models.Reading) error {
	query := `
		INSERT INTO readings (
			store_id, machine_number, model_name, game_count,
			big_bonus, regular_bonus, art_count, total_difference,
			bb_probability, rb_probability, combined_probability, data_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (store_id, machine_number, data_date) DO UPDATE SET
			model_name = EXCLUDED.model_name,
			game_count = EXCLUDED.game_count,
			big_bonus = EXCLUDED.big_bonus,
			regular_bonus = EXCLUDED.regular_bonus,
			art_count = EXCLUDED.art_count,
			total_difference = EXCLUDED.total_difference,
			bb_probability = EXCLUDED.bb_probability,
			rb_probability = EXCLUDED.rb_probability,
			combined_probability = EXCLUDED.combined_probability,
			updated_at = NOW()
		RETURNING id
	`

	err := p.db.QueryRowContext(
		ctx, query,
		reading.StoreID,
		reading.MachineNumber,
		reading.ModelName,
		reading.GameCount,
		reading.BigBonus,
		reading.RegularBonus,
		reading.ArtCount,
		reading.TotalDifference,
		reading.BBProbability,
		reading.RBProbability,
		reading.CombinedProbability,
		reading.DataDate,
	).Scan(&reading.ID)

	if err != nil {
		return fmt.Errorf("upsert reading: %w", err)
	}

	return nil
}

const readingColumns = `
	id, store_id, machine_number, model_name, game_count,
	big_bonus, regular_bonus, art_count, total_difference,
	bb_probability, rb_probability, combined_probability, data_date
`

func scanReading(rows *sql.Rows) (models.Reading, error) {
	var r models.Reading
	err := rows.Scan(
		&r.ID, &r.StoreID, &r.MachineNumber, &r.ModelName, &r.GameCount,
		&r.BigBonus, &r.RegularBonus, &r.ArtCount, &r.TotalDifference,
		&r.BBProbability, &r.RBProbability, &r.CombinedProbability, &r.DataDate,
	)
	return r, err
}

// GetReadingsByDate retrieves all readings for one store/date
func (p *Postgres) GetReadingsByDate(ctx context.Context, storeID int64, date time.Time) ([]models.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings
		WHERE store_id = $1 AND data_date = $2
		ORDER BY machine_number
	`

	return p.queryReadings(ctx, query, storeID, date)
}

// GetReadingsInRange retrieves all readings for a store in an inclusive window
func (p *Postgres) GetReadingsInRange(ctx context.Context, storeID int64, start, end time.Time) ([]models.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings
		WHERE store_id = $1 AND data_date >= $2 AND data_date <= $3
		ORDER BY data_date, machine_number
	`

	return p.queryReadings(ctx, query, storeID, start, end)
}

// GetPositionReadings retrieves one position's readings, newest first
func (p *Postgres) GetPositionReadings(ctx context.Context, storeID int64, machineNumber int, start, end time.Time) ([]models.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings
		WHERE store_id = $1 AND machine_number = $2
		  AND data_date >= $3 AND data_date <= $4
		ORDER BY data_date DESC
	`

	return p.queryReadings(ctx, query, storeID, machineNumber, start, end)
}

func (p *Postgres) queryReadings(ctx context.Context, query string, args ...interface{}) ([]models.Reading, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, r)
	}

	return readings, rows.Err()
}

// GetLatestReadingDate returns the most recent data date for a store,
// nil if the store has no readings at all
func (p *Postgres) GetLatestReadingDate(ctx context.Context, storeID int64) (*time.Time, error) {
	query := `SELECT MAX(data_date) FROM readings WHERE store_id = $1`

	var latest sql.NullTime
	if err := p.db.QueryRowContext(ctx, query, storeID).Scan(&latest); err != nil {
		return nil, fmt.Errorf("query latest reading date: %w", err)
	}

	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

// CreateIngestLog records the start of an ingestion run
func (p *Postgres) CreateIngestLog(ctx context.Context, runID string, storeID *int64) (*models.IngestLog, error) {
	query := `
		INSERT INTO ingest_logs (run_id, store_id, status, started_at)
		VALUES ($1, $2, 'running', NOW())
		RETURNING id, run_id, store_id, status, error_message, saved_count, started_at, completed_at
	`

	log := &models.IngestLog{}
	err := p.db.QueryRowContext(ctx, query, runID, storeID).Scan(
		&log.ID, &log.RunID, &log.StoreID, &log.Status,
		&log.ErrorMessage, &log.SavedCount, &log.StartedAt, &log.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ingest log: %w", err)
	}

	return log, nil
}

// UpdateIngestLog closes out an ingestion run
func (p *Postgres) UpdateIngestLog(ctx context.Context, id int64, status string, savedCount int, errorMessage *string) error {
	query := `
		UPDATE ingest_logs
		SET status = $1, saved_count = $2, error_message = $3, completed_at = NOW()
		WHERE id = $4
	`

	_, err := p.db.ExecContext(ctx, query, status, savedCount, errorMessage, id)
	if err != nil {
		return fmt.Errorf("update ingest log: %w", err)
	}

	return nil
}

// ListIngestLogs retrieves recent ingestion runs for a store, newest first
func (p *Postgres) ListIngestLogs(ctx context.Context, storeID int64, limit int) ([]models.IngestLog, error) {
	query := `
		SELECT id, run_id, store_id, status, error_message, saved_count, started_at, completed_at
		FROM ingest_logs
		WHERE store_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := p.db.QueryContext(ctx, query, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ingest logs: %w", err)
	}
	defer rows.Close()

	var logs []models.IngestLog
	for rows.Next() {
		var l models.IngestLog
		err := rows.Scan(
			&l.ID, &l.RunID, &l.StoreID, &l.Status,
			&l.ErrorMessage, &l.SavedCount, &l.StartedAt, &l.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ingest log: %w", err)
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

// SavePrediction persists a snapshot-analysis result
func (p *Postgres) SavePrediction(ctx context.Context, prediction *models.Prediction) (int64, error) {
	query := `
		INSERT INTO predictions (
			store_id, prediction_date, high_setting_probability,
			confidence_score, recommended_machines, analysis_details
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := p.db.QueryRowContext(
		ctx, query,
		prediction.StoreID,
		prediction.PredictionDate,
		prediction.HighSettingProbability,
		prediction.ConfidenceScore,
		prediction.RecommendedMachines,
		prediction.AnalysisDetails,
	).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("insert prediction: %w", err)
	}

	return id, nil
}

// ListPredictions retrieves recent predictions for a store, newest first
func (p *Postgres) ListPredictions(ctx context.Context, storeID int64, limit int) ([]models.Prediction, error) {
	query := `
		SELECT id, store_id, prediction_date, high_setting_probability,
		       confidence_score, recommended_machines, analysis_details
		FROM predictions
		WHERE store_id = $1
		ORDER BY prediction_date DESC
		LIMIT $2
	`

	rows, err := p.db.QueryContext(ctx, query, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var predictions []models.Prediction
	for rows.Next() {
		var pr models.Prediction
		err := rows.Scan(
			&pr.ID, &pr.StoreID, &pr.PredictionDate, &pr.HighSettingProbability,
			&pr.ConfidenceScore, &pr.RecommendedMachines, &pr.AnalysisDetails,
		)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		predictions = append(predictions, pr)
	}

	return predictions, rows.Err()
}
