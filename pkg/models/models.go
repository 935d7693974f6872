package models

import (
	"errors"
	"time"
)

// Typed errors surfaced by the analyzer and store layers.
// Handlers translate these into HTTP status codes with errors.Is.
var (
	// ErrNotFound indicates an unknown store or an empty scope
	// (no readings at all for the requested store/position/window).
	ErrNotFound = errors.New("not found")

	// ErrInvalidWindow indicates a non-positive or unreasonably large
	// history window.
	ErrInvalidWindow = errors.New("invalid history window")
)

// DateFormat is the wire format for data dates (date only, no time part).
const DateFormat = "2006-01-02"

// Store represents a gambling hall being tracked
type Store struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Area      *string   `json:"area,omitempty"`
	SourceURL *string   `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reading is one day of telemetry for one physical machine position.
// Unique per (store, machine number, data date); re-ingesting the same key
// overwrites. Optional fields are nil when the source had no value. Nil is
// "absent", never zero.
type Reading struct {
	ID                  int64     `json:"id"`
	StoreID             int64     `json:"store_id"`
	MachineNumber       int       `json:"machine_number"`
	ModelName           string    `json:"model_name"`
	GameCount           *int      `json:"game_count,omitempty"`
	BigBonus            *int      `json:"big_bonus,omitempty"`
	RegularBonus        *int      `json:"regular_bonus,omitempty"`
	ArtCount            *int      `json:"art_count,omitempty"`
	TotalDifference     *int      `json:"total_difference,omitempty"`
	BBProbability       *string   `json:"bb_probability,omitempty"`
	RBProbability       *string   `json:"rb_probability,omitempty"`
	CombinedProbability *string   `json:"combined_probability,omitempty"`
	DataDate            time.Time `json:"data_date"`
}

// StoreDaySummary aggregates all readings for one store on one date.
// Unique per (store, data date); recomputed wholesale on every pipeline run.
type StoreDaySummary struct {
	ID                int64     `json:"id"`
	StoreID           int64     `json:"store_id"`
	DataDate          time.Time `json:"data_date"`
	TotalMachines     int       `json:"total_machines"`
	PositiveMachines  int       `json:"positive_machines"`
	NegativeMachines  int       `json:"negative_machines"`
	TotalDifference   *int      `json:"total_difference,omitempty"`
	AverageDifference *float64  `json:"average_difference,omitempty"`
	AverageGameCount  *float64  `json:"average_game_count,omitempty"`
}

// ModelCatalogEntry is the lazily grown machine-model master record.
// Name is the natural key; entries are created the first time a reading
// references an unseen model and are never deleted.
type ModelCatalogEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ModelDaySummary aggregates same-date readings grouped by machine model.
// Unique per (store, model, data date).
type ModelDaySummary struct {
	ID                int64     `json:"id"`
	StoreID           int64     `json:"store_id"`
	ModelID           int64     `json:"model_id"`
	ModelName         string    `json:"model_name"`
	DataDate          time.Time `json:"data_date"`
	MachineCount      int       `json:"machine_count"`
	TotalGameCount    *int      `json:"total_game_count,omitempty"`
	AverageGameCount  *float64  `json:"average_game_count,omitempty"`
	TotalDifference   *int      `json:"total_difference,omitempty"`
	AverageDifference *float64  `json:"average_difference,omitempty"`
	PositiveCount     int       `json:"positive_count"`
	MaxDifference     *int      `json:"max_difference,omitempty"`
	MinDifference     *int      `json:"min_difference,omitempty"`
}

// PositionHistory is the rolling-window aggregate for one physical position.
// Unique per (store, machine number, period start, period end). Only created
// when the window holds at least one present differential.
type PositionHistory struct {
	ID                int64     `json:"id"`
	StoreID           int64     `json:"store_id"`
	MachineNumber     int       `json:"machine_number"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	DataCount         int       `json:"data_count"`
	TotalDifference   int       `json:"total_difference"`
	AverageDifference float64   `json:"average_difference"`
	PositiveDays      int       `json:"positive_days"`
	NegativeDays      int       `json:"negative_days"`
	MaxDifference     int       `json:"max_difference"`
	MinDifference     int       `json:"min_difference"`
	HighSettingScore  float64   `json:"high_setting_score"`
}

// IngestLog records one ingestion run (status: running, success, failed).
type IngestLog struct {
	ID           int64      `json:"id"`
	RunID        string     `json:"run_id"`
	StoreID      *int64     `json:"store_id,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	SavedCount   int        `json:"saved_count"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Prediction is a persisted snapshot-analysis result.
type Prediction struct {
	ID                     int64     `json:"id"`
	StoreID                int64     `json:"store_id"`
	PredictionDate         time.Time `json:"prediction_date"`
	HighSettingProbability float64   `json:"high_setting_probability"`
	ConfidenceScore        float64   `json:"confidence_score"`
	RecommendedMachines    string    `json:"recommended_machines"`
	AnalysisDetails        string    `json:"analysis_details"`
}
