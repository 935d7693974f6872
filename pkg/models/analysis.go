package models

// PositionScore is the scored view of one physical position over a window.
type PositionScore struct {
	MachineNumber     int      `json:"machine_number"`
	Score             float64  `json:"score"`
	DataCount         int      `json:"data_count"`
	AverageDifference float64  `json:"average_difference"`
	PositiveRate      float64  `json:"positive_rate"`
	TotalDifference   int      `json:"total_difference"`
	Reasons           []string `json:"reasons"`
}

// PositionAnalysis summarizes the position-scoring pass.
type PositionAnalysis struct {
	TotalPositions int             `json:"total_positions"`
	TopPositions   []PositionScore `json:"top_positions"`
	HotNumbers     []int           `json:"hot_numbers"`

	// All scored positions, keyed by machine number. Used by the fusion
	// step; not serialized (TopPositions is the display subset).
	Scores map[int]PositionScore `json:"-"`
}

// ModelScore is the scored view of one machine model over a window.
type ModelScore struct {
	ModelID           int64   `json:"model_id"`
	ModelName         string  `json:"model_name"`
	Score             float64 `json:"score"`
	DaysAnalyzed      int     `json:"days_analyzed"`
	AverageDifference float64 `json:"average_difference"`
	PositiveRate      float64 `json:"positive_rate"`
	IsFavorable       bool    `json:"is_favorable"`
}

// ModelAnalysis summarizes the model-scoring pass.
type ModelAnalysis struct {
	TotalModels     int          `json:"total_models"`
	FavorableModels []ModelScore `json:"favorable_models"`
	TopModels       []ModelScore `json:"top_models"`
}

// WeekdayScore is one day-of-week bucket (Monday-first).
type WeekdayScore struct {
	Weekday           int     `json:"weekday"`
	WeekdayName       string  `json:"weekday_name"`
	DataCount         int     `json:"data_count"`
	AverageDifference float64 `json:"average_difference"`
	PositiveRate      float64 `json:"positive_rate"`
	IsFavorable       bool    `json:"is_favorable"`
}

// PatternAnalysis summarizes the weekday-pattern pass.
type PatternAnalysis struct {
	WeekdayAnalysis []WeekdayScore `json:"weekday_analysis"`
	BestWeekdays    []string       `json:"best_weekdays"`
}

// Recommendation is one fused, ranked entry for a physical position.
type Recommendation struct {
	MachineNumber int      `json:"machine_number"`
	ModelName     string   `json:"model_name"`
	TotalScore    float64  `json:"total_score"`
	PositionScore float64  `json:"position_score"`
	ModelBonus    float64  `json:"model_bonus"`
	Reasons       []string `json:"reasons"`
	Confidence    string   `json:"confidence"`
}

// Period is an inclusive analysis date range.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

// RecommendationReport is the full engine output for one store.
type RecommendationReport struct {
	StoreID         int64            `json:"store_id"`
	StoreName       string           `json:"store_name"`
	AnalysisDate    string           `json:"analysis_date"`
	Period          Period           `json:"period"`
	Recommendations []Recommendation `json:"recommendations"`
	AnalysisDetails AnalysisDetails  `json:"analysis_details"`
}

// AnalysisDetails exposes the per-signal breakdowns behind a report.
type AnalysisDetails struct {
	PositionAnalysis PositionAnalysis `json:"position_analysis"`
	ModelAnalysis    ModelAnalysis    `json:"model_analysis"`
	PatternAnalysis  PatternAnalysis  `json:"pattern_analysis"`
}

// DailyDetail is one day in a single-position report.
type DailyDetail struct {
	Date                string  `json:"date"`
	ModelName           string  `json:"model_name"`
	GameCount           *int    `json:"game_count,omitempty"`
	TotalDifference     int     `json:"total_difference"`
	BigBonus            *int    `json:"bb,omitempty"`
	RegularBonus        *int    `json:"rb,omitempty"`
	CombinedProbability *string `json:"combined_probability,omitempty"`
}

// MachineStatistics are the aggregate stats in a single-position report.
type MachineStatistics struct {
	DataCount         int     `json:"data_count"`
	TotalDifference   int     `json:"total_difference"`
	AverageDifference float64 `json:"average_difference"`
	PositiveDays      int     `json:"positive_days"`
	NegativeDays      int     `json:"negative_days"`
	PositiveRate      float64 `json:"positive_rate"`
	MaxDifference     int     `json:"max_difference"`
	MinDifference     int     `json:"min_difference"`
}

// MachineDetailReport is the deep-dive report for one position.
type MachineDetailReport struct {
	StoreID             int64             `json:"store_id"`
	MachineNumber       int               `json:"machine_number"`
	Period              Period            `json:"period"`
	Statistics          MachineStatistics `json:"statistics"`
	DailyData           []DailyDetail     `json:"daily_data"`
	RecommendationScore float64           `json:"recommendation_score"`
}

// SnapshotAnalysis is the statistical/learned blend over the latest readings.
type SnapshotAnalysis struct {
	StoreName              string          `json:"store_name"`
	HighSettingProbability float64         `json:"high_setting_probability"`
	ConfidenceScore        float64         `json:"confidence_score"`
	RecommendedMachines    []int           `json:"recommended_machines"`
	AnalysisDetails        SnapshotDetails `json:"analysis_details"`
}

// SnapshotDetails carries the per-signal values behind a snapshot analysis.
type SnapshotDetails struct {
	AverageGameCount      float64         `json:"average_game_count"`
	AverageDifference     float64         `json:"average_difference"`
	PositiveMachines      int             `json:"positive_machines_count"`
	TotalMachines         int             `json:"total_machines"`
	HighPerformers        []HighPerformer `json:"high_performers"`
	StatisticalProb       float64         `json:"statistical_probability"`
	LearnedProb           *float64        `json:"learned_probability,omitempty"`
	AnalysisDate          string          `json:"analysis_date"`
	HighSettingCandidates float64         `json:"high_setting_candidate_ratio"`
	UniqueModels          int             `json:"unique_models"`
}

// HighPerformer is a top machine by differential in a snapshot.
type HighPerformer struct {
	MachineNumber   int    `json:"machine_number"`
	ModelName       string `json:"model_name"`
	TotalDifference int    `json:"total_difference"`
}
