package contracts

import "context"

// PredictorFeatures are the statistical features fed to a learned scorer.
type PredictorFeatures struct {
	AverageGameCount      float64
	AverageDifference     float64
	PositiveRatio         float64
	HighSettingCandidates float64
	UniqueModels          int
	MachineCount          int
}

// Predictor is an optional learned scorer. Implementations return a
// high-setting probability in [0,1]. The snapshot analyzer blends it with
// its statistical estimate; a nil Predictor means statistical-only.
type Predictor interface {
	Predict(ctx context.Context, features PredictorFeatures) (float64, error)
}
