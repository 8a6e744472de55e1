package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics are computed on the held-out partition.
type Metrics struct {
	RMSE      float64 `json:"rmse"`
	R2        float64 `json:"r2"`
	TestRows  int     `json:"test_rows"`
	TrainRows int     `json:"train_rows"`
}

// RMSE is the root mean squared error between predictions and actuals.
func RMSE(predicted, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	return floats.Distance(predicted, actual, 2) / math.Sqrt(float64(len(actual)))
}

// R2 is the coefficient of determination. A constant actual series scores 1
// when predicted exactly and 0 otherwise, so the result is always finite.
func R2(predicted, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	if len(actual) == 1 || stat.Variance(actual, nil) == 0 {
		if floats.EqualApprox(predicted, actual, 1e-12) {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}
