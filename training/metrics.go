package training

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RegressionMetrics holds summary regression errors of a prediction curve
type RegressionMetrics struct {
	MAE  float64 `json:"mae"`  // Mean Absolute Error
	MSE  float64 `json:"mse"`  // Mean Squared Error
	RMSE float64 `json:"rmse"` // Root Mean Squared Error
	R2   float64 `json:"r2"`   // Coefficient of determination
	NMAE float64 `json:"nmae"` // MAE divided by the target range
}

// CalculateRegressionMetrics compares predictions against targets
// element-wise. R2 is 0 for constant targets and NMAE is 0 for a zero range.
func CalculateRegressionMetrics(predictions, targets []float64) (RegressionMetrics, error) {
	if len(predictions) != len(targets) {
		return RegressionMetrics{}, errors.Errorf("predictions have %d values, targets %d", len(predictions), len(targets))
	}
	if len(targets) == 0 {
		return RegressionMetrics{}, errors.New("no values to compare")
	}

	n := float64(len(targets))
	mean := stat.Mean(targets, nil)

	var sumAbs, sumSq, sumTotal float64
	for i, y := range targets {
		d := predictions[i] - y
		sumAbs += math.Abs(d)
		sumSq += d * d
		sumTotal += (y - mean) * (y - mean)
	}

	m := RegressionMetrics{
		MAE: sumAbs / n,
		MSE: sumSq / n,
	}
	m.RMSE = math.Sqrt(m.MSE)
	if sumTotal > 0 {
		m.R2 = 1 - sumSq/sumTotal
	}
	if span := floats.Max(targets) - floats.Min(targets); span > 0 {
		m.NMAE = m.MAE / span
	}
	return m, nil
}

// ConfigMap returns the metrics as artifact config entries
func (m RegressionMetrics) ConfigMap() map[string]interface{} {
	return map[string]interface{}{
		"mae":  m.MAE,
		"mse":  m.MSE,
		"rmse": m.RMSE,
		"r2":   m.R2,
		"nmae": m.NMAE,
	}
}
