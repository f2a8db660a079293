package training

import (
	"math"

	"github.com/pkg/errors"
)

// Loss interface defines methods that all loss functions must implement
type Loss interface {
	Forward(predicted, target [][]float64) (float64, error)
	Backward(predicted, target [][]float64) ([][]float64, error)
}

// MSELoss implements Mean Squared Error: L = (1/N) * sum((y_pred - y_true)^2)
type MSELoss struct{}

// NewMSELoss creates a new Mean Squared Error loss function
func NewMSELoss() *MSELoss {
	return &MSELoss{}
}

// Forward computes the mean squared error
func (MSELoss) Forward(predicted, target [][]float64) (float64, error) {
	n, err := checkShapes(predicted, target)
	if err != nil {
		return 0, err
	}

	var sum float64
	for b := range predicted {
		for i := range predicted[b] {
			d := predicted[b][i] - target[b][i]
			sum += d * d
		}
	}
	return sum / float64(n), nil
}

// Backward computes dL/dpred = 2 * (predicted - target) / N
func (MSELoss) Backward(predicted, target [][]float64) ([][]float64, error) {
	n, err := checkShapes(predicted, target)
	if err != nil {
		return nil, err
	}

	scale := 2.0 / float64(n)
	return elementwise(predicted, target, func(p, t float64) float64 {
		return scale * (p - t)
	}), nil
}

// RMSELoss is the square root of the mean squared error. It is the default
// evaluation metric; its gradient is provided so it can also drive training.
type RMSELoss struct{}

// NewRMSELoss creates a new Root Mean Squared Error loss function
func NewRMSELoss() *RMSELoss {
	return &RMSELoss{}
}

// Forward computes sqrt(MSE)
func (RMSELoss) Forward(predicted, target [][]float64) (float64, error) {
	mse, err := MSELoss{}.Forward(predicted, target)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// Backward computes (predicted - target) / (N * RMSE); zero when RMSE is zero
func (RMSELoss) Backward(predicted, target [][]float64) ([][]float64, error) {
	rmse, err := RMSELoss{}.Forward(predicted, target)
	if err != nil {
		return nil, err
	}
	n, _ := checkShapes(predicted, target)

	return elementwise(predicted, target, func(p, t float64) float64 {
		if rmse == 0 {
			return 0
		}
		return (p - t) / (float64(n) * rmse)
	}), nil
}

// MAELoss implements Mean Absolute Error: L = (1/N) * sum(|y_pred - y_true|)
type MAELoss struct{}

// NewMAELoss creates a new Mean Absolute Error loss function
func NewMAELoss() *MAELoss {
	return &MAELoss{}
}

// Forward computes the mean absolute error
func (MAELoss) Forward(predicted, target [][]float64) (float64, error) {
	n, err := checkShapes(predicted, target)
	if err != nil {
		return 0, err
	}

	var sum float64
	for b := range predicted {
		for i := range predicted[b] {
			sum += math.Abs(predicted[b][i] - target[b][i])
		}
	}
	return sum / float64(n), nil
}

// Backward computes sign(predicted - target) / N
func (MAELoss) Backward(predicted, target [][]float64) ([][]float64, error) {
	n, err := checkShapes(predicted, target)
	if err != nil {
		return nil, err
	}

	return elementwise(predicted, target, func(p, t float64) float64 {
		switch {
		case p > t:
			return 1 / float64(n)
		case p < t:
			return -1 / float64(n)
		default:
			return 0
		}
	}), nil
}

// checkShapes verifies predicted and target agree and returns the element count
func checkShapes(predicted, target [][]float64) (int, error) {
	if len(predicted) != len(target) {
		return 0, errors.Errorf("predicted and target batches differ: %d != %d", len(predicted), len(target))
	}
	n := 0
	for b := range predicted {
		if len(predicted[b]) != len(target[b]) {
			return 0, errors.Errorf("row %d: predicted width %d, target width %d", b, len(predicted[b]), len(target[b]))
		}
		n += len(predicted[b])
	}
	if n == 0 {
		return 0, errors.New("loss of an empty batch is undefined")
	}
	return n, nil
}

func elementwise(predicted, target [][]float64, f func(p, t float64) float64) [][]float64 {
	out := make([][]float64, len(predicted))
	for b := range predicted {
		row := make([]float64, len(predicted[b]))
		for i := range row {
			row[i] = f(predicted[b][i], target[b][i])
		}
		out[b] = row
	}
	return out
}
