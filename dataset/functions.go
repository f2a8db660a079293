package dataset

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Linspace returns n evenly spaced values over [lo, hi]
func Linspace(lo, hi float64, n int) []float64 {
	switch {
	case n <= 0:
		return []float64{}
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Gaussian evaluates an unnormalised bell curve exp(-(x-mean)^2 / (2 std^2))
func Gaussian(x, mean, std float64) float64 {
	d := (x - mean) / std
	return math.Exp(-0.5 * d * d)
}

// CartesianProduct returns every (a, b) pair, a-major
func CartesianProduct(a, b []float64) [][]float64 {
	out := make([][]float64, 0, len(a)*len(b))
	for _, x := range a {
		for _, y := range b {
			out = append(out, []float64{x, y})
		}
	}
	return out
}

// NonUniform1D builds a curve over [0, numPeaks]: a linear ramp of the given
// slope with one gaussian peak centred in every unit interval.
func NonUniform1D(numPeaks, numPoints int, std, slope float64) (*TensorDataset, error) {
	if numPeaks <= 0 || numPoints <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "peaks=%d points=%d", numPeaks, numPoints)
	}

	xs := Linspace(0, float64(numPeaks), numPoints)
	ramp := Linspace(0, slope*float64(numPeaks), numPoints)

	inputs := make([][]float64, numPoints)
	targets := make([][]float64, numPoints)
	for i, x := range xs {
		y := ramp[i]
		for p := 0; p < numPeaks; p++ {
			y += Gaussian(x, float64(p)+0.5, std)
		}
		inputs[i] = []float64{x}
		targets[i] = []float64{y}
	}

	return NewTensorDataset(inputs, targets)
}

// MultiPeak2D builds a surface over [0, numPeaks]^2 sampled on a
// numPoints x numPoints grid. Every grid cell contributes a separable pair of
// peaks with per-axis widths stdX and stdY.
func MultiPeak2D(numPeaks, numPoints int, stdX, stdY float64) (*TensorDataset, error) {
	if numPeaks <= 0 || numPoints <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "peaks=%d points=%d", numPeaks, numPoints)
	}

	axis := Linspace(0, float64(numPeaks), numPoints)
	inputs := CartesianProduct(axis, axis)
	targets := make([][]float64, len(inputs))
	for k, p := range inputs {
		var z float64
		for i := 0; i < numPeaks; i++ {
			for j := 0; j < numPeaks; j++ {
				z += Gaussian(p[0], float64(i)+0.5, stdX) + Gaussian(p[1], float64(j)+0.5, stdY)
			}
		}
		targets[k] = []float64{z}
	}

	return NewTensorDataset(inputs, targets)
}
