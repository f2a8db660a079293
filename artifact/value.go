package artifact

import (
	"fmt"
	"math"
)

// Value is a stored result. It is one of Series, Baseline or TaskPredictions.
type Value interface {
	Len() int
	clone() Value
}

// Series is a metric sampled once per logging interval, oldest first
type Series []float64

// Baseline is a single prediction curve spanning the whole domain
type Baseline []float64

// TaskPredictions holds one prediction array per task, in task order
type TaskPredictions [][]float64

// Len returns the number of samples
func (s Series) Len() int { return len(s) }

// Len returns the number of points
func (b Baseline) Len() int { return len(b) }

// Len returns the number of tasks
func (t TaskPredictions) Len() int { return len(t) }

func (s Series) clone() Value   { return Series(cloneFloats(s)) }
func (b Baseline) clone() Value { return Baseline(cloneFloats(b)) }

func (t TaskPredictions) clone() Value {
	out := make(TaskPredictions, len(t))
	for i, row := range t {
		out[i] = cloneFloats(row)
	}
	return out
}

func cloneFloats(in []float64) []float64 {
	out := make([]float64, len(in))
	copy(out, in)
	return out
}

// Describe returns a short shape description such as "[1000]" or "[200] (x5)"
func Describe(v Value) string {
	switch v := v.(type) {
	case Series:
		return fmt.Sprintf("[%d]", len(v))
	case Baseline:
		return fmt.Sprintf("[%d]", len(v))
	case TaskPredictions:
		if len(v) == 0 {
			return "[] (x0)"
		}
		return fmt.Sprintf("[%d] (x%d)", len(v[0]), len(v))
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Equal reports whether a and b are the same variant with bit-identical data
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case Series:
		b, ok := b.(Series)
		return ok && bitsEqual(a, b)
	case Baseline:
		b, ok := b.(Baseline)
		return ok && bitsEqual(a, b)
	case TaskPredictions:
		b, ok := b.(TaskPredictions)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !bitsEqual(a[i], b[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func bitsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}
