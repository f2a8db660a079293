package dataset

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned when a partition or loader is asked for an
	// impossible shape (non-positive counts, empty domains, ragged samples).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIndexOutOfRange is returned by Get for indices outside [0, Len()).
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Sample is a single (input, target) pair
type Sample struct {
	Input  []float64
	Target []float64
}

// Dataset interface defines methods that all datasets must implement
type Dataset interface {
	Len() int                     // Total number of samples
	Get(idx int) (Sample, error) // Returns a single sample
}

// TensorDataset is an in-memory dataset of row vectors. It is immutable once
// constructed; Get and the accessors return copies.
type TensorDataset struct {
	inputs  [][]float64
	targets [][]float64
}

// NewTensorDataset creates a dataset from parallel input and target rows.
// Every input row must have the same width, as must every target row.
func NewTensorDataset(inputs, targets [][]float64) (*TensorDataset, error) {
	if len(inputs) != len(targets) {
		return nil, errors.Wrapf(ErrInvalidArgument, "inputs and targets differ in length: %d != %d", len(inputs), len(targets))
	}

	ds := &TensorDataset{
		inputs:  make([][]float64, len(inputs)),
		targets: make([][]float64, len(targets)),
	}

	for i := range inputs {
		if len(inputs[i]) != len(inputs[0]) {
			return nil, errors.Wrapf(ErrInvalidArgument, "input row %d has width %d, expected %d", i, len(inputs[i]), len(inputs[0]))
		}
		if len(targets[i]) != len(targets[0]) {
			return nil, errors.Wrapf(ErrInvalidArgument, "target row %d has width %d, expected %d", i, len(targets[i]), len(targets[0]))
		}
		ds.inputs[i] = cloneRow(inputs[i])
		ds.targets[i] = cloneRow(targets[i])
	}

	return ds, nil
}

// Len returns the number of samples
func (d *TensorDataset) Len() int {
	return len(d.inputs)
}

// Get returns the sample at idx
func (d *TensorDataset) Get(idx int) (Sample, error) {
	if idx < 0 || idx >= len(d.inputs) {
		return Sample{}, errors.Wrapf(ErrIndexOutOfRange, "index %d (len %d)", idx, len(d.inputs))
	}
	return Sample{Input: cloneRow(d.inputs[idx]), Target: cloneRow(d.targets[idx])}, nil
}

// InputDim returns the width of an input row, 0 for an empty dataset
func (d *TensorDataset) InputDim() int {
	if len(d.inputs) == 0 {
		return 0
	}
	return len(d.inputs[0])
}

// Inputs returns a copy of every input row in order
func (d *TensorDataset) Inputs() [][]float64 {
	return cloneRows(d.inputs)
}

// Targets returns a copy of every target row in order
func (d *TensorDataset) Targets() [][]float64 {
	return cloneRows(d.targets)
}

// FlatTargets returns the first target column. Function datasets carry a single
// output, so this is the curve that gets stored as a prediction baseline.
func (d *TensorDataset) FlatTargets() []float64 {
	out := make([]float64, len(d.targets))
	for i, row := range d.targets {
		if len(row) > 0 {
			out[i] = row[0]
		}
	}
	return out
}

// subset builds a dataset from the given indices without re-validating rows.
func (d *TensorDataset) subset(indices []int) *TensorDataset {
	sub := &TensorDataset{
		inputs:  make([][]float64, len(indices)),
		targets: make([][]float64, len(indices)),
	}
	for i, idx := range indices {
		sub.inputs[i] = cloneRow(d.inputs[idx])
		sub.targets[i] = cloneRow(d.targets[idx])
	}
	return sub
}

func cloneRow(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = cloneRow(row)
	}
	return out
}
