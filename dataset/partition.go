package dataset

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// DataType identifies the shape of an experiment's function domain
type DataType int

const (
	// Function1D is a curve sampled along a single ordered axis
	Function1D DataType = iota + 1
	// Function2D is a surface sampled on a cartesian grid of two axes
	Function2D
)

func (dt DataType) String() string {
	switch dt {
	case Function1D:
		return "function_1d"
	case Function2D:
		return "function_2d"
	default:
		return fmt.Sprintf("unknown(%d)", int(dt))
	}
}

// ParseDataType is the inverse of DataType.String
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "function_1d":
		return Function1D, nil
	case "function_2d":
		return Function2D, nil
	default:
		return 0, errors.Wrapf(ErrInvalidArgument, "unknown data type %q", s)
	}
}

// Partition splits a full-domain dataset into tasks according to its data type.
// 1D domains yield n tasks, 2D domains yield n*n tasks.
func Partition(ds *TensorDataset, n int, dt DataType) ([]*TensorDataset, error) {
	switch dt {
	case Function1D:
		return Partition1D(ds, n)
	case Function2D:
		return Partition2D(ds, n)
	default:
		return nil, errors.Wrapf(ErrInvalidArgument, "cannot partition data type %s", dt)
	}
}

// Partition1D chunks an axis-ordered dataset into n contiguous groups of
// len/n samples. The last group absorbs the remainder.
func Partition1D(ds *TensorDataset, n int) ([]*TensorDataset, error) {
	if err := checkPartitionArgs(ds, n); err != nil {
		return nil, err
	}
	if ds.Len() < n {
		return nil, errors.Wrapf(ErrInvalidArgument, "cannot split %d samples into %d tasks", ds.Len(), n)
	}

	size := ds.Len() / n
	tasks := make([]*TensorDataset, 0, n)
	for t := 0; t < n; t++ {
		start := t * size
		end := start + size
		if t == n-1 {
			end = ds.Len()
		}

		indices := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}
		tasks = append(tasks, ds.subset(indices))
	}

	return tasks, nil
}

// Partition2D buckets every (x, y) input into one of n*n rectangular cells.
// Each axis range is divided into n equal coordinate intervals, half-open and
// lower-inclusive; the axis maximum belongs to the last interval. Cells are
// ordered x-major (cell = bx*n + by) and keep the original sample order.
func Partition2D(ds *TensorDataset, n int) ([]*TensorDataset, error) {
	if err := checkPartitionArgs(ds, n); err != nil {
		return nil, err
	}
	if ds.InputDim() != 2 {
		return nil, errors.Wrapf(ErrInvalidArgument, "2d partition needs 2 input columns, got %d", ds.InputDim())
	}

	xs := make([]float64, ds.Len())
	ys := make([]float64, ds.Len())
	for i, row := range ds.inputs {
		xs[i], ys[i] = row[0], row[1]
	}
	xb := newAxisBuckets(xs, n)
	yb := newAxisBuckets(ys, n)

	cells := make([][]int, n*n)
	for i := range ds.inputs {
		cell := xb.bucket(xs[i])*n + yb.bucket(ys[i])
		cells[cell] = append(cells[cell], i)
	}

	tasks := make([]*TensorDataset, 0, n*n)
	for c, indices := range cells {
		if len(indices) == 0 {
			return nil, errors.Wrapf(ErrInvalidArgument, "grid cell (%d, %d) holds no points", c/n, c%n)
		}
		tasks = append(tasks, ds.subset(indices))
	}

	return tasks, nil
}

func checkPartitionArgs(ds *TensorDataset, n int) error {
	if n <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "task count must be positive, got %d", n)
	}
	if ds == nil || ds.Len() == 0 {
		return errors.Wrap(ErrInvalidArgument, "cannot partition an empty domain")
	}
	return nil
}

type axisBuckets struct {
	min, span float64
	n         int
}

func newAxisBuckets(values []float64, n int) axisBuckets {
	lo, hi := floats.Min(values), floats.Max(values)
	return axisBuckets{min: lo, span: hi - lo, n: n}
}

func (a axisBuckets) bucket(v float64) int {
	if a.span == 0 {
		return 0
	}
	b := int(math.Floor((v - a.min) / a.span * float64(a.n)))
	if b >= a.n {
		b = a.n - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}
