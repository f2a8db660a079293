package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
)

// DataLoader provides batching and optional shuffling over a Dataset.
// It is not safe for concurrent use; the training loop owns it.
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
}

// Batch represents a batch of inputs and targets
type Batch struct {
	Inputs  [][]float64
	Targets [][]float64
}

// Size returns the number of samples in the batch
func (b *Batch) Size() int {
	return len(b.Inputs)
}

// NewDataLoader creates a sequential DataLoader
func NewDataLoader(ds Dataset, batchSize int) (*DataLoader, error) {
	return newDataLoader(ds, batchSize, false, 0)
}

// NewShuffledDataLoader creates a DataLoader that reshuffles on every Reset
// using a deterministic source seeded with seed.
func NewShuffledDataLoader(ds Dataset, batchSize int, seed int64) (*DataLoader, error) {
	return newDataLoader(ds, batchSize, true, seed)
}

func newDataLoader(ds Dataset, batchSize int, shuffle bool, seed int64) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "batch size must be positive, got %d", batchSize)
	}

	indices := make([]int, ds.Len())
	for i := range indices {
		indices[i] = i
	}

	dl := &DataLoader{
		dataset:   ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		indices:   indices,
	}
	if shuffle {
		dl.rng = rand.New(rand.NewSource(seed))
	}
	dl.Reset()
	return dl, nil
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader for a new epoch
func (dl *DataLoader) Reset() {
	dl.position = 0

	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// HasNext returns true if there are more batches in the current epoch
func (dl *DataLoader) HasNext() bool {
	return dl.position < len(dl.indices)
}

// Next returns the next batch or nil if the epoch is complete
func (dl *DataLoader) Next() (*Batch, error) {
	if dl.position >= len(dl.indices) {
		return nil, nil
	}

	end := dl.position + dl.batchSize
	if end > len(dl.indices) {
		end = len(dl.indices)
	}

	batchIndices := dl.indices[dl.position:end]
	dl.position = end

	batch := &Batch{
		Inputs:  make([][]float64, 0, len(batchIndices)),
		Targets: make([][]float64, 0, len(batchIndices)),
	}
	for _, idx := range batchIndices {
		sample, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load sample %d", idx)
		}
		batch.Inputs = append(batch.Inputs, sample.Input)
		batch.Targets = append(batch.Targets, sample.Target)
	}

	return batch, nil
}
