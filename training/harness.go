package training

import (
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/tsawler/go-continual/dataset"
)

// TrainDataset is the dataset key the harness optimizes on. Every other key
// is an auxiliary dataset that is only evaluated.
const TrainDataset = "train"

var (
	// ErrMissingTrainDataset is returned when no dataset is keyed "train"
	ErrMissingTrainDataset = errors.New(`no dataset keyed "train"`)

	// ErrEmptyDataset is returned when any provided dataset has no samples
	ErrEmptyDataset = errors.New("empty dataset")

	// ErrInvalidLoggingFreq is returned for a logging frequency below 1
	ErrInvalidLoggingFreq = errors.New("logging frequency must be at least 1")

	// ErrInvalidConfig is returned for any other unusable harness setting
	ErrInvalidConfig = errors.New("invalid harness config")
)

// Phase is a state of the harness run loop
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTraining
	PhaseEvaluating
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseTraining:
		return "training"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// LogEvent is delivered to an Observer every time metrics are recorded
type LogEvent struct {
	Iteration int                // Global iteration count, 1-based
	Metrics   map[string]float64 // Latest value per dataset name
}

// HarnessConfig holds everything a run needs beyond the model and data
type HarnessConfig struct {
	Epochs        int
	LearningRate  float64
	BatchSize     int
	EvalBatchSize int
	LoggingFreq   int
	Optimizer     OptimizerFactory
	TrainLoss     Loss        // Drives the gradient step
	EvalLoss      Loss        // Tracked metric, independent of TrainLoss
	Scheduler     LRScheduler // Optional, applied at the start of every epoch
	Shuffle       bool        // Reorder the training set every epoch
	ShuffleSeed   int64       // Seed of the shuffle order

	Progress io.Writer      // Optional progress bar output
	Observer func(LogEvent) // Optional hook called at every logging step
}

// Results maps a dataset name to its metric series, one value per logging step
type Results map[string][]float64

// trainingState is owned by a single Run and discarded when it returns
type trainingState struct {
	iteration   int
	rollingLoss float64
	results     Results
}

// Harness runs the optimization loop with online loss smoothing and periodic
// evaluation of auxiliary datasets. Runs are strictly sequential; a Harness
// must not be used from multiple goroutines.
type Harness struct {
	config HarnessConfig
	phase  Phase
}

// NewHarness validates config and returns an idle harness
func NewHarness(config HarnessConfig) (*Harness, error) {
	switch {
	case config.LoggingFreq < 1:
		return nil, errors.Wrapf(ErrInvalidLoggingFreq, "got %d", config.LoggingFreq)
	case config.Epochs < 0:
		return nil, errors.Wrapf(ErrInvalidConfig, "epochs must not be negative, got %d", config.Epochs)
	case config.BatchSize < 1 || config.EvalBatchSize < 1:
		return nil, errors.Wrapf(ErrInvalidConfig, "batch sizes must be positive, got %d and %d", config.BatchSize, config.EvalBatchSize)
	case config.Optimizer == nil:
		return nil, errors.Wrap(ErrInvalidConfig, "no optimizer factory")
	case config.TrainLoss == nil || config.EvalLoss == nil:
		return nil, errors.Wrap(ErrInvalidConfig, "train and eval losses are required")
	}
	return &Harness{config: config, phase: PhaseIdle}, nil
}

// Phase returns the current state of the run loop
func (h *Harness) Phase() Phase {
	return h.phase
}

// UpdateRollingLoss applies one step of the rolling loss recurrence for the
// evaluation loss e observed at 0-based iteration i. It is a cumulative mean
// for the first freq iterations and a fixed-weight average afterwards.
func UpdateRollingLoss(r, e float64, i, freq int) float64 {
	if i == 0 {
		return e
	}
	n := i
	if freq < n {
		n = freq
	}
	return (r*float64(n-1) + e) / float64(n)
}

// Run trains model on datasets["train"] for the configured epochs. Every
// LoggingFreq iterations it records the rolling loss under "train" and the
// mean batch evaluation loss of every other dataset under its own name.
// All returned series have length floor(epochs*batchesPerEpoch/LoggingFreq).
// Preconditions are checked before the first step; on any failure no
// results are returned.
func (h *Harness) Run(model Module, datasets map[string]dataset.Dataset) (Results, error) {
	if h.phase == PhaseTraining || h.phase == PhaseEvaluating {
		return nil, errors.Wrapf(ErrInvalidConfig, "harness is already %s", h.phase)
	}

	train, ok := datasets[TrainDataset]
	if !ok {
		return nil, ErrMissingTrainDataset
	}
	for name, ds := range datasets {
		if ds == nil || ds.Len() == 0 {
			return nil, errors.Wrapf(ErrEmptyDataset, "dataset %q", name)
		}
	}

	var trainLoader *dataset.DataLoader
	var err error
	if h.config.Shuffle {
		trainLoader, err = dataset.NewShuffledDataLoader(train, h.config.BatchSize, h.config.ShuffleSeed)
	} else {
		trainLoader, err = dataset.NewDataLoader(train, h.config.BatchSize)
	}
	if err != nil {
		return nil, errors.Wrap(err, "train loader")
	}

	evalNames := make([]string, 0, len(datasets)-1)
	evalLoaders := make(map[string]*dataset.DataLoader, len(datasets)-1)
	for name, ds := range datasets {
		if name == TrainDataset {
			continue
		}
		dl, err := dataset.NewDataLoader(ds, h.config.EvalBatchSize)
		if err != nil {
			return nil, errors.Wrapf(err, "eval loader %q", name)
		}
		evalNames = append(evalNames, name)
		evalLoaders[name] = dl
	}
	sort.Strings(evalNames)

	state := &trainingState{results: make(Results, len(datasets))}
	for name := range datasets {
		state.results[name] = []float64{}
	}

	optimizer := h.config.Optimizer(model.Parameters(), h.config.LearningRate)
	optimizer.ZeroGrad()

	var bar *ProgressBar
	if h.config.Progress != nil {
		bar = NewProgressBar("Training", h.config.Epochs*trainLoader.Len(), h.config.Progress)
	}

	h.phase = PhaseTraining
	model.Train()

	for epoch := 0; epoch < h.config.Epochs; epoch++ {
		if h.config.Scheduler != nil {
			optimizer.SetLR(h.config.Scheduler.GetLR(epoch, state.iteration, h.config.LearningRate))
		}
		trainLoader.Reset()
		for trainLoader.HasNext() {
			batch, err := trainLoader.Next()
			if err != nil {
				return h.fail(errors.Wrapf(err, "epoch %d", epoch))
			}

			if err := h.step(model, optimizer, batch, state); err != nil {
				return h.fail(errors.Wrapf(err, "iteration %d", state.iteration))
			}
			state.iteration++

			if state.iteration%h.config.LoggingFreq != 0 {
				continue
			}

			state.results[TrainDataset] = append(state.results[TrainDataset], state.rollingLoss)
			if err := h.evaluate(model, evalNames, evalLoaders, state); err != nil {
				return h.fail(err)
			}
			h.report(bar, state)
		}
	}

	if bar != nil {
		bar.Finish()
	}
	h.phase = PhaseDone
	return state.results, nil
}

// step runs forward, both losses, backward and one optimizer update on a batch
func (h *Harness) step(model Module, optimizer Optimizer, batch *dataset.Batch, state *trainingState) error {
	predicted, err := model.Forward(batch.Inputs)
	if err != nil {
		return errors.Wrap(err, "forward pass")
	}

	grad, err := h.config.TrainLoss.Backward(predicted, batch.Targets)
	if err != nil {
		return errors.Wrap(err, "train loss")
	}
	if _, err := model.Backward(grad); err != nil {
		return errors.Wrap(err, "backward pass")
	}

	evalLoss, err := h.config.EvalLoss.Forward(predicted, batch.Targets)
	if err != nil {
		return errors.Wrap(err, "eval loss")
	}
	state.rollingLoss = UpdateRollingLoss(state.rollingLoss, evalLoss, state.iteration, h.config.LoggingFreq)

	if err := optimizer.Step(); err != nil {
		return errors.Wrap(err, "optimizer step")
	}
	optimizer.ZeroGrad()
	return nil
}

// evaluate appends the mean batch eval loss of every auxiliary dataset
func (h *Harness) evaluate(model Module, names []string, loaders map[string]*dataset.DataLoader, state *trainingState) error {
	h.phase = PhaseEvaluating
	model.Eval()

	for _, name := range names {
		dl := loaders[name]
		dl.Reset()

		var sum float64
		batches := 0
		for dl.HasNext() {
			batch, err := dl.Next()
			if err != nil {
				return errors.Wrapf(err, "evaluating %q", name)
			}
			predicted, err := model.Forward(batch.Inputs)
			if err != nil {
				return errors.Wrapf(err, "evaluating %q", name)
			}
			loss, err := h.config.EvalLoss.Forward(predicted, batch.Targets)
			if err != nil {
				return errors.Wrapf(err, "evaluating %q", name)
			}
			sum += loss
			batches++
		}
		state.results[name] = append(state.results[name], sum/float64(batches))
	}

	model.Train()
	h.phase = PhaseTraining
	return nil
}

func (h *Harness) report(bar *ProgressBar, state *trainingState) {
	if bar == nil && h.config.Observer == nil {
		return
	}

	metrics := make(map[string]float64, len(state.results))
	for name, series := range state.results {
		metrics[name] = series[len(series)-1]
	}
	if bar != nil {
		bar.Update(state.iteration, metrics)
	}
	if h.config.Observer != nil {
		h.config.Observer(LogEvent{Iteration: state.iteration, Metrics: metrics})
	}
}

func (h *Harness) fail(err error) (Results, error) {
	h.phase = PhaseDone
	return nil, err
}

// Predict runs model in evaluation mode over inputs in batches and returns
// the first output column of every row.
func Predict(model Module, inputs [][]float64, batchSize int) ([]float64, error) {
	if batchSize < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "batch size must be positive, got %d", batchSize)
	}

	wasTraining := model.IsTraining()
	model.Eval()
	defer func() {
		if wasTraining {
			model.Train()
		}
	}()

	out := make([]float64, 0, len(inputs))
	for start := 0; start < len(inputs); start += batchSize {
		end := start + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		predicted, err := model.Forward(inputs[start:end])
		if err != nil {
			return nil, errors.Wrapf(err, "predicting rows %d-%d", start, end)
		}
		for _, row := range predicted {
			out = append(out, row[0])
		}
	}
	return out, nil
}
