package training

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Options is the serializable form of a harness configuration. Optimizer and
// loss functions are referenced by their registered names.
type Options struct {
	Epochs        int     `json:"epochs"`
	LearningRate  float64 `json:"lr"`
	BatchSize     int     `json:"batch_size"`
	EvalBatchSize int     `json:"eval_batch_size"`
	LoggingFreq   int     `json:"logging_freq"`
	Optimizer     string  `json:"optimizer"`
	TrainLoss     string  `json:"train_loss"`
	EvalLoss      string  `json:"eval_loss"`
	Shuffle       bool    `json:"shuffle"`
	ShuffleSeed   int64   `json:"shuffle_seed"`

	Schedule ScheduleOptions `json:"lr_schedule"`
}

// DefaultOptions returns the default training options
func DefaultOptions() Options {
	return Options{
		Epochs:        500,
		LearningRate:  1e-2,
		BatchSize:     8,
		EvalBatchSize: 32,
		LoggingFreq:   100,
		Optimizer:     "sgd",
		TrainLoss:     "mse",
		EvalLoss:      "rmse",
		Schedule:      ScheduleOptions{Name: "constant"},
	}
}

// LoadOptions reads a JSON file over DefaultOptions. Missing fields keep
// their default values.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "failed to read training options %s", path)
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "failed to parse training options %s", path)
	}
	return opts, nil
}

// Resolve looks up the named optimizer and losses and returns a HarnessConfig
func (o Options) Resolve() (HarnessConfig, error) {
	optimizer, err := LookupOptimizer(o.Optimizer)
	if err != nil {
		return HarnessConfig{}, err
	}
	trainLoss, err := LookupLoss(o.TrainLoss)
	if err != nil {
		return HarnessConfig{}, errors.Wrap(err, "train loss")
	}
	evalLoss, err := LookupLoss(o.EvalLoss)
	if err != nil {
		return HarnessConfig{}, errors.Wrap(err, "eval loss")
	}
	scheduler, err := NewScheduler(o.Schedule)
	if err != nil {
		return HarnessConfig{}, err
	}

	return HarnessConfig{
		Epochs:        o.Epochs,
		LearningRate:  o.LearningRate,
		BatchSize:     o.BatchSize,
		EvalBatchSize: o.EvalBatchSize,
		LoggingFreq:   o.LoggingFreq,
		Optimizer:     optimizer,
		TrainLoss:     trainLoss,
		EvalLoss:      evalLoss,
		Scheduler:     scheduler,
		Shuffle:       o.Shuffle,
		ShuffleSeed:   o.ShuffleSeed,
	}, nil
}

// ConfigMap flattens the options into config entries for an artifact
func (o Options) ConfigMap() map[string]interface{} {
	return map[string]interface{}{
		"epochs":          o.Epochs,
		"lr":              o.LearningRate,
		"batch_size":      o.BatchSize,
		"eval_batch_size": o.EvalBatchSize,
		"logging_freq":    o.LoggingFreq,
		"optimizer":       o.Optimizer,
		"train_loss":      o.TrainLoss,
		"eval_loss":       o.EvalLoss,
		"lr_schedule":     o.Schedule.Name,
		"shuffle":         o.Shuffle,
		"shuffle_seed":    o.ShuffleSeed,
	}
}
