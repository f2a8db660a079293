package experiment

import (
	"fmt"

	"github.com/tsawler/go-continual/artifact"
	"github.com/tsawler/go-continual/dataset"
	"github.com/tsawler/go-continual/training"
)

// NonUniformFunction settings
const (
	NonUniformPeaks  = 5
	NonUniformPoints = 1000
	NonUniformStd    = 0.2
	NonUniformSlope  = 0.2
	NonUniformEpochs = 100
)

// MultivariableFunction settings
const (
	MultivariablePeaks  = 2
	MultivariablePoints = 64
	MultivariableStdX   = 0.2
	MultivariableStdY   = 0.1
	MultivariableEpochs = 50
)

// Registry maps experiment names to their constructors
var Registry = map[string]func() (*Experiment, error){
	"non_uniform_function":      NonUniformFunction,
	"multi_layer_multivariable": MultivariableFunction,
}

// Names returns the registered experiment names in sorted order
func Names() []string {
	return sortedNames(Registry)
}

// NonUniformFunction learns a rising curve with one gaussian peak per task
func NonUniformFunction() (*Experiment, error) {
	full, err := dataset.NonUniform1D(NonUniformPeaks, NonUniformPoints, NonUniformStd, NonUniformSlope)
	if err != nil {
		return nil, err
	}

	opts := training.DefaultOptions()
	opts.Epochs = NonUniformEpochs

	return FunctionExperiment("non_uniform_function", dataset.Function1D, full, NonUniformPeaks,
		[]Model{{Name: "mlp", Architecture: []int{1, 16, 16, 1}, Activation: "relu"}}, opts)
}

// MultivariableFunction learns a surface with a grid of peaks, one per task
// cell, using MLPs of roughly a hundred, a thousand and ten thousand parameters
func MultivariableFunction() (*Experiment, error) {
	full, err := dataset.MultiPeak2D(MultivariablePeaks, MultivariablePoints, MultivariableStdX, MultivariableStdY)
	if err != nil {
		return nil, err
	}

	opts := training.DefaultOptions()
	opts.Epochs = MultivariableEpochs

	var models []Model
	for _, size := range []struct{ params, hidden int }{{100, 8}, {1000, 30}, {10000, 97}} {
		models = append(models, Model{
			Name:         fmt.Sprintf("mlp%d", size.params),
			Architecture: []int{2, size.hidden, size.hidden, 1},
			Activation:   "relu",
		})
	}

	return FunctionExperiment("multi_layer_multivariable", dataset.Function2D, full, MultivariablePeaks, models, opts)
}

// FunctionExperiment wires the standard function-approximation layout: the
// full domain is partitioned into tasks, evaluated as "eval" at every logging
// step, and predicted on as "function" after every task. The true values are
// stored as the base model's "function" baseline and per-task "task" values.
func FunctionExperiment(name string, dt dataset.DataType, full *dataset.TensorDataset, numTasks int, models []Model, opts training.Options) (*Experiment, error) {
	tasks, err := dataset.Partition(full, numTasks, dt)
	if err != nil {
		return nil, err
	}

	perTask := make(artifact.TaskPredictions, len(tasks))
	for i, task := range tasks {
		perTask[i] = task.FlatTargets()
	}

	return &Experiment{
		Name:             name,
		DataType:         dt,
		Models:           models,
		Tasks:            tasks,
		EvalSets:         map[string]dataset.Dataset{"eval": full},
		PredictionInputs: map[string][][]float64{"function": full.Inputs()},
		Baselines: map[string]artifact.Value{
			"function": artifact.Baseline(full.FlatTargets()),
			TaskMetric: perTask,
		},
		Options: opts,
	}, nil
}
