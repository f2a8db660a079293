// Package experiment runs a set of models through a sequence of tasks and
// publishes everything they produced as one artifact.
package experiment

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"

	"github.com/tsawler/go-continual/artifact"
	"github.com/tsawler/go-continual/dataset"
	"github.com/tsawler/go-continual/training"
)

// ErrInvalidExperiment is returned when an experiment definition is incomplete
var ErrInvalidExperiment = errors.New("invalid experiment")

// TaskMetric is the prediction metric under which a model's predictions on
// each task's own inputs are stored
const TaskMetric = "task"

// Model describes one MLP to train
type Model struct {
	Name         string
	Architecture []int
	Activation   string
}

// Experiment is a complete continual-learning run definition
type Experiment struct {
	Name     string
	DataType dataset.DataType
	Models   []Model

	// Tasks are trained in order; each model carries its weights from one
	// task to the next
	Tasks []*dataset.TensorDataset

	// EvalSets are evaluated at every logging step alongside "train"
	EvalSets map[string]dataset.Dataset

	// PredictionInputs are predicted on after every task
	PredictionInputs map[string][][]float64

	// Baselines are stored under the base model as given
	Baselines map[string]artifact.Value

	Options training.Options
	Seed    int64
}

// Run trains every model and publishes the resulting artifact to store.
// Nothing is published unless every model finished every task.
func (e *Experiment) Run(ctx context.Context, store artifact.Store, progress io.Writer) (*artifact.Artifact, error) {
	a, err := e.Build(ctx, progress)
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, a); err != nil {
		return nil, errors.WithMessagef(err, "publishing %s", e.Name)
	}
	fmt.Fprintf(writerOrDiscard(progress), "Published %s (%d entries)\n", a.Name, a.Len())
	return a, nil
}

// Build trains every model and returns the in-memory artifact without
// publishing it
func (e *Experiment) Build(ctx context.Context, progress io.Writer) (*artifact.Artifact, error) {
	progress = writerOrDiscard(progress)
	if err := e.validate(); err != nil {
		return nil, err
	}
	if _, err := e.Options.Resolve(); err != nil {
		return nil, errors.WithMessagef(err, "%s options", e.Name)
	}

	a := artifact.New(e.Name, e.DataType)
	for _, name := range sortedNames(e.Baselines) {
		if err := a.Put(artifact.PredictionsKey(artifact.BaseModel, name), e.Baselines[name]); err != nil {
			return nil, err
		}
	}

	final := make(map[string]interface{}, len(e.Models))
	for i, m := range e.Models {
		fmt.Fprintf(progress, "\n[%d/%d] %s\n", i+1, len(e.Models), m.Name)
		metrics, err := e.runModel(ctx, a, m, e.Seed+int64(i), progress)
		if err != nil {
			return nil, errors.WithMessagef(err, "model %s", m.Name)
		}
		final[m.Name] = metrics
	}

	if err := e.recordConfig(a, final); err != nil {
		return nil, err
	}
	return a, nil
}

// runModel trains one model over every task and stores its results. It
// returns the regression metrics of the final predictions on every input
// that has a whole-domain baseline of the same name.
func (e *Experiment) runModel(ctx context.Context, a *artifact.Artifact, m Model, seed int64, progress io.Writer) (map[string]interface{}, error) {
	model, err := training.NewMLP(m.Architecture, m.Activation, seed)
	if err != nil {
		return nil, err
	}
	training.PrintArchitecture(progress, m.Name, m.Architecture, m.Activation, training.CountParameters(model))

	losses := make(map[string][]float64)
	predictions := make(map[string][][]float64)
	var taskPredictions [][]float64

	for t, task := range e.Tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cfg, err := e.Options.Resolve()
		if err != nil {
			return nil, err
		}
		cfg.Progress = progress
		harness, err := training.NewHarness(cfg)
		if err != nil {
			return nil, err
		}

		datasets := map[string]dataset.Dataset{training.TrainDataset: task}
		for name, ds := range e.EvalSets {
			datasets[name] = ds
		}

		fmt.Fprintf(progress, "Task %d/%d (%d samples)\n", t+1, len(e.Tasks), task.Len())
		results, err := harness.Run(model, datasets)
		if err != nil {
			return nil, errors.WithMessagef(err, "task %d", t)
		}
		for name, series := range results {
			losses[name] = append(losses[name], series...)
		}

		for name, inputs := range e.PredictionInputs {
			preds, err := training.Predict(model, inputs, cfg.EvalBatchSize)
			if err != nil {
				return nil, err
			}
			predictions[name] = append(predictions[name], preds)
		}
		local, err := training.Predict(model, task.Inputs(), cfg.EvalBatchSize)
		if err != nil {
			return nil, err
		}
		taskPredictions = append(taskPredictions, local)
	}

	for _, name := range sortedNames(losses) {
		if err := a.Put(artifact.LossKey(m.Name, name), artifact.Series(losses[name])); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedNames(predictions) {
		if err := a.Put(artifact.PredictionsKey(m.Name, name), artifact.TaskPredictions(predictions[name])); err != nil {
			return nil, err
		}
	}
	if err := a.Put(artifact.PredictionsKey(m.Name, TaskMetric), artifact.TaskPredictions(taskPredictions)); err != nil {
		return nil, err
	}

	metrics := make(map[string]interface{})
	for _, name := range sortedNames(predictions) {
		baseline, ok := e.Baselines[name].(artifact.Baseline)
		if !ok {
			continue
		}
		runs := predictions[name]
		rm, err := training.CalculateRegressionMetrics(runs[len(runs)-1], baseline)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s metrics", name)
		}
		fmt.Fprintf(progress, "%s %s: rmse %.6f, r2 %.4f\n", m.Name, name, rm.RMSE, rm.R2)
		metrics[name] = rm.ConfigMap()
	}
	return metrics, nil
}

func (e *Experiment) validate() error {
	if err := artifact.ValidateName(e.Name); err != nil {
		return err
	}
	switch {
	case len(e.Models) == 0:
		return errors.Wrapf(ErrInvalidExperiment, "%s: no models", e.Name)
	case len(e.Tasks) == 0:
		return errors.Wrapf(ErrInvalidExperiment, "%s: no tasks", e.Name)
	}

	seen := make(map[string]bool)
	for _, m := range e.Models {
		if m.Name == artifact.BaseModel {
			return errors.Wrapf(ErrInvalidExperiment, "%s: model name %q is reserved", e.Name, m.Name)
		}
		if seen[m.Name] {
			return errors.Wrapf(ErrInvalidExperiment, "%s: duplicate model %q", e.Name, m.Name)
		}
		seen[m.Name] = true
		if err := artifact.LossKey(m.Name, training.TrainDataset).Validate(); err != nil {
			return err
		}
	}

	if _, ok := e.EvalSets[training.TrainDataset]; ok {
		return errors.Wrapf(ErrInvalidExperiment, "%s: eval set may not be named %q", e.Name, training.TrainDataset)
	}
	for name := range e.EvalSets {
		if err := artifact.LossKey("x", name).Validate(); err != nil {
			return err
		}
	}
	for name := range e.PredictionInputs {
		if name == TaskMetric {
			return errors.Wrapf(ErrInvalidExperiment, "%s: prediction input may not be named %q", e.Name, TaskMetric)
		}
		if err := artifact.PredictionsKey("x", name).Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Experiment) recordConfig(a *artifact.Artifact, final map[string]interface{}) error {
	models := make(map[string]interface{}, len(e.Models))
	for _, m := range e.Models {
		arch := make([]interface{}, len(m.Architecture))
		for i, w := range m.Architecture {
			arch[i] = w
		}
		models[m.Name] = map[string]interface{}{
			"architecture": arch,
			"activation":   m.Activation,
		}
	}

	entries := map[string]interface{}{
		"training":      e.Options.ConfigMap(),
		"models":        models,
		"num_tasks":     len(e.Tasks),
		"data_type":     e.DataType.String(),
		"seed":          e.Seed,
		"final_metrics": final,
		"run_id":        uuid.New().String(),
		"host":          hostInfo(),
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	}
	for name, v := range entries {
		if err := a.SetConfig(name, v); err != nil {
			return err
		}
	}
	return nil
}

// hostInfo describes the machine a run executed on
func hostInfo() map[string]interface{} {
	var features []interface{}
	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"sse4.2", cpuid.SSE42},
		{"avx", cpuid.AVX},
		{"avx2", cpuid.AVX2},
		{"fma3", cpuid.FMA3},
		{"avx512f", cpuid.AVX512F},
		{"asimd", cpuid.ASIMD},
	} {
		if cpuid.CPU.Supports(f.id) {
			features = append(features, f.name)
		}
	}

	return map[string]interface{}{
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"go_version":     runtime.Version(),
		"cpu":            cpuid.CPU.BrandName,
		"physical_cores": cpuid.CPU.PhysicalCores,
		"logical_cores":  cpuid.CPU.LogicalCores,
		"features":       features,
	}
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
