package experiment

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/tsawler/go-continual/artifact"
	"github.com/tsawler/go-continual/dataset"
	"github.com/tsawler/go-continual/training"
)

func smallOptions() training.Options {
	opts := training.DefaultOptions()
	opts.Epochs = 2
	opts.BatchSize = 4
	opts.EvalBatchSize = 8
	opts.LoggingFreq = 2
	return opts
}

func smallExperiment(t *testing.T, name string) *Experiment {
	t.Helper()
	full, err := dataset.NonUniform1D(2, 20, 0.2, 0.2)
	if err != nil {
		t.Fatalf("NonUniform1D failed: %v", err)
	}
	exp, err := FunctionExperiment(name, dataset.Function1D, full, 2,
		[]Model{
			{Name: "mlp", Architecture: []int{1, 4, 1}, Activation: "tanh"},
			{Name: "wide_mlp", Architecture: []int{1, 8, 1}, Activation: "relu"},
		}, smallOptions())
	if err != nil {
		t.Fatalf("FunctionExperiment failed: %v", err)
	}
	return exp
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewMemoryStore()
	var progress bytes.Buffer

	a, err := smallExperiment(t, "small").Run(ctx, store, &progress)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	t.Run("Loss series span every task", func(t *testing.T) {
		// 10 samples per task at batch 4 -> 3 batches, 2 epochs -> 6 iterations -> 3 log steps per task
		for _, model := range []string{"mlp", "wide_mlp"} {
			for _, metric := range []string{"train", "eval"} {
				v, ok := a.Get(artifact.LossKey(model, metric))
				if !ok {
					t.Fatalf("Missing %s %s loss", model, metric)
				}
				if v.Len() != 6 {
					t.Errorf("%s %s: expected 6 entries, got %d", model, metric, v.Len())
				}
			}
		}
	})

	t.Run("Predictions per task", func(t *testing.T) {
		v, _ := a.Get(artifact.PredictionsKey("mlp", "function"))
		fn, ok := v.(artifact.TaskPredictions)
		if !ok || len(fn) != 2 || len(fn[0]) != 20 {
			t.Errorf("Expected 2 whole-domain predictions of 20 points, got %s", artifact.Describe(v))
		}
		v, _ = a.Get(artifact.PredictionsKey("mlp", TaskMetric))
		local, ok := v.(artifact.TaskPredictions)
		if !ok || len(local) != 2 || len(local[1]) != 10 {
			t.Errorf("Expected 2 task predictions of 10 points, got %s", artifact.Describe(v))
		}
	})

	t.Run("Baselines under the base model", func(t *testing.T) {
		if v, ok := a.Get(artifact.PredictionsKey(artifact.BaseModel, "function")); !ok || v.Len() != 20 {
			t.Errorf("Expected a 20 point baseline, got %v", v)
		}
		if v, ok := a.Get(artifact.PredictionsKey(artifact.BaseModel, TaskMetric)); !ok || v.Len() != 2 {
			t.Errorf("Expected 2 per-task baselines, got %v", v)
		}
	})

	t.Run("Config", func(t *testing.T) {
		cfg := a.Config()
		if cfg["num_tasks"] != float64(2) || cfg["data_type"] != "function_1d" {
			t.Errorf("Unexpected config %v", cfg)
		}
		if id, _ := cfg["run_id"].(string); len(id) != 36 {
			t.Errorf("Expected a uuid run_id, got %v", cfg["run_id"])
		}
		host, ok := cfg["host"].(map[string]interface{})
		if !ok || host["os"] == "" {
			t.Errorf("Expected a host block, got %v", cfg["host"])
		}
		tr, _ := cfg["training"].(map[string]interface{})
		if tr["epochs"] != float64(2) || tr["optimizer"] != "sgd" {
			t.Errorf("Unexpected training config %v", tr)
		}
		final, _ := cfg["final_metrics"].(map[string]interface{})
		for _, model := range []string{"mlp", "wide_mlp"} {
			m, _ := final[model].(map[string]interface{})
			fn, _ := m["function"].(map[string]interface{})
			if rmse, ok := fn["rmse"].(float64); !ok || rmse < 0 {
				t.Errorf("Expected final function metrics for %s, got %v", model, final[model])
			}
		}
	})

	t.Run("Published and readable", func(t *testing.T) {
		stored, err := store.Get(ctx, "small")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		view, err := artifact.Read(stored)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if view.Layout.NumTasks != 2 || view.Layout.NumPoints != 20 {
			t.Errorf("Unexpected layout %+v", view.Layout)
		}
		if len(view.Losses["train"]) != 2 {
			t.Errorf("Expected train losses for both models, got %v", view.Losses["train"])
		}
	})

	t.Run("Progress output", func(t *testing.T) {
		out := progress.String()
		for _, want := range []string{"wide_mlp", "Task 2/2", "Published small"} {
			if !strings.Contains(out, want) {
				t.Errorf("Expected %q in progress output", want)
			}
		}
	})

	t.Run("Names are write-once", func(t *testing.T) {
		if _, err := smallExperiment(t, "small").Run(ctx, store, nil); errors.Cause(err) != artifact.ErrExists {
			t.Errorf("Expected ErrExists, got %v", err)
		}
	})
}

func TestRunFailuresPublishNothing(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(e *Experiment)
		cause  error
	}{
		{"Empty eval set", func(e *Experiment) {
			empty, _ := dataset.NewTensorDataset(nil, nil)
			e.EvalSets["holdout"] = empty
		}, training.ErrEmptyDataset},
		{"Eval set named train", func(e *Experiment) {
			e.EvalSets["train"] = e.Tasks[0]
		}, ErrInvalidExperiment},
		{"Reserved model name", func(e *Experiment) {
			e.Models[0].Name = artifact.BaseModel
		}, ErrInvalidExperiment},
		{"Metric with underscore", func(e *Experiment) {
			e.PredictionInputs["whole_domain"] = e.Tasks[0].Inputs()
		}, artifact.ErrMalformedKey},
		{"No tasks", func(e *Experiment) {
			e.Tasks = nil
		}, ErrInvalidExperiment},
		{"Zero logging frequency", func(e *Experiment) {
			e.Options.LoggingFreq = 0
		}, training.ErrInvalidLoggingFreq},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := artifact.NewMemoryStore()
			exp := smallExperiment(t, "broken")
			tc.mutate(exp)

			if _, err := exp.Run(ctx, store, nil); errors.Cause(err) != tc.cause {
				t.Errorf("Expected %v, got %v", tc.cause, err)
			}
			if names, _ := store.List(ctx); len(names) != 0 {
				t.Errorf("Expected nothing published, got %v", names)
			}
		})
	}
}

func TestFunction2D(t *testing.T) {
	full, err := dataset.MultiPeak2D(2, 6, 0.2, 0.1)
	if err != nil {
		t.Fatalf("MultiPeak2D failed: %v", err)
	}
	exp, err := FunctionExperiment("surface", dataset.Function2D, full, 2,
		[]Model{{Name: "mlp", Architecture: []int{2, 4, 1}, Activation: "tanh"}}, smallOptions())
	if err != nil {
		t.Fatalf("FunctionExperiment failed: %v", err)
	}
	if len(exp.Tasks) != 4 {
		t.Fatalf("Expected 4 grid cells, got %d", len(exp.Tasks))
	}

	a, err := exp.Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	view, err := artifact.Read(a)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if view.DataType != dataset.Function2D || view.Layout.NumTasks != 4 || view.Layout.NumPoints != 36 {
		t.Errorf("Unexpected view %s %+v", view.DataType, view.Layout)
	}
}

func TestRegistry(t *testing.T) {
	names := Names()
	if len(names) != 2 || names[0] != "multi_layer_multivariable" || names[1] != "non_uniform_function" {
		t.Errorf("Unexpected registry %v", names)
	}

	exp, err := NonUniformFunction()
	if err != nil {
		t.Fatalf("NonUniformFunction failed: %v", err)
	}
	if len(exp.Tasks) != NonUniformPeaks || exp.Options.Epochs != NonUniformEpochs {
		t.Errorf("Unexpected experiment: %d tasks, %d epochs", len(exp.Tasks), exp.Options.Epochs)
	}
	total := 0
	for _, task := range exp.Tasks {
		total += task.Len()
	}
	if total != NonUniformPoints {
		t.Errorf("Expected %d points across tasks, got %d", NonUniformPoints, total)
	}
}
