package training

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/tsawler/go-continual/dataset"
)

// identityModel passes inputs through unchanged and has no parameters
type identityModel struct{ training bool }

func (m *identityModel) Forward(input [][]float64) ([][]float64, error) { return input, nil }
func (m *identityModel) Backward(g [][]float64) ([][]float64, error)    { return g, nil }
func (m *identityModel) Parameters() []*Parameter                        { return nil }
func (m *identityModel) Train()                                          { m.training = true }
func (m *identityModel) Eval()                                           { m.training = false }
func (m *identityModel) IsTraining() bool                                { return m.training }

// scriptedLoss returns a fixed sequence of values from Forward
type scriptedLoss struct {
	values []float64
	calls  int
}

func (s *scriptedLoss) Forward(_, _ [][]float64) (float64, error) {
	v := s.values[s.calls%len(s.values)]
	s.calls++
	return v, nil
}

func (s *scriptedLoss) Backward(p, _ [][]float64) ([][]float64, error) {
	return elementwise(p, p, func(_, _ float64) float64 { return 0 }), nil
}

func makeDataset(t *testing.T, n int, f func(x float64) float64) *dataset.TensorDataset {
	t.Helper()
	inputs := make([][]float64, n)
	targets := make([][]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n)
		inputs[i] = []float64{x}
		targets[i] = []float64{f(x)}
	}
	ds, err := dataset.NewTensorDataset(inputs, targets)
	if err != nil {
		t.Fatalf("Failed to create dataset: %v", err)
	}
	return ds
}

func testConfig(evalLoss Loss) HarnessConfig {
	return HarnessConfig{
		Epochs:        1,
		LearningRate:  0.1,
		BatchSize:     1,
		EvalBatchSize: 4,
		LoggingFreq:   3,
		Optimizer:     SGDFactory(0),
		TrainLoss:     NewMSELoss(),
		EvalLoss:      evalLoss,
	}
}

func TestUpdateRollingLoss(t *testing.T) {
	t.Run("Weight grows with the iteration before the window fills", func(t *testing.T) {
		// n = min(i, freq): i=1 gives n=1 so r1 is the raw loss, i=2 gives n=2
		r := UpdateRollingLoss(0, 4, 0, 3)
		if r != 4 {
			t.Fatalf("r0: expected 4, got %v", r)
		}
		r = UpdateRollingLoss(r, 2, 1, 3)
		if r != 2 {
			t.Fatalf("r1: expected 2, got %v", r)
		}
		r = UpdateRollingLoss(r, 3, 2, 3)
		if r != 2.5 {
			t.Fatalf("r2: expected 2.5, got %v", r)
		}
	})

	t.Run("Fixed weighting after the window fills", func(t *testing.T) {
		// i >= freq keeps n = freq, so r = (r*(freq-1) + e) / freq
		r := UpdateRollingLoss(6, 12, 10, 3)
		if r != 8 {
			t.Errorf("Expected (6*2+12)/3 = 8, got %v", r)
		}
	})

	t.Run("Frequency one tracks the latest value", func(t *testing.T) {
		r := 0.0
		for i, e := range []float64{5, 1, 7} {
			r = UpdateRollingLoss(r, e, i, 1)
			if r != e {
				t.Errorf("Iteration %d: expected %v, got %v", i, e, r)
			}
		}
	})
}

func TestHarnessRun(t *testing.T) {
	t.Run("Records the rolling loss at the logging step", func(t *testing.T) {
		h, err := NewHarness(testConfig(&scriptedLoss{values: []float64{4, 2, 3}}))
		if err != nil {
			t.Fatalf("NewHarness failed: %v", err)
		}

		results, err := h.Run(&identityModel{}, map[string]dataset.Dataset{
			"train": makeDataset(t, 3, func(x float64) float64 { return x }),
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if got := results["train"]; len(got) != 1 || got[0] != 2.5 {
			t.Errorf("Expected train series [2.5], got %v", got)
		}
	})

	t.Run("Logging frequency one records raw losses", func(t *testing.T) {
		cfg := testConfig(&scriptedLoss{values: []float64{4, 2, 3}})
		cfg.LoggingFreq = 1
		h, _ := NewHarness(cfg)

		results, err := h.Run(&identityModel{}, map[string]dataset.Dataset{
			"train": makeDataset(t, 3, func(x float64) float64 { return x }),
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		want := []float64{4, 2, 3}
		got := results["train"]
		if len(got) != len(want) {
			t.Fatalf("Expected %d entries, got %v", len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Entry %d: expected %v, got %v", i, want[i], got[i])
			}
		}
	})

	t.Run("Every series has floor(iterations / freq) entries", func(t *testing.T) {
		cfg := testConfig(NewMAELoss())
		cfg.Epochs = 3
		cfg.BatchSize = 4
		cfg.LoggingFreq = 2
		h, _ := NewHarness(cfg)

		// 10 samples at batch 4 -> 3 batches per epoch -> 9 iterations -> 4 log steps
		results, err := h.Run(&identityModel{}, map[string]dataset.Dataset{
			"train": makeDataset(t, 10, func(x float64) float64 { return x }),
			"eval":  makeDataset(t, 7, func(x float64) float64 { return x }),
			"task":  makeDataset(t, 5, func(x float64) float64 { return x }),
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		for name, series := range results {
			if len(series) != 4 {
				t.Errorf("Series %q: expected 4 entries, got %d", name, len(series))
			}
		}
	})

	t.Run("Auxiliary datasets record the mean batch loss", func(t *testing.T) {
		cfg := testConfig(NewMAELoss())
		cfg.LoggingFreq = 2
		h, _ := NewHarness(cfg)

		results, err := h.Run(&identityModel{}, map[string]dataset.Dataset{
			"train": makeDataset(t, 4, func(x float64) float64 { return x + 1 }),
			"eval":  makeDataset(t, 9, func(x float64) float64 { return x - 2 }),
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		for _, v := range results["train"] {
			if math.Abs(v-1) > 1e-12 {
				t.Errorf("Expected train rolling loss 1, got %v", v)
			}
		}
		for _, v := range results["eval"] {
			if math.Abs(v-2) > 1e-12 {
				t.Errorf("Expected eval loss 2, got %v", v)
			}
		}
	})

	t.Run("Phases and observer", func(t *testing.T) {
		var events []LogEvent
		var progress bytes.Buffer
		cfg := testConfig(NewRMSELoss())
		cfg.LoggingFreq = 1
		cfg.Progress = &progress
		cfg.Observer = func(e LogEvent) { events = append(events, e) }
		h, _ := NewHarness(cfg)

		if h.Phase() != PhaseIdle {
			t.Errorf("Expected idle before run, got %s", h.Phase())
		}
		_, err := h.Run(&identityModel{}, map[string]dataset.Dataset{
			"train": makeDataset(t, 3, func(x float64) float64 { return x }),
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if h.Phase() != PhaseDone {
			t.Errorf("Expected done after run, got %s", h.Phase())
		}
		if len(events) != 3 || events[2].Iteration != 3 {
			t.Errorf("Expected 3 events ending at iteration 3, got %+v", events)
		}
		if !strings.Contains(progress.String(), "train=") {
			t.Errorf("Expected progress output to include the train metric, got %q", progress.String())
		}
	})
}

func TestHarnessPreconditions(t *testing.T) {
	t.Run("Missing train dataset", func(t *testing.T) {
		h, _ := NewHarness(testConfig(NewRMSELoss()))
		results, err := h.Run(&identityModel{}, map[string]dataset.Dataset{
			"eval": makeDataset(t, 3, func(x float64) float64 { return x }),
		})
		if errors.Cause(err) != ErrMissingTrainDataset {
			t.Errorf("Expected ErrMissingTrainDataset, got %v", err)
		}
		if results != nil {
			t.Errorf("Expected no results, got %v", results)
		}
	})

	t.Run("Empty auxiliary dataset", func(t *testing.T) {
		empty, _ := dataset.NewTensorDataset(nil, nil)
		h, _ := NewHarness(testConfig(NewRMSELoss()))
		_, err := h.Run(&identityModel{}, map[string]dataset.Dataset{
			"train": makeDataset(t, 3, func(x float64) float64 { return x }),
			"eval":  empty,
		})
		if errors.Cause(err) != ErrEmptyDataset {
			t.Errorf("Expected ErrEmptyDataset, got %v", err)
		}
	})

	t.Run("Non-positive logging frequency", func(t *testing.T) {
		cfg := testConfig(NewRMSELoss())
		cfg.LoggingFreq = 0
		if _, err := NewHarness(cfg); errors.Cause(err) != ErrInvalidLoggingFreq {
			t.Errorf("Expected ErrInvalidLoggingFreq, got %v", err)
		}
	})

	t.Run("Missing collaborators", func(t *testing.T) {
		cfg := testConfig(nil)
		if _, err := NewHarness(cfg); errors.Cause(err) != ErrInvalidConfig {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestHarnessLearns(t *testing.T) {
	model, err := NewMLP([]int{1, 16, 1}, "tanh", 1)
	if err != nil {
		t.Fatalf("NewMLP failed: %v", err)
	}

	h, err := NewHarness(HarnessConfig{
		Epochs:        40,
		LearningRate:  0.01,
		BatchSize:     8,
		EvalBatchSize: 32,
		LoggingFreq:   10,
		Optimizer:     AdamFactory(),
		TrainLoss:     NewMSELoss(),
		EvalLoss:      NewRMSELoss(),
	})
	if err != nil {
		t.Fatalf("NewHarness failed: %v", err)
	}

	line := makeDataset(t, 64, func(x float64) float64 { return 2*x - 0.5 })
	results, err := h.Run(model, map[string]dataset.Dataset{"train": line, "eval": line})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	eval := results["eval"]
	if len(eval) != 40*8/10 {
		t.Fatalf("Expected %d eval entries, got %d", 40*8/10, len(eval))
	}
	if eval[len(eval)-1] >= eval[0] {
		t.Errorf("Expected eval loss to fall, first %.4f last %.4f", eval[0], eval[len(eval)-1])
	}

	preds, err := Predict(model, line.Inputs(), 16)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(preds) != line.Len() {
		t.Errorf("Expected %d predictions, got %d", line.Len(), len(preds))
	}
	if !model.IsTraining() {
		t.Error("Predict should restore training mode")
	}
}

// orderModel records the first input of every training batch it sees
type orderModel struct {
	identityModel
	seen []float64
}

func (m *orderModel) Forward(input [][]float64) ([][]float64, error) {
	if m.training {
		m.seen = append(m.seen, input[0][0])
	}
	return input, nil
}

func TestHarnessShuffle(t *testing.T) {
	run := func(shuffle bool, seed int64) []float64 {
		t.Helper()
		cfg := testConfig(NewMSELoss())
		cfg.Epochs = 2
		cfg.LoggingFreq = 4
		cfg.Shuffle = shuffle
		cfg.ShuffleSeed = seed
		h, err := NewHarness(cfg)
		if err != nil {
			t.Fatalf("NewHarness failed: %v", err)
		}
		model := &orderModel{}
		if _, err := h.Run(model, map[string]dataset.Dataset{
			"train": makeDataset(t, 8, func(x float64) float64 { return x }),
		}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return model.seen
	}

	sequential := run(false, 0)
	for i, x := range sequential {
		if want := float64(i%8) / 8; x != want {
			t.Fatalf("Sequential order: step %d saw %v, want %v", i, x, want)
		}
	}

	shuffled := run(true, 3)
	if len(shuffled) != 16 {
		t.Fatalf("Expected 16 steps, got %d", len(shuffled))
	}
	same := true
	for epoch := 0; epoch < 2; epoch++ {
		counts := make(map[float64]int)
		for i := 0; i < 8; i++ {
			x := shuffled[epoch*8+i]
			counts[x]++
			if x != sequential[epoch*8+i] {
				same = false
			}
		}
		if len(counts) != 8 {
			t.Errorf("Epoch %d is not a permutation: %v", epoch, shuffled[epoch*8:epoch*8+8])
		}
	}
	if same {
		t.Error("Expected shuffling to change the training order")
	}

	again := run(true, 3)
	for i := range shuffled {
		if again[i] != shuffled[i] {
			t.Fatalf("Expected the same order for the same seed, differs at step %d", i)
		}
	}
}
