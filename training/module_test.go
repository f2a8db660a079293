package training

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestMLPGradients(t *testing.T) {
	for _, act := range []string{"tanh", "sigmoid", "silu"} {
		t.Run(act, func(t *testing.T) {
			model, err := NewMLP([]int{2, 5, 3, 1}, act, 42)
			if err != nil {
				t.Fatalf("NewMLP failed: %v", err)
			}
			inputs := [][]float64{{0.3, -0.7}, {1.1, 0.2}, {-0.4, 0.9}}
			targets := [][]float64{{0.5}, {-0.2}, {1.0}}
			loss := NewMSELoss()

			// analytic gradients
			model.Train()
			predicted, err := model.Forward(inputs)
			if err != nil {
				t.Fatalf("Forward failed: %v", err)
			}
			grad, _ := loss.Backward(predicted, targets)
			if _, err := model.Backward(grad); err != nil {
				t.Fatalf("Backward failed: %v", err)
			}

			// central differences in eval mode so nothing is cached
			model.Eval()
			const eps = 1e-6
			for _, p := range model.Parameters() {
				for i := range p.Data {
					orig := p.Data[i]
					p.Data[i] = orig + eps
					out, _ := model.Forward(inputs)
					up, _ := loss.Forward(out, targets)
					p.Data[i] = orig - eps
					out, _ = model.Forward(inputs)
					down, _ := loss.Forward(out, targets)
					p.Data[i] = orig

					numeric := (up - down) / (2 * eps)
					if math.Abs(numeric-p.Grad[i]) > 1e-5 {
						t.Errorf("%s[%d]: analytic %.8f, numeric %.8f", p.Name, i, p.Grad[i], numeric)
					}
				}
			}
		})
	}
}

func TestMLPConstruction(t *testing.T) {
	t.Run("Parameter count", func(t *testing.T) {
		model, err := NewMLP([]int{1, 16, 16, 1}, "relu", 0)
		if err != nil {
			t.Fatalf("NewMLP failed: %v", err)
		}
		// (1*16+16) + (16*16+16) + (16*1+1)
		if got := CountParameters(model); got != 321 {
			t.Errorf("Expected 321 parameters, got %d", got)
		}
	})

	t.Run("Same seed, same weights", func(t *testing.T) {
		a, _ := NewMLP([]int{1, 4, 1}, "tanh", 7)
		b, _ := NewMLP([]int{1, 4, 1}, "tanh", 7)
		for i, p := range a.Parameters() {
			for j := range p.Data {
				if p.Data[j] != b.Parameters()[i].Data[j] {
					t.Fatalf("Weights differ for identical seeds")
				}
			}
		}
	})

	t.Run("Rejects bad definitions", func(t *testing.T) {
		if _, err := NewMLP([]int{3}, "tanh", 0); err == nil {
			t.Error("Expected error for a single layer width")
		}
		if _, err := NewMLP([]int{1, 1}, "swish", 0); err == nil {
			t.Error("Expected error for an unknown activation")
		}
	})

	t.Run("Backward without forward", func(t *testing.T) {
		model, _ := NewMLP([]int{1, 2, 1}, "tanh", 0)
		if _, err := model.Backward([][]float64{{1}}); err == nil {
			t.Error("Expected error when no training forward pass was cached")
		}
	})
}

func TestLosses(t *testing.T) {
	predicted := [][]float64{{1.0}, {2.0}, {3.0}, {4.0}}
	target := [][]float64{{1.5}, {2.5}, {2.5}, {3.5}}

	tests := []struct {
		name string
		loss Loss
		want float64
	}{
		{"mse", NewMSELoss(), 0.25},
		{"rmse", NewRMSELoss(), 0.5},
		{"mae", NewMAELoss(), 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.loss.Forward(predicted, target)
			if err != nil {
				t.Fatalf("Forward failed: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}

	t.Run("MSE backward", func(t *testing.T) {
		grad, err := NewMSELoss().Backward([][]float64{{1.0, 2.0}}, [][]float64{{1.5, 1.5}})
		if err != nil {
			t.Fatalf("Backward failed: %v", err)
		}
		if grad[0][0] != -0.5 || grad[0][1] != 0.5 {
			t.Errorf("Expected [-0.5 0.5], got %v", grad[0])
		}
	})

	t.Run("Shape mismatch", func(t *testing.T) {
		if _, err := NewMSELoss().Forward([][]float64{{1}}, [][]float64{{1}, {2}}); err == nil {
			t.Error("Expected error for mismatched batches")
		}
		if _, err := NewMSELoss().Forward(nil, nil); err == nil {
			t.Error("Expected error for an empty batch")
		}
	})
}

func TestOptimizers(t *testing.T) {
	t.Run("SGD step", func(t *testing.T) {
		p := newParameter("w", 2)
		p.Data[0], p.Data[1] = 1, -1
		p.Grad[0], p.Grad[1] = 0.5, -0.5

		opt := NewSGD([]*Parameter{p}, 0.1, 0, 0)
		if err := opt.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if math.Abs(p.Data[0]-0.95) > 1e-12 || math.Abs(p.Data[1]+0.95) > 1e-12 {
			t.Errorf("Unexpected parameters after step: %v", p.Data)
		}

		opt.ZeroGrad()
		if p.Grad[0] != 0 || p.Grad[1] != 0 {
			t.Errorf("ZeroGrad left %v", p.Grad)
		}
	})

	t.Run("Adam first step moves by lr", func(t *testing.T) {
		p := newParameter("w", 1)
		p.Grad[0] = 3
		opt := NewAdam([]*Parameter{p}, 0.01, 0.9, 0.999, 1e-8)
		if err := opt.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		// bias-corrected first step is lr * g/|g|
		if math.Abs(p.Data[0]+0.01) > 1e-6 {
			t.Errorf("Expected -0.01, got %v", p.Data[0])
		}
	})

	t.Run("Learning rate accessors", func(t *testing.T) {
		opt := SGDFactory(0.9)(nil, 0.1)
		opt.SetLR(0.5)
		if opt.GetLR() != 0.5 {
			t.Errorf("Expected lr 0.5, got %v", opt.GetLR())
		}
	})
}

func TestOptions(t *testing.T) {
	t.Run("Defaults resolve", func(t *testing.T) {
		cfg, err := DefaultOptions().Resolve()
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if cfg.Epochs != 500 || cfg.BatchSize != 8 || cfg.EvalBatchSize != 32 || cfg.LoggingFreq != 100 {
			t.Errorf("Unexpected defaults: %+v", cfg)
		}
		if _, ok := cfg.EvalLoss.(*RMSELoss); !ok {
			t.Errorf("Expected RMSE eval loss, got %T", cfg.EvalLoss)
		}
	})

	t.Run("Load overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "opts.json")
		if err := os.WriteFile(path, []byte(`{"epochs": 20, "optimizer": "adam", "shuffle": true, "shuffle_seed": 9}`), 0644); err != nil {
			t.Fatalf("Failed to write options: %v", err)
		}
		opts, err := LoadOptions(path)
		if err != nil {
			t.Fatalf("LoadOptions failed: %v", err)
		}
		if opts.Epochs != 20 || opts.Optimizer != "adam" || opts.LoggingFreq != 100 {
			t.Errorf("Unexpected options: %+v", opts)
		}
		cfg, err := opts.Resolve()
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if !cfg.Shuffle || cfg.ShuffleSeed != 9 {
			t.Errorf("Expected shuffle with seed 9, got %v %d", cfg.Shuffle, cfg.ShuffleSeed)
		}
	})

	t.Run("Unknown names fail", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Optimizer = "lbfgs"
		if _, err := opts.Resolve(); err == nil {
			t.Error("Expected error for unknown optimizer")
		}
		opts = DefaultOptions()
		opts.EvalLoss = "huber"
		if _, err := opts.Resolve(); err == nil {
			t.Error("Expected error for unknown loss")
		}
	})

	t.Run("Duplicate registration", func(t *testing.T) {
		if err := RegisterLoss("mse", func() Loss { return NewMSELoss() }); err == nil {
			t.Error("Expected error re-registering mse")
		}
	})
}
