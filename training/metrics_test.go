package training

import (
	"math"
	"testing"
)

func TestCalculateRegressionMetrics(t *testing.T) {
	t.Run("Perfect predictions", func(t *testing.T) {
		targets := []float64{1, 2, 3, 4}
		m, err := CalculateRegressionMetrics(targets, targets)
		if err != nil {
			t.Fatalf("CalculateRegressionMetrics failed: %v", err)
		}
		if m.MAE != 0 || m.MSE != 0 || m.RMSE != 0 || m.NMAE != 0 {
			t.Errorf("Expected zero errors, got %+v", m)
		}
		if m.R2 != 1 {
			t.Errorf("Expected R2 of 1, got %v", m.R2)
		}
	})

	t.Run("Offset predictions", func(t *testing.T) {
		m, err := CalculateRegressionMetrics([]float64{2, 3, 4, 5}, []float64{1, 2, 3, 4})
		if err != nil {
			t.Fatalf("CalculateRegressionMetrics failed: %v", err)
		}
		// variance sum of 1..4 is 5, squared error sum is 4
		if m.MAE != 1 || m.MSE != 1 || m.RMSE != 1 {
			t.Errorf("Expected unit errors, got %+v", m)
		}
		if math.Abs(m.R2-(1-4.0/5.0)) > 1e-12 {
			t.Errorf("Expected R2 0.2, got %v", m.R2)
		}
		if math.Abs(m.NMAE-1.0/3.0) > 1e-12 {
			t.Errorf("Expected NMAE 1/3, got %v", m.NMAE)
		}
	})

	t.Run("Constant targets", func(t *testing.T) {
		m, err := CalculateRegressionMetrics([]float64{1, 3}, []float64{2, 2})
		if err != nil {
			t.Fatalf("CalculateRegressionMetrics failed: %v", err)
		}
		if m.R2 != 0 || m.NMAE != 0 || m.MAE != 1 {
			t.Errorf("Unexpected metrics %+v", m)
		}
	})

	t.Run("Invalid input", func(t *testing.T) {
		if _, err := CalculateRegressionMetrics([]float64{1}, []float64{1, 2}); err == nil {
			t.Error("Expected an error for mismatched lengths")
		}
		if _, err := CalculateRegressionMetrics(nil, nil); err == nil {
			t.Error("Expected an error for empty input")
		}
	})

	t.Run("Config map", func(t *testing.T) {
		m := RegressionMetrics{MAE: 1, MSE: 2, RMSE: 3, R2: 4, NMAE: 5}
		cfg := m.ConfigMap()
		if len(cfg) != 5 || cfg["rmse"] != 3.0 || cfg["r2"] != 4.0 {
			t.Errorf("Unexpected config map %v", cfg)
		}
	})
}
