package training

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestProgressBar(t *testing.T) {
	var out bytes.Buffer
	bar := NewProgressBar("Training", 4, &out)
	bar.Update(2, map[string]float64{"train": 0.5, "eval": 0.25})

	line := out.String()
	for _, want := range []string{"Training:  50%", "2/4", "eval=0.2500, train=0.5000"} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %q in %q", want, line)
		}
	}

	bar.Finish()
	if !strings.Contains(out.String(), "100%") || !strings.HasSuffix(out.String(), "\n") {
		t.Errorf("Expected a completed line, got %q", out.String())
	}
}

func TestFormatting(t *testing.T) {
	if got := formatDuration(75 * time.Second); got != "01:15" {
		t.Errorf("formatDuration: expected 01:15, got %s", got)
	}
	if got := formatDuration(-time.Second); got != "00:00" {
		t.Errorf("formatDuration: expected 00:00 for negative input, got %s", got)
	}

	tests := map[int]string{12: "12", 1500: "1.5K", 2500000: "2.5M"}
	for n, want := range tests {
		if got := formatParameterCount(n); got != want {
			t.Errorf("formatParameterCount(%d): expected %s, got %s", n, want, got)
		}
	}

	var out bytes.Buffer
	PrintArchitecture(&out, "mlp", []int{1, 4, 1}, "Tanh", 13)
	if s := out.String(); !strings.Contains(s, "Linear(in_features=4, out_features=1)") || !strings.Contains(s, "Total parameters: 13") {
		t.Errorf("Unexpected architecture summary %q", s)
	}
}
