package training

import (
	"math"

	"github.com/pkg/errors"
)

// LRScheduler maps a position in training to a learning rate. Schedulers are
// pure functions of their arguments so one value can be shared across runs.
type LRScheduler interface {
	// GetLR returns the learning rate for the given epoch and global step
	GetLR(epoch int, step int, baseLR float64) float64

	// GetName returns the scheduler name for logging
	GetName() string
}

// ScheduleOptions selects and parameterises a scheduler by name
type ScheduleOptions struct {
	Name     string  `json:"name"`
	StepSize int     `json:"step_size,omitempty"`
	Gamma    float64 `json:"gamma,omitempty"`
	TMax     int     `json:"t_max,omitempty"`
	EtaMin   float64 `json:"eta_min,omitempty"`
}

// NewScheduler builds the scheduler named by o. Zero parameters take the
// scheduler's defaults.
func NewScheduler(o ScheduleOptions) (LRScheduler, error) {
	switch o.Name {
	case "", "constant":
		return ConstantLR{}, nil
	case "step":
		return NewStepLRScheduler(o.StepSize, o.Gamma), nil
	case "exponential":
		return NewExponentialLRScheduler(o.Gamma), nil
	case "cosine":
		return NewCosineAnnealingLRScheduler(o.TMax, o.EtaMin), nil
	default:
		return nil, errors.Wrapf(ErrUnknownName, "learning rate schedule %q", o.Name)
	}
}

// ConstantLR keeps the base learning rate
type ConstantLR struct{}

func (ConstantLR) GetLR(epoch int, step int, baseLR float64) float64 { return baseLR }

func (ConstantLR) GetName() string { return "ConstantLR" }

// StepLRScheduler multiplies the rate by Gamma every StepSize epochs
type StepLRScheduler struct {
	StepSize int
	Gamma    float64
}

// NewStepLRScheduler creates a step scheduler, defaulting to x0.1 every 30 epochs
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLRScheduler{StepSize: stepSize, Gamma: gamma}
}

func (s *StepLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch/s.StepSize))
}

func (s *StepLRScheduler) GetName() string { return "StepLR" }

// ExponentialLRScheduler multiplies the rate by Gamma every epoch
type ExponentialLRScheduler struct {
	Gamma float64
}

// NewExponentialLRScheduler creates an exponential scheduler, defaulting to 0.95
func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95
	}
	return &ExponentialLRScheduler{Gamma: gamma}
}

func (s *ExponentialLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch))
}

func (s *ExponentialLRScheduler) GetName() string { return "ExponentialLR" }

// CosineAnnealingLRScheduler anneals from the base rate to EtaMin over TMax epochs
type CosineAnnealingLRScheduler struct {
	TMax   int
	EtaMin float64
}

// NewCosineAnnealingLRScheduler creates a cosine scheduler, defaulting to 100 epochs
func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLRScheduler{TMax: tMax, EtaMin: etaMin}
}

func (s *CosineAnnealingLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLRScheduler) GetName() string { return "CosineAnnealingLR" }
