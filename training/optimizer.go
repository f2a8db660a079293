package training

import (
	"math"
)

// Optimizer interface defines the methods that all optimizers must implement
type Optimizer interface {
	Step() error      // Updates parameters from their accumulated gradients
	ZeroGrad()        // Resets gradients to zero for all parameters
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Sets learning rate
}

// OptimizerFactory builds an optimizer over a model's parameters
type OptimizerFactory func(parameters []*Parameter, lr float64) Optimizer

// SGD implements Stochastic Gradient Descent with optional momentum and weight decay
type SGD struct {
	parameters   []*Parameter
	learningRate float64
	momentum     float64
	weightDecay  float64
	velocities   map[*Parameter][]float64
}

// NewSGD creates a new SGD optimizer
func NewSGD(parameters []*Parameter, lr, momentum, weightDecay float64) *SGD {
	return &SGD{
		parameters:   parameters,
		learningRate: lr,
		momentum:     momentum,
		weightDecay:  weightDecay,
		velocities:   make(map[*Parameter][]float64),
	}
}

// SGDFactory returns a factory for plain SGD with the given momentum
func SGDFactory(momentum float64) OptimizerFactory {
	return func(parameters []*Parameter, lr float64) Optimizer {
		return NewSGD(parameters, lr, momentum, 0)
	}
}

// Step performs a single optimization step
func (sgd *SGD) Step() error {
	for _, param := range sgd.parameters {
		var velocity []float64
		if sgd.momentum > 0 {
			velocity = sgd.velocities[param]
			if velocity == nil {
				velocity = make([]float64, len(param.Data))
				sgd.velocities[param] = velocity
			}
		}

		for i, g := range param.Grad {
			if sgd.weightDecay > 0 {
				g += sgd.weightDecay * param.Data[i]
			}
			if velocity != nil {
				velocity[i] = sgd.momentum*velocity[i] + g
				g = velocity[i]
			}
			param.Data[i] -= sgd.learningRate * g
		}
	}
	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (sgd *SGD) ZeroGrad() {
	for _, p := range sgd.parameters {
		p.ZeroGrad()
	}
}

// GetLR returns the current learning rate
func (sgd *SGD) GetLR() float64 { return sgd.learningRate }

// SetLR sets the learning rate
func (sgd *SGD) SetLR(lr float64) { sgd.learningRate = lr }

// Adam implements the Adam optimizer
type Adam struct {
	parameters []*Parameter
	lr         float64
	beta1      float64
	beta2      float64
	eps        float64
	step       int
	m          map[*Parameter][]float64 // First moment estimates
	v          map[*Parameter][]float64 // Second moment estimates
}

// NewAdam creates a new Adam optimizer
func NewAdam(parameters []*Parameter, lr, beta1, beta2, eps float64) *Adam {
	adam := &Adam{
		parameters: parameters,
		lr:         lr,
		beta1:      beta1,
		beta2:      beta2,
		eps:        eps,
		m:          make(map[*Parameter][]float64),
		v:          make(map[*Parameter][]float64),
	}
	for _, p := range parameters {
		adam.m[p] = make([]float64, len(p.Data))
		adam.v[p] = make([]float64, len(p.Data))
	}
	return adam
}

// AdamFactory returns a factory for Adam with the usual defaults
func AdamFactory() OptimizerFactory {
	return func(parameters []*Parameter, lr float64) Optimizer {
		return NewAdam(parameters, lr, 0.9, 0.999, 1e-8)
	}
}

// Step performs a single bias-corrected Adam update
func (adam *Adam) Step() error {
	adam.step++
	c1 := 1 - math.Pow(adam.beta1, float64(adam.step))
	c2 := 1 - math.Pow(adam.beta2, float64(adam.step))

	for _, p := range adam.parameters {
		m, v := adam.m[p], adam.v[p]
		for i, g := range p.Grad {
			m[i] = adam.beta1*m[i] + (1-adam.beta1)*g
			v[i] = adam.beta2*v[i] + (1-adam.beta2)*g*g
			mHat := m[i] / c1
			vHat := v[i] / c2
			p.Data[i] -= adam.lr * mHat / (math.Sqrt(vHat) + adam.eps)
		}
	}
	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (adam *Adam) ZeroGrad() {
	for _, p := range adam.parameters {
		p.ZeroGrad()
	}
}

// GetLR returns the current learning rate
func (adam *Adam) GetLR() float64 { return adam.lr }

// SetLR sets the learning rate
func (adam *Adam) SetLR(lr float64) { adam.lr = lr }
