package training

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Module interface defines methods that all network layers must implement.
// Forward caches what Backward needs only in training mode; Backward
// accumulates parameter gradients and returns the gradient w.r.t. the input.
type Module interface {
	Forward(input [][]float64) ([][]float64, error)
	Backward(gradOutput [][]float64) ([][]float64, error)
	Parameters() []*Parameter // Returns trainable parameters
	Train()                   // Sets module to training mode
	Eval()                    // Sets module to evaluation mode
	IsTraining() bool         // Returns true if in training mode
}

// Parameter is a flat trainable tensor with its accumulated gradient
type Parameter struct {
	Name  string
	Shape []int
	Data  []float64
	Grad  []float64
}

func newParameter(name string, shape ...int) *Parameter {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Parameter{
		Name:  name,
		Shape: shape,
		Data:  make([]float64, n),
		Grad:  make([]float64, n),
	}
}

// ZeroGrad resets the accumulated gradient
func (p *Parameter) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// CountParameters returns the number of trainable scalars in a module
func CountParameters(m Module) int {
	total := 0
	for _, p := range m.Parameters() {
		total += len(p.Data)
	}
	return total
}

// Linear implements a fully connected layer: y = xW + b
type Linear struct {
	inputSize  int
	outputSize int
	weight     *Parameter // [inputSize, outputSize]
	bias       *Parameter // [outputSize]
	input      [][]float64
	training   bool
}

// NewLinear creates a Linear layer with Xavier/Glorot uniform weights and zero bias
func NewLinear(inputSize, outputSize int, rng *rand.Rand) (*Linear, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, errors.Errorf("invalid linear layer shape %dx%d", inputSize, outputSize)
	}

	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))
	weight := newParameter("weight", inputSize, outputSize)
	for i := range weight.Data {
		weight.Data[i] = (rng.Float64()*2.0 - 1.0) * bound
	}

	return &Linear{
		inputSize:  inputSize,
		outputSize: outputSize,
		weight:     weight,
		bias:       newParameter("bias", outputSize),
		training:   true,
	}, nil
}

// Forward performs the forward pass: y = xW + b
func (l *Linear) Forward(input [][]float64) ([][]float64, error) {
	output := make([][]float64, len(input))
	for b, row := range input {
		if len(row) != l.inputSize {
			return nil, errors.Errorf("input size mismatch: expected %d, got %d", l.inputSize, len(row))
		}
		out := make([]float64, l.outputSize)
		copy(out, l.bias.Data)
		for i, x := range row {
			w := l.weight.Data[i*l.outputSize : (i+1)*l.outputSize]
			for o := range out {
				out[o] += x * w[o]
			}
		}
		output[b] = out
	}

	if l.training {
		l.input = input
	}
	return output, nil
}

// Backward accumulates weight and bias gradients and returns dL/dx
func (l *Linear) Backward(gradOutput [][]float64) ([][]float64, error) {
	if l.input == nil {
		return nil, errors.New("linear: backward called without a training forward pass")
	}
	if len(gradOutput) != len(l.input) {
		return nil, errors.Errorf("linear: gradient batch %d does not match input batch %d", len(gradOutput), len(l.input))
	}

	gradInput := make([][]float64, len(gradOutput))
	for b, g := range gradOutput {
		x := l.input[b]
		gi := make([]float64, l.inputSize)
		for i := 0; i < l.inputSize; i++ {
			w := l.weight.Data[i*l.outputSize : (i+1)*l.outputSize]
			gw := l.weight.Grad[i*l.outputSize : (i+1)*l.outputSize]
			for o, gv := range g {
				gw[o] += x[i] * gv
				gi[i] += w[o] * gv
			}
		}
		for o, gv := range g {
			l.bias.Grad[o] += gv
		}
		gradInput[b] = gi
	}

	l.input = nil
	return gradInput, nil
}

// Parameters returns the weight and bias
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Train sets the module to training mode
func (l *Linear) Train() { l.training = true }

// Eval sets the module to evaluation mode
func (l *Linear) Eval() { l.training = false }

// IsTraining returns true if in training mode
func (l *Linear) IsTraining() bool { return l.training }

// activation is an element-wise, parameter-free module
type activation struct {
	name     string
	f        func(x float64) float64
	df       func(x, y float64) float64 // derivative given input x and output y
	input    [][]float64
	output   [][]float64
	training bool
}

func newActivation(name string, f func(float64) float64, df func(x, y float64) float64) *activation {
	return &activation{name: name, f: f, df: df, training: true}
}

// NewTanh creates a Tanh activation module
func NewTanh() Module {
	return newActivation("tanh", math.Tanh, func(_, y float64) float64 { return 1 - y*y })
}

// NewReLU creates a ReLU activation module
func NewReLU() Module {
	return newActivation("relu",
		func(x float64) float64 { return math.Max(0, x) },
		func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		})
}

// NewSigmoid creates a Sigmoid activation module
func NewSigmoid() Module {
	return newActivation("sigmoid", sigmoid, func(_, y float64) float64 { return y * (1 - y) })
}

// NewSiLU creates a SiLU (x * sigmoid(x)) activation module
func NewSiLU() Module {
	return newActivation("silu",
		func(x float64) float64 { return x * sigmoid(x) },
		func(x, _ float64) float64 {
			s := sigmoid(x)
			return s * (1 + x*(1-s))
		})
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func (a *activation) Forward(input [][]float64) ([][]float64, error) {
	output := make([][]float64, len(input))
	for b, row := range input {
		out := make([]float64, len(row))
		for i, x := range row {
			out[i] = a.f(x)
		}
		output[b] = out
	}
	if a.training {
		a.input, a.output = input, output
	}
	return output, nil
}

func (a *activation) Backward(gradOutput [][]float64) ([][]float64, error) {
	if a.input == nil {
		return nil, errors.Errorf("%s: backward called without a training forward pass", a.name)
	}
	gradInput := make([][]float64, len(gradOutput))
	for b, g := range gradOutput {
		gi := make([]float64, len(g))
		for i := range g {
			gi[i] = g[i] * a.df(a.input[b][i], a.output[b][i])
		}
		gradInput[b] = gi
	}
	a.input, a.output = nil, nil
	return gradInput, nil
}

func (a *activation) Parameters() []*Parameter { return nil }
func (a *activation) Train()                   { a.training = true }
func (a *activation) Eval()                    { a.training = false }
func (a *activation) IsTraining() bool         { return a.training }

// Sequential chains modules in order
type Sequential struct {
	modules []Module
}

// NewSequential creates a Sequential container
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Forward runs every module in order
func (s *Sequential) Forward(input [][]float64) ([][]float64, error) {
	out := input
	for i, m := range s.modules {
		var err error
		out, err = m.Forward(out)
		if err != nil {
			return nil, errors.Wrapf(err, "module %d forward failed", i)
		}
	}
	return out, nil
}

// Backward runs every module in reverse order
func (s *Sequential) Backward(gradOutput [][]float64) ([][]float64, error) {
	grad := gradOutput
	for i := len(s.modules) - 1; i >= 0; i-- {
		var err error
		grad, err = s.modules[i].Backward(grad)
		if err != nil {
			return nil, errors.Wrapf(err, "module %d backward failed", i)
		}
	}
	return grad, nil
}

// Parameters returns the parameters of every contained module
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Train sets every module to training mode
func (s *Sequential) Train() {
	for _, m := range s.modules {
		m.Train()
	}
}

// Eval sets every module to evaluation mode
func (s *Sequential) Eval() {
	for _, m := range s.modules {
		m.Eval()
	}
}

// IsTraining reports the mode of the first module
func (s *Sequential) IsTraining() bool {
	if len(s.modules) == 0 {
		return false
	}
	return s.modules[0].IsTraining()
}

var activations = map[string]func() Module{
	"tanh":    NewTanh,
	"relu":    NewReLU,
	"sigmoid": NewSigmoid,
	"silu":    NewSiLU,
}

// NewMLP builds a multi-layer perceptron from layer widths, e.g. [1, 16, 16, 1].
// The activation is inserted between linear layers, never after the last one.
func NewMLP(architecture []int, activationName string, seed int64) (*Sequential, error) {
	if len(architecture) < 2 {
		return nil, errors.Errorf("mlp needs at least two layer widths, got %v", architecture)
	}
	newAct, ok := activations[activationName]
	if !ok {
		return nil, errors.Errorf("unknown activation %q", activationName)
	}

	rng := rand.New(rand.NewSource(seed))
	var modules []Module
	for i := 0; i+1 < len(architecture); i++ {
		linear, err := NewLinear(architecture[i], architecture[i+1], rng)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		modules = append(modules, linear)
		if i+2 < len(architecture) {
			modules = append(modules, newAct())
		}
	}

	return NewSequential(modules...), nil
}
