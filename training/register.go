package training

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnknownName is returned when a registry lookup finds nothing
var ErrUnknownName = errors.New("unknown name")

var (
	registryMu sync.RWMutex
	optimizers = make(map[string]OptimizerFactory)
	losses     = make(map[string]func() Loss)
)

func init() {
	opts := map[string]OptimizerFactory{
		"sgd":  SGDFactory(0),
		"adam": AdamFactory(),
	}
	for name, f := range opts {
		if err := RegisterOptimizer(name, f); err != nil {
			panic(err.Error())
		}
	}

	fns := map[string]func() Loss{
		"mse":  func() Loss { return NewMSELoss() },
		"rmse": func() Loss { return NewRMSELoss() },
		"mae":  func() Loss { return NewMAELoss() },
	}
	for name, f := range fns {
		if err := RegisterLoss(name, f); err != nil {
			panic(err.Error())
		}
	}
}

// RegisterOptimizer makes an optimizer factory available to Options by name
func RegisterOptimizer(name string, f OptimizerFactory) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := optimizers[name]; ok {
		return errors.Errorf("optimizer %q is already registered", name)
	}
	optimizers[name] = f
	return nil
}

// RegisterLoss makes a loss constructor available to Options by name
func RegisterLoss(name string, f func() Loss) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := losses[name]; ok {
		return errors.Errorf("loss %q is already registered", name)
	}
	losses[name] = f
	return nil
}

// LookupOptimizer returns the factory registered under name
func LookupOptimizer(name string) (OptimizerFactory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	f, ok := optimizers[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownName, "optimizer %q (known: %v)", name, sortedKeys(optimizers))
	}
	return f, nil
}

// LookupLoss returns a new instance of the loss registered under name
func LookupLoss(name string) (Loss, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	f, ok := losses[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownName, "loss %q (known: %v)", name, sortedKeys(losses))
	}
	return f(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
