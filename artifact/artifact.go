// Package artifact defines the persisted result bundle of one experiment run,
// the key protocol its entries are addressed by, how it is encoded and
// stored, and how a consumer reconstructs typed views from it.
package artifact

import (
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tsawler/go-continual/dataset"
)

var (
	// ErrMalformedKey is returned for keys that do not decompose into
	// (model, metric, kind)
	ErrMalformedKey = errors.New("malformed artifact key")

	// ErrDuplicateKey is returned when a key is written twice
	ErrDuplicateKey = errors.New("duplicate artifact key")

	// ErrValueKind is returned when a value variant does not match its key kind
	ErrValueKind = errors.New("value does not match key kind")

	// ErrInvalidConfig is returned for config values structpb cannot represent
	ErrInvalidConfig = errors.New("invalid config value")

	// ErrCorrupt is returned when encoded bytes cannot be decoded
	ErrCorrupt = errors.New("corrupt artifact encoding")
)

// Artifact is the complete result bundle of one experiment: loss series and
// predictions addressed by Key, plus a free-form configuration mapping.
// It is built by a single producer and treated as immutable once stored.
type Artifact struct {
	Name     string
	DataType dataset.DataType

	entries map[Key]Value
	config  map[string]interface{}
}

// New creates an empty artifact
func New(name string, dt dataset.DataType) *Artifact {
	return &Artifact{
		Name:     name,
		DataType: dt,
		entries:  make(map[Key]Value),
		config:   make(map[string]interface{}),
	}
}

// Put stores v under k. Loss keys take a Series; prediction keys take a
// Baseline or TaskPredictions. Keys are write-once.
func (a *Artifact) Put(k Key, v Value) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if _, ok := a.entries[k]; ok {
		return errors.Wrapf(ErrDuplicateKey, "%s", k)
	}

	switch v.(type) {
	case Series:
		if k.Kind != KindLoss {
			return errors.Wrapf(ErrValueKind, "%s: series stored under a %s key", k, k.Kind)
		}
	case Baseline, TaskPredictions:
		if k.Kind != KindPredictions {
			return errors.Wrapf(ErrValueKind, "%s: predictions stored under a %s key", k, k.Kind)
		}
	default:
		return errors.Wrapf(ErrValueKind, "%s: unsupported value %T", k, v)
	}

	a.entries[k] = v.clone()
	return nil
}

// Get returns a copy of the value stored under k
func (a *Artifact) Get(k Key) (Value, bool) {
	v, ok := a.entries[k]
	if !ok {
		return nil, false
	}
	return v.clone(), true
}

// Len returns the number of entries
func (a *Artifact) Len() int {
	return len(a.entries)
}

// Keys returns every key ordered by its flat form
func (a *Artifact) Keys() []Key {
	keys := make([]Key, 0, len(a.entries))
	for k := range a.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Flat returns the legacy string-keyed view of the entries
func (a *Artifact) Flat() map[string]Value {
	out := make(map[string]Value, len(a.entries))
	for k, v := range a.entries {
		out[k.String()] = v.clone()
	}
	return out
}

// FromFlat builds an artifact from string keys, parsing each with ParseKey
func FromFlat(name string, dt dataset.DataType, data map[string]Value) (*Artifact, error) {
	a := New(name, dt)
	for s, v := range data {
		k, err := ParseKey(s)
		if err != nil {
			return nil, err
		}
		if err := a.Put(k, v); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// SetConfig records a configuration entry. Values must be representable by
// structpb (numbers, strings, bools, nil, and maps/slices of those); numbers
// read back as float64.
func (a *Artifact) SetConfig(name string, v interface{}) error {
	pv, err := structpb.NewValue(v)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%s: %v", name, err)
	}
	a.config[name] = pv.AsInterface()
	return nil
}

// Config returns a copy of the configuration mapping
func (a *Artifact) Config() map[string]interface{} {
	out := make(map[string]interface{}, len(a.config))
	for k, v := range a.config {
		out[k] = v
	}
	return out
}

// ConfigStruct returns the configuration as a protobuf Struct
func (a *Artifact) ConfigStruct() (*structpb.Struct, error) {
	s, err := structpb.NewStruct(a.config)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	return s, nil
}
