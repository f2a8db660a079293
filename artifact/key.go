package artifact

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind is the type of result a key addresses
type Kind string

const (
	KindLoss        Kind = "loss"
	KindPredictions Kind = "predictions"
)

// BaseModel is the reserved model name under which the ground-truth function
// values are stored. The reader derives task count and plotting range from it.
const BaseModel = "base"

const keySeparator = "_"

// Key identifies one result in an artifact: which model produced it, which
// metric or prediction input it belongs to, and what kind of value it is.
//
// Keys persist as "{model}_{metric}_{kind}". Parsing splits off the last two
// tokens, so Model may contain underscores but Metric must not. Validate
// enforces this when results are written so a bad name fails loudly instead
// of being misparsed by a reader.
type Key struct {
	Model  string
	Metric string
	Kind   Kind
}

// LossKey returns the key of a loss series
func LossKey(model, metric string) Key {
	return Key{Model: model, Metric: metric, Kind: KindLoss}
}

// PredictionsKey returns the key of a prediction value
func PredictionsKey(model, metric string) Key {
	return Key{Model: model, Metric: metric, Kind: KindPredictions}
}

// String renders the flat "{model}_{metric}_{kind}" form
func (k Key) String() string {
	return k.Model + keySeparator + k.Metric + keySeparator + string(k.Kind)
}

// Validate reports whether the key survives a String/ParseKey round trip
func (k Key) Validate() error {
	switch {
	case k.Model == "":
		return errors.Wrapf(ErrMalformedKey, "%q: empty model", k.String())
	case k.Metric == "":
		return errors.Wrapf(ErrMalformedKey, "%q: empty metric", k.String())
	case strings.Contains(k.Metric, keySeparator):
		return errors.Wrapf(ErrMalformedKey, "%q: metric %q contains %q", k.String(), k.Metric, keySeparator)
	case !k.Kind.valid():
		return errors.Wrapf(ErrMalformedKey, "%q: unknown kind %q", k.String(), k.Kind)
	}
	return nil
}

func (k Kind) valid() bool {
	return k == KindLoss || k == KindPredictions
}

// ParseKey recovers (model, metric, kind) from the flat form
func ParseKey(s string) (Key, error) {
	i := strings.LastIndex(s, keySeparator)
	if i < 0 {
		return Key{}, errors.Wrapf(ErrMalformedKey, "%q: expected {model}_{metric}_{kind}", s)
	}
	rest, kind := s[:i], Kind(s[i+1:])

	j := strings.LastIndex(rest, keySeparator)
	if j < 0 {
		return Key{}, errors.Wrapf(ErrMalformedKey, "%q: expected {model}_{metric}_{kind}", s)
	}

	k := Key{Model: rest[:j], Metric: rest[j+1:], Kind: kind}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}
