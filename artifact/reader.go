package artifact

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-continual/dataset"
)

var (
	// ErrMissingBase is returned when no prediction entry belongs to BaseModel
	ErrMissingBase = errors.New("artifact has no base model predictions")

	// ErrMissingBaseline is returned when the base model lacks the per-task or
	// whole-domain entry needed to derive the layout
	ErrMissingBaseline = errors.New("base model lacks a layout baseline")

	// ErrInconsistentBaseline is returned when base entries disagree on the layout
	ErrInconsistentBaseline = errors.New("base model baselines disagree")
)

// RangePadding is added below the minimum and above the maximum of the base
// baseline to obtain the plotting range
const RangePadding = 0.25

// LossViews maps metric -> model -> series
type LossViews map[string]map[string]Series

// PredictionViews maps model -> metric or input name -> prediction value
type PredictionViews map[string]map[string]Value

// Layout is the shape of the domain as derived from the base model
type Layout struct {
	NumTasks  int
	NumPoints int
	YMin      float64
	YMax      float64
}

// Span is a closed interval on the task axis, where task i covers [i, i+1]
type Span struct {
	Lo, Hi float64
}

// View is everything a consumer needs to render an artifact
type View struct {
	Name        string
	DataType    dataset.DataType
	Losses      LossViews
	Predictions PredictionViews
	Layout      Layout
	Config      map[string]interface{}
}

// Losses groups every loss entry by metric, then model
func Losses(a *Artifact) LossViews {
	out := make(LossViews)
	for k, v := range a.entries {
		if k.Kind != KindLoss {
			continue
		}
		s, ok := v.(Series)
		if !ok {
			continue
		}
		if out[k.Metric] == nil {
			out[k.Metric] = make(map[string]Series)
		}
		out[k.Metric][k.Model] = Series(cloneFloats(s))
	}
	return out
}

// Predictions groups every prediction entry by model, then metric. It fails
// if the base model is absent.
func Predictions(a *Artifact) (PredictionViews, error) {
	out := make(PredictionViews)
	for k, v := range a.entries {
		if k.Kind != KindPredictions {
			continue
		}
		if out[k.Model] == nil {
			out[k.Model] = make(map[string]Value)
		}
		out[k.Model][k.Metric] = v.clone()
	}
	if _, ok := out[BaseModel]; !ok {
		return nil, errors.Wrapf(ErrMissingBase, "%s", a.Name)
	}
	return out, nil
}

// InferLayout derives the task count from the base model's per-task entries
// and the point count and plotting range from its whole-domain baselines.
// Both kinds of entry must be present and agree with each other.
func InferLayout(preds PredictionViews) (Layout, error) {
	base, ok := preds[BaseModel]
	if !ok {
		return Layout{}, ErrMissingBase
	}

	var layout Layout
	haveTasks, havePoints := false, false
	for _, metric := range sortedMetrics(base) {
		switch v := base[metric].(type) {
		case TaskPredictions:
			if haveTasks && len(v) != layout.NumTasks {
				return Layout{}, errors.Wrapf(ErrInconsistentBaseline,
					"%s has %d tasks, expected %d", metric, len(v), layout.NumTasks)
			}
			layout.NumTasks, haveTasks = len(v), true
		case Baseline:
			if len(v) == 0 {
				continue
			}
			lo, hi := floats.Min(v), floats.Max(v)
			if !havePoints {
				layout.NumPoints, layout.YMin, layout.YMax = len(v), lo, hi
				havePoints = true
				continue
			}
			if len(v) != layout.NumPoints {
				return Layout{}, errors.Wrapf(ErrInconsistentBaseline,
					"%s has %d points, expected %d", metric, len(v), layout.NumPoints)
			}
			if lo < layout.YMin {
				layout.YMin = lo
			}
			if hi > layout.YMax {
				layout.YMax = hi
			}
		}
	}

	if !haveTasks || layout.NumTasks == 0 {
		return Layout{}, errors.Wrap(ErrMissingBaseline, "no per-task entry")
	}
	if !havePoints {
		return Layout{}, errors.Wrap(ErrMissingBaseline, "no whole-domain entry")
	}
	layout.YMin -= RangePadding
	layout.YMax += RangePadding
	return layout, nil
}

// Placement decides where on the task axis a per-task prediction array is
// drawn. An array as long as the base baseline is taken to be a re-evaluation
// of the whole domain and spans [0, NumTasks]; anything else is local to its
// task and spans [task, task+1].
//
// The rule is a length comparison only. A task whose point count happens to
// equal the baseline's is indistinguishable from a whole-domain evaluation
// and will be misplaced.
func Placement(length, task int, layout Layout) Span {
	if length == layout.NumPoints {
		return Span{Lo: 0, Hi: float64(layout.NumTasks)}
	}
	return Span{Lo: float64(task), Hi: float64(task + 1)}
}

// Read reconstructs every view of an artifact
func Read(a *Artifact) (*View, error) {
	preds, err := Predictions(a)
	if err != nil {
		return nil, err
	}
	layout, err := InferLayout(preds)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s", a.Name)
	}
	return &View{
		Name:        a.Name,
		DataType:    a.DataType,
		Losses:      Losses(a),
		Predictions: preds,
		Layout:      layout,
		Config:      a.Config(),
	}, nil
}

// Metrics returns the loss metric names in sorted order
func (l LossViews) Metrics() []string {
	names := make([]string, 0, len(l))
	for m := range l {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// Models returns the model names with BaseModel first and the rest sorted
func (p PredictionViews) Models() []string {
	names := make([]string, 0, len(p))
	for m := range p {
		if m != BaseModel {
			names = append(names, m)
		}
	}
	sort.Strings(names)
	if _, ok := p[BaseModel]; ok {
		names = append([]string{BaseModel}, names...)
	}
	return names
}

// Metrics returns the metric names recorded for model in sorted order
func (p PredictionViews) Metrics(model string) []string {
	return sortedMetrics(p[model])
}

func sortedMetrics(m map[string]Value) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
