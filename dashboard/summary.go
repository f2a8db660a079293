package dashboard

import (
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tsawler/go-continual/artifact"
)

// WriteData lists every entry with its shape. With values set the data is
// printed under each entry.
func WriteData(w io.Writer, a *artifact.Artifact, values bool) error {
	for _, k := range a.Keys() {
		v, _ := a.Get(k)
		if _, err := fmt.Fprintf(w, "%s: %s\n", k, artifact.Describe(v)); err != nil {
			return err
		}
		if !values {
			continue
		}
		if _, err := fmt.Fprintf(w, "    %v\n", v); err != nil {
			return err
		}
	}
	return nil
}

// WriteConfig prints every configuration entry in name order, values as JSON
func WriteConfig(w io.Writer, config map[string]interface{}) error {
	names := make([]string, 0, len(config))
	for name := range config {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pv, err := structpb.NewValue(config[name])
		if err != nil {
			return errors.Wrapf(err, "config %s", name)
		}
		text, err := protojson.Marshal(pv)
		if err != nil {
			return errors.Wrapf(err, "config %s", name)
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", name, text); err != nil {
			return err
		}
	}
	return nil
}

// WritePage prints the full text dashboard for one experiment
func WritePage(w io.Writer, a *artifact.Artifact, view *artifact.View) error {
	fmt.Fprintf(w, "# %s\n\n## Losses\n", view.Name)
	for _, metric := range view.Losses.Metrics() {
		for _, model := range sortedModels(view.Losses[metric]) {
			s := view.Losses[metric][model]
			last := "n/a"
			if len(s) > 0 {
				last = fmt.Sprintf("%.6f", s[len(s)-1])
			}
			fmt.Fprintf(w, "%s %s: %d samples, final %s\n", capitalize(model), metric, len(s), last)
		}
	}

	fmt.Fprintf(w, "\n## Layout\ntasks: %d, points: %d, range: [%.4f, %.4f]\n",
		view.Layout.NumTasks, view.Layout.NumPoints, view.Layout.YMin, view.Layout.YMax)

	fmt.Fprintf(w, "\n## Data\n")
	if err := WriteData(w, a, false); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n## Config\n")
	return WriteConfig(w, view.Config)
}
