// Package dashboard turns reconstructed experiment views into plot payloads
// and text summaries, and ships the plots to the sidecar plotting service.
package dashboard

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// PlotType represents the kinds of plots the dashboard produces
type PlotType string

const (
	// LossCurves is one line chart per loss metric with a trace per model
	LossCurves PlotType = "loss_curves"

	// PredictionGrid is a grid of subplots, rows are models and columns are tasks
	PredictionGrid PlotType = "prediction_grid"
)

// PlotData is the JSON payload accepted by the sidecar plotting service
type PlotData struct {
	PlotType   PlotType  `json:"plot_type"`
	Title      string    `json:"title"`
	Timestamp  time.Time `json:"timestamp"`
	Experiment string    `json:"experiment"`

	Series []SeriesData `json:"series"`
	Config PlotConfig   `json:"config"`
}

// SeriesData is a single trace. Row and Col address a subplot and are 1-based;
// zero means the plot has no grid.
type SeriesData struct {
	Name        string                 `json:"name"`
	Type        string                 `json:"type"` // "line", "scatter"
	Data        []DataPoint            `json:"data"`
	Row         int                    `json:"row,omitempty"`
	Col         int                    `json:"col,omitempty"`
	LegendGroup string                 `json:"legend_group,omitempty"`
	ShowLegend  bool                   `json:"show_legend"`
	Style       map[string]interface{} `json:"style,omitempty"`
}

// DataPoint is a single (x, y) sample
type DataPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel  string    `json:"x_axis_label"`
	YAxisLabel  string    `json:"y_axis_label"`
	ShowLegend  bool      `json:"show_legend"`
	ShowGrid    bool      `json:"show_grid"`
	ShowTicks   bool      `json:"show_ticks"`
	Rows        int       `json:"rows,omitempty"`
	Cols        int       `json:"cols,omitempty"`
	YRange      []float64 `json:"y_range,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Interactive bool      `json:"interactive"`
}

var traceColors = []string{"red", "blue", "green"}

// traceColor cycles through the distinctive trace colors
func traceColor(i int) string {
	return traceColors[i%len(traceColors)]
}

// capitalize upper-cases the first letter and lower-cases the rest
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func points(xs, ys []float64) []DataPoint {
	out := make([]DataPoint, len(ys))
	for i := range ys {
		out[i] = DataPoint{X: xs[i], Y: ys[i]}
	}
	return out
}
