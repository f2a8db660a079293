package dashboard

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/tsawler/go-continual/artifact"
	"github.com/tsawler/go-continual/dataset"
)

// LossPlots builds one line chart per loss metric, one trace per model
func LossPlots(view *artifact.View) []PlotData {
	plots := make([]PlotData, 0, len(view.Losses))
	for _, metric := range view.Losses.Metrics() {
		byModel := view.Losses[metric]

		var series []SeriesData
		for i, model := range sortedModels(byModel) {
			values := byModel[model]
			xs := make([]float64, len(values))
			for j := range xs {
				xs[j] = float64(j)
			}
			series = append(series, SeriesData{
				Name:       fmt.Sprintf("%s %s loss", capitalize(model), metric),
				Type:       "line",
				Data:       points(xs, values),
				ShowLegend: true,
				Style:      map[string]interface{}{"color": traceColor(i)},
			})
		}

		plots = append(plots, PlotData{
			PlotType:   LossCurves,
			Title:      capitalize(metric) + " Loss",
			Timestamp:  time.Now(),
			Experiment: view.Name,
			Series:     series,
			Config: PlotConfig{
				XAxisLabel:  "Log Step",
				YAxisLabel:  "Loss",
				ShowLegend:  true,
				ShowGrid:    true,
				ShowTicks:   true,
				Width:       800,
				Height:      500,
				Interactive: true,
			},
		})
	}
	return plots
}

// PredictionPlot renders the prediction grid for the view's data type.
// Data types without a renderer are logged and reported with ok=false.
func PredictionPlot(view *artifact.View, logger *log.Logger) (plot PlotData, ok bool) {
	switch view.DataType {
	case dataset.Function1D:
		return predictionGrid1D(view), true
	case dataset.Function2D:
		logger.Printf("%s: no prediction renderer for %s data, skipping", view.Name, view.DataType)
		return PlotData{}, false
	default:
		logger.Printf("%s: unknown data type %s, skipping predictions", view.Name, view.DataType)
		return PlotData{}, false
	}
}

// predictionGrid1D lays out one row per model (base first) and one column per
// task. Every whole-domain baseline is drawn faintly in every cell; per-task
// predictions are placed on the task axis by Placement.
func predictionGrid1D(view *artifact.View) PlotData {
	layout := view.Layout
	models := view.Predictions.Models()
	base := view.Predictions[artifact.BaseModel]

	var series []SeriesData
	for _, metric := range view.Predictions.Metrics(artifact.BaseModel) {
		baseline, ok := base[metric].(artifact.Baseline)
		if !ok {
			continue
		}
		xs := dataset.Linspace(0, float64(layout.NumTasks), len(baseline))
		for row := range models {
			for col := 0; col < layout.NumTasks; col++ {
				series = append(series, SeriesData{
					Name:        "Base Function",
					Type:        "line",
					Data:        points(xs, baseline),
					Row:         row + 1,
					Col:         col + 1,
					LegendGroup: "base_background",
					ShowLegend:  row+col == 0,
					Style:       map[string]interface{}{"color": "lightblue", "opacity": 0.1},
				})
			}
		}
	}

	for row, model := range models {
		color := traceColor(row)
		for col := 0; col < layout.NumTasks; col++ {
			for _, metric := range view.Predictions.Metrics(model) {
				tasks, ok := view.Predictions[model][metric].(artifact.TaskPredictions)
				if !ok || col >= len(tasks) {
					continue
				}
				ys := tasks[col]
				span := artifact.Placement(len(ys), col, layout)
				series = append(series, SeriesData{
					Name:        capitalize(model) + " " + capitalize(metric),
					Type:        "line",
					Data:        points(dataset.Linspace(span.Lo, span.Hi, len(ys)), ys),
					Row:         row + 1,
					Col:         col + 1,
					LegendGroup: model,
					ShowLegend:  col == 0,
					Style:       map[string]interface{}{"color": color},
				})
			}
		}
	}

	return PlotData{
		PlotType:   PredictionGrid,
		Title:      "Predictions",
		Timestamp:  time.Now(),
		Experiment: view.Name,
		Series:     series,
		Config: PlotConfig{
			ShowLegend:  true,
			Rows:        len(models),
			Cols:        layout.NumTasks,
			YRange:      []float64{layout.YMin, layout.YMax},
			Width:       300 * layout.NumTasks,
			Height:      250 * len(models),
			Interactive: true,
		},
	}
}

func sortedModels(m map[string]artifact.Series) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
