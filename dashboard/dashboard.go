package dashboard

import (
	"context"
	"io"
	"log"

	"github.com/pkg/errors"

	"github.com/tsawler/go-continual/artifact"
)

// Dashboard renders stored experiments. Views come from an explicit cache
// owned by the dashboard; plots optionally go to a sidecar.
type Dashboard struct {
	store   artifact.Store
	cache   *artifact.Cache
	plotter *PlottingService
	logger  *log.Logger
}

// New creates a dashboard over store. plotter may be nil.
func New(store artifact.Store, plotter *PlottingService, logger *log.Logger) *Dashboard {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dashboard{
		store:   store,
		cache:   artifact.NewCache(store),
		plotter: plotter,
		logger:  logger,
	}
}

// Experiments lists the stored experiment names
func (d *Dashboard) Experiments(ctx context.Context) ([]string, error) {
	return d.cache.List(ctx)
}

// Plots builds every plot for an experiment: the loss charts followed by the
// prediction grid when the data type has a renderer
func (d *Dashboard) Plots(ctx context.Context, name string) ([]PlotData, error) {
	view, err := d.cache.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	plots := LossPlots(view)
	if p, ok := PredictionPlot(view, d.logger); ok {
		plots = append(plots, p)
	}
	return plots, nil
}

// Publish sends every plot of an experiment to the sidecar in one batch
func (d *Dashboard) Publish(ctx context.Context, name string) (*BatchPlottingResponse, error) {
	if d.plotter == nil || !d.plotter.IsEnabled() {
		return nil, ErrServiceDisabled
	}
	plots, err := d.Plots(ctx, name)
	if err != nil {
		return nil, err
	}
	resp, err := d.plotter.BatchSendPlots(ctx, plots)
	if err != nil {
		return resp, errors.WithMessagef(err, "publishing %s", name)
	}
	d.logger.Printf("%s: published %d plots", name, len(plots))
	return resp, nil
}

// Show writes the text page for an experiment
func (d *Dashboard) Show(ctx context.Context, w io.Writer, name string) error {
	a, err := d.store.Get(ctx, name)
	if err != nil {
		return err
	}
	view, err := d.cache.Fetch(ctx, name)
	if err != nil {
		return err
	}
	return WritePage(w, a, view)
}

// Refresh drops the cached view of name so the next call reloads it
func (d *Dashboard) Refresh(name string) {
	d.cache.Invalidate(name)
}
