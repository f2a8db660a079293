package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/tsawler/go-continual/artifact"
	"github.com/tsawler/go-continual/dashboard"
	"github.com/tsawler/go-continual/experiment"
	"github.com/tsawler/go-continual/training"
)

const usage = `usage: continual <command> [flags]

commands:
  run          train a registered experiment and publish its artifact
  list         list published artifacts
  show         print the text dashboard of an artifact
  publish      send the plots of an artifact to the plotting sidecar
  experiments  list registered experiments`

type storeFlags struct {
	backend string
	path    string
}

func (s *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.backend, "backend", "file", "artifact store backend: file or sqlite")
	fs.StringVar(&s.path, "store", "results", "artifact directory (file) or database path (sqlite)")
}

func (s *storeFlags) open() (artifact.Store, func(), error) {
	switch s.backend {
	case "file":
		fs, err := artifact.NewFileStore(s.path)
		return fs, func() {}, err
	case "sqlite":
		db, err := artifact.OpenSQLiteStore(s.path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	default:
		return nil, nil, errors.Errorf("unknown backend %q", s.backend)
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runCommand(ctx, args)
	case "list":
		err = listCommand(ctx, args)
	case "show":
		err = showCommand(ctx, args)
	case "publish":
		err = publishCommand(ctx, args)
	case "experiments":
		fmt.Println(strings.Join(experiment.Names(), "\n"))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func runCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var store storeFlags
	store.register(fs)
	name := fs.String("experiment", "non_uniform_function", "registered experiment to run")
	as := fs.String("name", "", "artifact name (defaults to the experiment name)")
	optionsPath := fs.String("options", "", "JSON training options overriding the experiment defaults")
	epochs := fs.Int("epochs", 0, "override the number of epochs per task")
	seed := fs.Int64("seed", 0, "model initialisation seed")
	fs.Parse(args)

	build, ok := experiment.Registry[*name]
	if !ok {
		return errors.Errorf("unknown experiment %q (have %s)", *name, strings.Join(experiment.Names(), ", "))
	}
	exp, err := build()
	if err != nil {
		return err
	}

	if *optionsPath != "" {
		opts, err := training.LoadOptions(*optionsPath)
		if err != nil {
			return err
		}
		exp.Options = opts
	}
	if *epochs > 0 {
		exp.Options.Epochs = *epochs
	}
	if *as != "" {
		exp.Name = *as
	}
	exp.Seed = *seed

	s, closeStore, err := store.open()
	if err != nil {
		return err
	}
	defer closeStore()

	fmt.Printf("=== %s: %d models, %d tasks, %s ===\n", exp.Name, len(exp.Models), len(exp.Tasks), exp.DataType)
	_, err = exp.Run(ctx, s, os.Stdout)
	return err
}

func listCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var store storeFlags
	store.register(fs)
	fs.Parse(args)

	s, closeStore, err := store.open()
	if err != nil {
		return err
	}
	defer closeStore()

	names, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func showCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	var store storeFlags
	store.register(fs)
	name := fs.String("name", "", "artifact to show")
	values := fs.Bool("values", false, "print stored values")
	fs.Parse(args)

	s, closeStore, err := store.open()
	if err != nil {
		return err
	}
	defer closeStore()

	if *values {
		a, err := s.Get(ctx, *name)
		if err != nil {
			return err
		}
		return dashboard.WriteData(os.Stdout, a, true)
	}
	return dashboard.New(s, nil, log.Default()).Show(ctx, os.Stdout, *name)
}

func publishCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	var store storeFlags
	store.register(fs)
	name := fs.String("name", "", "artifact to publish")
	sidecar := fs.String("sidecar", dashboard.DefaultPlottingServiceConfig().BaseURL, "plotting sidecar URL")
	fs.Parse(args)

	s, closeStore, err := store.open()
	if err != nil {
		return err
	}
	defer closeStore()

	config := dashboard.DefaultPlottingServiceConfig()
	config.BaseURL = *sidecar
	plotter := dashboard.NewPlottingService(config)
	plotter.Enable()
	if err := plotter.CheckHealth(ctx); err != nil {
		return errors.Wrapf(err, "sidecar at %s", *sidecar)
	}

	resp, err := dashboard.New(s, plotter, log.Default()).Publish(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Printf("Published %d/%d plots", resp.Summary.Successful, resp.Summary.TotalPlots)
	if resp.Summary.Failed > 0 {
		fmt.Printf(" (%d failed)", resp.Summary.Failed)
	}
	if resp.DashboardURL != "" {
		fmt.Printf(" to %s", resp.DashboardURL)
	}
	fmt.Println()
	return nil
}
