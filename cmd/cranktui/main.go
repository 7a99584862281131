package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
	"tinygo.org/x/bluetooth"

	"github.com/scottharvey/crankTUI/internal/bt"
	"github.com/scottharvey/crankTUI/internal/config"
	"github.com/scottharvey/crankTUI/internal/recorder"
	"github.com/scottharvey/crankTUI/internal/ride"
	"github.com/scottharvey/crankTUI/internal/route"
	"github.com/scottharvey/crankTUI/internal/trainer"
	"github.com/scottharvey/crankTUI/internal/ui"
)

var adapter = bluetooth.DefaultAdapter

func must(what string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to %s: %v\n", what, err)
		os.Exit(1)
	}
}

func main() {
	flags := pflag.NewFlagSet("cranktui", pflag.ExitOnError)
	demoMode := flags.Bool("demo", false, "run with simulated ride data, no trainer needed")
	debug := flags.Bool("debug", false, "also log to stderr")
	dataDir := flags.String("data-dir", "", "data directory (default ~/.local/share/cranktui)")
	routeName := flags.String("route", "", "route to ride (default: first available)")
	flags.Float64("rider-weight", config.DefaultRiderWeightKg, "rider weight in kg")
	flags.Float64("bike-weight", config.DefaultBikeWeightKg, "bike weight in kg")
	flags.String("routes-dir", "", "directory holding route JSON files")
	must("parse flags", flags.Parse(os.Args[1:]))

	dir, err := config.DataDir(*dataDir)
	must("resolve data directory", err)

	// The terminal belongs to the UI, so logs go to a rotated file.
	var logOut io.Writer = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "cranktui.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	}
	if *debug {
		logOut = io.MultiWriter(logOut, os.Stderr)
	}
	logger := log.New(logOut, "", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(dir, logger)
	must("load config", err)
	must("bind flags", cfg.BindFlags(flags))

	routesDir, err := route.RoutesDir(cfg.RoutesDir())
	must("resolve routes directory", err)
	must("create demo routes", route.EnsureDemoRoutes(routesDir))
	routes, err := route.LoadAll(routesDir, logger)
	must("load routes", err)
	if len(routes) == 0 {
		must("find a route", fmt.Errorf("no routes in %s", routesDir))
	}
	selected := routes[0]
	if *routeName != "" {
		selected = nil
		for _, r := range routes {
			if r.Name == *routeName {
				selected = r
				break
			}
		}
		if selected == nil {
			must("find route", fmt.Errorf("no route named %q in %s", *routeName, routesDir))
		}
	}
	logger.Printf("main: riding %q (%.1f km)", selected.Name, selected.DistanceKm)

	ridesDir, err := recorder.RidesDir(cfg.RidesDir())
	must("resolve rides directory", err)

	store := ride.NewStore()
	manager := bt.NewAdapterManager(adapter, logger)
	if err := manager.Enable(); err != nil {
		if !*demoMode {
			must("enable BLE stack", err)
		}
		logger.Printf("main: BLE unavailable (%v), demo data only", err)
	}

	session := trainer.NewSession(manager, logger)
	sim := trainer.NewSimController(session, store, selected,
		cfg.RiderWeightKg(), cfg.BikeWeightKg(), logger)
	demo := trainer.NewDemoSimulator(store, selected, logger)
	rec := recorder.NewRideLogger(selected.Name, ridesDir, store, logger)

	view := ui.NewView(ui.Deps{
		Logger:   logger,
		Manager:  manager,
		Session:  session,
		Sim:      sim,
		Demo:     demo,
		Store:    store,
		Recorder: rec,
		Config:   cfg,
		Route:    selected,
	})
	view.Initialize()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *demoMode {
		demo.Start(ctx)
	}

	err = view.Run(ctx)
	manager.Shutdown()
	must("run UI", err)
}
