// Command solve runs one route solve offline against a JSON fixture using
// the in-memory store and straight-line distances.
//
//	solve -fixture day.json -date 2025-03-10 -miles 60 -max-orders 15 -route-hours 8 -unload-minutes 5
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"routesolver/internal/config"
	"routesolver/internal/logging"
	"routesolver/internal/matrix"
	"routesolver/internal/opt"
	"routesolver/internal/planner"
	"routesolver/internal/store"
)

var (
	fixture       = flag.String("fixture", "", "JSON file with orders, customers and vehicles")
	invoiceDate   = flag.String("date", "", "Invoice date (YYYY-MM-DD)")
	miles         = flag.Float64("miles", 60, "Maximum miles per route")
	maxOrders     = flag.Int("max-orders", 15, "Maximum orders per van")
	routeHours    = flag.Float64("route-hours", 8, "Maximum route length in hours")
	unloadMinutes = flag.Float64("unload-minutes", 5, "Unloading minutes per stop")
	timeLimit     = flag.Duration("time-limit", 10*time.Second, "Search time limit")
	seed          = flag.Int64("seed", 1, "Search seed")
	speedKph      = flag.Float64("speed", 40, "Average speed for straight-line travel times")
	verbose       = flag.Bool("v", false, "Log search progress to stderr")
)

func main() {
	flag.Parse()
	if *fixture == "" || *invoiceDate == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "solve: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	day, err := time.Parse(time.DateOnly, *invoiceDate)
	if err != nil {
		return fmt.Errorf("invalid -date: %w", err)
	}
	data, err := store.LoadSeedFile(*fixture)
	if err != nil {
		return err
	}
	mem := store.NewMemory()
	mem.Seed(data)

	level := logging.LevelWarn
	if *verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{Level: level, ServiceName: "routesolver-cli", Output: os.Stderr})

	def := config.Default()
	search := def.Solver.SearchSettings()
	search.TimeLimit = *timeLimit
	search.Seed = *seed
	if search.LNSTimeLimit > *timeLimit {
		search.LNSTimeLimit = *timeLimit
	}

	pl := planner.New(mem, matrix.Haversine{SpeedKph: *speedKph}, nil, planner.Config{
		Build: opt.BuildConfig{
			Depot:        def.Depot.Point(),
			DepotAddress: def.Depot.Address,
			Region:       def.Region,
			Window:       def.Window.Opt(),
		},
		Search:        search,
		MetersPerMile: def.Solver.MetersPerMile,
		ReportDivisor: def.Solver.ReportDivisor,
		MaxWait:       def.Solver.MaxWait,
		Horizon:       def.Solver.Horizon,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	plan, err := pl.Solve(ctx, planner.Request{
		InvoiceDate:   day,
		Miles:         *miles,
		MaxOrders:     *maxOrders,
		RouteLength:   *routeHours,
		UnloadingTime: *unloadMinutes,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
