package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"routesolver/internal/api"
	"routesolver/internal/buildinfo"
	"routesolver/internal/config"
	"routesolver/internal/events"
	"routesolver/internal/logging"
	"routesolver/internal/matrix"
	"routesolver/internal/metrics"
	"routesolver/internal/opt"
	"routesolver/internal/planner"
	"routesolver/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{
		Level:       logging.Level(cfg.Log.Level),
		ServiceName: "routesolver",
		Environment: cfg.Log.Environment,
		Version:     buildinfo.Version,
	})
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(cctx); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	var broker events.Broker = events.NewMemoryBroker()
	if rdb != nil {
		broker = events.NewRedisBroker(rdb, logger)
	}

	provider := newMatrix(cfg, rdb, logger)

	pl := planner.New(st, provider, broker, planner.Config{
		Build: opt.BuildConfig{
			Depot:        cfg.Depot.Point(),
			DepotAddress: cfg.Depot.Address,
			Region:       cfg.Region,
			Window:       cfg.Window.Opt(),
		},
		Search:        cfg.Solver.SearchSettings(),
		MetersPerMile: cfg.Solver.MetersPerMile,
		ReportDivisor: cfg.Solver.ReportDivisor,
		MaxWait:       cfg.Solver.MaxWait,
		Horizon:       cfg.Solver.Horizon,
	}, logger)

	metrics.RegisterDefault()
	srv := api.NewServer(pl, st, broker, logger)
	srv.SolverInfo = map[string]any{
		"timeLimit":     cfg.Solver.TimeLimit.String(),
		"lnsTimeLimit":  cfg.Solver.LNSTimeLimit.String(),
		"lnsEvery":      cfg.Solver.LNSEvery,
		"maxIterations": cfg.Solver.MaxIterations,
		"seed":          cfg.Solver.Seed,
		"maxWait":       cfg.Solver.MaxWait,
		"metersPerMile": cfg.Solver.MetersPerMile,
		"matrix":        cfg.Matrix.Provider,
		"store":         cfg.Store.Driver,
		"depot":         cfg.Depot.Point(),
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API listening", "addr", httpSrv.Addr, "store", cfg.Store.Driver, "matrix", cfg.Matrix.Provider)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(sctx)
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case "mongo":
		return store.NewMongo(store.MongoConfig{URI: cfg.Store.MongoURI, Database: cfg.Store.MongoDB}, logger), nil
	case "postgres":
		pg, err := store.NewPostgres(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close(ctx)
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return pg, nil
	default:
		mem := store.NewMemory()
		if cfg.Store.SeedPath != "" {
			seed, err := store.LoadSeedFile(cfg.Store.SeedPath)
			if err != nil {
				return nil, err
			}
			mem.Seed(seed)
			logger.Info("memory store seeded", "path", cfg.Store.SeedPath,
				"orders", len(seed.Orders), "customers", len(seed.Customers), "vehicles", len(seed.Vehicles))
		}
		return mem, nil
	}
}

func newMatrix(cfg config.Config, rdb *redis.Client, logger *slog.Logger) matrix.Provider {
	if cfg.Matrix.Provider == "haversine" {
		return matrix.Haversine{SpeedKph: cfg.Matrix.SpeedKph}
	}
	var cache matrix.Cache
	if rdb != nil {
		cache = matrix.NewRedisCache(rdb)
	}
	return matrix.NewOSRM(cfg.Matrix.OSRM, cache, logger)
}
