package api

import (
	"context"
	"log/slog"
	"net/http"

	"routesolver/internal/events"
	"routesolver/internal/metrics"
	"routesolver/internal/model"
	"routesolver/internal/planner"
	"routesolver/internal/store"
)

// Solver runs one solve; *planner.Planner in production.
type Solver interface {
	Solve(ctx context.Context, req planner.Request) (*model.RoutePlan, error)
}

type Server struct {
	Solver Solver
	Store  store.Store
	Broker events.Broker
	Logger *slog.Logger
	// SolverInfo is reported by /v1/solver/config.
	SolverInfo map[string]any
}

func NewServer(solver Solver, st store.Store, broker events.Broker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if broker == nil {
		broker = events.NewMemoryBroker()
	}
	return &Server{Solver: solver, Store: st, Broker: broker, Logger: logger, SolverInfo: map[string]any{}}
}

// Routes builds the HTTP handler with logging and metrics middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Solving
	mux.HandleFunc("/v1/solve", s.SolveHandler)
	mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)
	mux.HandleFunc("/v1/solves/ws", s.SolveEventsWSHandler)

	// Plans
	mux.HandleFunc("/v1/solutions", s.SolutionsHandler)
	mux.HandleFunc("/v1/solutions/", s.SolutionByIDHandler)

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metrics.Handler())

	// Docs
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", s.DocsHandler)
	mux.HandleFunc("/v1/version", s.VersionHandler)

	return s.logMiddleware(mux)
}
