// Package planner runs a full route solve: load the day's records, build the
// instance, fetch the matrix, search, decode and persist.
package planner

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"routesolver/internal/apperr"
	"routesolver/internal/events"
	"routesolver/internal/matrix"
	"routesolver/internal/metrics"
	"routesolver/internal/model"
	"routesolver/internal/opt"
	"routesolver/internal/store"
)

const DefaultMetersPerMile = 1600

// Request is one dispatcher solve request.
type Request struct {
	InvoiceDate   time.Time
	Miles         float64 // maximum route distance
	MaxOrders     int     // maximum customer stops per vehicle
	RouteLength   float64 // maximum route duration in hours
	UnloadingTime float64 // minutes spent at each customer
}

// Limits converts the request into solver bounds.
func (r Request) Limits(metersPerMile float64) opt.Limits {
	if metersPerMile <= 0 {
		metersPerMile = DefaultMetersPerMile
	}
	return opt.Limits{
		MaxStops:    r.MaxOrders,
		MaxDistance: int64(math.Round(r.Miles * metersPerMile)),
		MaxDuration: int64(math.Round(r.RouteLength * 3600)),
		ServiceTime: int64(math.Round(r.UnloadingTime * 60)),
	}
}

type Config struct {
	Build         opt.BuildConfig
	Search        opt.Settings
	MetersPerMile float64
	ReportDivisor float64
	MaxWait       int64
	Horizon       int64
}

// Planner serialises solves: a request arriving while another solve runs is
// rejected with a conflict.
type Planner struct {
	store  store.Store
	matrix matrix.Provider
	events events.Broker
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New wires a planner. broker may be nil.
func New(st store.Store, mp matrix.Provider, broker events.Broker, cfg Config, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{store: st, matrix: mp, events: broker, cfg: cfg, logger: logger, now: time.Now}
}

// Config returns the effective planner configuration.
func (p *Planner) Config() Config { return p.cfg }

func (p *Planner) Solve(ctx context.Context, req Request) (*model.RoutePlan, error) {
	if !p.mu.TryLock() {
		metrics.Solves.WithLabelValues("conflict").Inc()
		return nil, apperr.Conflict("a route solve is already running")
	}
	defer p.mu.Unlock()

	start := p.now()
	log := p.logger.With("invoice_date", req.InvoiceDate.Format(time.DateOnly))
	log.Info("solve started", "miles", req.Miles, "max_orders", req.MaxOrders, "route_length_h", req.RouteLength, "unloading_min", req.UnloadingTime)
	p.publish(events.SolveStarted, map[string]any{"invoice_date": req.InvoiceDate.Format(time.DateOnly)})

	plan, err := p.solve(ctx, log, req, start)
	metrics.SolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Solves.WithLabelValues(outcome(err)).Inc()
		if k := apperr.KindOf(err); k == apperr.KindInternal {
			log.Error("solve failed", "error", err)
		} else {
			log.Warn("solve rejected", "kind", k, "error", err)
		}
		p.publish(events.SolveFailed, map[string]any{
			"invoice_date": req.InvoiceDate.Format(time.DateOnly),
			"kind":         string(apperr.KindOf(err)),
			"error":        apperr.PublicMessage(err),
		})
		return nil, err
	}
	metrics.Solves.WithLabelValues("ok").Inc()
	p.publish(events.SolveCompleted, map[string]any{
		"solution_id":    plan.SolutionID,
		"invoice_date":   req.InvoiceDate.Format(time.DateOnly),
		"routes":         len(plan.VehicleRoutes),
		"dropped_orders": len(plan.DroppedOrders),
		"total_distance": plan.TotalDistance,
	})
	return plan, nil
}

func (p *Planner) solve(ctx context.Context, log *slog.Logger, req Request, start time.Time) (*model.RoutePlan, error) {
	in, err := p.store.LoadSolveInput(ctx, req.InvoiceDate)
	if err != nil {
		return nil, err
	}
	nodes, vehicles, err := opt.Consolidate(opt.BuildInput{
		Day:       req.InvoiceDate,
		Orders:    in.Orders,
		Customers: in.Customers,
		Vehicles:  in.Vehicles,
	}, p.cfg.Build)
	if err != nil {
		return nil, err
	}
	log.Info("instance consolidated", "orders", len(in.Orders), "stops", len(nodes)-1, "vehicles", len(vehicles))

	m, err := p.matrix.Matrix(ctx, opt.Locations(nodes))
	if err != nil {
		return nil, err
	}
	lim := req.Limits(p.cfg.MetersPerMile)
	lim.MaxWait = p.cfg.MaxWait
	lim.Horizon = p.cfg.Horizon
	inst, err := opt.NewInstance(nodes, vehicles, *m, lim)
	if err != nil {
		return nil, err
	}

	sol, err := opt.Solve(ctx, inst, p.cfg.Search)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindSearch {
			log.Error("route search failed", "error", err)
			return nil, &apperr.Error{
				Kind:    apperr.KindData,
				Message: "route search failed; correct the customer locations and try again",
				Err:     err,
			}
		}
		return nil, err
	}
	st := sol.Stats
	metrics.SearchIterations.Observe(float64(st.Iterations))
	metrics.DroppedNodes.Add(float64(len(sol.Dropped)))
	log.Info("search finished",
		"iterations", st.Iterations,
		"improvements", st.Improvements,
		"lns_runs", st.LNSRuns,
		"lns_accepted", st.LNSAccepted,
		"penalized_arcs", st.PenalizedArcs,
		"initial_cost", st.InitialCost.String(),
		"best_cost", st.BestCost.String(),
		"dropped", len(sol.Dropped),
		"stop_reason", st.StopReason,
		"elapsed", st.Elapsed)
	if sol.Warning != "" {
		log.Warn("no feasible routes", "warning", sol.Warning)
	}

	plan := opt.Decode(inst, sol, opt.DecodeMeta{
		SolutionID: opt.NewSolutionID(start),
		Date:       req.InvoiceDate,
		CreatedAt:  start.UTC(),
		Divisor:    p.cfg.ReportDivisor,
	})
	if err := p.store.SaveRoutePlan(ctx, &plan); err != nil {
		return nil, err
	}
	log.Info("route plan saved", "solution_id", plan.SolutionID, "routes", len(plan.VehicleRoutes), "total_distance", plan.TotalDistance)
	return &plan, nil
}

func (p *Planner) publish(typ string, data map[string]any) {
	if p.events == nil {
		return
	}
	p.events.Publish(events.TopicSolves, events.New(typ, data))
}

func outcome(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	switch apperr.KindOf(err) {
	case apperr.KindData:
		return "data_error"
	case apperr.KindUpstream:
		return "upstream_error"
	default:
		return "error"
	}
}
