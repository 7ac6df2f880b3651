package store

import (
	"context"
	"time"

	"routesolver/internal/apperr"
	"routesolver/internal/model"
)

// SolveInput is everything the planner reads for one delivery day.
type SolveInput struct {
	Orders    []model.Order
	Customers map[string]model.Customer
	Vehicles  []model.Vehicle
}

// Store is the persistence interface used by the planner and the API server.
type Store interface {
	// LoadSolveInput returns the orders invoiced on day (midnight to
	// midnight in day's location), the customers they reference and the
	// available vehicles.
	LoadSolveInput(ctx context.Context, day time.Time) (SolveInput, error)

	// SaveRoutePlan stores the plan, marks its vehicles assigned (all others
	// unassigned) and tags each routed order with its zone and stop index.
	SaveRoutePlan(ctx context.Context, plan *model.RoutePlan) error
	GetRoutePlan(ctx context.Context, solutionID string) (*model.RoutePlan, error)
	ListRoutePlans(ctx context.Context, day time.Time) ([]model.RoutePlanSummary, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ErrNotFound matches any not-found error from a store via errors.Is.
var ErrNotFound = &apperr.Error{Kind: apperr.KindNotFound}

func planNotFound(id string) error { return apperr.NotFound("route plan", id) }

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

// everyDay repeats one business-hours value for each weekday.
func everyDay(hhmm string) []string {
	out := make([]string, 7)
	for i := range out {
		out[i] = hhmm
	}
	return out
}
