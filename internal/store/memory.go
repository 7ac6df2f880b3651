package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"routesolver/internal/model"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
	mu        sync.Mutex
	orders    map[string]model.Order // id -> order
	orderIDs  []string               // insertion order
	customers map[string]model.Customer
	vehicles  []model.Vehicle
	plans     map[string]model.RoutePlan // solution id -> plan
}

func NewMemory() *Memory {
	return &Memory{
		orders:    map[string]model.Order{},
		customers: map[string]model.Customer{},
		plans:     map[string]model.RoutePlan{},
	}
}

// Seed is the fixture format for the memory store and the offline CLI.
type Seed struct {
	Orders    []model.Order    `json:"orders"`
	Customers []model.Customer `json:"customers"`
	Vehicles  []model.Vehicle  `json:"vehicles"`
}

// LoadSeedFile reads a JSON seed.
func LoadSeedFile(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	var s Seed
	if err := json.Unmarshal(raw, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return s, nil
}

// Seed adds records. Orders and vehicles without an ID get a fresh one;
// records with an existing ID replace the stored copy.
func (m *Memory) Seed(s Seed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range s.Orders {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		if _, ok := m.orders[o.ID]; !ok {
			m.orderIDs = append(m.orderIDs, o.ID)
		}
		m.orders[o.ID] = o
	}
	for _, c := range s.Customers {
		m.customers[c.ID] = c
	}
	for _, v := range s.Vehicles {
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		if i := m.vehicleIndex(v.ID); i >= 0 {
			m.vehicles[i] = v
			continue
		}
		m.vehicles = append(m.vehicles, v)
	}
}

func (m *Memory) vehicleIndex(id string) int {
	for i, v := range m.vehicles {
		if v.ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) LoadSolveInput(ctx context.Context, day time.Time) (SolveInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := dayBounds(day)
	in := SolveInput{Customers: map[string]model.Customer{}}
	for _, id := range m.orderIDs {
		o := m.orders[id]
		if o.InvoiceDate.Before(from) || !o.InvoiceDate.Before(to) {
			continue
		}
		in.Orders = append(in.Orders, o)
		if c, ok := m.customers[o.CustomerID]; ok {
			in.Customers[c.ID] = c
		}
	}
	for _, v := range m.vehicles {
		if v.Availability == model.VehicleAvailable {
			in.Vehicles = append(in.Vehicles, v)
		}
	}
	return in, nil
}

func (m *Memory) SaveRoutePlan(ctx context.Context, plan *model.RoutePlan) error {
	cp, err := clonePlan(plan)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.SolutionID] = cp
	assigned := map[string]bool{}
	for _, id := range plan.VehicleIDs() {
		assigned[id] = true
	}
	for i := range m.vehicles {
		m.vehicles[i].Status = model.VehicleUnassigned
		if assigned[m.vehicles[i].ID] {
			m.vehicles[i].Status = model.VehicleAssigned
		}
	}
	for id, zone := range plan.OrderZones() {
		if o, ok := m.orders[id]; ok {
			o.Zone = zone
			m.orders[id] = o
		}
	}
	return nil
}

func (m *Memory) GetRoutePlan(ctx context.Context, solutionID string) (*model.RoutePlan, error) {
	m.mu.Lock()
	p, ok := m.plans[solutionID]
	m.mu.Unlock()
	if !ok {
		return nil, planNotFound(solutionID)
	}
	cp, err := clonePlan(&p)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// ListRoutePlans returns the plans for day, newest first.
func (m *Memory) ListRoutePlans(ctx context.Context, day time.Time) ([]model.RoutePlanSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := dayBounds(day)
	out := []model.RoutePlanSummary{}
	for _, p := range m.plans {
		if p.Date.Before(from) || !p.Date.Before(to) {
			continue
		}
		out = append(out, p.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Order returns a stored order; used by tests and the CLI.
func (m *Memory) Order(id string) (model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

// Vehicles returns a snapshot of the fleet.
func (m *Memory) Vehicles() []model.Vehicle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Vehicle(nil), m.vehicles...)
}

func (m *Memory) Ping(ctx context.Context) error  { return nil }
func (m *Memory) Close(ctx context.Context) error { return nil }

func clonePlan(p *model.RoutePlan) (model.RoutePlan, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return model.RoutePlan{}, err
	}
	var cp model.RoutePlan
	err = json.Unmarshal(raw, &cp)
	return cp, err
}
