package model

import (
	"fmt"
	"time"
)

// Records as supplied by the order system. Field names follow the stored
// documents so fixtures and API payloads round-trip without mapping.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (g GeoPoint) String() string { return fmt.Sprintf("%v,%v", g.Lat, g.Lng) }

// OrderItem weight is optional on stored documents; a missing weight counts
// as one kilogram.
type OrderItem struct {
	WeightKg *float64 `json:"weight_kg,omitempty"`
	Quantity int      `json:"quantity,omitempty"`
}

func (it OrderItem) Weight() float64 {
	w := 1.0
	if it.WeightKg != nil {
		w = *it.WeightKg
	}
	q := it.Quantity
	if q <= 0 {
		q = 1
	}
	return w * float64(q)
}

// Order statuses that never reach the solver.
const (
	OrderStatusCancelled = "cancelled"
)

type Order struct {
	ID             string      `json:"_id"`
	CustomerID     string      `json:"customer"`
	InvoiceDate    time.Time   `json:"invoice_date"`
	Items          []OrderItem `json:"items"`
	PriorityValue  any         `json:"priority_value,omitempty"`
	DeliveryStatus string      `json:"delivery_status,omitempty"`
	Flagged        bool        `json:"flagged,omitempty"`
	Zone           string      `json:"zone,omitempty"`
}

// Excluded reports whether the order is cancelled or flagged for review.
func (o Order) Excluded() bool {
	return o.Flagged || o.DeliveryStatus == OrderStatusCancelled
}

type Customer struct {
	ID                string   `json:"_id"`
	Name              string   `json:"customer_name"`
	Address           string   `json:"address,omitempty"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	BusinessStartHour []string `json:"business_start_hour,omitempty"`
	BusinessCloseHour []string `json:"business_close_hour,omitempty"`
}

// Vehicle availability and assignment states.
const (
	VehicleAvailable  = "available"
	VehicleAssigned   = "assigned"
	VehicleUnassigned = "unassigned"
)

type Vehicle struct {
	ID           string   `json:"_id"`
	Name         string   `json:"name"`
	Capacity     *float64 `json:"capacity"`
	Availability string   `json:"availability,omitempty"`
	Status       string   `json:"status,omitempty"`
}

// Label returns the name used in operator-facing messages.
func (v Vehicle) Label() string {
	if v.Name != "" {
		return v.Name
	}
	return v.ID
}

// Route plan read model

const (
	StopDepot    = "depot"
	StopDelivery = "delivery"
)

type RoutePlan struct {
	SolutionID    string         `json:"solution_id" bson:"solution_id"`
	Date          time.Time      `json:"date" bson:"date"`
	TotalDistance float64        `json:"total_distance" bson:"total_distance"`
	VehicleRoutes []VehicleRoute `json:"vehicle_routes" bson:"vehicle_routes"`
	DroppedOrders []string       `json:"dropped_orders,omitempty" bson:"dropped_orders,omitempty"`
	Stats         *SolveStats    `json:"stats,omitempty" bson:"stats,omitempty"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
}

type VehicleRoute struct {
	VehicleID     string  `json:"vehicle_id" bson:"vehicle_id"`
	VehicleName   string  `json:"vehicle_name,omitempty" bson:"vehicle_name,omitempty"`
	Stops         []Stop  `json:"stops" bson:"stops"`
	DistanceKm    float64 `json:"distance_veh_km" bson:"distance_veh_km"`
	TotalWeightKg int     `json:"total_weight_kg_veh" bson:"total_weight_kg_veh"`
	Zone          string  `json:"zone" bson:"zone"`
}

type Stop struct {
	Type          string   `json:"type" bson:"type"`
	OrderIDs      []string `json:"order_ids,omitempty" bson:"order_ids,omitempty"`
	CustomerID    string   `json:"customer_id,omitempty" bson:"customer_id,omitempty"`
	CustomerName  string   `json:"customer_name,omitempty" bson:"customer_name,omitempty"`
	Address       string   `json:"address" bson:"address"`
	Location      string   `json:"location" bson:"location"`
	ArrivalTime   string   `json:"arrival_time" bson:"arrival_time"`
	DepartureTime string   `json:"departure_time" bson:"departure_time"`
	TravelTime    string   `json:"travel_time" bson:"travel_time"`
	Distance      float64  `json:"distance" bson:"distance"`
}

// SolveStats summarises the search that produced a plan.
type SolveStats struct {
	Iterations    int   `json:"iterations" bson:"iterations"`
	Improvements  int   `json:"improvements" bson:"improvements"`
	LNSRuns       int   `json:"lnsRuns" bson:"lnsRuns"`
	DroppedNodes  int   `json:"droppedNodes" bson:"droppedNodes"`
	ObjectiveDist int64 `json:"objectiveDistance" bson:"objectiveDistance"`
	ElapsedMs     int64 `json:"elapsedMs" bson:"elapsedMs"`
	Feasible      bool  `json:"feasible" bson:"feasible"`
}

// RoutePlanSummary is the list view of a stored plan.
type RoutePlanSummary struct {
	SolutionID    string    `json:"solution_id" bson:"solution_id"`
	Date          time.Time `json:"date" bson:"date"`
	TotalDistance float64   `json:"total_distance" bson:"total_distance"`
	Routes        int       `json:"routes" bson:"routes"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

func (p *RoutePlan) Summary() RoutePlanSummary {
	return RoutePlanSummary{
		SolutionID:    p.SolutionID,
		Date:          p.Date,
		TotalDistance: p.TotalDistance,
		Routes:        len(p.VehicleRoutes),
		CreatedAt:     p.CreatedAt,
	}
}

// VehicleIDs lists the vehicles that received a route.
func (p *RoutePlan) VehicleIDs() []string {
	ids := make([]string, 0, len(p.VehicleRoutes))
	for _, r := range p.VehicleRoutes {
		ids = append(ids, r.VehicleID)
	}
	return ids
}

// OrderZones maps every routed order to "{zone}({stop_index})", where the
// stop index is the stop's position in its route (the start depot is 0).
func (p *RoutePlan) OrderZones() map[string]string {
	out := map[string]string{}
	for _, r := range p.VehicleRoutes {
		for i, st := range r.Stops {
			if st.Type != StopDelivery {
				continue
			}
			for _, id := range st.OrderIDs {
				out[id] = fmt.Sprintf("%s(%d)", r.Zone, i)
			}
		}
	}
	return out
}
