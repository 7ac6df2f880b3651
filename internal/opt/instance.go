package opt

import (
	"math"
	"strings"
	"time"

	"routesolver/internal/apperr"
	"routesolver/internal/model"
)

const DepotIndex = 0

// Node is a routable point. Index 0 is the depot, every other node is one
// customer carrying all of that customer's orders for the day.
type Node struct {
	Location     model.GeoPoint
	Demand       int64
	Earliest     int64
	Latest       int64
	Priority     int
	Penalty      int64
	OrderIDs     []string
	CustomerID   string
	CustomerName string
	Address      string
}

type Vehicle struct {
	ID       string
	Name     string
	Capacity int64
}

// BBox is the service region. The zero value accepts every coordinate.
type BBox struct {
	MinLat float64 `yaml:"minLat" json:"minLat"`
	MaxLat float64 `yaml:"maxLat" json:"maxLat"`
	MinLng float64 `yaml:"minLng" json:"minLng"`
	MaxLng float64 `yaml:"maxLng" json:"maxLng"`
}

func (b BBox) Contains(lat, lng float64) bool {
	if b == (BBox{}) {
		return true
	}
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

type BuildInput struct {
	Day       time.Time
	Orders    []model.Order
	Customers map[string]model.Customer
	Vehicles  []model.Vehicle
}

type BuildConfig struct {
	Depot        model.GeoPoint
	DepotAddress string
	Region       BBox
	Window       WindowConfig
}

// Consolidate turns the day's raw records into the node list (depot first)
// and the fleet. It performs no I/O so the caller can fetch a matrix for the
// returned node locations before freezing the instance.
func Consolidate(in BuildInput, cfg BuildConfig) ([]Node, []Vehicle, error) {
	var orders []model.Order
	for _, o := range in.Orders {
		if !o.Excluded() {
			orders = append(orders, o)
		}
	}
	if len(orders) == 0 {
		return nil, nil, apperr.Data("no orders found for %s", in.Day.Format("2006-01-02"))
	}
	if len(in.Vehicles) == 0 {
		return nil, nil, apperr.Data("no vehicles are available for orders")
	}
	fleet := make([]Vehicle, 0, len(in.Vehicles))
	for _, v := range in.Vehicles {
		if v.Capacity == nil {
			return nil, nil, apperr.Data("vehicle %s is missing capacity information", v.Label())
		}
		fleet = append(fleet, Vehicle{ID: v.ID, Name: v.Name, Capacity: int64(math.Round(*v.Capacity))})
	}

	depotAddr := cfg.DepotAddress
	if depotAddr == "" {
		depotAddr = "Depot Location"
	}
	nodes := []Node{{Location: cfg.Depot, Earliest: 0, Latest: DaySeconds, Address: depotAddr}}
	weekday := Weekday(in.Day)
	byCustomer := map[string]int{}
	weights := []float64{0}
	for _, o := range orders {
		cust, ok := in.Customers[o.CustomerID]
		if !ok || o.CustomerID == "" {
			return nil, nil, apperr.Data("customer not found for order %s", o.ID)
		}
		idx, seen := byCustomer[o.CustomerID]
		if !seen {
			name := strings.TrimSpace(cust.Name)
			if name == "" {
				name = cust.ID
			}
			if cust.Latitude == nil || cust.Longitude == nil {
				return nil, nil, apperr.Data("missing map location for %s", name)
			}
			lat, lng := *cust.Latitude, *cust.Longitude
			if !cfg.Region.Contains(lat, lng) {
				return nil, nil, apperr.Data("%s location could not be found in the service region", name)
			}
			open, closeAt := ResolveWindow(cust, weekday, cfg.Window)
			idx = len(nodes)
			byCustomer[o.CustomerID] = idx
			nodes = append(nodes, Node{
				Location:     model.GeoPoint{Lat: lat, Lng: lng},
				Earliest:     open,
				Latest:       closeAt,
				Priority:     math.MinInt,
				CustomerID:   cust.ID,
				CustomerName: cust.Name,
				Address:      cust.Address,
			})
			weights = append(weights, 0)
		}
		n := &nodes[idx]
		n.OrderIDs = append(n.OrderIDs, o.ID)
		for _, it := range o.Items {
			weights[idx] += it.Weight()
		}
		if p := ParsePriority(o.PriorityValue); p > n.Priority {
			n.Priority = p
		}
	}
	for i := 1; i < len(nodes); i++ {
		nodes[i].Demand = int64(math.Round(weights[i]))
		nodes[i].Penalty = DropPenalty(nodes[i].Priority)
	}
	return nodes, fleet, nil
}

// Locations lists node coordinates in node order, ready for a matrix request.
func Locations(nodes []Node) []model.GeoPoint {
	out := make([]model.GeoPoint, len(nodes))
	for i, n := range nodes {
		out[i] = n.Location
	}
	return out
}

// Matrix holds arc distances in metres and durations in seconds.
type Matrix struct {
	Distances [][]int64
	Durations [][]int64
}

// Limits are the per-request route bounds.
type Limits struct {
	MaxStops    int
	MaxDistance int64 // metres
	MaxDuration int64 // seconds
	ServiceTime int64 // seconds spent at each customer
	MaxWait     int64 // waiting allowed at a node before moving on
	Horizon     int64
}

const DefaultMaxWait = 20 * 60

// Instance is the immutable routing problem handed to the search.
type Instance struct {
	nodes    []Node
	vehicles []Vehicle
	dist     [][]int64
	dur      [][]int64
	limits   Limits
}

// NewInstance validates the matrix against the node list and freezes the
// problem. A mis-shaped matrix is the provider's fault and reports as an
// upstream error.
func NewInstance(nodes []Node, vehicles []Vehicle, m Matrix, lim Limits) (*Instance, error) {
	n := len(nodes)
	if n == 0 {
		return nil, apperr.Data("instance has no nodes")
	}
	if len(vehicles) == 0 {
		return nil, apperr.Data("instance has no vehicles")
	}
	if len(m.Distances) != n || len(m.Durations) != n {
		return nil, apperr.Upstream(nil, "distance matrix has %d/%d rows, expected %d", len(m.Distances), len(m.Durations), n)
	}
	for i := 0; i < n; i++ {
		if len(m.Distances[i]) != n || len(m.Durations[i]) != n {
			return nil, apperr.Upstream(nil, "distance matrix row %d is not of length %d", i, n)
		}
	}
	if lim.MaxStops < 0 || lim.MaxDistance < 0 || lim.MaxDuration < 0 || lim.ServiceTime < 0 {
		return nil, apperr.Data("route limits must not be negative")
	}
	if lim.Horizon <= 0 {
		lim.Horizon = DaySeconds
	}
	if lim.MaxWait <= 0 {
		lim.MaxWait = DefaultMaxWait
	}
	inst := &Instance{
		nodes:    append([]Node(nil), nodes...),
		vehicles: append([]Vehicle(nil), vehicles...),
		dist:     make([][]int64, n),
		dur:      make([][]int64, n),
		limits:   lim,
	}
	for i := 0; i < n; i++ {
		inst.nodes[i].OrderIDs = append([]string(nil), nodes[i].OrderIDs...)
		if i != DepotIndex && inst.nodes[i].Penalty == 0 {
			inst.nodes[i].Penalty = DropPenalty(inst.nodes[i].Priority)
		}
		inst.dist[i] = append([]int64(nil), m.Distances[i]...)
		inst.dur[i] = append([]int64(nil), m.Durations[i]...)
	}
	inst.nodes[DepotIndex].Demand = 0
	return inst, nil
}

func (in *Instance) Size() int { return len(in.nodes) }
func (in *Instance) Node(i int) Node { return in.nodes[i] }
func (in *Instance) Vehicles() []Vehicle { return append([]Vehicle(nil), in.vehicles...) }
func (in *Instance) Limits() Limits { return in.limits }
func (in *Instance) Distance(i, j int) int64 { return in.dist[i][j] }
func (in *Instance) Duration(i, j int) int64 { return in.dur[i][j] }

// OrderIndex maps each customer node to the order IDs it represents.
func (in *Instance) OrderIndex() map[int][]string {
	out := make(map[int][]string, len(in.nodes)-1)
	for i := 1; i < len(in.nodes); i++ {
		out[i] = append([]string(nil), in.nodes[i].OrderIDs...)
	}
	return out
}

// service is the time spent at node i before leaving it.
func (in *Instance) service(i int) int64 {
	if i == DepotIndex {
		return 0
	}
	return in.limits.ServiceTime
}

// transit is the time dimension increment for the arc i->j.
func (in *Instance) transit(i, j int) int64 {
	return in.dur[i][j] + in.service(i)
}
