package opt

import (
	"strings"
	"testing"
	"time"

	"routesolver/internal/model"
)

func TestDecodeExampleScenario(t *testing.T) {
	// Depot at (0,0), one van of capacity 100, one customer 10 away with
	// demand 5 and priority 1.
	c := customer(5, 1, "ord-1")
	c.CustomerID, c.CustomerName, c.Address = "cust-1", "Alpha Foods", "1 High St"
	c.Location = model.GeoPoint{Lat: 55.86, Lng: -4.25}
	inst := lineInstance(t, []int64{10}, []Node{c}, []int64{100, 100}, wideLimits())
	sol := mustSolve(t, inst, quick())

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 3, 4, 7, 30, 15, 0, time.UTC)
	plan := Decode(inst, sol, DecodeMeta{Date: day, CreatedAt: created})

	if plan.SolutionID != "SOL_20240304073015" {
		t.Fatalf("solution id %q", plan.SolutionID)
	}
	if len(plan.VehicleRoutes) != 1 {
		t.Fatalf("expected the idle vehicle to be skipped, got %d routes", len(plan.VehicleRoutes))
	}
	vr := plan.VehicleRoutes[0]
	if vr.TotalWeightKg != 5 {
		t.Fatalf("total weight %d", vr.TotalWeightKg)
	}
	if vr.DistanceKm != 0.01 || plan.TotalDistance != 0.01 {
		t.Fatalf("distance %v total %v, want round(20/1600, 2)", vr.DistanceKm, plan.TotalDistance)
	}
	if vr.Zone != "Zone - 1" {
		t.Fatalf("zone %q", vr.Zone)
	}
	if len(vr.Stops) != 3 {
		t.Fatalf("expected depot, delivery, depot; got %d stops", len(vr.Stops))
	}
	start, del, end := vr.Stops[0], vr.Stops[1], vr.Stops[2]
	if start.Type != model.StopDepot || end.Type != model.StopDepot || del.Type != model.StopDelivery {
		t.Fatalf("stop types %s/%s/%s", start.Type, del.Type, end.Type)
	}
	if start.ArrivalTime != "00:00" || start.TravelTime != "0min" || start.Distance != 0 {
		t.Fatalf("start depot stop %+v", start)
	}
	if strings.Join(del.OrderIDs, ",") != "ord-1" || del.CustomerID != "cust-1" || del.CustomerName != "Alpha Foods" {
		t.Fatalf("delivery stop %+v", del)
	}
	if del.Location != "55.86,-4.25" || del.Address != "1 High St" {
		t.Fatalf("delivery location %q address %q", del.Location, del.Address)
	}
	if len(plan.DroppedOrders) != 0 {
		t.Fatalf("dropped %v", plan.DroppedOrders)
	}
	if plan.Stats == nil || !plan.Stats.Feasible {
		t.Fatalf("stats %+v", plan.Stats)
	}
}

func TestDecodeAppliesServiceTimeToArrivals(t *testing.T) {
	nodes := []Node{{Demand: 1, Earliest: 9 * 3600, Latest: 10 * 3600, OrderIDs: []string{"a"}}}
	lim := wideLimits()
	lim.ServiceTime = 600
	inst := lineInstance(t, []int64{1800}, nodes, []int64{10}, lim)
	sol := mustSolve(t, inst, quick())
	r := sol.Routes[0]
	if r.Customers() != 1 {
		t.Fatalf("customer not served")
	}
	plan := Decode(inst, sol, DecodeMeta{SolutionID: "SOL_X"})
	stops := plan.VehicleRoutes[0].Stops
	// Served at 09:00, having left the depot at 08:30.
	if stops[0].DepartureTime != "08:30" {
		t.Fatalf("depot departure %q", stops[0].DepartureTime)
	}
	// The shown arrival is the service start less the service time, so it
	// lands before the 09:00 window opening even though service starts on time.
	if stops[1].DepartureTime != "09:00" || stops[1].ArrivalTime != "08:50" {
		t.Fatalf("delivery times %q/%q", stops[1].ArrivalTime, stops[1].DepartureTime)
	}
	if stops[1].TravelTime != "30min" {
		t.Fatalf("travel %q", stops[1].TravelTime)
	}
	// Back at 09:40 (30 min drive after 10 min service); the closing depot
	// arrival also has the service time taken off.
	if stops[2].DepartureTime != "09:40" || stops[2].ArrivalTime != "09:30" {
		t.Fatalf("closing depot %q/%q", stops[2].ArrivalTime, stops[2].DepartureTime)
	}
	if stops[1].Distance != 1.13 {
		t.Fatalf("distance %v, want round(1800/1600, 2)", stops[1].Distance)
	}
}

func TestDecodeListsDroppedOrders(t *testing.T) {
	nodes := []Node{customer(8, 1, "low-a", "low-b"), customer(8, 1000, "high")}
	inst := lineInstance(t, []int64{10, 100}, nodes, []int64{10}, wideLimits())
	sol := mustSolve(t, inst, quick())
	plan := Decode(inst, sol, DecodeMeta{SolutionID: "SOL_Y", Divisor: 1000})
	if strings.Join(plan.DroppedOrders, ",") != "low-a,low-b" {
		t.Fatalf("dropped orders %v", plan.DroppedOrders)
	}
	if plan.TotalDistance != 0.2 {
		t.Fatalf("total distance %v", plan.TotalDistance)
	}
	zones := plan.OrderZones()
	if zones["high"] != "Zone - 1(1)" {
		t.Fatalf("zone tag %q", zones["high"])
	}
}

func TestFormatting(t *testing.T) {
	clock := map[int64]string{0: "00:00", 3599: "00:59", 8*3600 + 5*60: "08:05", DaySeconds + 3600: "01:00", -30: "00:00"}
	for in, want := range clock {
		if got := FormatClock(in); got != want {
			t.Fatalf("FormatClock(%d)=%q want %q", in, got, want)
		}
	}
	travel := map[int64]string{0: "0min", 59: "0min", 600: "10min", 3599: "59min", 3600: "1h 0m", 5430: "1h 30m"}
	for in, want := range travel {
		if got := FormatTravel(in); got != want {
			t.Fatalf("FormatTravel(%d)=%q want %q", in, got, want)
		}
	}
}
