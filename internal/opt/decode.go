package opt

import (
	"fmt"
	"time"

	"routesolver/internal/model"
)

type DecodeMeta struct {
	SolutionID string
	Date       time.Time
	CreatedAt  time.Time
	// Divisor converts matrix metres into reported distance units.
	Divisor float64
}

// Decode renders a solution as a route plan. Vehicles without customers are
// left out and the remaining routes are labelled "Zone - 1", "Zone - 2", ...
// in fleet order.
//
// A stop's departure is the time dimension value at the node and its
// arrival is that value less the service time. The closing depot stop gets
// the same subtraction even though no service happens there.
func Decode(inst *Instance, sol *Solution, meta DecodeMeta) model.RoutePlan {
	div := meta.Divisor
	if div <= 0 {
		div = DefaultReportDivisor
	}
	if meta.SolutionID == "" {
		meta.SolutionID = NewSolutionID(meta.CreatedAt)
	}
	plan := model.RoutePlan{
		SolutionID:    meta.SolutionID,
		Date:          meta.Date,
		CreatedAt:     meta.CreatedAt,
		VehicleRoutes: []model.VehicleRoute{},
	}
	if sol == nil {
		return plan
	}
	service := inst.limits.ServiceTime
	var total int64
	zone := 0
	for _, r := range sol.Routes {
		if r.Customers() == 0 {
			continue
		}
		zone++
		v := inst.vehicles[r.Vehicle]
		vr := model.VehicleRoute{
			VehicleID:     v.ID,
			VehicleName:   v.Name,
			DistanceKm:    round2(float64(r.Distance) / div),
			TotalWeightKg: int(r.Load),
			Zone:          fmt.Sprintf("Zone - %d", zone),
		}
		for i, vis := range r.Visits {
			node := inst.nodes[vis.Node]
			st := model.Stop{
				Type:          model.StopDepot,
				Address:       node.Address,
				Location:      node.Location.String(),
				DepartureTime: FormatClock(vis.Cumul),
				ArrivalTime:   FormatClock(vis.Cumul - service),
				TravelTime:    FormatTravel(vis.Travel),
				Distance:      round2(float64(vis.Distance) / div),
			}
			switch {
			case i == 0:
				st.ArrivalTime = FormatClock(0)
			case vis.Node != DepotIndex:
				st.Type = model.StopDelivery
				st.OrderIDs = append([]string(nil), node.OrderIDs...)
				st.CustomerID = node.CustomerID
				st.CustomerName = node.CustomerName
			}
			vr.Stops = append(vr.Stops, st)
		}
		total += r.Distance
		plan.VehicleRoutes = append(plan.VehicleRoutes, vr)
	}
	plan.TotalDistance = round2(float64(total) / div)
	for _, n := range sol.Dropped {
		plan.DroppedOrders = append(plan.DroppedOrders, inst.nodes[n].OrderIDs...)
	}
	plan.Stats = &model.SolveStats{
		Iterations:    sol.Stats.Iterations,
		Improvements:  sol.Stats.Improvements,
		LNSRuns:       sol.Stats.LNSRuns,
		DroppedNodes:  len(sol.Dropped),
		ObjectiveDist: sol.Cost.Distance,
		ElapsedMs:     sol.Stats.Elapsed.Milliseconds(),
		Feasible:      sol.Warning == "",
	}
	return plan
}
