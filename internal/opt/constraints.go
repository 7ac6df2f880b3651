package opt

import (
	"fmt"
	"math"
)

// Cost is the objective value of a solution: the sum of drop penalties and
// the sum of arc distances. Penalties dominate, so costs compare
// lexicographically and neither part can overflow.
type Cost struct {
	Penalty  int64 `json:"penalty"`
	Distance int64 `json:"distance"`
}

func (c Cost) Add(o Cost) Cost {
	return Cost{Penalty: satAdd(c.Penalty, o.Penalty), Distance: satAdd(c.Distance, o.Distance)}
}

func (c Cost) Less(o Cost) bool {
	if c.Penalty != o.Penalty {
		return c.Penalty < o.Penalty
	}
	return c.Distance < o.Distance
}

func (c Cost) String() string { return fmt.Sprintf("penalty=%d distance=%d", c.Penalty, c.Distance) }

func satAdd(a, b int64) int64 {
	s := a + b
	switch {
	case a > 0 && b > 0 && s < 0:
		return math.MaxInt64
	case a < 0 && b < 0 && s >= 0:
		return math.MinInt64
	}
	return s
}

// Violations reported by EvaluateRoute.
const (
	ViolationNone     = ""
	ViolationStops    = "stops"
	ViolationCapacity = "capacity"
	ViolationDistance = "distance"
	ViolationWindow   = "time window"
	ViolationDuration = "duration"
)

// RouteReport is the evaluation of one vehicle's customer sequence against
// every dimension. Cumul holds the time value at the start depot, at each
// customer and at the end depot.
type RouteReport struct {
	Stops     int
	Load      int64
	Distance  int64
	Duration  int64
	Cumul     []int64
	Violation string
}

func (r RouteReport) Feasible() bool { return r.Violation == ViolationNone }

// EvaluateRoute checks seq (customer nodes only, depot implied at both ends)
// for vehicle v. With schedule set, a concrete timing is returned in Cumul:
// the earliest possible return to the depot, reached from the latest
// possible departure, which also minimises the route duration.
func (in *Instance) EvaluateRoute(v int, seq []int, schedule bool) RouteReport {
	lim := in.limits
	rep := RouteReport{Stops: len(seq)}
	if rep.Stops > lim.MaxStops {
		rep.Violation = ViolationStops
		return rep
	}
	for _, n := range seq {
		rep.Load = satAdd(rep.Load, in.nodes[n].Demand)
	}
	if rep.Load > in.vehicles[v].Capacity {
		rep.Violation = ViolationCapacity
		return rep
	}
	rep.Distance = in.routeDistance(seq)
	if rep.Distance > lim.MaxDistance {
		rep.Violation = ViolationDistance
		return rep
	}

	// Feasible cumul values at each position form an interval [lo, hi].
	// Waiting at a node may not exceed MaxWait, so the interval carried
	// forward is widened by MaxWait on the upper side.
	k := len(seq)
	lo := make([]int64, k+2)
	hi := make([]int64, k+2)
	lo[0], hi[0] = 0, lim.Horizon
	prev := DepotIndex
	for i := 1; i <= k+1; i++ {
		cur := DepotIndex
		if i <= k {
			cur = seq[i-1]
		}
		t := in.transit(prev, cur)
		a := satAdd(lo[i-1], t)
		b := satAdd(satAdd(hi[i-1], t), lim.MaxWait)
		e, l := int64(0), lim.Horizon
		if cur != DepotIndex {
			e = in.nodes[cur].Earliest
			if ln := in.nodes[cur].Latest; ln < l {
				l = ln
			}
		}
		if e > a {
			a = e
		}
		if l < b {
			b = l
		}
		if a > b {
			rep.Violation = ViolationWindow
			return rep
		}
		lo[i], hi[i] = a, b
		prev = cur
	}

	// Walk back from the earliest end, leaving each node as late as allowed.
	end := lo[k+1]
	c := end
	if schedule {
		rep.Cumul = make([]int64, k+2)
		rep.Cumul[k+1] = end
	}
	for i := k; i >= 0; i-- {
		from := DepotIndex
		if i >= 1 {
			from = seq[i-1]
		}
		to := DepotIndex
		if i < k {
			to = seq[i]
		}
		c -= in.transit(from, to)
		if hi[i] < c {
			c = hi[i]
		}
		if schedule {
			rep.Cumul[i] = c
		}
	}
	rep.Duration = end - c
	if rep.Duration > lim.MaxDuration {
		rep.Violation = ViolationDuration
	}
	return rep
}

func (in *Instance) routeDistance(seq []int) int64 {
	if len(seq) == 0 {
		return 0
	}
	d := int64(0)
	prev := DepotIndex
	for _, n := range seq {
		d = satAdd(d, in.dist[prev][n])
		prev = n
	}
	return satAdd(d, in.dist[prev][DepotIndex])
}

func (in *Instance) feasible(v int, seq []int) bool {
	return in.EvaluateRoute(v, seq, false).Feasible()
}

// cost is the true objective of a set of routes plus the dropped nodes.
func (in *Instance) cost(routes [][]int) Cost {
	var c Cost
	served := make([]bool, len(in.nodes))
	for _, r := range routes {
		c.Distance = satAdd(c.Distance, in.routeDistance(r))
		for _, n := range r {
			served[n] = true
		}
	}
	for i := 1; i < len(in.nodes); i++ {
		if !served[i] {
			c.Penalty = satAdd(c.Penalty, in.nodes[i].Penalty)
		}
	}
	return c
}
