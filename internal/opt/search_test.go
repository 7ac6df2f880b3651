package opt

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"
)

// lineInstance places the depot at x=0 and customers at xs on a line.
// Distance is |dx| metres and travel time |dx| seconds.
func lineInstance(t *testing.T, xs []int64, nodes []Node, caps []int64, lim Limits) *Instance {
	t.Helper()
	pts := append([]int64{0}, xs...)
	n := len(pts)
	m := Matrix{Distances: make([][]int64, n), Durations: make([][]int64, n)}
	for i := range pts {
		m.Distances[i] = make([]int64, n)
		m.Durations[i] = make([]int64, n)
		for j := range pts {
			d := pts[i] - pts[j]
			if d < 0 {
				d = -d
			}
			m.Distances[i][j] = d
			m.Durations[i][j] = d
		}
	}
	all := append([]Node{{Latest: DaySeconds}}, nodes...)
	var fleet []Vehicle
	for i, c := range caps {
		fleet = append(fleet, Vehicle{ID: string(rune('A' + i)), Name: "Van", Capacity: c})
	}
	inst, err := NewInstance(all, fleet, m, lim)
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	return inst
}

func wideLimits() Limits {
	return Limits{MaxStops: 100, MaxDistance: 1_000_000, MaxDuration: DaySeconds}
}

func customer(demand int64, priority int, ids ...string) Node {
	return Node{Demand: demand, Priority: priority, Earliest: 0, Latest: DaySeconds, OrderIDs: ids}
}

func quick() Settings {
	return Settings{TimeLimit: 2 * time.Second, MaxIterations: 10, Seed: 7}
}

func mustSolve(t *testing.T, inst *Instance, set Settings) *Solution {
	t.Helper()
	sol, err := Solve(context.Background(), inst, set)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	checkSolution(t, inst, sol)
	return sol
}

// checkSolution verifies every hard constraint independently of the
// evaluator used by the search.
func checkSolution(t *testing.T, inst *Instance, sol *Solution) {
	t.Helper()
	lim := inst.Limits()
	seen := map[int]bool{}
	if len(sol.Routes) != len(inst.vehicles) {
		t.Fatalf("expected one route per vehicle, got %d", len(sol.Routes))
	}
	for _, r := range sol.Routes {
		vs := r.Visits
		if len(vs) < 2 || vs[0].Node != DepotIndex || vs[len(vs)-1].Node != DepotIndex {
			t.Fatalf("vehicle %d route does not start and end at the depot: %+v", r.Vehicle, vs)
		}
		var load, dist int64
		stops := 0
		for i := 1; i < len(vs); i++ {
			prev, cur := vs[i-1], vs[i]
			if i < len(vs)-1 {
				if cur.Node == DepotIndex {
					t.Fatalf("depot visited mid-route")
				}
				if seen[cur.Node] {
					t.Fatalf("node %d served twice", cur.Node)
				}
				seen[cur.Node] = true
				nd := inst.Node(cur.Node)
				load += nd.Demand
				stops++
				if cur.Cumul < nd.Earliest || cur.Cumul > nd.Latest {
					t.Fatalf("node %d served at %d outside [%d,%d]", cur.Node, cur.Cumul, nd.Earliest, nd.Latest)
				}
			}
			dist += inst.Distance(prev.Node, cur.Node)
			if cur.Distance != inst.Distance(prev.Node, cur.Node) || cur.Travel != inst.Duration(prev.Node, cur.Node) {
				t.Fatalf("visit arc data mismatch at %d", i)
			}
			svc := int64(0)
			if prev.Node != DepotIndex {
				svc = lim.ServiceTime
			}
			wait := cur.Cumul - prev.Cumul - inst.Duration(prev.Node, cur.Node) - svc
			if r.Customers() > 0 && (wait < 0 || wait > lim.MaxWait) {
				t.Fatalf("vehicle %d wait %d before visit %d out of [0,%d]", r.Vehicle, wait, i, lim.MaxWait)
			}
		}
		for _, v := range vs {
			if v.Cumul < 0 || v.Cumul > lim.Horizon {
				t.Fatalf("cumul %d outside horizon", v.Cumul)
			}
		}
		if load > inst.vehicles[r.Vehicle].Capacity {
			t.Fatalf("vehicle %d overloaded: %d", r.Vehicle, load)
		}
		if stops > lim.MaxStops {
			t.Fatalf("vehicle %d makes %d stops", r.Vehicle, stops)
		}
		if dist > lim.MaxDistance || dist != r.Distance {
			t.Fatalf("vehicle %d distance %d (reported %d, max %d)", r.Vehicle, dist, r.Distance, lim.MaxDistance)
		}
		if d := vs[len(vs)-1].Cumul - vs[0].Cumul; d > lim.MaxDuration {
			t.Fatalf("vehicle %d duration %d exceeds %d", r.Vehicle, d, lim.MaxDuration)
		}
	}
	for _, n := range sol.Dropped {
		if seen[n] {
			t.Fatalf("node %d both served and dropped", n)
		}
		seen[n] = true
	}
	if len(seen) != inst.Size()-1 {
		t.Fatalf("served+dropped=%d, want %d", len(seen), inst.Size()-1)
	}
}

func TestSolveSingleCustomerRoundTrip(t *testing.T) {
	inst := lineInstance(t, []int64{10}, []Node{customer(0, 1, "o1")}, []int64{100}, wideLimits())
	sol := mustSolve(t, inst, quick())
	if len(sol.Dropped) != 0 {
		t.Fatalf("customer dropped: %v", sol.Dropped)
	}
	r := sol.Routes[0]
	if r.Customers() != 1 {
		t.Fatalf("expected one delivery stop, got %d", r.Customers())
	}
	if r.Distance != 20 || sol.Cost.Distance != 20 {
		t.Fatalf("round trip distance=%d cost=%v", r.Distance, sol.Cost)
	}
	if sol.Cost.Penalty != 0 {
		t.Fatalf("unexpected penalty %d", sol.Cost.Penalty)
	}
}

func TestSolveServesEveryoneWhenFeasible(t *testing.T) {
	xs := []int64{10, 20, 30, -15, -25, 40}
	var nodes []Node
	for range xs {
		nodes = append(nodes, customer(3, 1))
	}
	inst := lineInstance(t, xs, nodes, []int64{10, 10}, wideLimits())
	sol := mustSolve(t, inst, quick())
	if len(sol.Dropped) != 0 {
		t.Fatalf("dropped %v although every node fits", sol.Dropped)
	}
	if sol.Warning != "" {
		t.Fatalf("unexpected warning %q", sol.Warning)
	}
}

func TestSolveDropsLowerPriorityOnCapacity(t *testing.T) {
	// The low priority customer is closer, so distance alone would favour it.
	nodes := []Node{customer(8, 1, "low"), customer(8, 1000, "high")}
	inst := lineInstance(t, []int64{10, 100}, nodes, []int64{10}, wideLimits())
	sol := mustSolve(t, inst, quick())
	if len(sol.Dropped) != 1 || sol.Dropped[0] != 1 {
		t.Fatalf("expected node 1 (low priority) dropped, got %v", sol.Dropped)
	}
	if sol.Routes[0].Customers() != 1 || sol.Routes[0].Visits[1].Node != 2 {
		t.Fatalf("high priority customer not served: %+v", sol.Routes[0].Visits)
	}
	if sol.Cost.Penalty != PenaltyStandard {
		t.Fatalf("penalty=%d", sol.Cost.Penalty)
	}
}

func TestSolveEjectsSeveralLowerPriorityNodes(t *testing.T) {
	// Serving the high priority customer needs both others out of the van.
	nodes := []Node{customer(5, 1, "low1"), customer(5, 1, "low2"), customer(10, 1000, "high")}
	inst := lineInstance(t, []int64{10, 12, 100}, nodes, []int64{10}, wideLimits())
	sol := mustSolve(t, inst, quick())
	if len(sol.Dropped) != 2 || sol.Dropped[0] != 1 || sol.Dropped[1] != 2 {
		t.Fatalf("expected both low priority customers dropped, got %v", sol.Dropped)
	}
	if sol.Routes[0].Customers() != 1 || sol.Routes[0].Visits[1].Node != 3 {
		t.Fatalf("high priority customer not served: %+v", sol.Routes[0].Visits)
	}
	if sol.Cost.Penalty != 2*PenaltyStandard {
		t.Fatalf("penalty=%d", sol.Cost.Penalty)
	}
}

func TestSolveKeepsNodesWhenEjectionCostsAsMuch(t *testing.T) {
	// Ten standard drops weigh exactly one high-tier drop, so nothing moves.
	var nodes []Node
	var xs []int64
	for i := 1; i <= 10; i++ {
		nodes = append(nodes, customer(1, 1, "low"))
		xs = append(xs, int64(i))
	}
	nodes = append(nodes, customer(10, 100, "high"))
	xs = append(xs, 100)
	inst := lineInstance(t, xs, nodes, []int64{10}, wideLimits())
	sol := mustSolve(t, inst, quick())
	if len(sol.Dropped) != 1 || sol.Dropped[0] != 11 {
		t.Fatalf("expected only the high tier customer dropped, got %v", sol.Dropped)
	}
	if sol.Cost.Penalty != PenaltyHigh {
		t.Fatalf("penalty=%d", sol.Cost.Penalty)
	}
}

func TestSolveRespectsStopsDistanceAndDuration(t *testing.T) {
	xs := []int64{100, 200, 300, 400}
	nodes := []Node{customer(1, 1), customer(1, 1), customer(1, 1), customer(1, 1)}
	lim := Limits{MaxStops: 2, MaxDistance: 700, MaxDuration: 500}
	inst := lineInstance(t, xs, nodes, []int64{50}, lim)
	sol := mustSolve(t, inst, quick())
	if sol.Routes[0].Customers() > 2 {
		t.Fatalf("stop limit ignored")
	}
	// Only trips reaching x<=250 fit the duration bound.
	for _, n := range sol.Dropped {
		if n <= 2 {
			t.Fatalf("reachable node %d dropped: %v", n, sol.Dropped)
		}
	}
}

func TestSolveTimeWindowsAndWaiting(t *testing.T) {
	// Node 2 opens late. Reaching it after node 1 means waiting, which is
	// capped, so the vehicle must leave the depot late enough.
	nodes := []Node{
		{Demand: 1, Earliest: 3600, Latest: 4000},
		{Demand: 1, Earliest: 5000, Latest: 5200},
	}
	lim := wideLimits()
	lim.ServiceTime = 300
	lim.MaxWait = 600
	inst := lineInstance(t, []int64{100, 200}, nodes, []int64{10}, lim)
	sol := mustSolve(t, inst, quick())
	if len(sol.Dropped) != 0 {
		t.Fatalf("both windows are reachable, dropped %v", sol.Dropped)
	}
}

func TestEvaluateRouteViolations(t *testing.T) {
	nodes := []Node{
		{Demand: 4, Earliest: 0, Latest: 100},
		{Demand: 4, Earliest: 5000, Latest: 6000},
	}
	lim := wideLimits()
	inst := lineInstance(t, []int64{10, 20}, nodes, []int64{10}, lim)
	if rep := inst.EvaluateRoute(0, []int{1, 2}, true); rep.Violation != ViolationWindow {
		t.Fatalf("expected waiting cap to break the window, got %q", rep.Violation)
	}
	rep := inst.EvaluateRoute(0, []int{2}, true)
	if !rep.Feasible() {
		t.Fatalf("late node alone should fit: %q", rep.Violation)
	}
	if rep.Cumul[0] != 5000-20 || rep.Cumul[1] != 5000 || rep.Cumul[2] != 5020 || rep.Duration != 40 {
		t.Fatalf("schedule %v duration %d", rep.Cumul, rep.Duration)
	}

	small := lineInstance(t, []int64{10, 20}, nodes, []int64{5}, lim)
	if rep := small.EvaluateRoute(0, []int{1, 2}, false); rep.Violation != ViolationCapacity {
		t.Fatalf("expected capacity violation, got %q", rep.Violation)
	}
	lim.MaxStops = 1
	few := lineInstance(t, []int64{10, 20}, nodes, []int64{10}, lim)
	if rep := few.EvaluateRoute(0, []int{1, 2}, false); rep.Violation != ViolationStops {
		t.Fatalf("expected stops violation, got %q", rep.Violation)
	}
	lim = wideLimits()
	lim.MaxDistance = 30
	short := lineInstance(t, []int64{10, 20}, nodes, []int64{10}, lim)
	if rep := short.EvaluateRoute(0, []int{2}, false); rep.Violation != ViolationDistance {
		t.Fatalf("expected distance violation, got %q", rep.Violation)
	}
	lim = wideLimits()
	lim.MaxDuration = 30
	brief := lineInstance(t, []int64{10, 20}, nodes, []int64{10}, lim)
	if rep := brief.EvaluateRoute(0, []int{2}, false); rep.Violation != ViolationDuration {
		t.Fatalf("expected duration violation, got %q", rep.Violation)
	}
	if rep := inst.EvaluateRoute(0, nil, true); !rep.Feasible() || rep.Distance != 0 {
		t.Fatalf("empty route must be feasible: %+v", rep)
	}
}

func TestSolveRandomInstancesHoldConstraints(t *testing.T) {
	for seed := int64(1); seed <= 4; seed++ {
		rng := rand.New(rand.NewSource(seed))
		const n = 14
		type pt struct{ x, y float64 }
		pts := []pt{{500, 500}}
		nodes := []Node{{Latest: DaySeconds}}
		for i := 0; i < n; i++ {
			pts = append(pts, pt{rng.Float64() * 1000, rng.Float64() * 1000})
			open := int64(rng.Intn(30000))
			nodes = append(nodes, Node{
				Demand:   int64(1 + rng.Intn(15)),
				Priority: []int{1, 150, 1500}[rng.Intn(3)],
				Earliest: open,
				Latest:   open + 3600 + int64(rng.Intn(20000)),
			})
		}
		m := Matrix{Distances: make([][]int64, n+1), Durations: make([][]int64, n+1)}
		for i := range pts {
			m.Distances[i] = make([]int64, n+1)
			m.Durations[i] = make([]int64, n+1)
			for j := range pts {
				d := math.Hypot(pts[i].x-pts[j].x, pts[i].y-pts[j].y)
				m.Distances[i][j] = int64(d)
				m.Durations[i][j] = int64(d / 5)
			}
		}
		fleet := []Vehicle{{ID: "a", Capacity: 40}, {ID: "b", Capacity: 40}, {ID: "c", Capacity: 25}}
		lim := Limits{MaxStops: 5, MaxDistance: 4000, MaxDuration: 6 * 3600, ServiceTime: 300, MaxWait: 1200}
		inst, err := NewInstance(nodes, fleet, m, lim)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		sol := mustSolve(t, inst, Settings{TimeLimit: 3 * time.Second, MaxIterations: 12, Seed: seed, LNSEvery: 3})
		if sol.Stats.BestCost != sol.Cost || sol.Cost.Less(Cost{}) {
			t.Fatalf("seed %d: inconsistent cost %v vs %v", seed, sol.Stats.BestCost, sol.Cost)
		}
		if sol.Stats.InitialCost.Less(sol.Cost) {
			t.Fatalf("seed %d: best %v worse than initial %v", seed, sol.Cost, sol.Stats.InitialCost)
		}
		// Anything dropped must have no feasible insertion left.
		for _, d := range sol.Dropped {
			for r, route := range sol.Routes {
				var seq []int
				for _, v := range route.Visits[1 : len(route.Visits)-1] {
					seq = append(seq, v.Node)
				}
				for p := 0; p <= len(seq); p++ {
					if inst.feasible(r, insertAt(seq, p, d)) {
						t.Fatalf("seed %d: node %d dropped but fits vehicle %d at %d", seed, d, r, p)
					}
				}
			}
		}
	}
}

func TestSolveHonoursCancellation(t *testing.T) {
	xs := []int64{10, 20, 30, 40, 50}
	var nodes []Node
	for range xs {
		nodes = append(nodes, customer(1, 1))
	}
	inst := lineInstance(t, xs, nodes, []int64{100, 100}, wideLimits())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	sol, err := Solve(ctx, inst, Settings{TimeLimit: time.Minute})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("cancelled solve ran for %v", time.Since(start))
	}
	if sol.Stats.StopReason != StopCancelled {
		t.Fatalf("stop reason %q", sol.Stats.StopReason)
	}
	checkSolution(t, inst, sol)
}

func TestSolveWarnsWhenNothingFits(t *testing.T) {
	inst := lineInstance(t, []int64{10}, []Node{customer(50, 1, "heavy")}, []int64{10}, wideLimits())
	sol := mustSolve(t, inst, quick())
	if sol.Warning == "" || len(sol.Dropped) != 1 {
		t.Fatalf("expected warning and a dropped node, got %q %v", sol.Warning, sol.Dropped)
	}
}

func TestCostIsLexicographicAndSaturating(t *testing.T) {
	a := Cost{Penalty: 0, Distance: math.MaxInt64 - 1}
	b := Cost{Penalty: PenaltyStandard}
	if !a.Less(b) {
		t.Fatalf("any distance must be cheaper than a drop")
	}
	sum := a.Add(Cost{Distance: 10})
	if sum.Distance != math.MaxInt64 {
		t.Fatalf("expected saturation, got %d", sum.Distance)
	}
}
