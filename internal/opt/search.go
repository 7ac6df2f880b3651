package opt

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"routesolver/internal/apperr"
)

const (
	DefaultTimeLimit    = 50 * time.Second
	DefaultLNSTimeLimit = 30 * time.Second
	DefaultLNSEvery     = 8
	DefaultGLSLambda    = 0.1
)

// Stop reasons reported in Stats.
const (
	StopTimeLimit      = "time_limit"
	StopIterationLimit = "iteration_limit"
	StopCancelled      = "cancelled"
	StopExhausted      = "exhausted"
)

// Settings bound and tune one search run.
type Settings struct {
	TimeLimit     time.Duration
	LNSTimeLimit  time.Duration
	MaxIterations int
	Seed          int64
	// LNSEvery is the number of guided local search iterations between two
	// large neighbourhood steps.
	LNSEvery int
	// GLSLambda scales arc penalties relative to the average arc length.
	GLSLambda float64
	// Initial roulette weights: removal [random, related], insertion [greedy, regret2].
	InitialRemovalWeights   []float64
	InitialInsertionWeights []float64
}

func (s Settings) withDefaults() Settings {
	if s.TimeLimit <= 0 {
		s.TimeLimit = DefaultTimeLimit
	}
	if s.LNSTimeLimit <= 0 {
		s.LNSTimeLimit = DefaultLNSTimeLimit
	}
	if s.LNSEvery <= 0 {
		s.LNSEvery = DefaultLNSEvery
	}
	if s.GLSLambda <= 0 {
		s.GLSLambda = DefaultGLSLambda
	}
	if s.Seed == 0 {
		s.Seed = 1
	}
	return s
}

type Stats struct {
	Iterations            int
	Improvements          int
	LNSRuns               int
	LNSAccepted           int
	PenalizedArcs         int
	RemovalSelects        [2]int // random, related
	InsertSelects         [2]int // greedy, regret2
	FinalRemovalWeights   [2]float64
	FinalInsertionWeights [2]float64
	InitialCost           Cost
	BestCost              Cost
	Elapsed               time.Duration
	StopReason            string
}

// Visit is one position of a route. Travel and Distance are measured from
// the previous visit; Cumul is the time dimension value at the node.
type Visit struct {
	Node     int
	Cumul    int64
	Travel   int64
	Distance int64
}

// Route is a vehicle tour, depot first and last.
type Route struct {
	Vehicle  int
	Visits   []Visit
	Distance int64
	Load     int64
}

// Customers returns the number of non-depot visits.
func (r Route) Customers() int {
	if len(r.Visits) < 2 {
		return 0
	}
	return len(r.Visits) - 2
}

type Solution struct {
	Routes  []Route // one per vehicle, in fleet order
	Dropped []int
	Cost    Cost
	Stats   Stats
	// Warning is set when customers exist but none could be routed.
	Warning string
}

// Solve constructs a first solution and improves it with guided local
// search and periodic large neighbourhood steps until the time limit, the
// iteration cap or ctx ends the run. The best solution by true cost is
// returned. Faults inside the search are reported as a search error.
func Solve(ctx context.Context, inst *Instance, set Settings) (sol *Solution, err error) {
	defer func() {
		if r := recover(); r != nil {
			sol = nil
			err = apperr.Search(fmt.Errorf("%v\n%s", r, debug.Stack()), "route search failed")
		}
	}()
	if inst == nil {
		return nil, apperr.Search(nil, "no instance")
	}
	set = set.withDefaults()
	start := time.Now()
	s := newSearch(ctx, inst, set, start)
	s.construct()
	best := cloneRoutes(s.routes)
	bestCost := inst.cost(best)
	s.stats.InitialCost = bestCost

	if inst.Size() > 1 {
		s.run(&best, &bestCost)
	} else {
		s.stats.StopReason = StopExhausted
	}

	// Leave no node out that still fits somewhere.
	s.lambda = 0
	s.restore(best)
	s.insert(s.dropped(), false, false)
	if c := inst.cost(s.routes); c.Less(bestCost) {
		best, bestCost = cloneRoutes(s.routes), c
	}

	s.stats.BestCost = bestCost
	s.stats.FinalRemovalWeights = [2]float64{s.remW[0], s.remW[1]}
	s.stats.FinalInsertionWeights = [2]float64{s.insW[0], s.insW[1]}
	s.stats.Elapsed = time.Since(start)
	return inst.solution(best, bestCost, s.stats), nil
}

func (s *search) run(best *[][]int, bestCost *Cost) {
	for {
		if s.expired() {
			return
		}
		done := s.localSearch()
		if c := s.inst.cost(s.routes); c.Less(*bestCost) {
			*best, *bestCost = cloneRoutes(s.routes), c
			s.stats.Improvements++
		}
		if !done {
			s.stopReason()
			return
		}
		s.stats.Iterations++
		if s.set.MaxIterations > 0 && s.stats.Iterations >= s.set.MaxIterations {
			s.stats.StopReason = StopIterationLimit
			return
		}
		if s.stats.Iterations%s.set.LNSEvery == 0 {
			if s.lnsStep() {
				if c := s.inst.cost(s.routes); c.Less(*bestCost) {
					*best, *bestCost = cloneRoutes(s.routes), c
					s.stats.Improvements++
				}
			}
		}
		if s.lambda == 0 {
			s.initLambda()
		}
		if !s.penalize() {
			// Nothing is routed, so no move can change the solution.
			s.stats.StopReason = StopExhausted
			return
		}
	}
}

type search struct {
	ctx      context.Context
	inst     *Instance
	set      Settings
	rng      *rand.Rand
	routes   [][]int
	pos      []int // route index per node, -1 when dropped
	pen      [][]int32
	lambda   float64
	deadline time.Time
	fragment time.Time
	evals    int
	stopped  bool
	expiredF bool
	remW     []float64
	insW     []float64
	stats    Stats
}

func newSearch(ctx context.Context, inst *Instance, set Settings, start time.Time) *search {
	if ctx == nil {
		ctx = context.Background()
	}
	n := inst.Size()
	s := &search{
		ctx:      ctx,
		inst:     inst,
		set:      set,
		rng:      rand.New(rand.NewSource(set.Seed)),
		routes:   make([][]int, len(inst.vehicles)),
		pos:      make([]int, n),
		pen:      make([][]int32, n),
		deadline: start.Add(set.TimeLimit),
		remW:     []float64{1, 1},
		insW:     []float64{1, 1},
	}
	for i := range s.pos {
		s.pos[i] = -1
		s.pen[i] = make([]int32, n)
	}
	if len(set.InitialRemovalWeights) == 2 {
		s.remW = []float64{set.InitialRemovalWeights[0], set.InitialRemovalWeights[1]}
	}
	if len(set.InitialInsertionWeights) == 2 {
		s.insW = []float64{set.InitialInsertionWeights[0], set.InitialInsertionWeights[1]}
	}
	return s
}

// expired checks the global budget directly.
func (s *search) expired() bool {
	if s.stopped {
		return true
	}
	if err := s.ctx.Err(); err != nil {
		s.stopped = true
		s.stats.StopReason = StopCancelled
		return true
	}
	if time.Now().After(s.deadline) {
		s.stopped = true
		s.stats.StopReason = StopTimeLimit
		return true
	}
	return false
}

// tick is called once per move evaluation and samples the clock every 64
// calls. It also ends the current LNS fragment when its budget runs out.
func (s *search) tick() bool {
	if s.stopped || s.expiredF {
		return true
	}
	s.evals++
	if s.evals%64 != 0 {
		return false
	}
	if s.expired() {
		return true
	}
	if !s.fragment.IsZero() && time.Now().After(s.fragment) {
		s.expiredF = true
		return true
	}
	return false
}

func (s *search) stopReason() {
	if s.stats.StopReason == "" {
		s.stats.StopReason = StopTimeLimit
	}
}

func (s *search) setRoute(r int, seq []int) {
	for _, n := range s.routes[r] {
		if s.pos[n] == r {
			s.pos[n] = -1
		}
	}
	for _, n := range seq {
		s.pos[n] = r
	}
	s.routes[r] = seq
}

func (s *search) restore(routes [][]int) {
	s.routes = cloneRoutes(routes)
	for i := range s.pos {
		s.pos[i] = -1
	}
	for r, seq := range s.routes {
		for _, n := range seq {
			s.pos[n] = r
		}
	}
}

// dropped lists unserved customers, highest penalty first.
func (s *search) dropped() []int {
	var out []int
	for i := 1; i < len(s.pos); i++ {
		if s.pos[i] < 0 {
			out = append(out, i)
		}
	}
	sortByPenalty(s.inst, out)
	return out
}

// initLambda sets the penalty weight from the first local optimum.
func (s *search) initLambda() {
	arcs := 0
	var total int64
	for _, seq := range s.routes {
		if len(seq) == 0 {
			continue
		}
		arcs += len(seq) + 1
		total = satAdd(total, s.inst.routeDistance(seq))
	}
	if arcs == 0 || total == 0 {
		s.lambda = 1
		return
	}
	s.lambda = s.set.GLSLambda * float64(total) / float64(arcs)
}

// penalize raises the penalty of the arcs with the highest utility in the
// current local optimum. It reports false when no arc is in use.
func (s *search) penalize() bool {
	type arc struct{ a, b int }
	var top []arc
	bestU := -1.0
	for _, seq := range s.routes {
		if len(seq) == 0 {
			continue
		}
		prev := DepotIndex
		for i := 0; i <= len(seq); i++ {
			next := DepotIndex
			if i < len(seq) {
				next = seq[i]
			}
			u := float64(s.inst.dist[prev][next]) / float64(1+s.pen[prev][next])
			switch {
			case u > bestU:
				bestU = u
				top = append(top[:0], arc{prev, next})
			case u == bestU:
				top = append(top, arc{prev, next})
			}
			prev = next
		}
	}
	for _, a := range top {
		s.pen[a.a][a.b]++
		s.stats.PenalizedArcs++
	}
	return len(top) > 0
}

func (in *Instance) solution(routes [][]int, c Cost, st Stats) *Solution {
	sol := &Solution{Routes: make([]Route, len(routes)), Cost: c, Stats: st}
	served := make([]bool, len(in.nodes))
	servedAny := false
	for v, seq := range routes {
		rep := in.EvaluateRoute(v, seq, true)
		r := Route{Vehicle: v, Distance: rep.Distance, Load: rep.Load}
		prev := DepotIndex
		for i := 0; i < len(seq)+2; i++ {
			node := DepotIndex
			if i >= 1 && i <= len(seq) {
				node = seq[i-1]
			}
			vis := Visit{Node: node}
			if rep.Cumul != nil {
				vis.Cumul = rep.Cumul[i]
			}
			if i > 0 {
				vis.Travel = in.dur[prev][node]
				vis.Distance = in.dist[prev][node]
			}
			r.Visits = append(r.Visits, vis)
			prev = node
		}
		for _, n := range seq {
			served[n] = true
			servedAny = true
		}
		sol.Routes[v] = r
	}
	for i := 1; i < len(in.nodes); i++ {
		if !served[i] {
			sol.Dropped = append(sol.Dropped, i)
		}
	}
	if !servedAny && len(in.nodes) > 1 {
		sol.Warning = "no feasible route found, every customer was dropped"
	}
	return sol
}

func cloneRoutes(routes [][]int) [][]int {
	out := make([][]int, len(routes))
	for i, r := range routes {
		out[i] = append([]int(nil), r...)
	}
	return out
}
