package opt

import "math"

// construct builds the first solution. Each vehicle in turn extends its
// route from the tail along the shortest arc that keeps the route feasible.
// Whatever is left is placed by cheapest insertion, highest penalty first,
// and anything that still does not fit stays dropped.
func (s *search) construct() {
	inst := s.inst
	for v := range s.routes {
		var seq []int
		tail := DepotIndex
		for {
			next, nextD := -1, int64(math.MaxInt64)
			for n := 1; n < inst.Size(); n++ {
				if s.pos[n] >= 0 || inst.dist[tail][n] >= nextD {
					continue
				}
				if !inst.feasible(v, append(seq[:len(seq):len(seq)], n)) {
					continue
				}
				next, nextD = n, inst.dist[tail][n]
			}
			if next < 0 {
				break
			}
			seq = append(seq, next)
			s.pos[next] = v
			tail = next
		}
		s.routes[v] = seq
	}
	s.insert(s.dropped(), false, false)
}

type insertion struct {
	route, pos int
	delta      int64
}

// cheapest returns the two cheapest feasible insertions of n by distance
// delta. The second is only meaningful when ok2 is set.
func (s *search) cheapest(n int) (best, second insertion, ok1, ok2 bool) {
	inst := s.inst
	for r, seq := range s.routes {
		for p := 0; p <= len(seq); p++ {
			prev, next := DepotIndex, DepotIndex
			if p > 0 {
				prev = seq[p-1]
			}
			if p < len(seq) {
				next = seq[p]
			}
			d := inst.dist[prev][n] + inst.dist[n][next] - inst.dist[prev][next]
			if ok2 && d >= second.delta {
				continue
			}
			if !inst.feasible(r, insertAt(seq, p, n)) {
				continue
			}
			cand := insertion{route: r, pos: p, delta: d}
			switch {
			case !ok1 || d < best.delta:
				if ok1 {
					second, ok2 = best, true
				}
				best, ok1 = cand, true
			default:
				second, ok2 = cand, true
			}
		}
	}
	return best, second, ok1, ok2
}

// insert places nodes one at a time, always choosing among the pending
// nodes of the highest penalty. Greedy picks the cheapest insertion, regret
// picks the node with the largest gap between its best and second best
// option. Nodes with no feasible position stay dropped. When bounded, the
// loop stops as soon as the search budget or LNS fragment budget is spent.
func (s *search) insert(nodes []int, regret, bounded bool) {
	pending := append([]int(nil), nodes...)
	sortByPenalty(s.inst, pending)
	for len(pending) > 0 {
		if bounded && s.tick() {
			return
		}
		chosen := -1
		var chosenIns insertion
		var chosenPen int64
		bestScore := math.Inf(-1)
		for i, n := range pending {
			pen := s.inst.nodes[n].Penalty
			if chosen >= 0 && pen < chosenPen {
				break
			}
			b, sec, ok1, ok2 := s.cheapest(n)
			if !ok1 {
				continue
			}
			score := -float64(b.delta)
			if regret {
				score = math.Inf(1)
				if ok2 {
					score = float64(sec.delta - b.delta)
				}
			}
			if chosen < 0 || score > bestScore {
				chosen, chosenIns, chosenPen, bestScore = i, b, pen, score
			}
		}
		if chosen < 0 {
			return
		}
		n := pending[chosen]
		s.setRoute(chosenIns.route, insertAt(s.routes[chosenIns.route], chosenIns.pos, n))
		pending = append(pending[:chosen], pending[chosen+1:]...)
	}
}
