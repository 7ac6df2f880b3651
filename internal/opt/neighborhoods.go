package opt

import (
	"math"
	"sort"
)

const eps = 1e-6

// localSearch applies first-improvement moves under the penalised objective
// until none improves. It returns false if the budget ran out first.
func (s *search) localSearch() bool {
	for {
		if s.stopped {
			return false
		}
		moved := s.makeActive() ||
			s.swapActive() ||
			s.ejectActive() ||
			s.relocate() ||
			s.twoOpt() ||
			s.exchange() ||
			s.makeInactive()
		if s.stopped {
			return false
		}
		if !moved {
			return true
		}
	}
}

// aug is the route length with GLS arc penalties applied.
func (s *search) aug(seq []int) float64 {
	if len(seq) == 0 {
		return 0
	}
	total := 0.0
	prev := DepotIndex
	for _, n := range seq {
		total += s.arc(prev, n)
		prev = n
	}
	return total + s.arc(prev, DepotIndex)
}

func (s *search) arc(a, b int) float64 {
	return float64(s.inst.dist[a][b]) + s.lambda*float64(s.pen[a][b])
}

func improving(dPenalty int64, dAug float64) bool {
	return dPenalty < 0 || (dPenalty == 0 && dAug < -eps)
}

// makeActive inserts a dropped node at its cheapest feasible position.
func (s *search) makeActive() bool {
	for _, n := range s.dropped() {
		bestR, bestP, bestD := -1, -1, math.Inf(1)
		for r, seq := range s.routes {
			base := s.aug(seq)
			for p := 0; p <= len(seq); p++ {
				if s.tick() {
					return false
				}
				cand := insertAt(seq, p, n)
				d := s.aug(cand) - base
				if d >= bestD || !s.inst.feasible(r, cand) {
					continue
				}
				bestR, bestP, bestD = r, p, d
			}
		}
		if bestR >= 0 {
			s.setRoute(bestR, insertAt(s.routes[bestR], bestP, n))
			return true
		}
	}
	return false
}

// swapActive replaces a routed node with a dropped one of at least the same
// penalty, placing the newcomer anywhere in that route.
func (s *search) swapActive() bool {
	for _, n := range s.dropped() {
		pn := s.inst.nodes[n].Penalty
		for r, seq := range s.routes {
			base := s.aug(seq)
			for i, m := range seq {
				dp := s.inst.nodes[m].Penalty - pn
				if dp > 0 {
					continue
				}
				rest := removeAt(seq, i)
				for p := 0; p <= len(rest); p++ {
					if s.tick() {
						return false
					}
					cand := insertAt(rest, p, n)
					if !improving(dp, s.aug(cand)-base) || !s.inst.feasible(r, cand) {
						continue
					}
					s.setRoute(r, cand)
					return true
				}
			}
		}
	}
	return false
}

// ejectActive makes room for a dropped node by removing lower-penalty nodes
// from one route, cheapest first, until it fits. The move is taken only when
// the removed penalties add up to less than the newcomer's.
func (s *search) ejectActive() bool {
	for _, n := range s.dropped() {
		pn := s.inst.nodes[n].Penalty
		for r, seq := range s.routes {
			var victims []int
			for i, m := range seq {
				if s.inst.nodes[m].Penalty < pn {
					victims = append(victims, i)
				}
			}
			if len(victims) == 0 {
				continue
			}
			sort.SliceStable(victims, func(a, b int) bool {
				na, nb := s.inst.nodes[seq[victims[a]]], s.inst.nodes[seq[victims[b]]]
				if na.Penalty != nb.Penalty {
					return na.Penalty < nb.Penalty
				}
				return na.Demand > nb.Demand
			})
			removed := map[int]bool{}
			var lost int64
			for _, i := range victims {
				lost = satAdd(lost, s.inst.nodes[seq[i]].Penalty)
				if lost >= pn {
					break
				}
				removed[i] = true
				rest := make([]int, 0, len(seq))
				for j, m := range seq {
					if !removed[j] {
						rest = append(rest, m)
					}
				}
				if s.tick() {
					return false
				}
				if cand, ok := s.bestFeasibleInsert(r, rest, n); ok {
					s.setRoute(r, cand)
					return true
				}
			}
		}
	}
	return false
}

// bestFeasibleInsert places n in seq at the feasible position with the
// lowest penalised length.
func (s *search) bestFeasibleInsert(r int, seq []int, n int) ([]int, bool) {
	var best []int
	bestAug := math.Inf(1)
	for p := 0; p <= len(seq); p++ {
		cand := insertAt(seq, p, n)
		a := s.aug(cand)
		if a >= bestAug || !s.inst.feasible(r, cand) {
			continue
		}
		best, bestAug = cand, a
	}
	return best, best != nil
}

// relocate moves one node to another position, in its own route or another.
func (s *search) relocate() bool {
	for r1, seq1 := range s.routes {
		base1 := s.aug(seq1)
		for i, n := range seq1 {
			src := removeAt(seq1, i)
			srcAug := s.aug(src)
			srcOK := -1
			for r2, seq2 := range s.routes {
				dst, base2 := src, 0.0
				if r2 != r1 {
					dst, base2 = seq2, s.aug(seq2)
				}
				for p := 0; p <= len(dst); p++ {
					if r2 == r1 && p == i {
						continue
					}
					if s.tick() {
						return false
					}
					cand := insertAt(dst, p, n)
					var d float64
					if r2 == r1 {
						d = s.aug(cand) - base1
					} else {
						d = srcAug + s.aug(cand) - base1 - base2
					}
					if d >= -eps {
						continue
					}
					if r2 != r1 {
						if srcOK < 0 {
							srcOK = 0
							if s.inst.feasible(r1, src) {
								srcOK = 1
							}
						}
						if srcOK == 0 {
							continue
						}
					}
					if !s.inst.feasible(r2, cand) {
						continue
					}
					if r2 == r1 {
						s.setRoute(r1, cand)
					} else {
						s.setRoute(r1, src)
						s.setRoute(r2, cand)
					}
					return true
				}
			}
		}
	}
	return false
}

// twoOpt reverses a segment of a single route.
func (s *search) twoOpt() bool {
	for r, seq := range s.routes {
		if len(seq) < 2 {
			continue
		}
		base := s.aug(seq)
		for i := 0; i < len(seq)-1; i++ {
			for k := i + 1; k < len(seq); k++ {
				if s.tick() {
					return false
				}
				cand := reverseSegment(seq, i, k)
				if s.aug(cand)-base >= -eps || !s.inst.feasible(r, cand) {
					continue
				}
				s.setRoute(r, cand)
				return true
			}
		}
	}
	return false
}

// exchange swaps two routed nodes, within a route or across two routes.
func (s *search) exchange() bool {
	for r1, seq1 := range s.routes {
		base1 := s.aug(seq1)
		for i := range seq1 {
			for r2 := r1; r2 < len(s.routes); r2++ {
				seq2 := s.routes[r2]
				base2 := s.aug(seq2)
				j0 := 0
				if r2 == r1 {
					j0 = i + 1
				}
				for j := j0; j < len(seq2); j++ {
					if s.tick() {
						return false
					}
					if r2 == r1 {
						cand := append([]int(nil), seq1...)
						cand[i], cand[j] = cand[j], cand[i]
						if s.aug(cand)-base1 >= -eps || !s.inst.feasible(r1, cand) {
							continue
						}
						s.setRoute(r1, cand)
						return true
					}
					a := append([]int(nil), seq1...)
					b := append([]int(nil), seq2...)
					a[i], b[j] = seq2[j], seq1[i]
					if s.aug(a)+s.aug(b)-base1-base2 >= -eps {
						continue
					}
					if !s.inst.feasible(r1, a) || !s.inst.feasible(r2, b) {
						continue
					}
					s.setRoute(r1, a)
					s.setRoute(r2, b)
					return true
				}
			}
		}
	}
	return false
}

// makeInactive drops nodes from a route that no longer satisfies its
// constraints. Every drop costs at least PenaltyStandard, so a feasible
// route never loses a node this way.
func (s *search) makeInactive() bool {
	for r, seq := range s.routes {
		if len(seq) == 0 || s.inst.feasible(r, seq) {
			continue
		}
		for i := range seq {
			if s.tick() {
				return false
			}
			rest := removeAt(seq, i)
			if s.inst.feasible(r, rest) {
				s.setRoute(r, rest)
				return true
			}
		}
		// No single removal repairs it: empty the route.
		s.setRoute(r, nil)
		return true
	}
	return false
}

func insertAt(seq []int, p, n int) []int {
	out := make([]int, 0, len(seq)+1)
	out = append(out, seq[:p]...)
	out = append(out, n)
	return append(out, seq[p:]...)
}

func removeAt(seq []int, p int) []int {
	out := make([]int, 0, len(seq)-1)
	out = append(out, seq[:p]...)
	return append(out, seq[p+1:]...)
}

func reverseSegment(seq []int, i, k int) []int {
	out := append([]int(nil), seq...)
	for a, b := i, k; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}

// sortByPenalty orders nodes by descending drop penalty, keeping index
// order among equals.
func sortByPenalty(inst *Instance, nodes []int) {
	sort.SliceStable(nodes, func(a, b int) bool {
		return inst.nodes[nodes[a]].Penalty > inst.nodes[nodes[b]].Penalty
	})
}
