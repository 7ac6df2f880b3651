package opt

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// lnsStep removes a fragment of the current solution and rebuilds it with
// operators drawn by roulette. The result is kept only if it is no worse by
// true cost; operator weights follow the outcome. It reports whether the
// current solution changed.
func (s *search) lnsStep() bool {
	served := s.served()
	if len(served) == 0 {
		return false
	}
	s.stats.LNSRuns++
	s.fragment = time.Now().Add(s.set.LNSTimeLimit)
	defer func() {
		s.fragment = time.Time{}
		s.expiredF = false
	}()

	// Fragments cover up to a third of the served nodes, never fewer than
	// two when two are served.
	maxK := min(max(len(served)/3, 2), len(served), 30)
	k := 1 + s.rng.Intn(maxK)
	op := selectOp(s.remW, s.rng)
	s.stats.RemovalSelects[op]++
	ip := selectOp(s.insW, s.rng)
	s.stats.InsertSelects[ip]++

	saved := cloneRoutes(s.routes)
	before := s.inst.cost(saved)
	var removed []int
	switch op {
	case 0:
		removed = pickRandomNodes(served, k, s.rng)
	case 1:
		removed = s.relatedRemoval(served, k)
	}
	s.removeNodes(removed)
	s.insert(s.dropped(), ip == 1, true)

	after := s.inst.cost(s.routes)
	switch {
	case after.Less(before):
		s.remW[op] += 0.1
		s.insW[ip] += 0.1
		s.stats.LNSAccepted++
		return true
	case after == before:
		s.remW[op] += 0.01
		s.insW[ip] += 0.01
		s.stats.LNSAccepted++
		return true
	default:
		s.remW[op] = math.Max(0.01, s.remW[op]*0.999)
		s.insW[ip] = math.Max(0.01, s.insW[ip]*0.999)
		s.restore(saved)
		return false
	}
}

func (s *search) served() []int {
	var out []int
	for _, seq := range s.routes {
		out = append(out, seq...)
	}
	return out
}

func (s *search) removeNodes(nodes []int) {
	rm := map[int]bool{}
	for _, n := range nodes {
		rm[n] = true
	}
	for r, seq := range s.routes {
		var kept []int
		for _, n := range seq {
			if !rm[n] {
				kept = append(kept, n)
			}
		}
		if len(kept) != len(seq) {
			s.setRoute(r, kept)
		}
	}
}

func pickRandomNodes(served []int, k int, rng *rand.Rand) []int {
	all := append([]int(nil), served...)
	removed := []int{}
	for i := 0; i < k && len(all) > 0; i++ {
		j := rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

// relatedRemoval picks a random seed node and the k-1 nodes closest to it,
// favouring nodes whose time windows overlap the seed's.
func (s *search) relatedRemoval(served []int, k int) []int {
	seed := served[s.rng.Intn(len(served))]
	type pair struct {
		node  int
		score float64
	}
	sn := s.inst.nodes[seed]
	rel := make([]pair, 0, len(served))
	for _, n := range served {
		if n == seed {
			continue
		}
		nd := s.inst.nodes[n]
		geo := float64(s.inst.dist[seed][n] + s.inst.dist[n][seed])
		rel = append(rel, pair{node: n, score: geo - windowOverlap(sn, nd)})
	}
	sort.Slice(rel, func(a, b int) bool { return rel[a].score < rel[b].score })
	removed := []int{seed}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].node)
	}
	return removed
}

// windowOverlap is the shared length of two time windows in seconds.
func windowOverlap(a, b Node) float64 {
	start := max(a.Earliest, b.Earliest)
	end := min(a.Latest, b.Latest)
	if end < start {
		return 0
	}
	return float64(end - start)
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
