package opt

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const DefaultPriority = 10

// Drop penalty tiers. The lowest tier must stay above any realistic sum of
// route distances so that serving a node always beats dropping it.
const (
	PenaltyCritical int64 = 1e16
	PenaltyHigh     int64 = 1e15
	PenaltyStandard int64 = 1e14
)

// ParsePriority reads a stored priority value. Anything that is not an
// integer (or an integral string) is treated as DefaultPriority.
func ParsePriority(v any) int {
	switch p := v.(type) {
	case int:
		return p
	case int32:
		return int(p)
	case int64:
		return int(p)
	case float64:
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return DefaultPriority
		}
		return int(p)
	case float32:
		return ParsePriority(float64(p))
	case json.Number:
		if n, err := p.Int64(); err == nil {
			return int(n)
		}
		return DefaultPriority
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			return n
		}
		return DefaultPriority
	default:
		return DefaultPriority
	}
}

// DropPenalty is the objective cost of leaving a node with this priority
// unserved.
func DropPenalty(priority int) int64 {
	switch {
	case priority >= 1000:
		return PenaltyCritical
	case priority >= 100:
		return PenaltyHigh
	default:
		return PenaltyStandard
	}
}
