package opt

import (
	"fmt"
	"math"
	"time"
)

// DefaultReportDivisor converts metres to the distance unit shown on plans.
const DefaultReportDivisor = 1600

// FormatClock renders seconds-of-day as "HH:MM". Values past midnight wrap
// and negative values show as 00:00.
func FormatClock(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d", (sec/3600)%24, (sec%3600)/60)
}

// FormatTravel renders a duration as "Nmin" below an hour and "Hh Mm" above.
func FormatTravel(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	if sec < 3600 {
		return fmt.Sprintf("%dmin", sec/60)
	}
	return fmt.Sprintf("%dh %dm", sec/3600, (sec%3600)/60)
}

// NewSolutionID derives the plan identifier from the solve time.
func NewSolutionID(t time.Time) string {
	return "SOL_" + t.Format("20060102150405")
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
