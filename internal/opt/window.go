package opt

import (
	"strconv"
	"strings"
	"time"

	"routesolver/internal/model"
)

const (
	DaySeconds = 24 * 3600
	// DefaultRollover is added to a closing time that falls before the
	// opening time. It is one minute short of a day and kept that way.
	DefaultRollover = 86000
	DefaultOpen     = "00:00"
	DefaultClose    = "23:59"
)

// WindowConfig resolves customer business hours into seconds-of-day windows.
type WindowConfig struct {
	DefaultOpen  string
	DefaultClose string
	Rollover     int64
}

func (c WindowConfig) withDefaults() WindowConfig {
	if _, ok := ParseClock(c.DefaultOpen); !ok {
		c.DefaultOpen = DefaultOpen
	}
	if _, ok := ParseClock(c.DefaultClose); !ok {
		c.DefaultClose = DefaultClose
	}
	if c.Rollover <= 0 {
		c.Rollover = DefaultRollover
	}
	return c
}

// ParseClock parses "HH:MM" (hour may be a single digit) into seconds after
// midnight.
func ParseClock(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) == 0 || len(h) > 2 || len(m) != 2 {
		return 0, false
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, false
	}
	return int64(hh*3600 + mm*60), true
}

// Weekday returns the business-hours index for t, Monday being 0.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ResolveWindow returns the [open, close] service window of a customer on
// the given weekday. Each side falls back to the configured default when
// the entry is absent or malformed. A close before open is read as crossing
// midnight and shifted by the rollover.
func ResolveWindow(c model.Customer, weekday int, cfg WindowConfig) (int64, int64) {
	cfg = cfg.withDefaults()
	def := func(hours []string, fallback string) int64 {
		if weekday >= 0 && weekday < len(hours) {
			if v, ok := ParseClock(hours[weekday]); ok {
				return v
			}
		}
		v, _ := ParseClock(fallback)
		return v
	}
	open := def(c.BusinessStartHour, cfg.DefaultOpen)
	closeAt := def(c.BusinessCloseHour, cfg.DefaultClose)
	if closeAt < open {
		closeAt += cfg.Rollover
	}
	return open, closeAt
}
