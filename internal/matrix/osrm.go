package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"routesolver/internal/apperr"
	"routesolver/internal/metrics"
	"routesolver/internal/model"
	"routesolver/internal/opt"
)

type OSRMConfig struct {
	BaseURL           string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	CacheTTL          time.Duration `yaml:"cacheTTL"`
	// Breaker trips after this many consecutive failures and stays open for
	// BreakerOpenFor before letting a trial request through.
	BreakerFailures uint32        `yaml:"breakerFailures"`
	BreakerOpenFor  time.Duration `yaml:"breakerOpenFor"`
}

func (c OSRMConfig) withDefaults() OSRMConfig {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:6000"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerOpenFor <= 0 {
		c.BreakerOpenFor = 30 * time.Second
	}
	return c
}

// OSRM fetches matrices from an OSRM table service. A failed request is
// reported, never retried.
type OSRM struct {
	cfg     OSRMConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   Cache
	logger  *slog.Logger
}

// NewOSRM builds the client. cache may be nil.
func NewOSRM(cfg OSRMConfig, cache Cache, logger *slog.Logger) *OSRM {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	c := &OSRM{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:   cache,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "osrm",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

type tableResponse struct {
	Code      string       `json:"code"`
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

func (c *OSRM) Matrix(ctx context.Context, points []model.GeoPoint) (*opt.Matrix, error) {
	if len(points) == 0 {
		return &opt.Matrix{}, nil
	}
	key := CacheKey(points)
	if c.cache != nil {
		m, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("matrix cache read failed", "error", err)
		case ok && square(m, len(points)):
			metrics.MatrixRequests.WithLabelValues("osrm", "cache_hit").Inc()
			return m, nil
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.MatrixRequests.WithLabelValues("osrm", "error").Inc()
		return nil, apperr.Upstream(err, "distance matrix request not sent")
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, points)
	})
	if err != nil {
		metrics.MatrixRequests.WithLabelValues("osrm", "error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperr.Upstream(err, "distance matrix service unavailable")
		}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Upstream(err, "distance matrix request failed")
	}
	m := res.(*opt.Matrix)
	metrics.MatrixRequests.WithLabelValues("osrm", "ok").Inc()
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, m, c.cfg.CacheTTL); err != nil {
			c.logger.Warn("matrix cache write failed", "error", err)
		}
	}
	return m, nil
}

func (c *OSRM) fetch(ctx context.Context, points []model.GeoPoint) (*opt.Matrix, error) {
	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
	}
	url := fmt.Sprintf("%s/table/v1/driving/%s?annotations=distance,duration",
		strings.TrimRight(c.cfg.BaseURL, "/"), strings.Join(coords, ";"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("osrm request failed", "points", len(points), "error", err)
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("osrm error response", "points", len(points), "status", resp.StatusCode, "body", string(body))
		return nil, apperr.Upstream(nil, "failed to get distance: %d", resp.StatusCode)
	}
	var tr tableResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, apperr.Upstream(err, "unreadable distance matrix response")
	}
	if tr.Distances == nil || tr.Durations == nil {
		return nil, apperr.Upstream(nil, "missing distance/duration from osrm response")
	}
	n := len(points)
	dist, err := toInts(tr.Distances, n)
	if err != nil {
		return nil, err
	}
	dur, err := toInts(tr.Durations, n)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("osrm table fetched", "points", n, "took", time.Since(start))
	return &opt.Matrix{Distances: dist, Durations: dur}, nil
}

// toInts truncates the OSRM values and maps unreachable (null) cells to 0.
func toInts(rows [][]*float64, n int) ([][]int64, error) {
	if len(rows) != n {
		return nil, apperr.Upstream(nil, "osrm matrix has %d rows for %d points", len(rows), n)
	}
	out := make([][]int64, n)
	for i, row := range rows {
		if len(row) != n {
			return nil, apperr.Upstream(nil, "osrm matrix row %d has %d cells for %d points", i, len(row), n)
		}
		out[i] = make([]int64, n)
		for j, cell := range row {
			if cell != nil {
				out[i][j] = int64(*cell)
			}
		}
	}
	return out, nil
}

// square reports whether both tables of m are n by n.
func square(m *opt.Matrix, n int) bool {
	if m == nil || len(m.Distances) != n || len(m.Durations) != n {
		return false
	}
	for i := 0; i < n; i++ {
		if len(m.Distances[i]) != n || len(m.Durations[i]) != n {
			return false
		}
	}
	return true
}
