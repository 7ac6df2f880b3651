// Package matrix supplies distance and travel time matrices for a list of
// points, in the order given.
package matrix

import (
	"context"
	"math"

	"routesolver/internal/metrics"
	"routesolver/internal/model"
	"routesolver/internal/opt"
)

// Provider returns square distance (metres) and duration (seconds) matrices.
type Provider interface {
	Matrix(ctx context.Context, points []model.GeoPoint) (*opt.Matrix, error)
}

// Haversine estimates road distance as great-circle distance and travel time
// at a constant speed. It needs no network and suits development and the
// offline CLI.
type Haversine struct {
	SpeedKph float64
}

const defaultSpeedKph = 40

func (h Haversine) Matrix(ctx context.Context, points []model.GeoPoint) (*opt.Matrix, error) {
	speed := h.SpeedKph
	if speed <= 0 {
		speed = defaultSpeedKph
	}
	mps := speed / 3.6
	n := len(points)
	m := &opt.Matrix{Distances: make([][]int64, n), Durations: make([][]int64, n)}
	for i := range points {
		m.Distances[i] = make([]int64, n)
		m.Durations[i] = make([]int64, n)
		for j := range points {
			if i == j {
				continue
			}
			d := HaversineMeters(points[i].Lat, points[i].Lng, points[j].Lat, points[j].Lng)
			m.Distances[i][j] = int64(d)
			m.Durations[i][j] = int64(d / mps)
		}
	}
	metrics.MatrixRequests.WithLabelValues("haversine", "ok").Inc()
	return m, nil
}

func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
