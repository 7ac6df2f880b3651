//go:build postgres_integration

package store

import (
	"os"
	"testing"
	"time"

	"routesolver/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close(t.Context())
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	day := time.Date(2031, 1, 6, 0, 0, 0, 0, time.UTC)
	plan := &model.RoutePlan{SolutionID: "SOL_it_" + time.Now().Format("150405.000"), Date: day, CreatedAt: time.Now().UTC()}
	if err := p.SaveRoutePlan(t.Context(), plan); err != nil {
		t.Fatalf("SaveRoutePlan: %v", err)
	}
	got, err := p.GetRoutePlan(t.Context(), plan.SolutionID)
	if err != nil || got.SolutionID != plan.SolutionID {
		t.Fatalf("GetRoutePlan: %v %+v", err, got)
	}
	if _, err := p.ListRoutePlans(t.Context(), day); err != nil {
		t.Fatalf("ListRoutePlans: %v", err)
	}
}
