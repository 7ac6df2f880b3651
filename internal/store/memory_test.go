package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"routesolver/internal/apperr"
	"routesolver/internal/model"
)

func f64(v float64) *float64 { return &v }

func seedDay() time.Time { return time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC) }

func sampleSeed() Seed {
	day := seedDay()
	return Seed{
		Orders: []model.Order{
			{ID: "o1", CustomerID: "c1", InvoiceDate: day.Add(9 * time.Hour)},
			{ID: "o2", CustomerID: "c2", InvoiceDate: day.Add(23*time.Hour + 59*time.Minute)},
			{ID: "o3", CustomerID: "c1", InvoiceDate: day.AddDate(0, 0, 1)},
			{ID: "o4", CustomerID: "c3", InvoiceDate: day.Add(-time.Second)},
		},
		Customers: []model.Customer{
			{ID: "c1", Name: "Alpha"},
			{ID: "c2", Name: "Beta"},
			{ID: "c3", Name: "Gamma"},
		},
		Vehicles: []model.Vehicle{
			{ID: "v1", Name: "Van 1", Capacity: f64(500), Availability: model.VehicleAvailable},
			{ID: "v2", Name: "Van 2", Capacity: f64(500), Availability: "maintenance"},
			{ID: "v3", Name: "Van 3", Capacity: f64(800), Availability: model.VehicleAvailable, Status: model.VehicleAssigned},
		},
	}
}

func TestMemoryLoadSolveInputFiltersDay(t *testing.T) {
	m := NewMemory()
	m.Seed(sampleSeed())

	in, err := m.LoadSolveInput(context.Background(), seedDay().Add(15*time.Hour))
	require.NoError(t, err)

	var ids []string
	for _, o := range in.Orders {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"o1", "o2"}, ids)
	assert.Len(t, in.Customers, 2)
	assert.Contains(t, in.Customers, "c1")
	assert.Contains(t, in.Customers, "c2")
	require.Len(t, in.Vehicles, 2)
	assert.Equal(t, "v1", in.Vehicles[0].ID)
	assert.Equal(t, "v3", in.Vehicles[1].ID)
}

func TestMemorySaveRoutePlanUpdatesFleetAndOrders(t *testing.T) {
	m := NewMemory()
	m.Seed(sampleSeed())
	plan := &model.RoutePlan{
		SolutionID: "SOL_20250310120000",
		Date:       seedDay(),
		CreatedAt:  seedDay().Add(12 * time.Hour),
		VehicleRoutes: []model.VehicleRoute{{
			VehicleID: "v1",
			Zone:      "Zone - 1",
			Stops: []model.Stop{
				{Type: model.StopDepot},
				{Type: model.StopDelivery, OrderIDs: []string{"o2"}},
				{Type: model.StopDelivery, OrderIDs: []string{"o1", "o3"}},
				{Type: model.StopDepot},
			},
		}},
	}
	require.NoError(t, m.SaveRoutePlan(context.Background(), plan))

	status := map[string]string{}
	for _, v := range m.Vehicles() {
		status[v.ID] = v.Status
	}
	assert.Equal(t, map[string]string{"v1": model.VehicleAssigned, "v2": model.VehicleUnassigned, "v3": model.VehicleUnassigned}, status)

	o1, _ := m.Order("o1")
	o2, _ := m.Order("o2")
	o4, _ := m.Order("o4")
	assert.Equal(t, "Zone - 1(2)", o1.Zone)
	assert.Equal(t, "Zone - 1(1)", o2.Zone)
	assert.Empty(t, o4.Zone)

	got, err := m.GetRoutePlan(context.Background(), plan.SolutionID)
	require.NoError(t, err)
	assert.Equal(t, plan.SolutionID, got.SolutionID)
	require.Len(t, got.VehicleRoutes, 1)
	assert.Len(t, got.VehicleRoutes[0].Stops, 4)

	// the stored copy is independent of the caller's plan
	plan.VehicleRoutes[0].Zone = "changed"
	again, err := m.GetRoutePlan(context.Background(), plan.SolutionID)
	require.NoError(t, err)
	assert.Equal(t, "Zone - 1", again.VehicleRoutes[0].Zone)
}

func TestMemoryPlansByDay(t *testing.T) {
	m := NewMemory()
	day := seedDay()
	for i, id := range []string{"SOL_a", "SOL_b"} {
		require.NoError(t, m.SaveRoutePlan(context.Background(), &model.RoutePlan{
			SolutionID: id, Date: day, CreatedAt: day.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, m.SaveRoutePlan(context.Background(), &model.RoutePlan{SolutionID: "SOL_c", Date: day.AddDate(0, 0, 1)}))

	list, err := m.ListRoutePlans(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "SOL_b", list[0].SolutionID)
	assert.Equal(t, "SOL_a", list[1].SolutionID)

	_, err = m.GetRoutePlan(context.Background(), "SOL_missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestLoadSeedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "seed.json")
	body := `{"orders":[{"customer":"c1","invoice_date":"2025-03-10T09:00:00Z","items":[{"weight_kg":2.5,"quantity":2}],"priority_value":"1000"}],
	"customers":[{"_id":"c1","customer_name":"Alpha","latitude":55.86,"longitude":-4.25,"business_start_hour":["08:00"]}],
	"vehicles":[{"_id":"v1","name":"Van","capacity":100,"availability":"available"}]}`
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))

	s, err := LoadSeedFile(p)
	require.NoError(t, err)
	m := NewMemory()
	m.Seed(s)
	in, err := m.LoadSolveInput(context.Background(), seedDay())
	require.NoError(t, err)
	require.Len(t, in.Orders, 1)
	assert.NotEmpty(t, in.Orders[0].ID, "missing ids are generated")
	assert.Equal(t, 5.0, in.Orders[0].Items[0].Weight())
	assert.Equal(t, "1000", in.Orders[0].PriorityValue)
	assert.Equal(t, 55.86, *in.Customers["c1"].Latitude)
}

func TestDocIDRoundTrip(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.Equal(t, oid.Hex(), docID(oid))
	assert.Equal(t, oid, docKey(oid.Hex()))
	assert.Equal(t, "veh-7", docID("veh-7"))
	assert.Equal(t, "veh-7", docKey("veh-7"))
	assert.Equal(t, "42", docID(int32(42)))
	assert.Equal(t, "", docID(nil))
}
