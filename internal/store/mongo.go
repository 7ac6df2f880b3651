package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"routesolver/internal/apperr"
	"routesolver/internal/model"
)

// Collection names of the order system's database.
const (
	OrdersCollection    = "orders"
	CustomersCollection = "customers"
	VehiclesCollection  = "vehicles"
	PlansCollection     = "routesolver"
)

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Mongo reads orders, customers and vehicles from the order system's
// database and writes plans next to them. The connection is opened on first
// use and dropped again when it fails, so the next call reconnects.
type Mongo struct {
	cfg    MongoConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *mongo.Client
	db     *mongo.Database
}

func NewMongo(cfg MongoConfig, logger *slog.Logger) *Mongo {
	if cfg.Database == "" {
		cfg.Database = "routesolver"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mongo{cfg: cfg, logger: logger}
}

func (s *Mongo) database(ctx context.Context) (*mongo.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	opts := options.Client().
		ApplyURI(s.cfg.URI).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetServerSelectionTimeout(s.cfg.ConnectTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		s.logger.Error("invalid mongo configuration", "error", err)
		return nil, apperr.Internal(err, "invalid database configuration")
	}
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		if derr := client.Disconnect(context.Background()); derr != nil {
			s.logger.Warn("error closing mongo connection", "error", derr)
		}
		return nil, s.classify(err)
	}
	s.client = client
	s.db = client.Database(s.cfg.Database)
	s.ensureIndexes(ctx)
	s.logger.Info("connected to mongo", "database", s.cfg.Database)
	return s.db, nil
}

func (s *Mongo) ensureIndexes(ctx context.Context) {
	if _, err := s.db.Collection(OrdersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "invoice_date", Value: 1}},
	}); err != nil {
		s.logger.Warn("failed to create orders index", "error", err)
	}
	if _, err := s.db.Collection(PlansCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "solution_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: -1}}},
	}); err != nil {
		s.logger.Warn("failed to create plan indexes", "error", err)
	}
}

// classify maps driver errors onto the error taxonomy and drops a broken
// connection so the next call reconnects.
func (s *Mongo) classify(err error) error {
	var cmdErr mongo.CommandError
	switch {
	case mongo.IsTimeout(err):
		s.logger.Error("mongodb unavailable", "error", err)
		s.resetLocked()
		return apperr.Upstream(err, "database timeout")
	case mongo.IsNetworkError(err):
		s.logger.Error("mongo connection failed", "error", err)
		s.resetLocked()
		return apperr.Upstream(err, "database connection failed")
	case errors.As(err, &cmdErr):
		s.logger.Error("mongo operation failed", "code", cmdErr.Code, "error", err)
		return apperr.Upstream(err, "database operation failed")
	default:
		s.logger.Error("database error", "error", err)
		return apperr.Internal(err, "database error")
	}
}

// resetLocked forgets the current connection. Callers of classify either
// hold s.mu (database) or have never connected.
func (s *Mongo) resetLocked() {
	if s.client != nil {
		client := s.client
		go func() { _ = client.Disconnect(context.Background()) }()
	}
	s.client, s.db = nil, nil
}

// fail classifies an error returned after the connection was established.
func (s *Mongo) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classify(err)
}

type orderDoc struct {
	ID             any       `bson:"_id"`
	Customer       any       `bson:"customer"`
	InvoiceDate    time.Time `bson:"invoice_date"`
	Items          []itemDoc `bson:"items"`
	PriorityValue  any       `bson:"priority_value"`
	DeliveryStatus string    `bson:"delivery_status"`
	Flagged        bool      `bson:"flagged"`
	Zone           string    `bson:"zone"`
}

type itemDoc struct {
	WeightKg *float64 `bson:"weight_kg"`
	Quantity int      `bson:"quantity"`
}

type customerDoc struct {
	ID                any      `bson:"_id"`
	Name              string   `bson:"customer_name"`
	Address           string   `bson:"address"`
	Latitude          *float64 `bson:"latitude"`
	Longitude         *float64 `bson:"longitude"`
	BusinessStartHour bson.RawValue `bson:"business_start_hour"`
	BusinessCloseHour bson.RawValue `bson:"business_close_hour"`
}

func (d customerDoc) customer() model.Customer {
	return model.Customer{
		ID:                docID(d.ID),
		Name:              d.Name,
		Address:           d.Address,
		Latitude:          d.Latitude,
		Longitude:         d.Longitude,
		BusinessStartHour: rawHours(d.BusinessStartHour),
		BusinessCloseHour: rawHours(d.BusinessCloseHour),
	}
}

// rawHours reads business hours stored either as one "HH:MM" string for
// every day or as a per-weekday array. Other shapes read as absent, and
// non-string array entries as blank days.
func rawHours(v bson.RawValue) []string {
	switch v.Type {
	case bsontype.String:
		return everyDay(v.StringValue())
	case bsontype.Array:
		vals, err := v.Array().Values()
		if err != nil {
			return nil
		}
		out := make([]string, len(vals))
		for i, e := range vals {
			out[i], _ = e.StringValueOK()
		}
		return out
	default:
		return nil
	}
}

type vehicleDoc struct {
	ID           any      `bson:"_id"`
	Name         string   `bson:"name"`
	Capacity     *float64 `bson:"capacity"`
	Availability string   `bson:"availability"`
	Status       string   `bson:"status"`
}

// docID renders a stored _id (ObjectID or plain value) as a string.
func docID(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// docKey is the inverse of docID for lookups.
func docKey(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func (s *Mongo) LoadSolveInput(ctx context.Context, day time.Time) (SolveInput, error) {
	db, err := s.database(ctx)
	if err != nil {
		return SolveInput{}, err
	}
	from, to := dayBounds(day)
	cur, err := db.Collection(OrdersCollection).Find(ctx, bson.M{"invoice_date": bson.M{"$gte": from, "$lt": to}})
	if err != nil {
		return SolveInput{}, s.fail(err)
	}
	var odocs []orderDoc
	if err := cur.All(ctx, &odocs); err != nil {
		return SolveInput{}, s.fail(err)
	}

	in := SolveInput{Customers: map[string]model.Customer{}}
	var refs []any
	seen := map[string]bool{}
	for _, d := range odocs {
		o := model.Order{
			ID:             docID(d.ID),
			CustomerID:     docID(d.Customer),
			InvoiceDate:    d.InvoiceDate,
			PriorityValue:  d.PriorityValue,
			DeliveryStatus: d.DeliveryStatus,
			Flagged:        d.Flagged,
			Zone:           d.Zone,
		}
		for _, it := range d.Items {
			o.Items = append(o.Items, model.OrderItem{WeightKg: it.WeightKg, Quantity: it.Quantity})
		}
		in.Orders = append(in.Orders, o)
		if d.Customer != nil && !seen[o.CustomerID] {
			seen[o.CustomerID] = true
			refs = append(refs, d.Customer)
		}
	}

	if len(refs) > 0 {
		cur, err := db.Collection(CustomersCollection).Find(ctx, bson.M{"_id": bson.M{"$in": refs}})
		if err != nil {
			return SolveInput{}, s.fail(err)
		}
		var cdocs []customerDoc
		if err := cur.All(ctx, &cdocs); err != nil {
			return SolveInput{}, s.fail(err)
		}
		for _, d := range cdocs {
			c := d.customer()
			in.Customers[c.ID] = c
		}
	}

	cur, err = db.Collection(VehiclesCollection).Find(ctx, bson.M{"availability": model.VehicleAvailable})
	if err != nil {
		return SolveInput{}, s.fail(err)
	}
	var vdocs []vehicleDoc
	if err := cur.All(ctx, &vdocs); err != nil {
		return SolveInput{}, s.fail(err)
	}
	for _, d := range vdocs {
		in.Vehicles = append(in.Vehicles, model.Vehicle{
			ID:           docID(d.ID),
			Name:         d.Name,
			Capacity:     d.Capacity,
			Availability: d.Availability,
			Status:       d.Status,
		})
	}
	return in, nil
}

func (s *Mongo) SaveRoutePlan(ctx context.Context, plan *model.RoutePlan) error {
	db, err := s.database(ctx)
	if err != nil {
		return err
	}
	vehicles := db.Collection(VehiclesCollection)
	if _, err := vehicles.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{"status": model.VehicleUnassigned}}); err != nil {
		return s.fail(err)
	}
	if ids := plan.VehicleIDs(); len(ids) > 0 {
		keys := make([]any, len(ids))
		for i, id := range ids {
			keys[i] = docKey(id)
		}
		if _, err := vehicles.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": keys}}, bson.M{"$set": bson.M{"status": model.VehicleAssigned}}); err != nil {
			return s.fail(err)
		}
	}
	if _, err := db.Collection(PlansCollection).InsertOne(ctx, plan); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("route plan %s already exists", plan.SolutionID)
		}
		return s.fail(err)
	}

	zones := plan.OrderZones()
	if len(zones) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(zones))
	for id, zone := range zones {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": docKey(id)}).
			SetUpdate(bson.M{"$set": bson.M{"zone": zone}}))
	}
	if _, err := db.Collection(OrdersCollection).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *Mongo) GetRoutePlan(ctx context.Context, solutionID string) (*model.RoutePlan, error) {
	db, err := s.database(ctx)
	if err != nil {
		return nil, err
	}
	var p model.RoutePlan
	err = db.Collection(PlansCollection).FindOne(ctx, bson.M{"solution_id": solutionID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, planNotFound(solutionID)
	}
	if err != nil {
		return nil, s.fail(err)
	}
	return &p, nil
}

func (s *Mongo) ListRoutePlans(ctx context.Context, day time.Time) ([]model.RoutePlanSummary, error) {
	db, err := s.database(ctx)
	if err != nil {
		return nil, err
	}
	from, to := dayBounds(day)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := db.Collection(PlansCollection).Find(ctx, bson.M{"date": bson.M{"$gte": from, "$lt": to}}, opts)
	if err != nil {
		return nil, s.fail(err)
	}
	var plans []model.RoutePlan
	if err := cur.All(ctx, &plans); err != nil {
		return nil, s.fail(err)
	}
	out := make([]model.RoutePlanSummary, 0, len(plans))
	for i := range plans {
		out = append(out, plans[i].Summary())
	}
	return out, nil
}

func (s *Mongo) Ping(ctx context.Context) error {
	db, err := s.database(ctx)
	if err != nil {
		return err
	}
	if err := db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return s.fail(err)
	}
	return nil
}

// Close disconnects if a connection was opened.
func (s *Mongo) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client, s.db = nil, nil
	return err
}
