package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"routesolver/internal/apperr"
	"routesolver/internal/model"
)

//go:embed schema.sql
var schema string

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, apperr.Upstream(err, "database connection failed")
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *Postgres) LoadSolveInput(ctx context.Context, day time.Time) (SolveInput, error) {
	from, to := dayBounds(day)
	rows, err := p.db.QueryContext(ctx, `SELECT id, customer_id, invoice_date, items, priority_value, delivery_status, flagged, zone
		FROM orders WHERE invoice_date >= $1 AND invoice_date < $2 ORDER BY invoice_date, id`, from, to)
	if err != nil {
		return SolveInput{}, classifyPG(err)
	}
	in := SolveInput{Customers: map[string]model.Customer{}}
	var customerIDs []string
	seen := map[string]bool{}
	for rows.Next() {
		var o model.Order
		var items, prio []byte
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.InvoiceDate, &items, &prio, &o.DeliveryStatus, &o.Flagged, &o.Zone); err != nil {
			rows.Close()
			return SolveInput{}, classifyPG(err)
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			rows.Close()
			return SolveInput{}, apperr.Data("order %s has unreadable items", o.ID)
		}
		if len(prio) > 0 {
			var v any
			if json.Unmarshal(prio, &v) == nil {
				o.PriorityValue = v
			}
		}
		in.Orders = append(in.Orders, o)
		if !seen[o.CustomerID] {
			seen[o.CustomerID] = true
			customerIDs = append(customerIDs, o.CustomerID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SolveInput{}, classifyPG(err)
	}

	if len(customerIDs) > 0 {
		rows, err := p.db.QueryContext(ctx, `SELECT id, customer_name, address, latitude, longitude, business_start_hour, business_close_hour
			FROM customers WHERE id = ANY($1)`, customerIDs)
		if err != nil {
			return SolveInput{}, classifyPG(err)
		}
		for rows.Next() {
			var c model.Customer
			var lat, lng sql.NullFloat64
			var open, closeAt []byte
			if err := rows.Scan(&c.ID, &c.Name, &c.Address, &lat, &lng, &open, &closeAt); err != nil {
				rows.Close()
				return SolveInput{}, classifyPG(err)
			}
			if lat.Valid {
				c.Latitude = &lat.Float64
			}
			if lng.Valid {
				c.Longitude = &lng.Float64
			}
			c.BusinessStartHour = jsonHours(open)
			c.BusinessCloseHour = jsonHours(closeAt)
			in.Customers[c.ID] = c
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return SolveInput{}, classifyPG(err)
		}
	}

	vrows, err := p.db.QueryContext(ctx, `SELECT id, name, capacity, availability, status FROM vehicles WHERE availability = $1 ORDER BY created_at, id`, model.VehicleAvailable)
	if err != nil {
		return SolveInput{}, classifyPG(err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var v model.Vehicle
		var capacity sql.NullFloat64
		if err := vrows.Scan(&v.ID, &v.Name, &capacity, &v.Availability, &v.Status); err != nil {
			return SolveInput{}, classifyPG(err)
		}
		if capacity.Valid {
			v.Capacity = &capacity.Float64
		}
		in.Vehicles = append(in.Vehicles, v)
	}
	if err := vrows.Err(); err != nil {
		return SolveInput{}, classifyPG(err)
	}
	return in, nil
}

func (p *Postgres) SaveRoutePlan(ctx context.Context, plan *model.RoutePlan) error {
	body, err := json.Marshal(plan)
	if err != nil {
		return apperr.Internal(err, "encode route plan")
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyPG(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO route_plans (solution_id, plan_date, total_distance, routes, created_at, body) VALUES ($1,$2,$3,$4,$5,$6)`,
		plan.SolutionID, plan.Date, plan.TotalDistance, len(plan.VehicleRoutes), plan.CreatedAt, string(body)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Conflict("route plan %s already exists", plan.SolutionID)
		}
		return classifyPG(err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE vehicles SET status = $1`, model.VehicleUnassigned); err != nil {
		return classifyPG(err)
	}
	if ids := plan.VehicleIDs(); len(ids) > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE vehicles SET status = $1 WHERE id = ANY($2)`, model.VehicleAssigned, ids); err != nil {
			return classifyPG(err)
		}
	}
	for id, zone := range plan.OrderZones() {
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET zone = $1 WHERE id = $2`, zone, id); err != nil {
			return classifyPG(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classifyPG(err)
	}
	return nil
}

func (p *Postgres) GetRoutePlan(ctx context.Context, solutionID string) (*model.RoutePlan, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT body FROM route_plans WHERE solution_id = $1`, solutionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, planNotFound(solutionID)
	}
	if err != nil {
		return nil, classifyPG(err)
	}
	var plan model.RoutePlan
	if err := json.Unmarshal(body, &plan); err != nil {
		return nil, apperr.Internal(err, fmt.Sprintf("decode route plan %s", solutionID))
	}
	return &plan, nil
}

func (p *Postgres) ListRoutePlans(ctx context.Context, day time.Time) ([]model.RoutePlanSummary, error) {
	from, to := dayBounds(day)
	rows, err := p.db.QueryContext(ctx, `SELECT solution_id, plan_date, total_distance, routes, created_at FROM route_plans
		WHERE plan_date >= $1 AND plan_date < $2 ORDER BY created_at DESC`, from, to)
	if err != nil {
		return nil, classifyPG(err)
	}
	defer rows.Close()
	out := []model.RoutePlanSummary{}
	for rows.Next() {
		var s model.RoutePlanSummary
		if err := rows.Scan(&s.SolutionID, &s.Date, &s.TotalDistance, &s.Routes, &s.CreatedAt); err != nil {
			return nil, classifyPG(err)
		}
		out = append(out, s)
	}
	return out, classifyPG(rows.Err())
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return apperr.Upstream(err, "database unavailable")
	}
	return nil
}

func (p *Postgres) Close(ctx context.Context) error { return p.db.Close() }

// classifyPG wraps driver errors; server-side errors are reported as
// upstream failures, anything else as internal.
func classifyPG(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return apperr.Upstream(err, "database operation failed")
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return apperr.Upstream(err, "database timeout")
	}
	return apperr.Internal(err, "database error")
}

// jsonHours accepts a per-weekday array or a single "HH:MM" string. Anything
// else reads as absent and falls back to the default window downstream.
func jsonHours(raw []byte) []string {
	var days []string
	if err := json.Unmarshal(raw, &days); err == nil {
		return days
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return everyDay(one)
	}
	return nil
}
