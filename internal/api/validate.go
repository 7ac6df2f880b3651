package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"routesolver/internal/planner"
)

// number accepts a JSON number or a numeric string.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%q is not a number", string(b))
	}
	*n = number(f)
	return nil
}

type solveRequest struct {
	InvoiceDate   *string `json:"invoice_date" validate:"required"`
	Miles         *number `json:"miles" validate:"gt=0"`
	MaxOrders     *number `json:"maxOrders" validate:"gte=1,lte=10000"`
	RouteLength   *number `json:"routeLength" validate:"gt=0,lte=24"`
	UnloadingTime *number `json:"unLoadingTime" validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		return float64(f.Interface().(number))
	}, number(0))
	return v
}

// missingFields lists absent fields in request order.
func (r *solveRequest) missingFields() []string {
	var out []string
	if r.InvoiceDate == nil || strings.TrimSpace(*r.InvoiceDate) == "" {
		out = append(out, "invoice_date")
	}
	if r.Miles == nil {
		out = append(out, "miles")
	}
	if r.MaxOrders == nil {
		out = append(out, "maxOrders")
	}
	if r.RouteLength == nil {
		out = append(out, "routeLength")
	}
	if r.UnloadingTime == nil {
		out = append(out, "unLoadingTime")
	}
	return out
}

// fieldErrors validates ranges and returns field -> message. Call it only
// once missingFields is empty.
func (r *solveRequest) fieldErrors() map[string]string {
	fields := map[string]string{}
	if err := validate.Struct(r); err != nil {
		if ves, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ves {
				fields[fe.Field()] = errorMessage(fe)
			}
		} else {
			fields["body"] = err.Error()
		}
	}
	if r.MaxOrders != nil && float64(*r.MaxOrders) != math.Trunc(float64(*r.MaxOrders)) {
		fields["maxOrders"] = "maxOrders must be a whole number"
	}
	if r.InvoiceDate != nil {
		if _, err := parseInvoiceDate(*r.InvoiceDate); err != nil {
			fields["invoice_date"] = err.Error()
		}
	}
	return fields
}

func (r *solveRequest) toRequest() planner.Request {
	day, _ := parseInvoiceDate(*r.InvoiceDate)
	return planner.Request{
		InvoiceDate:   day,
		Miles:         float64(*r.Miles),
		MaxOrders:     int(*r.MaxOrders),
		RouteLength:   float64(*r.RouteLength),
		UnloadingTime: float64(*r.UnloadingTime),
	}
}

// parseInvoiceDate takes the calendar date of an ISO date or timestamp
// ("2025-03-10", "2025-03-10T00:00:00Z") as a UTC day.
func parseInvoiceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	datePart, _, _ := strings.Cut(s, "T")
	d, err := time.Parse(time.DateOnly, datePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invoice_date must be an ISO date (YYYY-MM-DD)")
	}
	return d, nil
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func joinFields(fields map[string]string) string {
	msgs := make([]string, 0, len(fields))
	for _, m := range fields {
		msgs = append(msgs, m)
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
