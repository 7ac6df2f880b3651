package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"routesolver/internal/apperr"
	"routesolver/internal/model"
)

const maxBodyBytes = 1 << 20

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "invalid request method", r.URL.Path)
		return
	}
	var body solveRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", "invalid JSON body", r.URL.Path)
		return
	}
	if missing := body.missingFields(); len(missing) > 0 {
		writeProblem(w, http.StatusBadRequest, "Missing fields", "missing required fields: "+strings.Join(missing, ", "), r.URL.Path)
		return
	}
	if fields := body.fieldErrors(); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, Problem{
			Type:     "about:blank",
			Title:    "Invalid solve request",
			Status:   http.StatusBadRequest,
			Detail:   joinFields(fields),
			Instance: r.URL.Path,
			Errors:   fields,
		})
		return
	}

	plan, err := s.Solver.Solve(r.Context(), body.toRequest())
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			s.Logger.Error("unexpected error in route solve", "error", err)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// SolutionsHandler handles GET /v1/solutions?date=YYYY-MM-DD
func (s *Server) SolutionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query().Get("date")
	if q == "" {
		writeProblem(w, http.StatusBadRequest, "Missing date", "date query parameter is required", r.URL.Path)
		return
	}
	day, err := parseInvoiceDate(q)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid date", "date must be YYYY-MM-DD", r.URL.Path)
		return
	}
	items, err := s.Store.ListRoutePlans(r.Context(), day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.RoutePlanSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// SolutionByIDHandler handles GET /v1/solutions/{id}
func (s *Server) SolutionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/solutions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	plan, err := s.Store.GetRoutePlan(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// SolverConfigHandler returns the effective solver defaults
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"defaults": s.SolverInfo})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports ready once the store answers a ping.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		status := "unavailable"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		s.Logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": status})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
