package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/terme/pkg/ledger"
	"github.com/mcclellann/terme/pkg/logging"
	"github.com/mcclellann/terme/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the ledger over HTTP.
type Server struct {
	ledger *ledger.Ledger
	log    *logging.Logger
}

func NewServer(l *ledger.Ledger, log *logging.Logger) *Server {
	return &Server{ledger: l, log: log.WithComponent(logging.ComponentHTTP)}
}

// Router registers every route on a new mux router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/clients", s.listClientsHandler).Methods("GET")
	r.HandleFunc("/clients", s.addClientHandler).Methods("POST")
	r.HandleFunc("/clients/{id}", s.getClientHandler).Methods("GET")
	r.HandleFunc("/clients/{id}", s.updateClientHandler).Methods("PUT")
	r.HandleFunc("/clients/{id}", s.removeClientHandler).Methods("DELETE")
	r.HandleFunc("/clients/{id}/operations", s.listClientOperationsHandler).Methods("GET")

	r.HandleFunc("/operations", s.listOperationsHandler).Methods("GET")
	r.HandleFunc("/operations", s.createOperationHandler).Methods("POST")
	r.HandleFunc("/operations/{id}", s.getOperationHandler).Methods("GET")
	r.HandleFunc("/operations/{id}", s.updateOperationHandler).Methods("PUT")
	r.HandleFunc("/operations/{id}", s.deleteOperationHandler).Methods("DELETE")
	r.HandleFunc("/operations/{id}/payments", s.listPaymentsHandler).Methods("GET")
	r.HandleFunc("/operations/{id}/payments", s.recordPaymentHandler).Methods("POST")
	r.HandleFunc("/operations/{id}/balance", s.balanceHandler).Methods("GET")
	r.HandleFunc("/operations/{id}/schedule", s.operationScheduleHandler).Methods("GET")
	r.HandleFunc("/operations/{id}/next-due", s.nextDueHandler).Methods("GET")
	r.HandleFunc("/payments/{id}", s.removePaymentHandler).Methods("DELETE")

	r.HandleFunc("/schedule", s.theoreticalScheduleHandler).Methods("GET")

	r.HandleFunc("/reports/overdue", s.overdueReportHandler).Methods("GET")
	r.HandleFunc("/reports/balances", s.balancesReportHandler).Methods("GET")
	r.HandleFunc("/reports/statements", s.statementsReportHandler).Methods("GET")
	r.HandleFunc("/reports/summary", s.summaryReportHandler).Methods("GET")

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics by route template and logs each request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPLatency.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		s.log.DebugContext(r.Context(), "Request handled",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration", elapsed)
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps ledger errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidArgument), errors.Is(err, ledger.ErrInvalidClient):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrDuplicateName),
		errors.Is(err, ledger.ErrDuplicatePeriod),
		errors.Is(err, ledger.ErrOperationClosed),
		errors.Is(err, ledger.ErrHasActiveOperations):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Failure(r.Context(), "Request failed", err, "method", r.Method, "path", r.URL.Path)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		badRequest(w, "Invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// asOf reads the as_of query parameter as a date or RFC 3339 time, defaulting to now.
func asOf(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
