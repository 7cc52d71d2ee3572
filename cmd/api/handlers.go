package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/ledger"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/shopspring/decimal"
)

type clientRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

func (s *Server) addClientHandler(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !decode(w, r, &req) {
		return
	}
	client, err := s.ledger.AddClient(r.Context(), req.Name, req.Phone, req.Notes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) getClientHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "client")
	if !ok {
		return
	}
	client, err := s.ledger.GetClient(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) updateClientHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "client")
	if !ok {
		return
	}
	var req clientRequest
	if !decode(w, r, &req) {
		return
	}
	client, err := s.ledger.UpdateClient(r.Context(), id, req.Name, req.Phone, req.Notes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) removeClientHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "client")
	if !ok {
		return
	}
	if err := s.ledger.RemoveClient(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := s.ledger.ListClients(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) listClientOperationsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "client")
	if !ok {
		return
	}
	if _, err := s.ledger.GetClient(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	filter, ok := operationFilter(w, r)
	if !ok {
		return
	}
	filter.ClientID = &id
	ops, err := s.ledger.ListOperations(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ops)
}

// operationFilter reads the client_id and status query parameters.
func operationFilter(w http.ResponseWriter, r *http.Request) (ledger.OperationFilter, bool) {
	var filter ledger.OperationFilter
	q := r.URL.Query()
	if v := q.Get("client_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			badRequest(w, "Invalid client_id")
			return filter, false
		}
		filter.ClientID = &id
	}
	switch status := models.OperationStatus(q.Get("status")); status {
	case "":
	case models.OperationStatusOpen, models.OperationStatusClosed:
		filter.Status = &status
	default:
		badRequest(w, "status must be open or closed")
		return filter, false
	}
	return filter, true
}

func (s *Server) createOperationHandler(w http.ResponseWriter, r *http.Request) {
	var req ledger.OperationInput
	if !decode(w, r, &req) {
		return
	}
	op, err := s.ledger.CreateOperation(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

func (s *Server) getOperationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "operation")
	if !ok {
		return
	}
	op, err := s.ledger.GetOperation(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *Server) updateOperationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "operation")
	if !ok {
		return
	}
	var req ledger.OperationTerms
	if !decode(w, r, &req) {
		return
	}
	op, err := s.ledger.UpdateOperation(r.Context(), id, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *Server) deleteOperationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "operation")
	if !ok {
		return
	}
	if err := s.ledger.DeleteOperation(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listOperationsHandler(w http.ResponseWriter, r *http.Request) {
	filter, ok := operationFilter(w, r)
	if !ok {
		return
	}
	ops, err := s.ledger.ListOperations(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "operation")
	if !ok {
		return
	}
	var req ledger.PaymentInput
	if !decode(w, r, &req) {
		return
	}
	req.OperationID = id // Ensure ID from URL is used

	payment, err := s.ledger.RecordPayment(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "operation")
	if !ok {
		return
	}
	payments, err := s.ledger.ListPayments(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) removePaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "payment")
	if !ok {
		return
	}
	if err := s.ledger.RemovePayment(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "operation")
	if !ok {
		return
	}
	b, err := s.ledger.OperationBalance(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) operationScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "operation")
	if !ok {
		return
	}
	schedule, err := s.ledger.OperationSchedule(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) nextDueHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "operation")
	if !ok {
		return
	}
	nd, err := s.ledger.NextDue(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nd)
}

func (s *Server) theoreticalScheduleHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var terms [3]decimal.Decimal
	for i, key := range []string{"principal", "profit_rate", "duration_periods"} {
		d, err := decimal.NewFromString(q.Get(key))
		if err != nil {
			badRequest(w, "Invalid or missing "+key)
			return
		}
		terms[i] = d
	}
	schedule, err := s.ledger.TheoreticalSchedule(terms[0], terms[1], terms[2])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) overdueReportHandler(w http.ResponseWriter, r *http.Request) {
	at, err := asOf(r)
	if err != nil {
		badRequest(w, "Invalid as_of")
		return
	}
	report, err := s.ledger.OverdueReport(r.Context(), at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if report == nil {
		report = []ledger.OverdueEntry{}
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) balancesReportHandler(w http.ResponseWriter, r *http.Request) {
	balances, err := s.ledger.BalanceByClient(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) statementsReportHandler(w http.ResponseWriter, r *http.Request) {
	statements, err := s.ledger.ClientStatements(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statements)
}

func (s *Server) summaryReportHandler(w http.ResponseWriter, r *http.Request) {
	at, err := asOf(r)
	if err != nil {
		badRequest(w, "Invalid as_of")
		return
	}
	summary, err := s.ledger.PortfolioSummary(r.Context(), at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
