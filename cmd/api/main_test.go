package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/terme/pkg/amortization"
	"github.com/mcclellann/terme/pkg/ledger"
	"github.com/mcclellann/terme/pkg/logging"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/mcclellann/terme/pkg/store"
	"github.com/shopspring/decimal"
)

func setupTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return NewServer(ledger.NewLedger(s), logging.Discard()).Router()
}

func do(t *testing.T, router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createClient(t *testing.T, router *mux.Router, name string) models.Client {
	t.Helper()
	rr := do(t, router, "POST", "/clients", map[string]string{"name": name, "phone": "0611223344"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var c models.Client
	json.Unmarshal(rr.Body.Bytes(), &c)
	return c
}

func createOperation(t *testing.T, router *mux.Router, clientID uuid.UUID) models.Operation {
	t.Helper()
	rr := do(t, router, "POST", "/operations", map[string]any{
		"client_id":        clientID,
		"principal":        "1000000",
		"profit_rate":      "0.08",
		"duration_periods": 6,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var op models.Operation
	json.Unmarshal(rr.Body.Bytes(), &op)
	return op
}

func TestAPI_CreateAndGetOperation(t *testing.T) {
	router := setupTestRouter(t)
	client := createClient(t, router, "Youssef")
	op := createOperation(t, router, client.ID)

	if !op.TotalDue.Equal(decimal.NewFromInt(1480000)) {
		t.Errorf("Expected total due 1480000, got %s", op.TotalDue)
	}
	if !op.PeriodAmount.Equal(decimal.RequireFromString("246666.67")) {
		t.Errorf("Expected period amount 246666.67, got %s", op.PeriodAmount)
	}
	if op.Status != models.OperationStatusOpen || op.Direction != models.DirectionCredit {
		t.Errorf("Expected open credit operation, got %s/%s", op.Status, op.Direction)
	}

	rr := do(t, router, "GET", "/operations/"+op.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var fetched models.Operation
	json.Unmarshal(rr.Body.Bytes(), &fetched)
	if fetched.ID != op.ID || fetched.ClientID != client.ID {
		t.Errorf("Expected operation %s, got %s", op.ID, fetched.ID)
	}

	rr = do(t, router, "GET", "/clients/"+client.ID.String()+"/operations?status=open", nil)
	var ops []models.Operation
	json.Unmarshal(rr.Body.Bytes(), &ops)
	if len(ops) != 1 {
		t.Errorf("Expected 1 open operation for client, got %d", len(ops))
	}
}

func TestAPI_CreateOperationValidation(t *testing.T) {
	router := setupTestRouter(t)
	client := createClient(t, router, "Zineb")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown client", map[string]any{"client_id": uuid.New(), "principal": "100", "profit_rate": "0.1", "duration_periods": 2}, http.StatusBadRequest},
		{"zero duration", map[string]any{"client_id": client.ID, "principal": "100", "profit_rate": "0.1", "duration_periods": 0}, http.StatusBadRequest},
		{"negative principal", map[string]any{"client_id": client.ID, "principal": "-5", "profit_rate": "0.1", "duration_periods": 2}, http.StatusBadRequest},
		{"too many periods", map[string]any{"client_id": client.ID, "principal": "100", "profit_rate": "0.1", "duration_periods": "1e9"}, http.StatusBadRequest},
		{"unknown direction", map[string]any{"client_id": client.ID, "principal": "100", "profit_rate": "0.1", "duration_periods": 2, "direction": "sideways"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, "POST", "/operations", tt.body)
			if rr.Code != tt.want {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}

	req := httptest.NewRequest("POST", "/operations", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed body, got %d", rr.Code)
	}
}

func TestAPI_RecordPayment(t *testing.T) {
	router := setupTestRouter(t)
	client := createClient(t, router, "Adil")
	op := createOperation(t, router, client.ID)
	paymentsPath := "/operations/" + op.ID.String() + "/payments"

	rr := do(t, router, "POST", paymentsPath, map[string]any{"period_number": 1, "amount": "246666.67", "kind": "ordinary"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var payment models.Payment
	json.Unmarshal(rr.Body.Bytes(), &payment)
	if payment.OperationID != op.ID || payment.PeriodNumber != 1 {
		t.Errorf("Unexpected payment %+v", payment)
	}

	rr = do(t, router, "POST", paymentsPath, map[string]any{"period_number": 1, "amount": "10", "kind": "ordinary"})
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate period, got %d", rr.Code)
	}
	rr = do(t, router, "POST", paymentsPath, map[string]any{"period_number": 2, "amount": "0", "kind": "ordinary"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for zero amount, got %d", rr.Code)
	}

	rr = do(t, router, "POST", paymentsPath, map[string]any{"amount": "1233333.33", "kind": "anticipated"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 for anticipated payment, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, router, "GET", "/operations/"+op.ID.String()+"/balance", nil)
	var balance ledger.Balance
	json.Unmarshal(rr.Body.Bytes(), &balance)
	if balance.Status != models.OperationStatusClosed || !balance.Balance.IsZero() {
		t.Errorf("Expected closed operation with zero balance, got %+v", balance)
	}

	rr = do(t, router, "POST", paymentsPath, map[string]any{"period_number": 3, "amount": "1", "kind": "ordinary"})
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for closed operation, got %d", rr.Code)
	}

	rr = do(t, router, "GET", paymentsPath, nil)
	var payments []models.Payment
	json.Unmarshal(rr.Body.Bytes(), &payments)
	if len(payments) != 2 {
		t.Fatalf("Expected 2 payments, got %d", len(payments))
	}

	rr = do(t, router, "DELETE", "/payments/"+payments[1].ID.String(), nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rr.Code)
	}
	rr = do(t, router, "GET", "/operations/"+op.ID.String()+"/balance", nil)
	json.Unmarshal(rr.Body.Bytes(), &balance)
	if balance.Status != models.OperationStatusOpen {
		t.Errorf("Expected operation reopened after payment removal, got %s", balance.Status)
	}
}

func TestAPI_ClientErrors(t *testing.T) {
	router := setupTestRouter(t)
	client := createClient(t, router, "Omar")
	createOperation(t, router, client.ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"duplicate name", "POST", "/clients", map[string]string{"name": "omar"}, http.StatusConflict},
		{"blank name", "POST", "/clients", map[string]string{"name": " "}, http.StatusBadRequest},
		{"remove with operations", "DELETE", "/clients/" + client.ID.String(), nil, http.StatusConflict},
		{"unknown client", "GET", "/clients/" + uuid.New().String(), nil, http.StatusNotFound},
		{"malformed id", "GET", "/clients/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown operation", "GET", "/operations/" + uuid.New().String() + "/next-due", nil, http.StatusNotFound},
		{"bad status filter", "GET", "/operations?status=late", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, tt.method, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.want, rr.Code, rr.Body.String())
			}
			var body errorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Errorf("Expected JSON error body, got %s", rr.Body.String())
			}
		})
	}
}

func TestAPI_UpdateClient(t *testing.T) {
	router := setupTestRouter(t)
	client := createClient(t, router, "Rachid")

	rr := do(t, router, "PUT", "/clients/"+client.ID.String(), map[string]string{"name": "Rachid B.", "notes": "marché de gros"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var updated models.Client
	json.Unmarshal(rr.Body.Bytes(), &updated)
	if updated.Name != "Rachid B." || updated.Notes != "marché de gros" {
		t.Errorf("Unexpected client %+v", updated)
	}

	rr = do(t, router, "GET", "/clients", nil)
	var clients []models.Client
	json.Unmarshal(rr.Body.Bytes(), &clients)
	if len(clients) != 1 || clients[0].Name != "Rachid B." {
		t.Errorf("Expected renamed client in list, got %+v", clients)
	}
}

func TestAPI_Schedules(t *testing.T) {
	router := setupTestRouter(t)

	rr := do(t, router, "GET", "/schedule?principal=1000000&profit_rate=0.08&duration_periods=6", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var schedule []amortization.Installment
	json.Unmarshal(rr.Body.Bytes(), &schedule)
	if len(schedule) != 6 || !schedule[5].AmountDue.Equal(decimal.RequireFromString("246666.65")) {
		t.Errorf("Unexpected schedule %+v", schedule)
	}

	rr = do(t, router, "GET", "/schedule?principal=1000&profit_rate=0.1", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing duration, got %d", rr.Code)
	}
	for _, duration := range []string{"1201", "1e9", "9223372036854775808"} {
		rr = do(t, router, "GET", "/schedule?principal=1000&profit_rate=0&duration_periods="+duration, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %s periods, got %d", duration, rr.Code)
		}
	}

	client := createClient(t, router, "Sanaa")
	op := createOperation(t, router, client.ID)
	rr = do(t, router, "GET", "/operations/"+op.ID.String()+"/schedule", nil)
	var placed []ledger.ScheduledInstallment
	json.Unmarshal(rr.Body.Bytes(), &placed)
	if len(placed) != 6 || !placed[0].DueDate.Equal(op.CreatedAt.Add(ledger.PeriodLength)) {
		t.Errorf("Unexpected operation schedule %+v", placed)
	}

	rr = do(t, router, "GET", "/operations/"+op.ID.String()+"/next-due", nil)
	var nd ledger.NextDue
	json.Unmarshal(rr.Body.Bytes(), &nd)
	if nd.Completed || !nd.Amount.Equal(decimal.RequireFromString("246666.67")) {
		t.Errorf("Unexpected next due %+v", nd)
	}
}

func TestAPI_Reports(t *testing.T) {
	router := setupTestRouter(t)
	client := createClient(t, router, "Taha")
	op := createOperation(t, router, client.ID)

	farFuture := op.CreatedAt.AddDate(0, 2, 0).Format("2006-01-02")
	rr := do(t, router, "GET", "/reports/overdue?as_of="+farFuture, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var overdue []ledger.OverdueEntry
	json.Unmarshal(rr.Body.Bytes(), &overdue)
	if len(overdue) != 1 || overdue[0].Operation.ID != op.ID || overdue[0].Client.Name != "Taha" {
		t.Errorf("Expected the operation to be overdue, got %+v", overdue)
	}

	rr = do(t, router, "GET", "/reports/overdue", nil)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Expected empty overdue list today, got %s", rr.Body.String())
	}

	rr = do(t, router, "GET", "/reports/overdue?as_of=yesterday", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad as_of, got %d", rr.Code)
	}

	rr = do(t, router, "GET", "/reports/balances", nil)
	var balances map[string]decimal.Decimal
	json.Unmarshal(rr.Body.Bytes(), &balances)
	if !balances[client.ID.String()].Equal(decimal.NewFromInt(1480000)) {
		t.Errorf("Expected client balance 1480000, got %+v", balances)
	}

	rr = do(t, router, "GET", "/reports/statements", nil)
	var statements []ledger.ClientStatement
	json.Unmarshal(rr.Body.Bytes(), &statements)
	if len(statements) != 1 || statements[0].ValueKind != models.ValueKindCash {
		t.Errorf("Unexpected statements %+v", statements)
	}

	rr = do(t, router, "GET", "/reports/summary?as_of="+farFuture, nil)
	var summary ledger.Summary
	json.Unmarshal(rr.Body.Bytes(), &summary)
	if summary.OpenOperations != 1 || summary.OverdueOperations != 1 || !summary.Outstanding.Equal(decimal.NewFromInt(1480000)) {
		t.Errorf("Unexpected summary %+v", summary)
	}
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	router := setupTestRouter(t)
	createClient(t, router, "Walid")

	rr := do(t, router, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	rr = do(t, router, "GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"terme_operations_created_total", `terme_http_requests_total{code="201",method="POST",route="/clients"}`} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %s in metrics output", want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ledger.ErrNotFound, http.StatusNotFound},
		{ledger.ErrInvalidArgument, http.StatusBadRequest},
		{ledger.ErrInvalidClient, http.StatusBadRequest},
		{ledger.ErrDuplicateName, http.StatusConflict},
		{ledger.ErrDuplicatePeriod, http.StatusConflict},
		{ledger.ErrOperationClosed, http.StatusConflict},
		{ledger.ErrHasActiveOperations, http.StatusConflict},
		{fmt.Errorf("operation: %w", ledger.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
