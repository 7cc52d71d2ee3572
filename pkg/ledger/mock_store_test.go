package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/mcclellann/terme/pkg/store"
	"github.com/shopspring/decimal"
)

// MockStore is a simple in-memory implementation of the Storage interface for testing.
// InTx snapshots the maps and restores them when fn fails.
type MockStore struct {
	clients    map[uuid.UUID]models.Client
	operations map[uuid.UUID]models.Operation
	payments   map[uuid.UUID]models.Payment

	// failUpdateOperation makes UpdateOperation fail, to exercise rollback.
	failUpdateOperation error
	// transactions counts InTx calls.
	transactions int
}

func NewMockStore() *MockStore {
	return &MockStore{
		clients:    make(map[uuid.UUID]models.Client),
		operations: make(map[uuid.UUID]models.Operation),
		payments:   make(map[uuid.UUID]models.Payment),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m *MockStore) InTx(ctx context.Context, fn func(store.Storage) error) error {
	m.transactions++
	clients, ops, payments := copyMap(m.clients), copyMap(m.operations), copyMap(m.payments)
	if err := fn(m); err != nil {
		m.clients, m.operations, m.payments = clients, ops, payments
		return err
	}
	return nil
}

func (m *MockStore) Close() error { return nil }

func (m *MockStore) CreateClient(_ context.Context, c *models.Client) error {
	for _, existing := range m.clients {
		if strings.EqualFold(existing.Name, c.Name) {
			return store.ErrConflict
		}
	}
	m.clients[c.ID] = *c
	return nil
}

func (m *MockStore) GetClient(_ context.Context, id uuid.UUID) (*models.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("client: %w", store.ErrNotFound)
	}
	return &c, nil
}

func (m *MockStore) GetClientByName(_ context.Context, name string) (*models.Client, error) {
	for _, c := range m.clients {
		if strings.EqualFold(c.Name, name) {
			c := c
			return &c, nil
		}
	}
	return nil, fmt.Errorf("client: %w", store.ErrNotFound)
}

func (m *MockStore) UpdateClient(_ context.Context, c *models.Client) error {
	if _, ok := m.clients[c.ID]; !ok {
		return store.ErrNotFound
	}
	m.clients[c.ID] = *c
	return nil
}

func (m *MockStore) DeleteClient(_ context.Context, id uuid.UUID) error {
	if _, ok := m.clients[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.clients, id)
	return nil
}

func (m *MockStore) ListClients(_ context.Context) ([]*models.Client, error) {
	clients := []*models.Client{}
	for _, c := range m.clients {
		c := c
		clients = append(clients, &c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return strings.ToLower(clients[i].Name) < strings.ToLower(clients[j].Name)
	})
	return clients, nil
}

func (m *MockStore) CountOperationsForClient(_ context.Context, clientID uuid.UUID) (int, error) {
	n := 0
	for _, op := range m.operations {
		if op.ClientID == clientID {
			n++
		}
	}
	return n, nil
}

func (m *MockStore) CreateOperation(_ context.Context, op *models.Operation) error {
	m.operations[op.ID] = *op
	return nil
}

func (m *MockStore) GetOperation(_ context.Context, id uuid.UUID) (*models.Operation, error) {
	op, ok := m.operations[id]
	if !ok {
		return nil, fmt.Errorf("operation: %w", store.ErrNotFound)
	}
	return &op, nil
}

func (m *MockStore) UpdateOperation(_ context.Context, op *models.Operation) error {
	if m.failUpdateOperation != nil {
		return m.failUpdateOperation
	}
	if _, ok := m.operations[op.ID]; !ok {
		return store.ErrNotFound
	}
	m.operations[op.ID] = *op
	return nil
}

func (m *MockStore) DeleteOperation(_ context.Context, id uuid.UUID) error {
	if _, ok := m.operations[id]; !ok {
		return store.ErrNotFound
	}
	for pid, p := range m.payments {
		if p.OperationID == id {
			delete(m.payments, pid)
		}
	}
	delete(m.operations, id)
	return nil
}

func (m *MockStore) ListOperations(_ context.Context, filter store.OperationFilter) ([]*models.Operation, error) {
	ops := []*models.Operation{}
	for _, op := range m.operations {
		if filter.ClientID != nil && op.ClientID != *filter.ClientID {
			continue
		}
		if filter.Status != nil && op.Status != *filter.Status {
			continue
		}
		op := op
		ops = append(ops, &op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].CreatedAt.After(ops[j].CreatedAt) })
	return ops, nil
}

func (m *MockStore) CreatePayment(_ context.Context, p *models.Payment) error {
	m.payments[p.ID] = *p
	return nil
}

func (m *MockStore) GetPayment(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment: %w", store.ErrNotFound)
	}
	return &p, nil
}

func (m *MockStore) DeletePayment(_ context.Context, id uuid.UUID) error {
	if _, ok := m.payments[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.payments, id)
	return nil
}

func (m *MockStore) ListPayments(_ context.Context, operationID uuid.UUID) ([]*models.Payment, error) {
	payments := []*models.Payment{}
	for _, p := range m.payments {
		if p.OperationID == operationID {
			p := p
			payments = append(payments, &p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].PeriodNumber != payments[j].PeriodNumber {
			return payments[i].PeriodNumber < payments[j].PeriodNumber
		}
		return payments[i].PaidAt.Before(payments[j].PaidAt)
	})
	return payments, nil
}

func (m *MockStore) SumPayments(_ context.Context, operationID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range m.payments {
		if p.OperationID == operationID {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (m *MockStore) HasOrdinaryPayment(_ context.Context, operationID uuid.UUID, period int) (bool, error) {
	for _, p := range m.payments {
		if p.OperationID == operationID && p.PeriodNumber == period && p.Kind == models.PaymentKindOrdinary {
			return true, nil
		}
	}
	return false, nil
}
