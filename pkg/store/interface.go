package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness or foreign key constraint.
	ErrConflict = errors.New("constraint violation")
)

// OperationFilter narrows ListOperations. Nil fields match everything.
type OperationFilter struct {
	ClientID *uuid.UUID
	Status   *models.OperationStatus
}

// Storage defines the interface for database operations related to clients, operations and payments.
type Storage interface {
	CreateClient(ctx context.Context, client *models.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	GetClientByName(ctx context.Context, name string) (*models.Client, error)
	UpdateClient(ctx context.Context, client *models.Client) error
	DeleteClient(ctx context.Context, id uuid.UUID) error
	ListClients(ctx context.Context) ([]*models.Client, error)
	CountOperationsForClient(ctx context.Context, clientID uuid.UUID) (int, error)

	CreateOperation(ctx context.Context, op *models.Operation) error
	GetOperation(ctx context.Context, id uuid.UUID) (*models.Operation, error)
	UpdateOperation(ctx context.Context, op *models.Operation) error
	DeleteOperation(ctx context.Context, id uuid.UUID) error
	ListOperations(ctx context.Context, filter OperationFilter) ([]*models.Operation, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	DeletePayment(ctx context.Context, id uuid.UUID) error
	ListPayments(ctx context.Context, operationID uuid.UUID) ([]*models.Payment, error)
	SumPayments(ctx context.Context, operationID uuid.UUID) (decimal.Decimal, error)
	HasOrdinaryPayment(ctx context.Context, operationID uuid.UUID, periodNumber int) (bool, error)

	// InTx runs fn against a Storage bound to a single transaction. The
	// transaction commits if fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(s Storage) error) error

	Close() error
}
