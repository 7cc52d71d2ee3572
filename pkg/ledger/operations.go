package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/amortization"
	"github.com/mcclellann/terme/pkg/metrics"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/mcclellann/terme/pkg/store"
	"github.com/shopspring/decimal"
)

// OperationFilter narrows ListOperations.
type OperationFilter = store.OperationFilter

// OperationTerms are the editable financial inputs of an operation.
type OperationTerms struct {
	Principal       decimal.Decimal `json:"principal"`
	ProfitRate      decimal.Decimal `json:"profit_rate"`
	DurationPeriods decimal.Decimal `json:"duration_periods"`
}

// OperationInput describes a new operation. Direction and ValueKind default
// to credit and cash.
type OperationInput struct {
	ClientID uuid.UUID `json:"client_id"`
	OperationTerms
	Direction models.Direction `json:"direction,omitempty"`
	ValueKind models.ValueKind `json:"value_kind,omitempty"`
	DueDate   *time.Time       `json:"due_date,omitempty"`
}

// terms runs the amortization policy and maps its validation failures.
func (l *Ledger) terms(t OperationTerms) (amortization.Terms, error) {
	terms, err := l.policy.Terms(t.Principal, t.ProfitRate, t.DurationPeriods)
	if errors.Is(err, amortization.ErrInvalidTerms) {
		return amortization.Terms{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return terms, err
}

func normalizeKinds(in *OperationInput) error {
	switch in.Direction {
	case "":
		in.Direction = models.DirectionCredit
	case models.DirectionCredit, models.DirectionDebit:
	default:
		return invalid("unknown direction %q", in.Direction)
	}
	switch in.ValueKind {
	case "":
		in.ValueKind = models.ValueKindCash
	case models.ValueKindCash, models.ValueKindInKind:
	default:
		return invalid("unknown value kind %q", in.ValueKind)
	}
	return nil
}

// settle sets the status from what has been paid so far and reports whether it changed.
func settle(op *models.Operation, paid decimal.Decimal) bool {
	want := models.OperationStatusOpen
	if paid.GreaterThanOrEqual(op.TotalDue) {
		want = models.OperationStatusClosed
	}
	if op.Status == want {
		return false
	}
	op.Status = want
	return true
}

// CreateOperation opens a new installment operation for an existing client.
func (l *Ledger) CreateOperation(ctx context.Context, in OperationInput) (*models.Operation, error) {
	if err := normalizeKinds(&in); err != nil {
		return nil, err
	}
	terms, err := l.terms(in.OperationTerms)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	op := &models.Operation{
		ID:              uuid.New(),
		ClientID:        in.ClientID,
		Principal:       in.Principal,
		ProfitRate:      in.ProfitRate,
		DurationPeriods: in.DurationPeriods,
		TotalDue:        terms.TotalDue,
		PeriodAmount:    terms.PeriodAmount,
		Status:          models.OperationStatusOpen,
		Direction:       in.Direction,
		ValueKind:       in.ValueKind,
		DueDate:         in.DueDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = l.storage.InTx(ctx, func(s store.Storage) error {
		if _, err := s.GetClient(ctx, in.ClientID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrInvalidClient, in.ClientID)
			}
			return err
		}
		if err := s.CreateOperation(ctx, op); err != nil {
			return fmt.Errorf("failed to store operation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OperationsCreated.Inc()
	l.log.InfoContext(ctx, "Operation created",
		"operation_id", op.ID,
		"client_id", op.ClientID,
		"total_due", op.TotalDue.StringFixed(2),
		"period_amount", op.PeriodAmount.StringFixed(2))
	return op, nil
}

// UpdateOperation replaces the terms of an open operation and recomputes its figures.
func (l *Ledger) UpdateOperation(ctx context.Context, id uuid.UUID, t OperationTerms) (*models.Operation, error) {
	terms, err := l.terms(t)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var op *models.Operation
	var changed bool
	err = l.storage.InTx(ctx, func(s store.Storage) error {
		current, err := s.GetOperation(ctx, id)
		if err != nil {
			return notFound(err, "operation")
		}
		if !current.IsOpen() {
			return fmt.Errorf("%w: %s", ErrOperationClosed, id)
		}
		current.Principal = t.Principal
		current.ProfitRate = t.ProfitRate
		current.DurationPeriods = t.DurationPeriods
		current.TotalDue = terms.TotalDue
		current.PeriodAmount = terms.PeriodAmount
		current.UpdatedAt = l.now()

		paid, err := s.SumPayments(ctx, id)
		if err != nil {
			return err
		}
		changed = settle(current, paid)
		if err := s.UpdateOperation(ctx, current); err != nil {
			return notFound(err, "operation")
		}
		op = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		metrics.OperationStatusChanges.WithLabelValues(string(op.Status)).Inc()
	}
	l.log.InfoContext(ctx, "Operation updated",
		"operation_id", op.ID,
		"total_due", op.TotalDue.StringFixed(2),
		"status", op.Status)
	return op, nil
}

// DeleteOperation removes an operation together with all its payments.
func (l *Ledger) DeleteOperation(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.storage.DeleteOperation(ctx, id); err != nil {
		return notFound(err, "operation")
	}
	l.log.InfoContext(ctx, "Operation deleted", "operation_id", id)
	return nil
}

// GetOperation retrieves an operation by its ID.
func (l *Ledger) GetOperation(ctx context.Context, id uuid.UUID) (*models.Operation, error) {
	op, err := l.storage.GetOperation(ctx, id)
	if err != nil {
		return nil, notFound(err, "operation")
	}
	return op, nil
}

// ListOperations returns operations matching filter, newest first.
func (l *Ledger) ListOperations(ctx context.Context, filter OperationFilter) ([]*models.Operation, error) {
	return l.storage.ListOperations(ctx, filter)
}
