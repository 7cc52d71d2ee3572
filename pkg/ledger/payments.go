package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/metrics"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/mcclellann/terme/pkg/store"
	"github.com/shopspring/decimal"
)

// PaymentInput describes a payment to append to the journal.
// Anticipated payments may leave PeriodNumber at zero; it is stored as 1.
type PaymentInput struct {
	OperationID  uuid.UUID          `json:"operation_id"`
	PeriodNumber int                `json:"period_number"`
	Amount       decimal.Decimal    `json:"amount"`
	Kind         models.PaymentKind `json:"kind"`
	Description  string             `json:"description,omitempty"`
}

func (in *PaymentInput) validate() error {
	if !in.Kind.Valid() {
		return invalid("unknown payment kind %q", in.Kind)
	}
	if !in.Amount.IsPositive() {
		return invalid("amount must be positive, got %s", in.Amount)
	}
	if in.Kind == models.PaymentKindAnticipated && in.PeriodNumber == 0 {
		in.PeriodNumber = 1
	}
	if in.PeriodNumber < 1 {
		return invalid("period number must be at least 1, got %d", in.PeriodNumber)
	}
	return nil
}

// RecordPayment appends a payment and closes the operation once the
// cumulative amount reaches the total due. Insert and status change share
// one transaction.
func (l *Ledger) RecordPayment(ctx context.Context, in PaymentInput) (*models.Payment, error) {
	if err := in.validate(); err != nil {
		metrics.PaymentsRejected.WithLabelValues("invalid").Inc()
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	payment := &models.Payment{
		ID:           uuid.New(),
		OperationID:  in.OperationID,
		PeriodNumber: in.PeriodNumber,
		Amount:       in.Amount,
		Kind:         in.Kind,
		Description:  strings.TrimSpace(in.Description),
		PaidAt:       l.now(),
	}
	var closed bool
	var paid decimal.Decimal
	err := l.storage.InTx(ctx, func(s store.Storage) error {
		op, err := s.GetOperation(ctx, in.OperationID)
		if err != nil {
			return notFound(err, "operation")
		}
		if !op.IsOpen() {
			return fmt.Errorf("%w: %s", ErrOperationClosed, op.ID)
		}
		if in.Kind == models.PaymentKindOrdinary {
			taken, err := s.HasOrdinaryPayment(ctx, op.ID, in.PeriodNumber)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: period %d", ErrDuplicatePeriod, in.PeriodNumber)
			}
		}
		if err := s.CreatePayment(ctx, payment); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: period %d", ErrDuplicatePeriod, in.PeriodNumber)
			}
			return fmt.Errorf("failed to store payment: %w", err)
		}

		paid, err = s.SumPayments(ctx, op.ID)
		if err != nil {
			return err
		}
		if settle(op, paid) {
			op.UpdatedAt = payment.PaidAt
			if err := s.UpdateOperation(ctx, op); err != nil {
				return fmt.Errorf("failed to update operation status: %w", err)
			}
			closed = true
		}
		return nil
	})
	if err != nil {
		metrics.PaymentsRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	metrics.ObservePayment(string(payment.Kind), payment.Amount)
	l.log.InfoContext(ctx, "Payment recorded",
		"payment_id", payment.ID,
		"operation_id", payment.OperationID,
		"period", payment.PeriodNumber,
		"kind", payment.Kind,
		"amount", payment.Amount.StringFixed(2),
		"total_paid", paid.StringFixed(2))
	if closed {
		metrics.OperationStatusChanges.WithLabelValues(string(models.OperationStatusClosed)).Inc()
		l.log.InfoContext(ctx, "Operation closed", "operation_id", payment.OperationID)
	}
	return payment, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicatePeriod):
		return "duplicate_period"
	case errors.Is(err, ErrOperationClosed):
		return "closed"
	default:
		return "error"
	}
}

// RemovePayment deletes a payment and re-evaluates the operation status, so
// an operation that drops below its total due is open again.
func (l *Ledger) RemovePayment(ctx context.Context, paymentID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var op *models.Operation
	var changed bool
	err := l.storage.InTx(ctx, func(s store.Storage) error {
		payment, err := s.GetPayment(ctx, paymentID)
		if err != nil {
			return notFound(err, "payment")
		}
		if err := s.DeletePayment(ctx, paymentID); err != nil {
			return notFound(err, "payment")
		}
		op, err = s.GetOperation(ctx, payment.OperationID)
		if err != nil {
			return notFound(err, "operation")
		}
		paid, err := s.SumPayments(ctx, op.ID)
		if err != nil {
			return err
		}
		if changed = settle(op, paid); changed {
			op.UpdatedAt = l.now()
			if err := s.UpdateOperation(ctx, op); err != nil {
				return fmt.Errorf("failed to update operation status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.log.InfoContext(ctx, "Payment removed", "payment_id", paymentID, "operation_id", op.ID)
	if changed {
		metrics.OperationStatusChanges.WithLabelValues(string(op.Status)).Inc()
		l.log.InfoContext(ctx, "Operation status changed", "operation_id", op.ID, "status", op.Status)
	}
	return nil
}

// Balance is an operation's standing read in one snapshot.
type Balance struct {
	OperationID uuid.UUID              `json:"operation_id"`
	Status      models.OperationStatus `json:"status"`
	TotalDue    decimal.Decimal        `json:"total_due"`
	TotalPaid   decimal.Decimal        `json:"total_paid"`
	Balance     decimal.Decimal        `json:"balance"`
}

// OperationBalance reads the operation and its payment total in one transaction,
// so the status always agrees with the amounts.
func (l *Ledger) OperationBalance(ctx context.Context, operationID uuid.UUID) (Balance, error) {
	var b Balance
	err := l.storage.InTx(ctx, func(s store.Storage) error {
		op, err := s.GetOperation(ctx, operationID)
		if err != nil {
			return notFound(err, "operation")
		}
		paid, err := s.SumPayments(ctx, operationID)
		if err != nil {
			return err
		}
		b = Balance{
			OperationID: op.ID,
			Status:      op.Status,
			TotalDue:    op.TotalDue,
			TotalPaid:   paid,
			Balance:     op.TotalDue.Sub(paid),
		}
		return nil
	})
	return b, err
}

// TotalPaid sums every payment recorded against the operation.
func (l *Ledger) TotalPaid(ctx context.Context, operationID uuid.UUID) (decimal.Decimal, error) {
	b, err := l.OperationBalance(ctx, operationID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.TotalPaid, nil
}

// BalanceRemaining is total due minus total paid. Overpayment makes it negative.
func (l *Ledger) BalanceRemaining(ctx context.Context, operationID uuid.UUID) (decimal.Decimal, error) {
	b, err := l.OperationBalance(ctx, operationID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Balance, nil
}

// ListPayments returns the journal of an operation by period, then payment time.
func (l *Ledger) ListPayments(ctx context.Context, operationID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.storage.GetOperation(ctx, operationID); err != nil {
		return nil, notFound(err, "operation")
	}
	return l.storage.ListPayments(ctx, operationID)
}
