package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/amortization"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/mcclellann/terme/pkg/store"
	"github.com/shopspring/decimal"
)

// PeriodLength is the fixed interval between two installments.
const PeriodLength = 30 * 24 * time.Hour

// NextDue is the next installment of an operation. When Completed is set the
// other fields are zero.
type NextDue struct {
	Completed bool            `json:"completed"`
	DueDate   time.Time       `json:"due_date,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// ScheduledInstallment is a theoretical installment placed on the calendar of
// an existing operation.
type ScheduledInstallment struct {
	amortization.Installment
	DueDate time.Time `json:"due_date"`
	Paid    bool      `json:"paid"` // An ordinary payment covers this period
}

// TheoreticalSchedule projects the installments for the given terms without
// touching storage. It uses the same policy as CreateOperation.
func (l *Ledger) TheoreticalSchedule(principal, profitRate, durationPeriods decimal.Decimal) ([]amortization.Installment, error) {
	schedule, err := l.policy.Schedule(principal, profitRate, durationPeriods)
	if errors.Is(err, amortization.ErrInvalidTerms) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return schedule, err
}

// OperationSchedule places the theoretical schedule of an operation on the
// calendar, one PeriodLength apart from its creation date.
func (l *Ledger) OperationSchedule(ctx context.Context, operationID uuid.UUID) ([]ScheduledInstallment, error) {
	op, payments, err := l.journal(ctx, operationID)
	if err != nil {
		return nil, err
	}
	base, err := l.TheoreticalSchedule(op.Principal, op.ProfitRate, op.DurationPeriods)
	if err != nil {
		return nil, err
	}

	paidPeriods := make(map[int]bool)
	for _, p := range payments {
		if p.Kind == models.PaymentKindOrdinary {
			paidPeriods[p.PeriodNumber] = true
		}
	}
	out := make([]ScheduledInstallment, len(base))
	for i, inst := range base {
		out[i] = ScheduledInstallment{
			Installment: inst,
			DueDate:     op.CreatedAt.Add(time.Duration(inst.PeriodNumber) * PeriodLength),
			Paid:        paidPeriods[inst.PeriodNumber],
		}
	}
	return out, nil
}

// NextDue reports when the next installment falls due and how much it is.
func (l *Ledger) NextDue(ctx context.Context, operationID uuid.UUID) (NextDue, error) {
	op, payments, err := l.journal(ctx, operationID)
	if err != nil {
		return NextDue{}, err
	}
	return nextDue(op, payments), nil
}

// journal reads an operation and its payments in one transaction.
func (l *Ledger) journal(ctx context.Context, operationID uuid.UUID) (*models.Operation, []*models.Payment, error) {
	var op *models.Operation
	var payments []*models.Payment
	err := l.storage.InTx(ctx, func(s store.Storage) error {
		var err error
		if op, err = s.GetOperation(ctx, operationID); err != nil {
			return notFound(err, "operation")
		}
		payments, err = s.ListPayments(ctx, operationID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return op, payments, nil
}

// nextDue counts one PeriodLength from the latest ordinary payment, or from
// creation when there is none. The amount is the period amount capped at the
// remaining balance.
func nextDue(op *models.Operation, payments []*models.Payment) NextDue {
	if !op.IsOpen() {
		return NextDue{Completed: true}
	}

	base := op.CreatedAt
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
		if p.Kind == models.PaymentKindOrdinary && p.PaidAt.After(base) {
			base = p.PaidAt
		}
	}
	balance := op.TotalDue.Sub(paid)
	if !balance.IsPositive() {
		return NextDue{Completed: true}
	}
	return NextDue{
		DueDate: base.Add(PeriodLength),
		Amount:  decimal.Min(op.PeriodAmount, balance),
	}
}
