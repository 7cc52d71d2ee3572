// Package amortization holds the financial terms computation shared by the
// operation ledger (at write time) and the schedule projector (at read time).
//
// Only one policy exists: a flat profit rate charged per period on the
// principal, repaid in equal installments.
//
//	total_due     = principal * (1 + profit_rate * duration_periods)
//	period_amount = total_due / duration_periods
//
// Amounts are rounded to cents.
package amortization

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places money amounts are rounded to.
const Places = 2

// MaxPeriods bounds the duration of an operation.
// A schedule holds one entry per period.
const MaxPeriods = 1200

var ErrInvalidTerms = errors.New("invalid amortization terms")

// Terms are the derived figures of an operation.
type Terms struct {
	TotalDue     decimal.Decimal `json:"total_due"`
	PeriodAmount decimal.Decimal `json:"period_amount"`
}

// Installment is one entry of a theoretical schedule.
type Installment struct {
	PeriodNumber int             `json:"period_number"`
	AmountDue    decimal.Decimal `json:"amount_due"`
}

// Policy computes terms and schedules from the raw inputs of an operation.
type Policy interface {
	Terms(principal, profitRate, durationPeriods decimal.Decimal) (Terms, error)
	Schedule(principal, profitRate, durationPeriods decimal.Decimal) ([]Installment, error)
}

// FlatRate is the flat-rate, equal-installment policy.
type FlatRate struct{}

// Default is the policy used across the engine.
var Default Policy = FlatRate{}

// Validate checks the ranges accepted by every policy.
func Validate(principal, profitRate, durationPeriods decimal.Decimal) error {
	if !principal.IsPositive() {
		return fmt.Errorf("%w: principal must be positive, got %s", ErrInvalidTerms, principal)
	}
	if profitRate.IsNegative() {
		return fmt.Errorf("%w: profit rate must not be negative, got %s", ErrInvalidTerms, profitRate)
	}
	if !durationPeriods.IsPositive() {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidTerms, durationPeriods)
	}
	if durationPeriods.GreaterThan(decimal.NewFromInt(MaxPeriods)) {
		return fmt.Errorf("%w: duration must not exceed %d periods, got %s", ErrInvalidTerms, MaxPeriods, durationPeriods)
	}
	return nil
}

// Terms returns total due and the per-period installment.
func (FlatRate) Terms(principal, profitRate, durationPeriods decimal.Decimal) (Terms, error) {
	if err := Validate(principal, profitRate, durationPeriods); err != nil {
		return Terms{}, err
	}
	total := principal.Mul(decimal.NewFromInt(1).Add(profitRate.Mul(durationPeriods))).Round(Places)
	return Terms{
		TotalDue:     total,
		PeriodAmount: total.Div(durationPeriods).Round(Places),
	}, nil
}

// Schedule returns ceil(durationPeriods) installments summing exactly to the
// total due. All entries but the last equal the period amount; the last one
// takes the rounding residue and, for fractional durations, the partial period.
func (p FlatRate) Schedule(principal, profitRate, durationPeriods decimal.Decimal) ([]Installment, error) {
	terms, err := p.Terms(principal, profitRate, durationPeriods)
	if err != nil {
		return nil, err
	}
	n := int(durationPeriods.Ceil().IntPart())

	schedule := make([]Installment, n)
	paid := decimal.Zero
	for i := 0; i < n-1; i++ {
		schedule[i] = Installment{PeriodNumber: i + 1, AmountDue: terms.PeriodAmount}
		paid = paid.Add(terms.PeriodAmount)
	}
	last := terms.TotalDue.Sub(paid)
	if last.IsNegative() {
		// Tiny totals spread over many periods: rounding up every period overshoots.
		return spread(terms.TotalDue, durationPeriods, n), nil
	}
	schedule[n-1] = Installment{PeriodNumber: n, AmountDue: last}
	return schedule, nil
}

// spread distributes total over n periods by rounding the cumulative amount
// due at each boundary, so no entry is negative and the sum is exact.
func spread(total, durationPeriods decimal.Decimal, n int) []Installment {
	schedule := make([]Installment, n)
	prev := decimal.Zero
	for i := 1; i <= n; i++ {
		elapsed := decimal.Min(decimal.NewFromInt(int64(i)), durationPeriods)
		cum := total.Mul(elapsed).Div(durationPeriods).Round(Places)
		if i == n {
			cum = total
		}
		schedule[i-1] = Installment{PeriodNumber: i, AmountDue: cum.Sub(prev)}
		prev = cum
	}
	return schedule
}
