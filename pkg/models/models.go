package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is a customer of the business. Names are unique regardless of case.
type Client struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type OperationStatus string

const (
	OperationStatusOpen   OperationStatus = "open"
	OperationStatusClosed OperationStatus = "closed"
)

// Direction tells whether the business extended value to the client or received it.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// ValueKind describes what was handed over when the operation was opened.
type ValueKind string

const (
	ValueKindCash   ValueKind = "cash"
	ValueKindInKind ValueKind = "in_kind"
)

// Operation is an installment sale repaid over DurationPeriods periods.
type Operation struct {
	ID              uuid.UUID       `json:"id"`
	ClientID        uuid.UUID       `json:"client_id"`
	Principal       decimal.Decimal `json:"principal"`
	ProfitRate      decimal.Decimal `json:"profit_rate"`      // Per period
	DurationPeriods decimal.Decimal `json:"duration_periods"` // May be fractional
	TotalDue        decimal.Decimal `json:"total_due"`
	PeriodAmount    decimal.Decimal `json:"period_amount"`
	Status          OperationStatus `json:"status"`
	Direction       Direction       `json:"direction"`
	ValueKind       ValueKind       `json:"value_kind"`
	DueDate         *time.Time      `json:"due_date,omitempty"` // Optional final deadline
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsOpen reports whether the operation still accepts payments and edits.
func (o *Operation) IsOpen() bool {
	return o.Status == OperationStatusOpen
}

type PaymentKind string

const (
	PaymentKindOrdinary    PaymentKind = "ordinary"
	PaymentKindAnticipated PaymentKind = "anticipated"
)

// Valid reports whether k is a known payment kind.
func (k PaymentKind) Valid() bool {
	return k == PaymentKindOrdinary || k == PaymentKindAnticipated
}

// Payment is an immutable journal entry against an operation.
type Payment struct {
	ID           uuid.UUID       `json:"id"`
	OperationID  uuid.UUID       `json:"operation_id"`
	PeriodNumber int             `json:"period_number"`
	Amount       decimal.Decimal `json:"amount"`
	Kind         PaymentKind     `json:"kind"`
	Description  string          `json:"description,omitempty"`
	PaidAt       time.Time       `json:"paid_at"`
}
