// Package notify publishes a notice for every operation that falls overdue.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/ledger"
	"github.com/shopspring/decimal"
)

// OverdueNotice is the message sent for one overdue operation.
type OverdueNotice struct {
	OperationID uuid.UUID       `json:"operation_id"`
	ClientID    uuid.UUID       `json:"client_id"`
	ClientName  string          `json:"client_name,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	DueDate     time.Time       `json:"due_date"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	Balance     decimal.Decimal `json:"balance"`
	DetectedAt  time.Time       `json:"detected_at"`
}

// NewOverdueNotice builds the notice for a report entry.
func NewOverdueNotice(e ledger.OverdueEntry, detectedAt time.Time) *OverdueNotice {
	n := &OverdueNotice{
		OperationID: e.Operation.ID,
		ClientID:    e.Operation.ClientID,
		DueDate:     e.NextDue.DueDate,
		AmountDue:   e.NextDue.Amount,
		Balance:     e.Balance,
		DetectedAt:  detectedAt,
	}
	if e.Operation.DueDate != nil && e.Operation.DueDate.Before(n.DueDate) {
		n.DueDate = *e.Operation.DueDate
	}
	if e.Client != nil {
		n.ClientName = e.Client.Name
		n.Phone = e.Client.Phone
	}
	return n
}

// ToJSON converts the notice to JSON bytes
func (n *OverdueNotice) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}

// OverdueNoticeFromJSON decodes a notice produced by ToJSON.
func OverdueNoticeFromJSON(data []byte) (*OverdueNotice, error) {
	var n OverdueNotice
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Publisher delivers overdue notices.
type Publisher interface {
	Publish(ctx context.Context, n *OverdueNotice) error
	Close() error
}
