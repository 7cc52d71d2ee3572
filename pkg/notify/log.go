package notify

import (
	"context"

	"github.com/mcclellann/terme/pkg/logging"
)

// LogPublisher writes notices to the log. Used when no broker is configured.
type LogPublisher struct {
	log *logging.Logger
}

func NewLogPublisher(log *logging.Logger) *LogPublisher {
	return &LogPublisher{log: log.WithComponent(logging.ComponentNotify)}
}

func (p *LogPublisher) Publish(ctx context.Context, n *OverdueNotice) error {
	p.log.WarnContext(ctx, "Operation overdue",
		"operation_id", n.OperationID,
		"client", n.ClientName,
		"phone", n.Phone,
		"due_date", n.DueDate.Format("2006-01-02"),
		"amount_due", n.AmountDue.StringFixed(2),
		"balance", n.Balance.StringFixed(2))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
