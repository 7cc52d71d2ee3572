package ledger

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/mcclellann/terme/pkg/store"
	"github.com/shopspring/decimal"
)

// OverdueEntry is an open operation whose next installment or final deadline has passed.
type OverdueEntry struct {
	Operation *models.Operation `json:"operation"`
	Client    *models.Client    `json:"client"`
	NextDue   NextDue           `json:"next_due"`
	TotalPaid decimal.Decimal   `json:"total_paid"`
	Balance   decimal.Decimal   `json:"balance"`
}

// ClientStatement aggregates a client's operations of one value kind.
type ClientStatement struct {
	ClientID    uuid.UUID        `json:"client_id"`
	ClientName  string           `json:"client_name"`
	ValueKind   models.ValueKind `json:"value_kind"`
	TotalCredit decimal.Decimal  `json:"total_credit"`
	TotalDebit  decimal.Decimal  `json:"total_debit"`
	NetBalance  decimal.Decimal  `json:"net_balance"`
}

// Summary holds portfolio-wide figures.
type Summary struct {
	OpenOperations    int             `json:"open_operations"`
	ClosedOperations  int             `json:"closed_operations"`
	OverdueOperations int             `json:"overdue_operations"`
	TotalDue          decimal.Decimal `json:"total_due"`
	TotalPaid         decimal.Decimal `json:"total_paid"`
	Outstanding       decimal.Decimal `json:"outstanding"`
}

// position is an operation together with its journal, read in one snapshot.
type position struct {
	op       *models.Operation
	payments []*models.Payment
	paid     decimal.Decimal
}

func (p position) balance() decimal.Decimal {
	return p.op.TotalDue.Sub(p.paid)
}

// signedBalance is what the client owes the business: debit operations count against it.
func (p position) signedBalance() decimal.Decimal {
	if p.op.Direction == models.DirectionDebit {
		return p.balance().Neg()
	}
	return p.balance()
}

func (p position) overdue(asOf time.Time) (NextDue, bool) {
	if !p.op.IsOpen() {
		return NextDue{Completed: true}, false
	}
	nd := nextDue(p.op, p.payments)
	if nd.Completed {
		return nd, false
	}
	if nd.DueDate.Before(asOf) {
		return nd, true
	}
	// The final deadline binds the client only on credit operations.
	pastDeadline := p.op.DueDate != nil && p.op.DueDate.Before(asOf)
	return nd, pastDeadline && p.op.Direction == models.DirectionCredit
}

func (l *Ledger) positions(ctx context.Context, filter OperationFilter) ([]position, error) {
	var out []position
	err := l.storage.InTx(ctx, func(s store.Storage) error {
		ops, err := s.ListOperations(ctx, filter)
		if err != nil {
			return err
		}
		out = make([]position, 0, len(ops))
		for _, op := range ops {
			payments, err := s.ListPayments(ctx, op.ID)
			if err != nil {
				return err
			}
			paid := decimal.Zero
			for _, p := range payments {
				paid = paid.Add(p.Amount)
			}
			out = append(out, position{op: op, payments: payments, paid: paid})
		}
		return nil
	})
	return out, err
}

func (l *Ledger) clientIndex(ctx context.Context) (map[uuid.UUID]*models.Client, error) {
	clients, err := l.storage.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[uuid.UUID]*models.Client, len(clients))
	for _, c := range clients {
		idx[c.ID] = c
	}
	return idx, nil
}

// OverdueReport lists open operations past due at asOf, earliest due date first.
func (l *Ledger) OverdueReport(ctx context.Context, asOf time.Time) ([]OverdueEntry, error) {
	open := models.OperationStatusOpen
	positions, err := l.positions(ctx, OperationFilter{Status: &open})
	if err != nil {
		return nil, err
	}
	clients, err := l.clientIndex(ctx)
	if err != nil {
		return nil, err
	}

	var entries []OverdueEntry
	for _, p := range positions {
		nd, late := p.overdue(asOf)
		if !late {
			continue
		}
		entries = append(entries, OverdueEntry{
			Operation: p.op,
			Client:    clients[p.op.ClientID],
			NextDue:   nd,
			TotalPaid: p.paid,
			Balance:   p.balance(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].NextDue.DueDate.Before(entries[j].NextDue.DueDate)
	})
	return entries, nil
}

// OverdueOperations returns the operations of OverdueReport.
func (l *Ledger) OverdueOperations(ctx context.Context, asOf time.Time) ([]*models.Operation, error) {
	entries, err := l.OverdueReport(ctx, asOf)
	if err != nil {
		return nil, err
	}
	ops := make([]*models.Operation, len(entries))
	for i, e := range entries {
		ops[i] = e.Operation
	}
	return ops, nil
}

// BalanceByClient sums remaining balances per client. Debit operations are
// subtracted, so a negative figure means the business owes the client.
func (l *Ledger) BalanceByClient(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	positions, err := l.positions(ctx, OperationFilter{})
	if err != nil {
		return nil, err
	}
	balances := make(map[uuid.UUID]decimal.Decimal)
	for _, p := range positions {
		balances[p.op.ClientID] = balances[p.op.ClientID].Add(p.signedBalance())
	}
	return balances, nil
}

// ClientStatements breaks balances down per client and value kind, ordered by client name.
func (l *Ledger) ClientStatements(ctx context.Context) ([]ClientStatement, error) {
	positions, err := l.positions(ctx, OperationFilter{})
	if err != nil {
		return nil, err
	}
	clients, err := l.clientIndex(ctx)
	if err != nil {
		return nil, err
	}

	type key struct {
		client uuid.UUID
		kind   models.ValueKind
	}
	byKey := make(map[key]*ClientStatement)
	for _, p := range positions {
		k := key{p.op.ClientID, p.op.ValueKind}
		st, ok := byKey[k]
		if !ok {
			st = &ClientStatement{ClientID: p.op.ClientID, ValueKind: p.op.ValueKind}
			if c := clients[p.op.ClientID]; c != nil {
				st.ClientName = c.Name
			}
			byKey[k] = st
		}
		if p.op.Direction == models.DirectionDebit {
			st.TotalDebit = st.TotalDebit.Add(p.op.TotalDue)
		} else {
			st.TotalCredit = st.TotalCredit.Add(p.op.TotalDue)
		}
		st.NetBalance = st.NetBalance.Add(p.signedBalance())
	}

	statements := make([]ClientStatement, 0, len(byKey))
	for _, st := range byKey {
		statements = append(statements, *st)
	}
	sort.Slice(statements, func(i, j int) bool {
		a, b := strings.ToLower(statements[i].ClientName), strings.ToLower(statements[j].ClientName)
		if a != b {
			return a < b
		}
		return statements[i].ValueKind < statements[j].ValueKind
	})
	return statements, nil
}

// PortfolioSummary counts operations and totals money across the whole ledger.
func (l *Ledger) PortfolioSummary(ctx context.Context, asOf time.Time) (Summary, error) {
	positions, err := l.positions(ctx, OperationFilter{})
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	for _, p := range positions {
		if p.op.IsOpen() {
			sum.OpenOperations++
			sum.Outstanding = sum.Outstanding.Add(p.balance())
		} else {
			sum.ClosedOperations++
		}
		if _, late := p.overdue(asOf); late {
			sum.OverdueOperations++
		}
		sum.TotalDue = sum.TotalDue.Add(p.op.TotalDue)
		sum.TotalPaid = sum.TotalPaid.Add(p.paid)
	}
	return sum, nil
}
