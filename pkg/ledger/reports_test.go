package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mcclellann/terme/pkg/models"
)

func TestTheoreticalSchedule(t *testing.T) {
	l, _, _ := newTestLedger(t)

	schedule, err := l.TheoreticalSchedule(dec("1000000"), dec("0.08"), dec("6"))
	if err != nil {
		t.Fatalf("Failed to build schedule: %v", err)
	}
	if len(schedule) != 6 {
		t.Fatalf("Expected 6 entries, got %d", len(schedule))
	}
	sum := dec("0")
	for _, inst := range schedule {
		sum = sum.Add(inst.AmountDue)
	}
	if !sum.Equal(dec("1480000")) {
		t.Errorf("Expected schedule sum 1480000, got %s", sum)
	}

	if _, err := l.TheoreticalSchedule(dec("100"), dec("0.1"), dec("0")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestOperationSchedule(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Hamza")
	op := scenarioOperation(t, l, c.ID)
	pay(t, l, op.ID, 2, "246666.67", models.PaymentKindOrdinary)
	pay(t, l, op.ID, 3, "100", models.PaymentKindAnticipated)

	schedule, err := l.OperationSchedule(ctx, op.ID)
	if err != nil {
		t.Fatalf("Failed to build operation schedule: %v", err)
	}
	if len(schedule) != 6 {
		t.Fatalf("Expected 6 entries, got %d", len(schedule))
	}
	for _, inst := range schedule {
		want := inst.PeriodNumber == 2
		if inst.Paid != want {
			t.Errorf("Period %d: expected paid=%v", inst.PeriodNumber, want)
		}
		wantDue := clock.Now().Add(time.Duration(inst.PeriodNumber) * PeriodLength)
		if !inst.DueDate.Equal(wantDue) {
			t.Errorf("Period %d: expected due %v, got %v", inst.PeriodNumber, wantDue, inst.DueDate)
		}
	}
}

func TestNextDue(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Ilyas")
	op := scenarioOperation(t, l, c.ID)
	created := clock.Now()

	nd, err := l.NextDue(ctx, op.ID)
	if err != nil {
		t.Fatalf("Failed to get next due: %v", err)
	}
	if nd.Completed || !nd.DueDate.Equal(created.Add(PeriodLength)) || !nd.Amount.Equal(dec("246666.67")) {
		t.Errorf("Unexpected next due before any payment: %+v", nd)
	}

	// Anticipated payments do not move the base date.
	clock.Advance(10 * 24 * time.Hour)
	pay(t, l, op.ID, 1, "1000", models.PaymentKindAnticipated)
	nd, _ = l.NextDue(ctx, op.ID)
	if !nd.DueDate.Equal(created.Add(PeriodLength)) {
		t.Errorf("Expected due date unchanged by anticipated payment, got %v", nd.DueDate)
	}

	clock.Advance(20 * 24 * time.Hour)
	paidAt := clock.Now()
	pay(t, l, op.ID, 1, "246666.67", models.PaymentKindOrdinary)
	nd, _ = l.NextDue(ctx, op.ID)
	if !nd.DueDate.Equal(paidAt.Add(PeriodLength)) {
		t.Errorf("Expected due date 30 days after latest ordinary payment, got %v", nd.DueDate)
	}

	pay(t, l, op.ID, 2, "1232333.33", models.PaymentKindAnticipated)
	nd, _ = l.NextDue(ctx, op.ID)
	if !nd.Completed {
		t.Errorf("Expected completed once fully paid, got %+v", nd)
	}
}

func TestOverdueOperations(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Jamal")
	start := clock.Now()

	late := scenarioOperation(t, l, c.ID)
	clock.Advance(20 * 24 * time.Hour)
	onTime := scenarioOperation(t, l, c.ID)
	paidOff := scenarioOperation(t, l, c.ID)
	pay(t, l, paidOff.ID, 1, "1480000", models.PaymentKindAnticipated)

	deadline := start.Add(5 * 24 * time.Hour)
	pastDeadline, err := l.CreateOperation(ctx, OperationInput{
		ClientID:       c.ID,
		OperationTerms: OperationTerms{Principal: dec("100"), ProfitRate: dec("0"), DurationPeriods: dec("1")},
		DueDate:        &deadline,
	})
	if err != nil {
		t.Fatalf("Failed to create operation: %v", err)
	}

	owedToClient, err := l.CreateOperation(ctx, OperationInput{
		ClientID:       c.ID,
		OperationTerms: OperationTerms{Principal: dec("100"), ProfitRate: dec("0"), DurationPeriods: dec("1")},
		Direction:      models.DirectionDebit,
		DueDate:        &deadline,
	})
	if err != nil {
		t.Fatalf("Failed to create debit operation: %v", err)
	}

	asOf := start.Add(35 * 24 * time.Hour)
	ops, err := l.OverdueOperations(ctx, asOf)
	if err != nil {
		t.Fatalf("Failed to list overdue operations: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("Expected 2 overdue operations, got %d", len(ops))
	}
	if ops[0].ID != late.ID || ops[1].ID != pastDeadline.ID {
		t.Errorf("Expected [late, pastDeadline] ordered by due date")
	}
	for _, op := range ops {
		if op.ID == onTime.ID || op.ID == paidOff.ID || op.ID == owedToClient.ID {
			t.Errorf("Operation %s should not be overdue", op.ID)
		}
	}

	report, _ := l.OverdueReport(ctx, asOf)
	if report[0].Client == nil || report[0].Client.Name != "Jamal" {
		t.Errorf("Expected client attached to overdue entry")
	}
	if !report[0].Balance.Equal(dec("1480000")) {
		t.Errorf("Expected balance 1480000, got %s", report[0].Balance)
	}
}

func TestBalanceByClient(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	a := mustClient(t, l, "Kenza")
	b := mustClient(t, l, "Larbi")

	op1 := scenarioOperation(t, l, a.ID)
	pay(t, l, op1.ID, 1, "480000", models.PaymentKindOrdinary)
	op2, _ := l.CreateOperation(ctx, OperationInput{
		ClientID:       a.ID,
		OperationTerms: OperationTerms{Principal: dec("200"), ProfitRate: dec("0"), DurationPeriods: dec("2")},
		Direction:      models.DirectionDebit,
	})
	pay(t, l, op2.ID, 1, "50", models.PaymentKindOrdinary)
	op3, _ := l.CreateOperation(ctx, OperationInput{
		ClientID:       b.ID,
		OperationTerms: OperationTerms{Principal: dec("100"), ProfitRate: dec("0"), DurationPeriods: dec("1")},
	})
	pay(t, l, op3.ID, 1, "130", models.PaymentKindOrdinary)

	balances, err := l.BalanceByClient(ctx)
	if err != nil {
		t.Fatalf("Failed to compute balances: %v", err)
	}
	// 1,000,000 owed on the credit, minus 150 still owed to the client on the debit.
	if !balances[a.ID].Equal(dec("999850")) {
		t.Errorf("Expected 999850 for Kenza, got %s", balances[a.ID])
	}
	if !balances[b.ID].Equal(dec("-30")) {
		t.Errorf("Expected -30 for Larbi after overpayment, got %s", balances[b.ID])
	}
}

func TestClientStatements(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	a := mustClient(t, l, "Mehdi")

	l.CreateOperation(ctx, OperationInput{
		ClientID:       a.ID,
		OperationTerms: OperationTerms{Principal: dec("100"), ProfitRate: dec("0.1"), DurationPeriods: dec("1")},
	})
	l.CreateOperation(ctx, OperationInput{
		ClientID:       a.ID,
		OperationTerms: OperationTerms{Principal: dec("40"), ProfitRate: dec("0"), DurationPeriods: dec("1")},
		Direction:      models.DirectionDebit,
	})
	l.CreateOperation(ctx, OperationInput{
		ClientID:       a.ID,
		OperationTerms: OperationTerms{Principal: dec("500"), ProfitRate: dec("0"), DurationPeriods: dec("1")},
		ValueKind:      models.ValueKindInKind,
	})

	statements, err := l.ClientStatements(ctx)
	if err != nil {
		t.Fatalf("Failed to build statements: %v", err)
	}
	if len(statements) != 2 {
		t.Fatalf("Expected 2 statements, got %d", len(statements))
	}
	cash := statements[0]
	if cash.ValueKind != models.ValueKindCash || cash.ClientName != "Mehdi" {
		t.Fatalf("Expected cash statement first, got %+v", cash)
	}
	if !cash.TotalCredit.Equal(dec("110")) || !cash.TotalDebit.Equal(dec("40")) || !cash.NetBalance.Equal(dec("70")) {
		t.Errorf("Unexpected cash statement %+v", cash)
	}
	if !statements[1].NetBalance.Equal(dec("500")) {
		t.Errorf("Expected in-kind net 500, got %s", statements[1].NetBalance)
	}
}

func TestPortfolioSummary(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Nabil")
	open := scenarioOperation(t, l, c.ID)
	pay(t, l, open.ID, 1, "80000", models.PaymentKindOrdinary)
	closed := scenarioOperation(t, l, c.ID)
	pay(t, l, closed.ID, 1, "1480000", models.PaymentKindAnticipated)

	sum, err := l.PortfolioSummary(ctx, clock.Now().Add(31*24*time.Hour))
	if err != nil {
		t.Fatalf("Failed to summarize: %v", err)
	}
	if sum.OpenOperations != 1 || sum.ClosedOperations != 1 || sum.OverdueOperations != 1 {
		t.Errorf("Unexpected counts %+v", sum)
	}
	if !sum.TotalDue.Equal(dec("2960000")) || !sum.TotalPaid.Equal(dec("1560000")) || !sum.Outstanding.Equal(dec("1400000")) {
		t.Errorf("Unexpected totals %+v", sum)
	}
}
