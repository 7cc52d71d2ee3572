package main

import (
	"fmt"
	"time"

	"github.com/mcclellann/terme/pkg/ledger"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// ─── operations ─────────────────────────────────────────────────────────────

func newOperationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "operations",
		Aliases: []string{"ops"},
		Short:   "List and manage installment operations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperationsList(cmd, a)
		},
	}
	cmd.Flags().String("client", "", "Only operations of this client (name or ID)")
	cmd.Flags().String("status", "", "Only open or closed operations")

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new operation for a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperationsCreate(cmd, a)
		},
	}
	createCmd.Flags().String("client", "", "Client name or ID (required)")
	createCmd.Flags().String("principal", "", "Amount financed (required)")
	createCmd.Flags().String("rate", "", "Profit rate per period, e.g. 0.08 (required)")
	createCmd.Flags().String("periods", "", "Number of periods (required)")
	createCmd.Flags().String("direction", "credit", "credit or debit")
	createCmd.Flags().String("kind", "cash", "cash or in_kind")
	createCmd.Flags().String("due", "", "Final deadline, YYYY-MM-DD")
	for _, f := range []string{"client", "principal", "rate", "periods"} {
		createCmd.MarkFlagRequired(f)
	}

	showCmd := &cobra.Command{
		Use:   "show OPERATION_ID",
		Short: "Show an operation with its schedule and payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperationsShow(cmd, a, args[0])
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete OPERATION_ID",
		Short: "Delete an operation and its payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperationsDelete(cmd, a, args[0])
		},
	}

	cmd.AddCommand(createCmd, showCmd, deleteCmd)
	return cmd
}

func runOperationsList(cmd *cobra.Command, a *app) error {
	clientRef, _ := cmd.Flags().GetString("client")
	status, _ := cmd.Flags().GetString("status")

	l, err := a.open()
	if err != nil {
		return err
	}
	var filter ledger.OperationFilter
	if clientRef != "" {
		c, err := resolveClient(cmd, l, clientRef)
		if err != nil {
			return err
		}
		filter.ClientID = &c.ID
	}
	switch s := models.OperationStatus(status); s {
	case "":
	case models.OperationStatusOpen, models.OperationStatusClosed:
		filter.Status = &s
	default:
		return fmt.Errorf("--status must be open or closed, got %q", status)
	}

	ops, err := l.ListOperations(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No operations found.")
		return nil
	}

	w := table(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tDIRECTION\tTOTAL DUE\tPER PERIOD\tBALANCE")
	for _, op := range ops {
		balance, err := l.BalanceRemaining(cmd.Context(), op.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			op.ID, day(op.CreatedAt), op.Status, op.Direction,
			money(op.TotalDue), money(op.PeriodAmount), money(balance))
	}
	return w.Flush()
}

func runOperationsCreate(cmd *cobra.Command, a *app) error {
	flags := cmd.Flags()
	clientRef, _ := flags.GetString("client")
	direction, _ := flags.GetString("direction")
	kind, _ := flags.GetString("kind")
	due, _ := flags.GetString("due")

	in := ledger.OperationInput{
		Direction: models.Direction(direction),
		ValueKind: models.ValueKind(kind),
	}
	for flag, dst := range map[string]*decimal.Decimal{
		"principal": &in.Principal,
		"rate":      &in.ProfitRate,
		"periods":   &in.DurationPeriods,
	} {
		v, _ := flags.GetString(flag)
		d, err := parseDecimal(v, flag)
		if err != nil {
			return err
		}
		*dst = d
	}
	if due != "" {
		t, err := time.Parse("2006-01-02", due)
		if err != nil {
			return fmt.Errorf("--due: %q is not a YYYY-MM-DD date", due)
		}
		in.DueDate = &t
	}

	l, err := a.open()
	if err != nil {
		return err
	}
	c, err := resolveClient(cmd, l, clientRef)
	if err != nil {
		return err
	}
	in.ClientID = c.ID

	op, err := l.CreateOperation(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Operation %s created for %s: total due %s, %s per period\n",
		op.ID, c.Name, money(op.TotalDue), money(op.PeriodAmount))
	return nil
}

func runOperationsShow(cmd *cobra.Command, a *app, arg string) error {
	id, err := parseID(arg, "operation")
	if err != nil {
		return err
	}
	l, err := a.open()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	op, err := l.GetOperation(ctx, id)
	if err != nil {
		return err
	}
	client, err := l.GetClient(ctx, op.ClientID)
	if err != nil {
		return err
	}
	schedule, err := l.OperationSchedule(ctx, id)
	if err != nil {
		return err
	}
	payments, err := l.ListPayments(ctx, id)
	if err != nil {
		return err
	}
	balance, err := l.OperationBalance(ctx, id)
	if err != nil {
		return err
	}
	next, err := l.NextDue(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Operation %s (%s, %s, %s)\n", op.ID, op.Status, op.Direction, op.ValueKind)
	fmt.Fprintf(out, "Client:     %s\n", client.Name)
	fmt.Fprintf(out, "Principal:  %s at %s over %s periods\n", money(op.Principal), op.ProfitRate, op.DurationPeriods)
	fmt.Fprintf(out, "Total due:  %s\n", money(op.TotalDue))
	fmt.Fprintf(out, "Paid:       %s\n", money(balance.TotalPaid))
	fmt.Fprintf(out, "Balance:    %s\n", money(balance.Balance))
	if op.DueDate != nil {
		fmt.Fprintf(out, "Deadline:   %s\n", day(*op.DueDate))
	}
	if next.Completed {
		fmt.Fprintln(out, "Next due:   none, fully paid")
	} else {
		fmt.Fprintf(out, "Next due:   %s on %s\n", money(next.Amount), day(next.DueDate))
	}

	fmt.Fprintln(out)
	w := table(out)
	fmt.Fprintln(w, "PERIOD\tDUE\tAMOUNT\tPAID")
	for _, inst := range schedule {
		mark := ""
		if inst.Paid {
			mark = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", inst.PeriodNumber, day(inst.DueDate), money(inst.AmountDue), mark)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(payments) > 0 {
		fmt.Fprintln(out)
		w = table(out)
		fmt.Fprintln(w, "PAYMENT\tPERIOD\tKIND\tAMOUNT\tPAID AT\tDESCRIPTION")
		for _, p := range payments {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", p.ID, p.PeriodNumber, p.Kind, money(p.Amount), day(p.PaidAt), p.Description)
		}
		return w.Flush()
	}
	return nil
}

func runOperationsDelete(cmd *cobra.Command, a *app, arg string) error {
	id, err := parseID(arg, "operation")
	if err != nil {
		return err
	}
	l, err := a.open()
	if err != nil {
		return err
	}
	if err := l.DeleteOperation(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Operation %s deleted\n", id)
	return nil
}

// ─── pay ────────────────────────────────────────────────────────────────────

func newPayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay OPERATION_ID",
		Short: "Record a payment against an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPay(cmd, a, args[0])
		},
	}
	cmd.Flags().Int("period", 0, "Period number the payment settles")
	cmd.Flags().String("amount", "", "Amount paid (required)")
	cmd.Flags().Bool("anticipated", false, "Early payment outside the schedule")
	cmd.Flags().String("description", "", "Free-form description")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func runPay(cmd *cobra.Command, a *app, arg string) error {
	id, err := parseID(arg, "operation")
	if err != nil {
		return err
	}
	period, _ := cmd.Flags().GetInt("period")
	amountFlag, _ := cmd.Flags().GetString("amount")
	anticipated, _ := cmd.Flags().GetBool("anticipated")
	description, _ := cmd.Flags().GetString("description")

	amount, err := parseDecimal(amountFlag, "amount")
	if err != nil {
		return err
	}
	kind := models.PaymentKindOrdinary
	if anticipated {
		kind = models.PaymentKindAnticipated
	}

	l, err := a.open()
	if err != nil {
		return err
	}
	p, err := l.RecordPayment(cmd.Context(), ledger.PaymentInput{
		OperationID:  id,
		PeriodNumber: period,
		Amount:       amount,
		Kind:         kind,
		Description:  description,
	})
	if err != nil {
		return err
	}
	balance, err := l.BalanceRemaining(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Payment %s recorded: %s for period %d, balance %s\n",
		p.ID, money(p.Amount), p.PeriodNumber, money(balance))
	return nil
}
