package main

import (
	"fmt"

	"github.com/mcclellann/terme/pkg/amortization"
	"github.com/spf13/cobra"
)

// ─── overdue ────────────────────────────────────────────────────────────────

func newOverdueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List open operations past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOverdue(cmd, a)
		},
	}
	cmd.Flags().String("as-of", "", "Reference date, YYYY-MM-DD (default today)")
	return cmd
}

func runOverdue(cmd *cobra.Command, a *app) error {
	v, _ := cmd.Flags().GetString("as-of")
	at, err := asOfFlag(v)
	if err != nil {
		return err
	}
	l, err := a.open()
	if err != nil {
		return err
	}
	entries, err := l.OverdueReport(cmd.Context(), at)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No overdue operations as of %s.\n", day(at))
		return nil
	}

	w := table(cmd.OutOrStdout())
	fmt.Fprintln(w, "OPERATION\tCLIENT\tPHONE\tDUE\tAMOUNT DUE\tBALANCE")
	for _, e := range entries {
		name, phone := "?", ""
		if e.Client != nil {
			name, phone = e.Client.Name, e.Client.Phone
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Operation.ID, name, phone, day(e.NextDue.DueDate), money(e.NextDue.Amount), money(e.Balance))
	}
	return w.Flush()
}

// ─── balances ───────────────────────────────────────────────────────────────

func newBalancesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "Show credit, debit and net balance per client and value kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.open()
			if err != nil {
				return err
			}
			statements, err := l.ClientStatements(cmd.Context())
			if err != nil {
				return err
			}
			if len(statements) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No operations recorded.")
				return nil
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "CLIENT\tKIND\tCREDIT\tDEBIT\tNET")
			for _, st := range statements {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					st.ClientName, st.ValueKind, money(st.TotalCredit), money(st.TotalDebit), money(st.NetBalance))
			}
			return w.Flush()
		},
	}
}

// ─── summary ────────────────────────────────────────────────────────────────

func newSummaryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show portfolio totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _ := cmd.Flags().GetString("as-of")
			at, err := asOfFlag(v)
			if err != nil {
				return err
			}
			l, err := a.open()
			if err != nil {
				return err
			}
			s, err := l.PortfolioSummary(cmd.Context(), at)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Operations:   %d open, %d closed, %d overdue\n", s.OpenOperations, s.ClosedOperations, s.OverdueOperations)
			fmt.Fprintf(out, "Total due:    %s\n", money(s.TotalDue))
			fmt.Fprintf(out, "Total paid:   %s\n", money(s.TotalPaid))
			fmt.Fprintf(out, "Outstanding:  %s\n", money(s.Outstanding))
			return nil
		},
	}
	cmd.Flags().String("as-of", "", "Reference date for the overdue count, YYYY-MM-DD (default today)")
	return cmd
}

// ─── schedule ───────────────────────────────────────────────────────────────

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Project installments for given terms without recording anything",
		Args:  cobra.NoArgs,
		RunE:  runSchedule,
	}
	cmd.Flags().String("principal", "", "Amount financed (required)")
	cmd.Flags().String("rate", "", "Profit rate per period (required)")
	cmd.Flags().String("periods", "", "Number of periods (required)")
	for _, f := range []string{"principal", "rate", "periods"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

func runSchedule(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	values := make([]string, 3)
	for i, f := range []string{"principal", "rate", "periods"} {
		values[i], _ = flags.GetString(f)
	}
	principal, err := parseDecimal(values[0], "principal")
	if err != nil {
		return err
	}
	rate, err := parseDecimal(values[1], "rate")
	if err != nil {
		return err
	}
	periods, err := parseDecimal(values[2], "periods")
	if err != nil {
		return err
	}

	terms, err := amortization.Default.Terms(principal, rate, periods)
	if err != nil {
		return err
	}
	schedule, err := amortization.Default.Schedule(principal, rate, periods)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total due %s, %s per period\n\n", money(terms.TotalDue), money(terms.PeriodAmount))
	w := table(out)
	fmt.Fprintln(w, "PERIOD\tAMOUNT")
	for _, inst := range schedule {
		fmt.Fprintf(w, "%d\t%s\n", inst.PeriodNumber, money(inst.AmountDue))
	}
	return w.Flush()
}
