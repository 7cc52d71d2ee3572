package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/config"
	"github.com/mcclellann/terme/pkg/ledger"
	"github.com/mcclellann/terme/pkg/logging"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/mcclellann/terme/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// app carries what every subcommand shares. The database is opened on first use.
type app struct {
	dbPath  string
	verbose bool

	log    *logging.Logger
	store  *store.SQLiteStore
	ledger *ledger.Ledger
}

func newRootCmd(a *app) *cobra.Command {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:          "termectl",
		Short:        "Manage clients, installment operations and payments",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			a.log = logging.New(logging.Config{
				Level:     level,
				Component: logging.ComponentCLI,
				Output:    cmd.ErrOrStderr(),
			})
			logging.SetDefault(a.log)
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", cfg.SQLiteDBPath, "Path to the SQLite database")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(newClientsCmd(a))
	rootCmd.AddCommand(newOperationsCmd(a))
	rootCmd.AddCommand(newPayCmd(a))
	rootCmd.AddCommand(newOverdueCmd(a))
	rootCmd.AddCommand(newBalancesCmd(a))
	rootCmd.AddCommand(newSummaryCmd(a))
	rootCmd.AddCommand(newScheduleCmd())
	return rootCmd
}

// open returns the ledger, creating the store the first time.
func (a *app) open() (*ledger.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	s, err := store.NewSQLiteStore(a.dbPath, store.WithLogger(a.log))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.dbPath, err)
	}
	a.store = s
	a.ledger = ledger.NewLedger(s, ledger.WithLogger(a.log))
	return a.ledger, nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store, a.ledger = nil, nil
	return err
}

// resolveClient accepts a client ID or a client name.
func resolveClient(cmd *cobra.Command, l *ledger.Ledger, ref string) (*models.Client, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return l.GetClient(cmd.Context(), id)
	}
	return l.FindClient(cmd.Context(), ref)
}

func parseID(arg, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s ID %q", what, arg)
	}
	return id, nil
}

func parseDecimal(v, flag string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %q is not a number", flag, v)
	}
	return d, nil
}

// asOfFlag reads a YYYY-MM-DD date, or returns now when empty.
func asOfFlag(v string) (time.Time, error) {
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--as-of: %q is not a YYYY-MM-DD date", v)
	}
	return t, nil
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}
