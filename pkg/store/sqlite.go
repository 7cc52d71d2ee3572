package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/mcclellann/terme/pkg/logging"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db   *sql.DB
	q    querier
	inTx bool
	log  *logging.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger for connection records.
func WithLogger(log *logging.Logger) Option {
	return func(s *SQLiteStore) { s.log = log.WithComponent(logging.ComponentStorage) }
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
// Use ":memory:" for a throwaway in-memory database.
func NewSQLiteStore(dataSourceName string, opts ...Option) (*SQLiteStore, error) {
	if dataSourceName != ":memory:" {
		if dir := filepath.Dir(dataSourceName); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("could not create database directory: %w", err)
			}
		}
	}

	dsn := dataSourceName
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	// Foreign keys and WAL are per-connection settings. Passing them in the DSN
	// applies them to every connection the pool opens.
	dsn += "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// Single writer: one connection serializes every statement and transaction.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, q: db, log: logging.Discard().WithComponent(logging.ComponentStorage)}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("path", dataSourceName)
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	s.log.Info("Database connection established and schema initialized")
	return s, nil
}

// initSchema creates the tables if they don't already exist and adds columns introduced later.
// Decimal fields are stored as TEXT so no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL COLLATE NOCASE UNIQUE,
		phone TEXT,
		notes TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		profit_rate TEXT NOT NULL,
		duration_periods TEXT NOT NULL,
		total_due TEXT NOT NULL,
		period_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(client_id) REFERENCES clients(id)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		operation_id TEXT NOT NULL,
		period_number INTEGER NOT NULL,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		paid_at DATETIME NOT NULL,
		FOREIGN KEY(operation_id) REFERENCES operations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_operations_client ON operations(client_id);
	CREATE INDEX IF NOT EXISTS idx_payments_operation ON payments(operation_id, period_number, paid_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_ordinary_period
		ON payments(operation_id, period_number) WHERE kind = 'ordinary';
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Optional columns added after the first release. Old rows read them as NULL or the default.
	columns := []struct{ table, def string }{
		{"operations", "direction TEXT NOT NULL DEFAULT 'credit'"},
		{"operations", "value_kind TEXT NOT NULL DEFAULT 'cash'"},
		{"operations", "due_date DATETIME"},
		{"payments", "description TEXT"},
	}
	for _, col := range columns {
		_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", col.table, col.def))
		if err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add column %s.%s: %w", col.table, col.def, err)
		}
	}
	return nil
}

// isDuplicateColumnError checks if the error indicates a duplicate column.
func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

// translate maps driver constraint failures onto ErrConflict.
func translate(err error, format string, args ...any) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w: %v", fmt.Sprintf(format, args...), ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// InTx runs fn inside a database transaction. Nested calls reuse the outer transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Storage) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{db: s.db, q: tx, inTx: true, log: s.log}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection. It is a no-op on a transaction-bound store.
func (s *SQLiteStore) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func checkAffected(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// ─── Clients ────────────────────────────────────────────────────────────────

const clientColumns = `id, name, phone, notes, created_at`

// CreateClient inserts a new client.
func (s *SQLiteStore) CreateClient(ctx context.Context, client *models.Client) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?)`,
		client.ID.String(), client.Name, nullString(client.Phone), nullString(client.Notes), client.CreatedAt,
	)
	if err != nil {
		return translate(err, "failed to create client")
	}
	return nil
}

// GetClient retrieves a client by its ID.
func (s *SQLiteStore) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id.String())
	return scanClient(row)
}

// GetClientByName retrieves a client by name, ignoring case.
func (s *SQLiteStore) GetClientByName(ctx context.Context, name string) (*models.Client, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE name = ? COLLATE NOCASE`, name)
	return scanClient(row)
}

// UpdateClient updates name and contact details of an existing client.
func (s *SQLiteStore) UpdateClient(ctx context.Context, client *models.Client) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE clients SET name = ?, phone = ?, notes = ? WHERE id = ?`,
		client.Name, nullString(client.Phone), nullString(client.Notes), client.ID.String(),
	)
	if err != nil {
		return translate(err, "failed to update client")
	}
	return checkAffected(result, "client")
}

// DeleteClient removes a client. Referencing operations make it fail with ErrConflict.
func (s *SQLiteStore) DeleteClient(ctx context.Context, id uuid.UUID) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id.String())
	if err != nil {
		return translate(err, "failed to delete client")
	}
	return checkAffected(result, "client")
}

// ListClients returns all clients ordered by name, ignoring case.
func (s *SQLiteStore) ListClients(ctx context.Context) ([]*models.Client, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name COLLATE NOCASE ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients := []*models.Client{}
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return clients, nil
}

// CountOperationsForClient returns how many operations reference the client.
func (s *SQLiteStore) CountOperationsForClient(ctx context.Context, clientID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations WHERE client_id = ?`, clientID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count operations for client %s: %w", clientID, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*models.Client, error) {
	var client models.Client
	var idStr string
	var phone, notes sql.NullString
	if err := row.Scan(&idStr, &client.Name, &phone, &notes, &client.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan client row: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid client id %q: %w", idStr, err)
	}
	client.ID = id
	client.Phone = phone.String
	client.Notes = notes.String
	return &client, nil
}

// ─── Operations ─────────────────────────────────────────────────────────────

const operationColumns = `id, client_id, principal, profit_rate, duration_periods, total_due, period_amount, status, direction, value_kind, due_date, created_at, updated_at`

// CreateOperation inserts a new operation.
func (s *SQLiteStore) CreateOperation(ctx context.Context, op *models.Operation) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO operations (`+operationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID.String(), op.ClientID.String(), op.Principal, op.ProfitRate, op.DurationPeriods, op.TotalDue, op.PeriodAmount,
		op.Status, op.Direction, op.ValueKind, nullTime(op.DueDate), op.CreatedAt, op.UpdatedAt,
	)
	if err != nil {
		return translate(err, "failed to create operation")
	}
	return nil
}

// GetOperation retrieves an operation by its ID.
func (s *SQLiteStore) GetOperation(ctx context.Context, id uuid.UUID) (*models.Operation, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = ?`, id.String())
	return scanOperation(row)
}

// UpdateOperation updates terms, derived figures and status of an existing operation.
func (s *SQLiteStore) UpdateOperation(ctx context.Context, op *models.Operation) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE operations SET principal = ?, profit_rate = ?, duration_periods = ?, total_due = ?, period_amount = ?, status = ?, direction = ?, value_kind = ?, due_date = ?, updated_at = ? WHERE id = ?`,
		op.Principal, op.ProfitRate, op.DurationPeriods, op.TotalDue, op.PeriodAmount, op.Status,
		op.Direction, op.ValueKind, nullTime(op.DueDate), op.UpdatedAt, op.ID.String(),
	)
	if err != nil {
		return translate(err, "failed to update operation")
	}
	return checkAffected(result, "operation")
}

// DeleteOperation removes an operation and its payments within a transaction.
func (s *SQLiteStore) DeleteOperation(ctx context.Context, id uuid.UUID) error {
	return s.InTx(ctx, func(tx Storage) error {
		q := tx.(*SQLiteStore).q
		if _, err := q.ExecContext(ctx, `DELETE FROM payments WHERE operation_id = ?`, id.String()); err != nil {
			return fmt.Errorf("failed to delete associated payments: %w", err)
		}
		result, err := q.ExecContext(ctx, `DELETE FROM operations WHERE id = ?`, id.String())
		if err != nil {
			return fmt.Errorf("failed to delete operation: %w", err)
		}
		return checkAffected(result, "operation")
	})
}

// ListOperations returns operations matching filter, newest first.
func (s *SQLiteStore) ListOperations(ctx context.Context, filter OperationFilter) ([]*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations`
	var where []string
	var args []any
	if filter.ClientID != nil {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID.String())
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := []*models.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return ops, nil
}

func scanOperation(row scanner) (*models.Operation, error) {
	var op models.Operation
	var idStr, clientIDStr string
	var dueDate sql.NullTime
	err := row.Scan(&idStr, &clientIDStr, &op.Principal, &op.ProfitRate, &op.DurationPeriods, &op.TotalDue, &op.PeriodAmount,
		&op.Status, &op.Direction, &op.ValueKind, &dueDate, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan operation row: %w", err)
	}
	if op.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid operation id %q: %w", idStr, err)
	}
	if op.ClientID, err = uuid.Parse(clientIDStr); err != nil {
		return nil, fmt.Errorf("invalid client id %q: %w", clientIDStr, err)
	}
	if dueDate.Valid {
		op.DueDate = &dueDate.Time
	}
	return &op, nil
}

// ─── Payments ───────────────────────────────────────────────────────────────

const paymentColumns = `id, operation_id, period_number, amount, kind, description, paid_at`

// CreatePayment inserts a new payment.
func (s *SQLiteStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.OperationID.String(), payment.PeriodNumber, payment.Amount, payment.Kind,
		nullString(payment.Description), payment.PaidAt,
	)
	if err != nil {
		return translate(err, "failed to create payment")
	}
	return nil
}

// GetPayment retrieves a payment by its ID.
func (s *SQLiteStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id.String())
	return scanPayment(row)
}

// DeletePayment removes a single payment.
func (s *SQLiteStore) DeletePayment(ctx context.Context, id uuid.UUID) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return checkAffected(result, "payment")
}

// ListPayments retrieves all payments for an operation by period, then payment time.
func (s *SQLiteStore) ListPayments(ctx context.Context, operationID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE operation_id = ? ORDER BY period_number ASC, paid_at ASC, id ASC`,
		operationID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for operation %s: %w", operationID, err)
	}
	defer rows.Close()

	payments := []*models.Payment{}
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for operation payments: %w", err)
	}
	return payments, nil
}

// SumPayments adds up payment amounts for an operation. SQL SUM would go
// through floating point on TEXT columns, so amounts are summed here.
func (s *SQLiteStore) SumPayments(ctx context.Context, operationID uuid.UUID) (decimal.Decimal, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT amount FROM payments WHERE operation_id = ?`, operationID.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments for operation %s: %w", operationID, err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan payment amount: %w", err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error during rows iteration: %w", err)
	}
	return total, nil
}

// HasOrdinaryPayment reports whether an ordinary payment exists for the period.
func (s *SQLiteStore) HasOrdinaryPayment(ctx context.Context, operationID uuid.UUID, periodNumber int) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE operation_id = ? AND period_number = ? AND kind = ?`,
		operationID.String(), periodNumber, models.PaymentKindOrdinary,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check period %d of operation %s: %w", periodNumber, operationID, err)
	}
	return n > 0, nil
}

func scanPayment(row scanner) (*models.Payment, error) {
	var payment models.Payment
	var idStr, opIDStr string
	var description sql.NullString
	err := row.Scan(&idStr, &opIDStr, &payment.PeriodNumber, &payment.Amount, &payment.Kind, &description, &payment.PaidAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan payment row: %w", err)
	}
	if payment.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid payment id %q: %w", idStr, err)
	}
	if payment.OperationID, err = uuid.Parse(opIDStr); err != nil {
		return nil, fmt.Errorf("invalid operation id %q: %w", opIDStr, err)
	}
	payment.Description = description.String
	return &payment, nil
}
