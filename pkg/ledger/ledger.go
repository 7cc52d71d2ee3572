// Package ledger implements the installment engine: client registry,
// operation ledger, payment journal, schedule projection and reporting.
package ledger

import (
	"sync"
	"time"

	"github.com/mcclellann/terme/pkg/amortization"
	"github.com/mcclellann/terme/pkg/logging"
	"github.com/mcclellann/terme/pkg/store"
)

// Clock supplies the current time for created_at, paid_at and overdue checks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Ledger handles the business logic for clients, operations and payments.
type Ledger struct {
	storage store.Storage
	policy  amortization.Policy
	clock   Clock
	log     *logging.Logger

	// mu serializes writers so aggregate-then-update sequences never interleave.
	mu sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithPolicy overrides the amortization policy.
func WithPolicy(p amortization.Policy) Option {
	return func(l *Ledger) { l.policy = p }
}

// WithLogger sets the logger used for mutation records.
func WithLogger(log *logging.Logger) Option {
	return func(l *Ledger) { l.log = log.WithComponent(logging.ComponentLedger) }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		policy:  amortization.Default,
		clock:   SystemClock{},
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// now returns the clock reading in UTC.
func (l *Ledger) now() time.Time {
	return l.clock.Now().UTC()
}
