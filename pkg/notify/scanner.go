package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/ledger"
	"github.com/mcclellann/terme/pkg/logging"
	"github.com/mcclellann/terme/pkg/metrics"
)

// Source lists overdue operations. *ledger.Ledger satisfies it.
type Source interface {
	OverdueReport(ctx context.Context, asOf time.Time) ([]ledger.OverdueEntry, error)
}

// Scanner periodically looks for overdue operations and publishes one notice
// per operation and due date. An operation stays quiet while it remains overdue
// for the same date; it is notified again once its due date moves or after it
// has left the report and come back. The record lives in memory, so a restart
// sends every pending notice once more.
type Scanner struct {
	source    Source
	publisher Publisher
	clock     ledger.Clock
	interval  time.Duration
	log       *logging.Logger

	mu       sync.Mutex
	notified map[uuid.UUID]time.Time
}

func NewScanner(source Source, publisher Publisher, interval time.Duration, log *logging.Logger) *Scanner {
	return &Scanner{
		source:    source,
		publisher: publisher,
		clock:     ledger.SystemClock{},
		interval:  interval,
		log:       log.WithComponent(logging.ComponentNotify),
		notified:  make(map[uuid.UUID]time.Time),
	}
}

// WithClock replaces the time source used as the overdue cutoff.
func (s *Scanner) WithClock(c ledger.Clock) *Scanner {
	s.clock = c
	return s
}

// ScanOnce publishes notices for everything newly overdue and returns how many went out.
// A failed publish does not stop the remaining notices and is retried on the next scan.
func (s *Scanner) ScanOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	entries, err := s.source.OverdueReport(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list overdue operations: %w", err)
	}
	metrics.OverdueOperations.Set(float64(len(entries)))

	var errs []error
	sent := 0
	current := make(map[uuid.UUID]bool, len(entries))
	for _, e := range entries {
		n := NewOverdueNotice(e, now)
		current[n.OperationID] = true
		if last, ok := s.notified[n.OperationID]; ok && last.Equal(n.DueDate) {
			continue
		}
		if err := s.publisher.Publish(ctx, n); err != nil {
			metrics.NoticesPublished.WithLabelValues("error").Inc()
			errs = append(errs, fmt.Errorf("operation %s: %w", n.OperationID, err))
			continue
		}
		metrics.NoticesPublished.WithLabelValues("ok").Inc()
		s.notified[n.OperationID] = n.DueDate
		sent++
	}
	for id := range s.notified {
		if !current[id] {
			delete(s.notified, id)
		}
	}
	return sent, errors.Join(errs...)
}

// Run scans immediately and then on every tick until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.InfoContext(ctx, "Overdue scanner started", "interval", s.interval)
	for {
		s.scan(ctx)
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "Overdue scanner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scanner) scan(ctx context.Context) {
	start := time.Now()
	sent, err := s.ScanOnce(ctx)
	if err != nil {
		s.log.Failure(ctx, "Overdue scan incomplete", err, "sent", sent)
		return
	}
	s.log.InfoContext(ctx, "Overdue scan complete", "sent", sent, "duration", time.Since(start))
}
