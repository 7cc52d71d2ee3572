package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/terme/pkg/config"
	"github.com/mcclellann/terme/pkg/ledger"
	"github.com/mcclellann/terme/pkg/logging"
	"github.com/mcclellann/terme/pkg/notify"
	"github.com/mcclellann/terme/pkg/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Component: logging.ComponentApp,
		Output:    os.Stdout,
	})
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Failure(ctx, "Server stopped with error", err)
		os.Exit(1)
	}
}

// newPublisher connects to the broker when one is configured and falls back to the log otherwise.
func newPublisher(cfg *config.Config, logger *logging.Logger) (notify.Publisher, error) {
	if cfg.AMQPURL == "" {
		return notify.NewLogPublisher(logger), nil
	}
	return notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	sqliteStore, err := store.NewSQLiteStore(cfg.SQLiteDBPath, store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("initialize SQLite store: %w", err)
	}
	defer sqliteStore.Close()

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize notice publisher: %w", err)
	}
	defer publisher.Close()

	l := ledger.NewLedger(sqliteStore, ledger.WithLogger(logger))
	server := NewServer(l, logger)
	scanner := notify.NewScanner(l, publisher, cfg.OverdueScanInterval, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(ctx, "Server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return scanner.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down server")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
