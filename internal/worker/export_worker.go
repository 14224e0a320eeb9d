// Package worker copies stored transactions to the export spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"poupanca/internal/amqp"
	"poupanca/internal/core"
	"poupanca/internal/metrics"
	"poupanca/internal/sheets"
	"poupanca/internal/storage"
)

const (
	recentSize = 1024
	recentTTL  = time.Hour
)

// Source is the slice of the store the worker reads and marks.
type Source interface {
	GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error)
	storage.ExportQueue
}

// Consumer delivers export messages until ctx ends.
type Consumer interface {
	ConsumeExports(ctx context.Context, handler func(context.Context, *amqp.ExportMessage) error) error
}

type Config struct {
	BatchSize int
	Interval  time.Duration
}

// ExportWorker exports on demand from AMQP messages and periodically sweeps
// rows whose message was lost.
type ExportWorker struct {
	store    Source
	exporter sheets.TransactionExporter
	metrics  *metrics.Metrics
	cfg      Config

	mu     sync.Mutex
	recent *recentSet
}

func NewExportWorker(store Source, exporter sheets.TransactionExporter, m *metrics.Metrics, cfg Config) *ExportWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &ExportWorker{
		store:    store,
		exporter: exporter,
		metrics:  m,
		cfg:      cfg,
		recent:   newRecentSet(recentSize, recentTTL),
	}
}

// HandleExportMessage exports the transaction named by msg. A transaction
// deleted since the message was sent, or already marked exported by an
// earlier delivery or sweep, is skipped.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ExportMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.recent.Has(msg.TransactionID) {
		slog.DebugContext(ctx, "Transaction already exported", "transaction_id", msg.TransactionID)
		return nil
	}
	t, err := w.store.GetTransaction(ctx, msg.UserID, msg.TransactionID)
	if errors.Is(err, core.ErrNotFound) {
		slog.InfoContext(ctx, "Transaction gone before export, skipping", "transaction_id", msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if t.Exported {
		slog.DebugContext(ctx, "Transaction already exported", "transaction_id", t.ID)
		w.recent.Add(t.ID)
		return nil
	}
	return w.export(ctx, t)
}

// ProcessPending exports up to one batch of rows not yet marked exported
// and returns how many succeeded.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending, err := w.store.PendingExports(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	done := 0
	for _, t := range pending {
		if w.recent.Has(t.ID) {
			continue
		}
		if err := w.export(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction", "transaction_id", t.ID, "error", err)
			continue
		}
		done++
	}
	return done, nil
}

func (w *ExportWorker) export(ctx context.Context, t core.Transaction) error {
	ref, err := w.exporter.Export(ctx, t)
	if err != nil {
		w.metrics.Export(false)
		return fmt.Errorf("export transaction %d: %w", t.ID, err)
	}
	w.metrics.Export(true)
	w.recent.Add(t.ID)

	if err := w.store.MarkExported(ctx, t.ID, ref); err != nil {
		// The row is in the sheet; the recent set holds off a re-export
		// until its entry expires.
		slog.ErrorContext(ctx, "Failed to mark transaction exported", "transaction_id", t.ID, "error", err)
		return nil
	}
	slog.InfoContext(ctx, "Transaction exported",
		"transaction_id", t.ID,
		"user_id", t.UserID,
		"sheets_ref", ref)
	return nil
}

// Run sweeps once, then consumes messages (when consumer is non-nil) and
// sweeps every Interval until ctx ends.
func (w *ExportWorker) Run(ctx context.Context, consumer Consumer) error {
	if _, err := w.ProcessPending(ctx); err != nil {
		slog.WarnContext(ctx, "Startup export sweep failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumeExports(ctx, w.HandleExportMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := w.ProcessPending(ctx); err != nil {
					slog.ErrorContext(ctx, "Export sweep failed", "error", err)
				}
			}
		}
	})
	return g.Wait()
}
