package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"orderbridge/internal/model"
	"orderbridge/internal/service"
)

type orderSource interface {
	ListPendingPayment(ctx context.Context, limit int) ([]model.Order, error)
	MarkPaidBySession(ctx context.Context, sessionID string) error
}

// SessionWorker reconciles orders stuck in pending_payment against the
// payment processor: if the processor reports the session complete, the
// order is flipped to paid (status only; nothing else is recomputed).
type SessionWorker struct {
	orders      orderSource
	payments    service.PaymentClient
	interval    time.Duration
	batchSize   int
	concurrency int
}

func NewSessionWorker(orders orderSource, payments service.PaymentClient) *SessionWorker {
	return &SessionWorker{
		orders:      orders,
		payments:    payments,
		interval:    15 * time.Second,
		batchSize:   10,
		concurrency: 4,
	}
}

func (w *SessionWorker) Start(ctx context.Context) {
	slog.Info("starting session reconciliation worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session reconciliation worker stopped")
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				slog.Error("session batch failed", "error", err)
			}
		}
	}
}

func (w *SessionWorker) processBatch(ctx context.Context) error {
	orders, err := w.orders.ListPendingPayment(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending orders: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, order := range orders {
		order := order
		g.Go(func() error {
			session, err := w.payments.RetrieveSession(gctx, order.PaymentSessionID)
			if err != nil {
				slog.Warn("retrieve session failed", "order_code", order.Code, "error", err)
				return nil
			}
			if session.Status != "complete" && session.Status != "paid" {
				return nil
			}
			if err := w.orders.MarkPaidBySession(gctx, session.ID); err != nil {
				slog.Error("mark paid failed", "order_code", order.Code, "error", err)
				return nil
			}
			slog.Info("order paid", "order_code", order.Code, "session_id", session.ID)
			return nil
		})
	}
	return g.Wait()
}
