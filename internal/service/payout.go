package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orderbridge/internal/model"
	"orderbridge/internal/store"
)

type payoutOrders interface {
	FindByRef(ctx context.Context, ref string) (*model.Order, error)
}

// PayoutLedger records completion payouts in the fulfillment store. The
// ledger still carries a foreign key into a legacy jobs table it was
// never migrated away from, so inserts may need a shim row first.
type PayoutLedger struct {
	store  store.Client
	orders payoutOrders
	policy PayoutPolicy
	now    func() time.Time
}

func NewPayoutLedger(st store.Client, orders payoutOrders, policy PayoutPolicy) *PayoutLedger {
	return &PayoutLedger{store: st, orders: orders, policy: policy, now: time.Now}
}

// payPeriod returns the Monday-aligned 7-day window containing ts.
func payPeriod(ts time.Time) (time.Time, time.Time) {
	ts = ts.UTC()
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

// RecordCompletion idempotently writes the payout for a completed job.
// A completion retried twice never produces two entries and never
// decreases a previously-recorded positive amount; a previously-zero
// entry is healed in place once a positive amount resolves.
func (p *PayoutLedger) RecordCompletion(ctx context.Context, jobID, recipientID string, amountCents int64) (*model.PayoutEntry, error) {
	existing, err := p.find(ctx, jobID, recipientID)
	if err != nil {
		return nil, err
	}

	if amountCents <= 0 {
		amountCents = p.resolveAmount(ctx, jobID)
	}

	if existing != nil {
		if existing.AmountCents > 0 {
			return existing, nil
		}
		if amountCents > 0 {
			row, uerr := p.store.Update(ctx, "payout_ledger", existing.ID, store.Row{
				"amount_cents": amountCents,
				"status":       model.PayoutStatusPending,
			})
			if uerr != nil {
				return nil, fmt.Errorf("heal payout entry: %w", uerr)
			}
			return entryFromRow(row), nil
		}
		return existing, nil
	}

	status := model.PayoutStatusPending
	if amountCents <= 0 {
		// Observable rather than invisible: the absence of payout is a
		// zero-amount entry, never a silent skip.
		slog.Warn("recording zero-amount payout", "job_id", jobID, "recipient_id", recipientID)
		amountCents = 0
		status = model.PayoutStatusFlagged
	}

	start, end := payPeriod(p.now())
	payload := store.Row{
		"recipient_id": recipientID,
		"job_id":       jobID,
		"amount_cents": amountCents,
		"payout_type":  model.PayoutTypeJob,
		"status":       status,
		"period_start": start,
		"period_end":   end,
	}

	return p.insertWithShim(ctx, payload)
}

// insertWithShim inserts the entry, absorbing one foreign-key miss on a
// legacy table by planting a shim row, and treating a unique collision
// as "someone else recorded it first".
func (p *PayoutLedger) insertWithShim(ctx context.Context, payload store.Row) (*model.PayoutEntry, error) {
	for attempt := 0; attempt < 2; attempt++ {
		row, err := p.store.Insert(ctx, "payout_ledger", payload)
		if err == nil {
			return entryFromRow(row), nil
		}

		var serr *store.Error
		if !errors.As(err, &serr) {
			return nil, fmt.Errorf("insert payout entry: %w", err)
		}
		switch serr.Class {
		case store.ClassUnique:
			jobID, _ := payload["job_id"].(string)
			recipientID, _ := payload["recipient_id"].(string)
			existing, ferr := p.find(ctx, jobID, recipientID)
			if ferr != nil {
				return nil, ferr
			}
			if existing == nil {
				return nil, fmt.Errorf("payout entry vanished after duplicate key: %w", err)
			}
			return existing, nil
		case store.ClassForeignKey:
			if attempt > 0 || serr.RefTable == "" {
				return nil, fmt.Errorf("insert payout entry: %w", err)
			}
			slog.Warn("inserting shim row for legacy payout foreign key", "table", serr.RefTable, "id", serr.RefValue)
			if _, shimErr := p.store.Insert(ctx, serr.RefTable, store.Row{"id": serr.RefValue}); shimErr != nil {
				var dup *store.Error
				if !errors.As(shimErr, &dup) || dup.Class != store.ClassUnique {
					return nil, fmt.Errorf("shim insert into %s: %w", serr.RefTable, shimErr)
				}
			}
		default:
			return nil, fmt.Errorf("insert payout entry: %w", err)
		}
	}
	return nil, fmt.Errorf("insert payout entry: retry budget exhausted")
}

// resolveAmount implements the payout-source precedence: explicit payout
// field on the job row, then the sum of per-line payout fields, then a
// percentage of the linked order's frozen subtotal, then of its total.
// Any unusable source (drifted column, missing table) is skipped.
func (p *PayoutLedger) resolveAmount(ctx context.Context, jobID string) int64 {
	var orderCode string

	jobs, err := p.store.Select(ctx, "dispatch_jobs", store.Row{"id": jobID}, "", 1)
	if err == nil && len(jobs) == 1 {
		orderCode = rowString(jobs[0], "order_code")
		if v := rowInt(jobs[0], "payout_cents"); v > 0 {
			return v
		}
	}

	if lines, err := p.store.Select(ctx, "job_line_items", store.Row{"job_id": jobID}, "", 0); err == nil {
		var sum int64
		for _, l := range lines {
			sum += rowInt(l, "payout_cents")
		}
		if sum > 0 {
			return sum
		}
	}

	if orderCode == "" {
		return 0
	}
	order, err := p.orders.FindByRef(ctx, orderCode)
	if err != nil {
		slog.Warn("payout amount: order lookup failed", "order_code", orderCode, "error", err)
		return 0
	}
	if order.SubtotalCents > 0 {
		return PayoutCents(order.SubtotalCents, p.policy)
	}
	if total := metaInt(order.Metadata, "total_cents"); total > 0 {
		return PayoutCents(total, p.policy)
	}
	return 0
}

func (p *PayoutLedger) find(ctx context.Context, jobID, recipientID string) (*model.PayoutEntry, error) {
	rows, err := p.store.Select(ctx, "payout_ledger", store.Row{
		"job_id":       jobID,
		"recipient_id": recipientID,
		"payout_type":  model.PayoutTypeJob,
	}, "", 1)
	if err != nil {
		return nil, fmt.Errorf("lookup payout entry: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return entryFromRow(rows[0]), nil
}

func entryFromRow(row store.Row) *model.PayoutEntry {
	e := &model.PayoutEntry{
		ID:          rowString(row, "id"),
		RecipientID: rowString(row, "recipient_id"),
		JobID:       rowString(row, "job_id"),
		AmountCents: rowInt(row, "amount_cents"),
		PayoutType:  rowString(row, "payout_type"),
		Status:      rowString(row, "status"),
	}
	if t, ok := row["period_start"].(time.Time); ok {
		e.PeriodStart = t
	}
	if t, ok := row["period_end"].(time.Time); ok {
		e.PeriodEnd = t
	}
	if t, ok := row["created_at"].(time.Time); ok {
		e.CreatedAt = t
	}
	return e
}

func rowInt(row store.Row, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func metaInt(meta map[string]any, key string) int64 {
	switch v := meta[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
