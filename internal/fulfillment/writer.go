// Package fulfillment contains the schema-adaptive write path for the
// fulfillment store. The store's schema drifts without coordinated
// migrations, so every write goes through a bounded, classified retry
// loop instead of assuming the expected column set exists.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"orderbridge/internal/store"
)

// maxAttempts bounds the retry loop. Every retry strictly shrinks the
// problem (drops one column, substitutes one known-bad value, or shims
// one legacy table), so the loop terminates well before the cap in
// practice.
const maxAttempts = 50

// ErrNoCapacity is returned when a unique-constraint collision on
// (recipient, step) cannot be resolved because no alternative recipient
// is free at that step. Callers must not retry it.
var ErrNoCapacity = errors.New("no recipient capacity for workflow step")

// Resolver supplies replacement values for NOT-NULL violations and
// alternative recipients for uniqueness collisions.
type Resolver interface {
	ResolveColumn(ctx context.Context, table, column string) (any, error)
	AlternateRecipient(ctx context.Context, stepID string, exclude []string) (string, error)
}

// WriteError carries the final attempted payload alongside the last
// store error once the retry budget is exhausted or absorption fails.
type WriteError struct {
	Payload store.Row
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("fulfillment write failed (final payload %v): %v", e.Payload, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type Writer struct {
	store store.Client
	res   Resolver
}

func NewWriter(st store.Client, res Resolver) *Writer {
	return &Writer{store: st, res: res}
}

func (w *Writer) Insert(ctx context.Context, table string, payload store.Row) (store.Row, error) {
	return w.write(ctx, table, nil, payload)
}

func (w *Writer) Update(ctx context.Context, table string, id any, payload store.Row) (store.Row, error) {
	return w.write(ctx, table, id, payload)
}

func (w *Writer) write(ctx context.Context, table string, id any, payload store.Row) (store.Row, error) {
	// Work on a copy; callers must not observe dropped columns.
	attempt := make(store.Row, len(payload))
	for k, v := range payload {
		attempt[k] = v
	}

	resolved := map[string]bool{}
	shimmed := map[string]bool{}
	var excluded []string
	var lastErr error

	for i := 0; i < maxAttempts; i++ {
		var (
			row store.Row
			err error
		)
		if id == nil {
			row, err = w.store.Insert(ctx, table, attempt)
		} else {
			row, err = w.store.Update(ctx, table, id, attempt)
		}
		if err == nil {
			return row, nil
		}
		lastErr = err

		var serr *store.Error
		if !errors.As(err, &serr) {
			return nil, err
		}

		switch serr.Class {
		case store.ClassUnknownColumn:
			if _, ok := attempt[serr.Column]; !ok {
				return nil, &WriteError{Payload: attempt, Err: err}
			}
			slog.Warn("dropping unknown column", "table", table, "column", serr.Column)
			delete(attempt, serr.Column)

		case store.ClassNotNull:
			if resolved[serr.Column] {
				return nil, &WriteError{Payload: attempt, Err: err}
			}
			v, rerr := w.res.ResolveColumn(ctx, table, serr.Column)
			if rerr != nil {
				return nil, &WriteError{Payload: attempt, Err: fmt.Errorf("resolve %s.%s: %w", table, serr.Column, rerr)}
			}
			slog.Warn("substituting resolved value", "table", table, "column", serr.Column)
			attempt[serr.Column] = v
			resolved[serr.Column] = true

		case store.ClassUnique:
			stepID, _ := attempt["step_id"].(string)
			if cur, ok := attempt["recipient_id"].(string); ok && cur != "" {
				excluded = append(excluded, cur)
			}
			alt, rerr := w.res.AlternateRecipient(ctx, stepID, excluded)
			if rerr != nil {
				if errors.Is(rerr, ErrNoCapacity) {
					return nil, fmt.Errorf("step %s: %w", stepID, ErrNoCapacity)
				}
				return nil, &WriteError{Payload: attempt, Err: rerr}
			}
			slog.Warn("reassigning collided job", "table", table, "step", stepID, "recipient", alt)
			attempt["recipient_id"] = alt

		case store.ClassForeignKey:
			if serr.RefTable == "" || shimmed[serr.RefTable] {
				return nil, &WriteError{Payload: attempt, Err: err}
			}
			if shimErr := w.shim(ctx, serr.RefTable, serr.RefValue); shimErr != nil {
				return nil, &WriteError{Payload: attempt, Err: shimErr}
			}
			shimmed[serr.RefTable] = true

		default:
			return nil, err
		}
	}

	return nil, &WriteError{Payload: attempt, Err: lastErr}
}

// shim inserts a minimal placeholder row so a legacy foreign key can be
// satisfied. A duplicate-key failure means another writer got there
// first, which is success for our purposes.
func (w *Writer) shim(ctx context.Context, table, value string) error {
	slog.Warn("inserting shim row for legacy foreign key", "table", table, "id", value)
	_, err := w.store.Insert(ctx, table, store.Row{"id": value})
	if err != nil {
		var serr *store.Error
		if errors.As(err, &serr) && serr.Class == store.ClassUnique {
			return nil
		}
		return fmt.Errorf("shim insert into %s: %w", table, err)
	}
	return nil
}
