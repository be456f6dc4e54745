package fulfillment

import (
	"context"
	"fmt"
	"time"

	"orderbridge/internal/store"
)

// Columns the resolver knows how to backfill. Anything else surfaces as
// a hard error rather than guessing.
var resolvableColumns = map[string]bool{
	"sequence_id":  true,
	"step_id":      true,
	"recipient_id": true,
	"due_at":       true,
}

// StoreResolver resolves missing required values against live rows in
// the fulfillment store: the most recent job's value for workflow
// pointers, or tomorrow for a due timestamp.
type StoreResolver struct {
	store store.Client
	now   func() time.Time
}

func NewStoreResolver(st store.Client) *StoreResolver {
	return &StoreResolver{store: st, now: time.Now}
}

func (r *StoreResolver) ResolveColumn(ctx context.Context, table, column string) (any, error) {
	if !resolvableColumns[column] {
		return nil, fmt.Errorf("no resolver for column %q", column)
	}
	if column == "due_at" {
		return r.now().AddDate(0, 0, 1).Truncate(time.Hour), nil
	}

	rows, err := r.store.Select(ctx, "dispatch_jobs", nil, "created_at DESC", 1)
	if err != nil {
		return nil, fmt.Errorf("select latest job: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no existing row to resolve %q from", column)
	}
	v, ok := rows[0][column]
	if !ok || v == nil {
		return nil, fmt.Errorf("latest job carries no value for %q", column)
	}
	return v, nil
}

// AlternateRecipient picks the first recipient not currently holding an
// active job at the given step. Exhausting the directory is a capacity
// condition, not a transient failure.
func (r *StoreResolver) AlternateRecipient(ctx context.Context, stepID string, exclude []string) (string, error) {
	recipients, err := r.store.Select(ctx, "recipients", nil, "created_at ASC", 0)
	if err != nil {
		return "", fmt.Errorf("select recipients: %w", err)
	}

	busy := map[string]bool{}
	jobs, err := r.store.Select(ctx, "dispatch_jobs", store.Row{"step_id": stepID}, "", 0)
	if err != nil {
		return "", fmt.Errorf("select jobs at step: %w", err)
	}
	for _, j := range jobs {
		status, _ := j["status"].(string)
		if status == "completed" {
			continue
		}
		if id, ok := j["recipient_id"].(string); ok {
			busy[id] = true
		}
	}
	for _, id := range exclude {
		busy[id] = true
	}

	for _, rec := range recipients {
		id, ok := rec["id"].(string)
		if !ok || busy[id] {
			continue
		}
		return id, nil
	}
	return "", ErrNoCapacity
}
