package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"orderbridge/internal/model"
)

// TraceRecorder writes append-only breadcrumbs to the primary store.
// Business logic never reads them back; failures to record are logged
// and swallowed so diagnostics can never break a checkout.
type TraceRecorder struct {
	db *sql.DB
}

func NewTraceRecorder(db *sql.DB) *TraceRecorder {
	return &TraceRecorder{db: db}
}

func (t *TraceRecorder) Stage(ctx context.Context, traceID, stage, detail string) {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO checkout_traces (trace_id, stage, detail) VALUES ($1, $2, $3)`,
		traceID, stage, detail,
	)
	if err != nil {
		slog.Error("failed to record trace stage", "trace_id", traceID, "stage", stage, "error", err)
	}
}

func (t *TraceRecorder) Failure(ctx context.Context, traceID, stage string, cause error) {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO checkout_failures (trace_id, stage, error) VALUES ($1, $2, $3)`,
		traceID, stage, cause.Error(),
	)
	if err != nil {
		slog.Error("failed to record trace failure", "trace_id", traceID, "stage", stage, "error", err)
	}
}

// Get returns the ordered breadcrumbs plus any failure rows for one
// checkout attempt. Operator-facing only.
func (t *TraceRecorder) Get(ctx context.Context, traceID string) (*model.Trace, error) {
	trace := &model.Trace{TraceID: traceID}

	rows, err := t.db.QueryContext(ctx,
		`SELECT stage, COALESCE(detail, ''), created_at FROM checkout_traces WHERE trace_id = $1 ORDER BY id ASC`,
		traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		ev := model.TraceEvent{TraceID: traceID}
		if err := rows.Scan(&ev.Stage, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		trace.Events = append(trace.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	frows, err := t.db.QueryContext(ctx,
		`SELECT stage, error, created_at FROM checkout_failures WHERE trace_id = $1 ORDER BY id ASC`,
		traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		fe := model.FailureEvent{TraceID: traceID}
		if err := frows.Scan(&fe.Stage, &fe.Error, &fe.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		trace.Failures = append(trace.Failures, fe)
	}
	if err := frows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return trace, nil
}
