package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderbridge/internal/fulfillment"
	"orderbridge/internal/model"
	"orderbridge/internal/store"
)

var ErrJobNotFound = errors.New("dispatch job not found")

// JobStore manages dispatch jobs in the fulfillment store. All writes go
// through the schema-adaptive writer so drifted columns and collision
// constraints are absorbed, not surfaced.
type JobStore struct {
	store  store.Client
	writer *fulfillment.Writer
}

func NewJobStore(st store.Client, w *fulfillment.Writer) *JobStore {
	return &JobStore{store: st, writer: w}
}

func (s *JobStore) Create(ctx context.Context, job model.DispatchJob) (*model.DispatchJob, error) {
	payload := store.Row{
		"status":       job.Status,
		"sequence_id":  job.SequenceID,
		"step_id":      job.StepID,
		"recipient_id": job.RecipientID,
		"due_at":       job.DueAt,
		"attempts":     job.Attempts,
		"order_code":   job.OrderCode,
	}
	row, err := s.writer.Insert(ctx, "dispatch_jobs", payload)
	if err != nil {
		return nil, fmt.Errorf("create dispatch job: %w", err)
	}
	return jobFromRow(row), nil
}

func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	if err := s.store.Delete(ctx, "dispatch_jobs", jobID); err != nil {
		return fmt.Errorf("delete dispatch job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, jobID string) (*model.DispatchJob, error) {
	rows, err := s.store.Select(ctx, "dispatch_jobs", store.Row{"id": jobID}, "", 1)
	if err != nil {
		return nil, fmt.Errorf("get dispatch job: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrJobNotFound
	}
	return jobFromRow(rows[0]), nil
}

func (s *JobStore) FindByOrder(ctx context.Context, orderCode string) (*model.DispatchJob, error) {
	rows, err := s.store.Select(ctx, "dispatch_jobs", store.Row{"order_code": orderCode}, "created_at DESC", 1)
	if err != nil {
		return nil, fmt.Errorf("find job by order: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrJobNotFound
	}
	return jobFromRow(rows[0]), nil
}

// Reschedule moves the due timestamp and promotes an unscheduled job to
// queued. Goes through the writer: the due column itself may have
// drifted.
func (s *JobStore) Reschedule(ctx context.Context, jobID string, dueAt time.Time) (*model.DispatchJob, error) {
	row, err := s.writer.Update(ctx, "dispatch_jobs", jobID, store.Row{
		"due_at": dueAt,
		"status": model.JobStatusQueued,
	})
	if errors.Is(err, store.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reschedule job: %w", err)
	}
	return jobFromRow(row), nil
}

func (s *JobStore) Complete(ctx context.Context, jobID string) (*model.DispatchJob, error) {
	row, err := s.writer.Update(ctx, "dispatch_jobs", jobID, store.Row{
		"status": model.JobStatusCompleted,
	})
	if errors.Is(err, store.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	return jobFromRow(row), nil
}

// jobFromRow maps a raw store row onto the model, tolerating absent
// columns: the fulfillment schema may not carry everything we expect.
func jobFromRow(row store.Row) *model.DispatchJob {
	j := &model.DispatchJob{}
	j.ID = rowString(row, "id")
	j.Status = rowString(row, "status")
	j.SequenceID = rowString(row, "sequence_id")
	j.StepID = rowString(row, "step_id")
	j.RecipientID = rowString(row, "recipient_id")
	j.OrderCode = rowString(row, "order_code")
	if t, ok := row["due_at"].(time.Time); ok {
		j.DueAt = t
	}
	if t, ok := row["created_at"].(time.Time); ok {
		j.CreatedAt = t
	}
	switch v := row["attempts"].(type) {
	case int64:
		j.Attempts = int(v)
	case int:
		j.Attempts = v
	}
	return j
}

func rowString(row store.Row, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}
