package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"orderbridge/internal/store"
)

type fakeStore struct {
	insertFn func(table string, payload store.Row) (store.Row, error)
	updateFn func(table string, id any, payload store.Row) (store.Row, error)
	inserts  []store.Row
}

func (f *fakeStore) Select(ctx context.Context, table string, where store.Row, orderBy string, limit int) ([]store.Row, error) {
	return nil, nil
}

func (f *fakeStore) Insert(ctx context.Context, table string, payload store.Row) (store.Row, error) {
	copied := make(store.Row, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	f.inserts = append(f.inserts, copied)
	return f.insertFn(table, payload)
}

func (f *fakeStore) Update(ctx context.Context, table string, id any, payload store.Row) (store.Row, error) {
	return f.updateFn(table, id, payload)
}

func (f *fakeStore) Delete(ctx context.Context, table string, id any) error {
	return nil
}

type fakeResolver struct {
	resolveFn   func(table, column string) (any, error)
	alternateFn func(stepID string, exclude []string) (string, error)
}

func (f *fakeResolver) ResolveColumn(ctx context.Context, table, column string) (any, error) {
	return f.resolveFn(table, column)
}

func (f *fakeResolver) AlternateRecipient(ctx context.Context, stepID string, exclude []string) (string, error) {
	return f.alternateFn(stepID, exclude)
}

func TestWriterDropsUnknownColumn(t *testing.T) {
	attempt := 0
	st := &fakeStore{
		insertFn: func(table string, payload store.Row) (store.Row, error) {
			attempt++
			if _, ok := payload["legacy_notes"]; ok {
				return nil, &store.Error{Class: store.ClassUnknownColumn, Column: "legacy_notes", Err: errors.New("undefined column")}
			}
			return payload, nil
		},
	}
	w := NewWriter(st, &fakeResolver{})

	row, err := w.Insert(context.Background(), "dispatch_jobs", store.Row{
		"status":       "unscheduled",
		"legacy_notes": "gone in new schema",
	})
	require.NoError(t, err)
	require.LessOrEqual(t, attempt, 2)
	require.NotContains(t, row, "legacy_notes")
	require.Equal(t, "unscheduled", row["status"])
}

func TestWriterResolvesNotNullAndUnknownColumn(t *testing.T) {
	st := &fakeStore{
		insertFn: func(table string, payload store.Row) (store.Row, error) {
			if _, ok := payload["legacy_notes"]; ok {
				return nil, &store.Error{Class: store.ClassUnknownColumn, Column: "legacy_notes", Err: errors.New("undefined column")}
			}
			if payload["sequence_id"] == nil {
				return nil, &store.Error{Class: store.ClassNotNull, Column: "sequence_id", Err: errors.New("not null")}
			}
			return payload, nil
		},
	}
	res := &fakeResolver{
		resolveFn: func(table, column string) (any, error) {
			require.Equal(t, "sequence_id", column)
			return "seq-1", nil
		},
	}
	w := NewWriter(st, res)

	row, err := w.Insert(context.Background(), "dispatch_jobs", store.Row{
		"sequence_id":  nil,
		"legacy_notes": "x",
		"status":       "unscheduled",
	})
	require.NoError(t, err)
	require.Equal(t, "seq-1", row["sequence_id"])
	require.NotContains(t, row, "legacy_notes")
}

func TestWriterReassignsOnUniqueCollision(t *testing.T) {
	st := &fakeStore{
		insertFn: func(table string, payload store.Row) (store.Row, error) {
			if payload["recipient_id"] == "r1" {
				return nil, &store.Error{Class: store.ClassUnique, Constraint: "dispatch_jobs_recipient_id_step_id_key", Err: errors.New("duplicate")}
			}
			return payload, nil
		},
	}
	var sawExclude []string
	res := &fakeResolver{
		alternateFn: func(stepID string, exclude []string) (string, error) {
			require.Equal(t, "s1", stepID)
			sawExclude = exclude
			return "r2", nil
		},
	}
	w := NewWriter(st, res)

	row, err := w.Insert(context.Background(), "dispatch_jobs", store.Row{
		"recipient_id": "r1",
		"step_id":      "s1",
	})
	require.NoError(t, err)
	require.Equal(t, "r2", row["recipient_id"])
	require.Equal(t, []string{"r1"}, sawExclude)
}

func TestWriterNoCapacity(t *testing.T) {
	st := &fakeStore{
		insertFn: func(table string, payload store.Row) (store.Row, error) {
			return nil, &store.Error{Class: store.ClassUnique, Err: errors.New("duplicate")}
		},
	}
	res := &fakeResolver{
		alternateFn: func(stepID string, exclude []string) (string, error) {
			return "", ErrNoCapacity
		},
	}
	w := NewWriter(st, res)

	_, err := w.Insert(context.Background(), "dispatch_jobs", store.Row{"recipient_id": "r1", "step_id": "s1"})
	require.ErrorIs(t, err, ErrNoCapacity)
}

func TestWriterShimsLegacyForeignKey(t *testing.T) {
	shimmed := false
	st := &fakeStore{}
	st.insertFn = func(table string, payload store.Row) (store.Row, error) {
		if table == "legacy_jobs" {
			shimmed = true
			require.Equal(t, "j1", payload["id"])
			return payload, nil
		}
		if !shimmed {
			return nil, &store.Error{
				Class:    store.ClassForeignKey,
				RefTable: "legacy_jobs",
				RefValue: "j1",
				Err:      errors.New("fk violation"),
			}
		}
		return payload, nil
	}
	w := NewWriter(st, &fakeResolver{})

	row, err := w.Insert(context.Background(), "payout_ledger", store.Row{"job_id": "j1"})
	require.NoError(t, err)
	require.True(t, shimmed)
	require.Equal(t, "j1", row["job_id"])
}

func TestWriterShimDuplicateIsSuccess(t *testing.T) {
	fkFailures := 0
	st := &fakeStore{}
	st.insertFn = func(table string, payload store.Row) (store.Row, error) {
		if table == "legacy_jobs" {
			return nil, &store.Error{Class: store.ClassUnique, Err: errors.New("duplicate")}
		}
		if fkFailures == 0 {
			fkFailures++
			return nil, &store.Error{Class: store.ClassForeignKey, RefTable: "legacy_jobs", RefValue: "j1", Err: errors.New("fk")}
		}
		return payload, nil
	}
	w := NewWriter(st, &fakeResolver{})

	_, err := w.Insert(context.Background(), "payout_ledger", store.Row{"job_id": "j1"})
	require.NoError(t, err)
}

func TestWriterBudgetExhaustion(t *testing.T) {
	n := 0
	st := &fakeStore{
		insertFn: func(table string, payload store.Row) (store.Row, error) {
			return nil, &store.Error{Class: store.ClassUnique, Err: errors.New("duplicate")}
		},
	}
	res := &fakeResolver{
		alternateFn: func(stepID string, exclude []string) (string, error) {
			n++
			return fmt.Sprintf("r%d", n), nil
		},
	}
	w := NewWriter(st, res)

	_, err := w.Insert(context.Background(), "dispatch_jobs", store.Row{"recipient_id": "r0", "step_id": "s1"})
	require.Error(t, err)

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	require.NotNil(t, werr.Payload)
	require.Len(t, st.inserts, maxAttempts)
}

func TestWriterUnclassifiedErrorPassesThrough(t *testing.T) {
	boom := errors.New("connection reset")
	st := &fakeStore{
		insertFn: func(table string, payload store.Row) (store.Row, error) {
			return nil, boom
		},
	}
	w := NewWriter(st, &fakeResolver{})

	_, err := w.Insert(context.Background(), "dispatch_jobs", store.Row{"status": "queued"})
	require.ErrorIs(t, err, boom)
	require.Len(t, st.inserts, 1)
}
