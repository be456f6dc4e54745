package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"orderbridge/internal/model"
	"orderbridge/internal/store"
)

type payoutOrderLookup struct {
	order *model.Order
}

func (p *payoutOrderLookup) FindByRef(ctx context.Context, ref string) (*model.Order, error) {
	if p.order == nil || (p.order.Code != ref && p.order.ID != ref) {
		return nil, ErrOrderNotFound
	}
	return p.order, nil
}

func newPayoutFixture(st *memStore, order *model.Order) *PayoutLedger {
	ledger := NewPayoutLedger(st, &payoutOrderLookup{order: order}, testPolicy)
	ledger.now = func() time.Time { return time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC) } // a Wednesday
	return ledger
}

func TestPayPeriodMondayAligned(t *testing.T) {
	// Wednesday 2025-06-04 belongs to the week starting Monday 06-02.
	start, end := payPeriod(time.Date(2025, 6, 4, 15, 30, 0, 0, time.UTC))
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), end)

	// A Monday is its own period start; a Sunday closes the prior week.
	start, _ = payPeriod(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), start)
	start, end = payPeriod(time.Date(2025, 6, 8, 23, 59, 0, 0, time.UTC))
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), end)
}

func TestRecordCompletionExplicitAmount(t *testing.T) {
	st := newMemStore()
	ledger := newPayoutFixture(st, nil)

	entry, err := ledger.RecordCompletion(context.Background(), "job-1", "rec-1", 5000)
	require.NoError(t, err)
	require.Equal(t, int64(5000), entry.AmountCents)
	require.Equal(t, model.PayoutTypeJob, entry.PayoutType)
	require.Equal(t, model.PayoutStatusPending, entry.Status)
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), entry.PeriodStart)
}

func TestRecordCompletionIdempotent(t *testing.T) {
	st := newMemStore()
	ledger := newPayoutFixture(st, nil)

	first, err := ledger.RecordCompletion(context.Background(), "job-1", "rec-1", 5000)
	require.NoError(t, err)

	// Retried completion: same entry back, never two rows, never a
	// decreased amount.
	second, err := ledger.RecordCompletion(context.Background(), "job-1", "rec-1", 100)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(5000), second.AmountCents)

	rows, _ := st.Select(context.Background(), "payout_ledger", nil, "", 0)
	require.Len(t, rows, 1)
}

func TestRecordCompletionHealsZeroAmount(t *testing.T) {
	st := newMemStore()
	ledger := newPayoutFixture(st, nil)

	zero, err := ledger.RecordCompletion(context.Background(), "job-1", "rec-1", -1)
	require.NoError(t, err)
	require.Equal(t, int64(0), zero.AmountCents)
	require.Equal(t, model.PayoutStatusFlagged, zero.Status)

	healed, err := ledger.RecordCompletion(context.Background(), "job-1", "rec-1", 4200)
	require.NoError(t, err)
	require.Equal(t, zero.ID, healed.ID)
	require.Equal(t, int64(4200), healed.AmountCents)
	require.Equal(t, model.PayoutStatusPending, healed.Status)

	rows, _ := st.Select(context.Background(), "payout_ledger", nil, "", 0)
	require.Len(t, rows, 1)
}

func TestRecordCompletionAmountFromJobField(t *testing.T) {
	st := newMemStore()
	st.tables["dispatch_jobs"] = []store.Row{{"id": "job-1", "payout_cents": int64(6100), "order_code": "OB-TEST"}}
	ledger := newPayoutFixture(st, nil)

	entry, err := ledger.RecordCompletion(context.Background(), "job-1", "rec-1", 0)
	require.NoError(t, err)
	require.Equal(t, int64(6100), entry.AmountCents)
}

func TestRecordCompletionAmountFromLineItems(t *testing.T) {
	st := newMemStore()
	st.tables["dispatch_jobs"] = []store.Row{{"id": "job-1", "order_code": "OB-TEST"}}
	st.tables["job_line_items"] = []store.Row{
		{"id": "li-1", "job_id": "job-1", "payout_cents": int64(10000)},
		{"id": "li-2", "job_id": "job-1", "payout_cents": int64(5000)},
	}
	ledger := newPayoutFixture(st, nil)

	entry, err := ledger.RecordCompletion(context.Background(), "job-1", "rec-1", 0)
	require.NoError(t, err)
	require.Equal(t, int64(15000), entry.AmountCents)
	require.Equal(t, model.PayoutTypeJob, entry.PayoutType)

	rows, _ := st.Select(context.Background(), "payout_ledger", nil, "", 0)
	require.Len(t, rows, 1)
}

func TestRecordCompletionAmountFromFrozenSubtotal(t *testing.T) {
	st := newMemStore()
	st.tables["dispatch_jobs"] = []store.Row{{"id": "job-1", "order_code": "OB-TEST"}}
	order := &model.Order{ID: "order-1", Code: "OB-TEST", SubtotalCents: 20000}
	ledger := newPayoutFixture(st, order)

	entry, err := ledger.RecordCompletion(context.Background(), "job-1", "rec-1", 0)
	require.NoError(t, err)
	require.Equal(t, int64(7000), entry.AmountCents)
}

func TestRecordCompletionZeroResolvedIsObservable(t *testing.T) {
	st := newMemStore()
	ledger := newPayoutFixture(st, nil)

	entry, err := ledger.RecordCompletion(context.Background(), "job-unknown", "rec-1", 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), entry.AmountCents)
	require.Equal(t, model.PayoutStatusFlagged, entry.Status)

	rows, _ := st.Select(context.Background(), "payout_ledger", nil, "", 0)
	require.Len(t, rows, 1)
}

func TestRecordCompletionShimsLegacyForeignKey(t *testing.T) {
	st := newMemStore()
	fkFired := false
	st.insertHook = func(table string, payload store.Row) error {
		if table != "payout_ledger" || fkFired {
			return nil
		}
		fkFired = true
		return &store.Error{
			Class:    store.ClassForeignKey,
			RefTable: "legacy_jobs",
			RefValue: "job-1",
			Err:      errors.New("fk violation"),
		}
	}
	ledger := newPayoutFixture(st, nil)

	entry, err := ledger.RecordCompletion(context.Background(), "job-1", "rec-1", 5000)
	require.NoError(t, err)
	require.Equal(t, int64(5000), entry.AmountCents)

	shims, _ := st.Select(context.Background(), "legacy_jobs", nil, "", 0)
	require.Len(t, shims, 1)
	require.Equal(t, "job-1", shims[0]["id"])
}

func TestRecordCompletionConcurrentDuplicate(t *testing.T) {
	st := newMemStore()
	st.insertHook = func(table string, payload store.Row) error {
		if table != "payout_ledger" {
			return nil
		}
		// A concurrent completion landed between our lookup and insert.
		st.insertHook = nil
		st.tables["payout_ledger"] = append(st.tables["payout_ledger"], store.Row{
			"id":           "existing",
			"job_id":       "job-1",
			"recipient_id": "rec-1",
			"payout_type":  model.PayoutTypeJob,
			"amount_cents": int64(5000),
			"status":       model.PayoutStatusPending,
		})
		return &store.Error{Class: store.ClassUnique, Err: errors.New("duplicate key")}
	}
	ledger := newPayoutFixture(st, nil)

	entry, err := ledger.RecordCompletion(context.Background(), "job-1", "rec-1", 5000)
	require.NoError(t, err)
	require.Equal(t, "existing", entry.ID)

	rows, _ := st.Select(context.Background(), "payout_ledger", nil, "", 0)
	require.Len(t, rows, 1)
}
