package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"orderbridge/internal/model"
	"orderbridge/internal/service"
)

type stubJobs struct {
	job *model.DispatchJob
	err error
}

func (s *stubJobs) Complete(ctx context.Context, jobID string) (*model.DispatchJob, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.job, nil
}

type stubPayouts struct {
	entry        *model.PayoutEntry
	gotJob       string
	gotRecipient string
	gotAmount    int64
}

func (s *stubPayouts) RecordCompletion(ctx context.Context, jobID, recipientID string, amountCents int64) (*model.PayoutEntry, error) {
	s.gotJob = jobID
	s.gotRecipient = recipientID
	s.gotAmount = amountCents
	return s.entry, nil
}

func completionRouter(jobs jobCompleter, payouts payoutRecorder) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/ops/jobs/{jobID}/complete", CompleteJobHandler(jobs, payouts))
	return r
}

func TestCompleteJobRecordsPayout(t *testing.T) {
	jobs := &stubJobs{job: &model.DispatchJob{ID: "job-1", RecipientID: "rec-1", Status: model.JobStatusCompleted}}
	payouts := &stubPayouts{entry: &model.PayoutEntry{ID: "entry-1", JobID: "job-1", AmountCents: 5000}}
	r := completionRouter(jobs, payouts)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ops/jobs/job-1/complete", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "entry-1")
	require.Equal(t, "job-1", payouts.gotJob)
	// Recipient defaults to the one on the completed job.
	require.Equal(t, "rec-1", payouts.gotRecipient)
	require.Equal(t, int64(0), payouts.gotAmount)
}

func TestCompleteJobExplicitBody(t *testing.T) {
	jobs := &stubJobs{job: &model.DispatchJob{ID: "job-1", RecipientID: "rec-1"}}
	payouts := &stubPayouts{entry: &model.PayoutEntry{ID: "entry-1"}}
	r := completionRouter(jobs, payouts)

	body := `{"recipient_id": "rec-override", "amount_cents": 7500}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ops/jobs/job-1/complete", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "rec-override", payouts.gotRecipient)
	require.Equal(t, int64(7500), payouts.gotAmount)
}

func TestCompleteJobNotFound(t *testing.T) {
	r := completionRouter(&stubJobs{err: service.ErrJobNotFound}, &stubPayouts{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ops/jobs/missing/complete", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
