package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"orderbridge/internal/model"
	"orderbridge/internal/service"
)

type jobCompleter interface {
	Complete(ctx context.Context, jobID string) (*model.DispatchJob, error)
}

type payoutRecorder interface {
	RecordCompletion(ctx context.Context, jobID, recipientID string, amountCents int64) (*model.PayoutEntry, error)
}

type completeRequest struct {
	RecipientID string `json:"recipient_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
}

// CompleteJobHandler marks a dispatch job completed and records its
// payout. Safe to retry: the ledger write is idempotent per
// (job, recipient).
func CompleteJobHandler(jobs jobCompleter, payouts payoutRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		jobID := chi.URLParam(r, "jobID")
		if jobID == "" {
			http.Error(w, "job id required", http.StatusBadRequest)
			return
		}

		var req completeRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
		}

		job, err := jobs.Complete(r.Context(), jobID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrJobNotFound):
				http.Error(w, "job not found", http.StatusNotFound)
			default:
				slog.Error("complete job failed", "job_id", jobID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		recipientID := req.RecipientID
		if recipientID == "" {
			recipientID = job.RecipientID
		}

		entry, err := payouts.RecordCompletion(r.Context(), jobID, recipientID, req.AmountCents)
		if err != nil {
			slog.Error("record payout failed", "job_id", jobID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entry); err != nil {
			slog.Error("encode payout response failed", "error", err)
		}
	}
}
