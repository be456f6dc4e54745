package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"orderbridge/internal/model"
)

type traceSource interface {
	Get(ctx context.Context, traceID string) (*model.Trace, error)
}

func TraceHandler(traces traceSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		traceID := chi.URLParam(r, "traceID")
		if traceID == "" {
			http.Error(w, "trace id required", http.StatusBadRequest)
			return
		}

		trace, err := traces.Get(r.Context(), traceID)
		if err != nil {
			slog.Error("get trace failed", "trace_id", traceID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if len(trace.Events) == 0 && len(trace.Failures) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(trace); err != nil {
			slog.Error("encode trace response failed", "error", err)
		}
	}
}
