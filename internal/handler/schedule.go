package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"orderbridge/internal/service"
)

type scheduleService interface {
	Schedule(ctx context.Context, orderRef, date, window string) (*service.ScheduleResult, error)
}

type scheduleRequest struct {
	Order  string `json:"order"`
	Date   string `json:"date"`
	Window string `json:"window"`
}

func ScheduleHandler(svc scheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req scheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Order == "" || req.Date == "" || req.Window == "" {
			http.Error(w, "order, date and window required", http.StatusBadRequest)
			return
		}

		result, err := svc.Schedule(r.Context(), req.Order, req.Date, req.Window)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidInput):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, service.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			default:
				slog.Error("schedule failed", "order", req.Order, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			slog.Error("encode schedule response failed", "error", err)
		}
	}
}
