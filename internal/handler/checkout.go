package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"orderbridge/internal/fulfillment"
	"orderbridge/internal/model"
	"orderbridge/internal/service"
)

type checkoutService interface {
	Run(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
}

type checkoutRequest struct {
	Items          []model.LineItem `json:"items"`
	Email          string           `json:"email"`
	Name           string           `json:"name"`
	Phone          string           `json:"phone,omitempty"`
	Address        string           `json:"address,omitempty"`
	Promo          string           `json:"promo,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

func CheckoutHandler(svc checkoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		result, err := svc.Run(r.Context(), service.CheckoutRequest{
			Items: req.Items,
			Contact: model.Contact{
				Email:   req.Email,
				Name:    req.Name,
				Phone:   req.Phone,
				Address: req.Address,
			},
			Promo:          req.Promo,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidInput):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, service.ErrUnknownPromo):
				http.Error(w, "unknown promotion code", http.StatusUnprocessableEntity)
			case errors.Is(err, fulfillment.ErrNoCapacity):
				http.Error(w, "no fulfillment capacity", http.StatusServiceUnavailable)
			case errors.Is(err, service.ErrProcessorTimeout):
				http.Error(w, "payment processor timeout, retry later", http.StatusGatewayTimeout)
			case errors.Is(err, service.ErrProcessorMisconfigured):
				http.Error(w, "payment processor unavailable", http.StatusBadGateway)
			default:
				slog.Error("checkout failed", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			slog.Error("encode checkout response failed", "error", err)
		}
	}
}
