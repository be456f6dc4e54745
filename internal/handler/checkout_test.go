package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"orderbridge/internal/fulfillment"
	"orderbridge/internal/service"
)

type stubCheckout struct {
	result *service.CheckoutResult
	err    error
	got    service.CheckoutRequest
}

func (s *stubCheckout) Run(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

const checkoutBody = `{
	"items": [{"name": "rose dozen", "unit_price_cents": 4500, "quantity": 2}],
	"email": "buyer@example.com",
	"name": "Ada Buyer",
	"promo": "SPRING"
}`

func TestCheckoutHandlerCreated(t *testing.T) {
	svc := &stubCheckout{result: &service.CheckoutResult{
		OrderID:    "order-1",
		OrderCode:  "OB-AAAAAAAAAA",
		JobID:      "job-1",
		SessionID:  "sess-1",
		PaymentURL: "https://pay.example.com/sess-1",
		TraceID:    "trace-1",
	}}
	h := CheckoutHandler(svc)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(checkoutBody)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "OB-AAAAAAAAAA")
	require.Contains(t, rec.Body.String(), "https://pay.example.com/sess-1")

	require.Equal(t, "buyer@example.com", svc.got.Contact.Email)
	require.Equal(t, "SPRING", svc.got.Promo)
	require.Len(t, svc.got.Items, 1)
}

func TestCheckoutHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid input", service.ErrInvalidInput, http.StatusBadRequest},
		{"unknown promo", service.ErrUnknownPromo, http.StatusUnprocessableEntity},
		{"no capacity", fulfillment.ErrNoCapacity, http.StatusServiceUnavailable},
		{"processor timeout", service.ErrProcessorTimeout, http.StatusGatewayTimeout},
		{"processor misconfigured", service.ErrProcessorMisconfigured, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := CheckoutHandler(&stubCheckout{err: tc.err})
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(checkoutBody)))
			require.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestCheckoutHandlerBadJSON(t *testing.T) {
	h := CheckoutHandler(&stubCheckout{})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader("{not json")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutHandlerMethodNotAllowed(t *testing.T) {
	h := CheckoutHandler(&stubCheckout{})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/checkout", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
