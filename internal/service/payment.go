package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"orderbridge/internal/model"
)

var (
	// ErrProcessorTimeout means the processor did not answer in time;
	// the caller may retry the whole checkout.
	ErrProcessorTimeout = errors.New("payment processor timeout")
	// ErrProcessorMisconfigured means credentials or endpoint are wrong;
	// retrying will not help, an operator has to look.
	ErrProcessorMisconfigured = errors.New("payment processor misconfigured")
)

type PaymentSession struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status,omitempty"`
}

// PaymentClient is the processor surface the pipeline consumes: create a
// checkout session under an idempotency key, or fetch one back.
type PaymentClient interface {
	CreateSession(ctx context.Context, idempotencyKey string, items []model.LineItem, metadata map[string]string) (*PaymentSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*PaymentSession, error)
}

// HTTPPaymentClient talks to the processor over HTTP. Unlike the other
// outbound calls it carries an explicit short timeout and a couple of
// network-level retries: a hung payment call must not hang checkout.
type HTTPPaymentClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	retries int
}

func NewHTTPPaymentClient(baseURL, apiKey string) *HTTPPaymentClient {
	return &HTTPPaymentClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 8 * time.Second},
		retries: 2,
	}
}

type createSessionRequest struct {
	LineItems []model.LineItem  `json:"line_items"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (c *HTTPPaymentClient) CreateSession(ctx context.Context, idempotencyKey string, items []model.LineItem, metadata map[string]string) (*PaymentSession, error) {
	body, err := json.Marshal(createSessionRequest{LineItems: items, Metadata: metadata})
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	url := c.baseURL + "/v1/checkout/sessions"
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrProcessorTimeout, ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Idempotency-Key", idempotencyKey)

		session, retryable, err := c.do(req)
		if err == nil {
			return session, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *HTTPPaymentClient) RetrieveSession(ctx context.Context, sessionID string) (*PaymentSession, error) {
	url := fmt.Sprintf("%s/v1/checkout/sessions/%s", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	session, _, err := c.do(req)
	return session, err
}

// do executes one call and classifies the outcome: network failures and
// 5xx are retryable timeouts, auth and 4xx mean misconfiguration.
func (c *HTTPPaymentClient) do(req *http.Request) (*PaymentSession, bool, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrProcessorTimeout, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var session PaymentSession
		if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
			return nil, false, fmt.Errorf("decode session: %w", err)
		}
		return &session, false, nil
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: status %d", ErrProcessorMisconfigured, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d", ErrProcessorTimeout, resp.StatusCode)
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("unexpected status: %d, body: %s", resp.StatusCode, string(body))
	}
}
