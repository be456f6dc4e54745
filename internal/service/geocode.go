package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// GeocodeClient resolves a street address to coordinates. Callers treat
// it as best-effort; a nil point with nil error means the address did
// not resolve.
type GeocodeClient struct {
	baseURL string
	client  *http.Client
}

func NewGeocodeClient(baseURL string) *GeocodeClient {
	return &GeocodeClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *GeocodeClient) Geocode(ctx context.Context, address string) (*GeoPoint, error) {
	u := fmt.Sprintf("%s/geocode?q=%s", c.baseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var pt GeoPoint
		if err := json.NewDecoder(resp.Body).Decode(&pt); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &pt, nil
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}
