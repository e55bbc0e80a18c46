// Package authority talks to the remote license authority.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Verdict is the authority's answer for one license key.
type Verdict struct {
	Valid     bool
	ExpiresAt *time.Time
	Raw       map[string]any
}

type Client interface {
	Verify(ctx context.Context, licenseKey string) (*Verdict, error)
}

// HTTPClient posts {product_id, license_key} to the authority endpoint.
// Network failures and 5xx responses are errors; any other answer is a verdict.
type HTTPClient struct {
	url       string
	productID string
	client    *http.Client
}

func NewHTTPClient(url, productID string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		url:       url,
		productID: productID,
		client:    &http.Client{Timeout: timeout},
	}
}

type verifyResponse struct {
	Valid     bool       `json:"valid"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (c *HTTPClient) Verify(ctx context.Context, licenseKey string) (*Verdict, error) {
	body, err := json.Marshal(map[string]string{
		"product_id":  c.productID,
		"license_key": licenseKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("license authority returned status %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		// The authority rejects unknown or revoked keys with a 4xx.
		return &Verdict{Valid: false, Raw: map[string]any{"status": resp.StatusCode}}, nil
	}

	var parsed verifyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	var all map[string]any
	_ = json.Unmarshal(raw, &all)

	return &Verdict{
		Valid:     parsed.Valid,
		ExpiresAt: parsed.ExpiresAt,
		Raw:       all,
	}, nil
}
