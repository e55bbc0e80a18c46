package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookPublisher hands the post to an external host that answers with the permalink.
type WebhookPublisher struct {
	url    string
	token  string
	client *http.Client
	now    func() time.Time
}

func NewWebhookPublisher(url, token string, timeout time.Duration) *WebhookPublisher {
	return &WebhookPublisher{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (p *WebhookPublisher) Name() string { return "webhook" }

type webhookResponse struct {
	Permalink string `json:"permalink"`
	ID        string `json:"id"`
}

func (p *WebhookPublisher) Publish(ctx context.Context, content Content) (*Result, error) {
	body, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("publish host returned status %d: %s", resp.StatusCode, string(msg))
	}

	var parsed webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Permalink == "" {
		return nil, errors.New("publish host returned no permalink")
	}

	return &Result{
		Permalink:   parsed.Permalink,
		ExternalID:  parsed.ID,
		PublishedAt: p.now(),
	}, nil
}
