package image

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StockProvider looks photos up on Unsplash or Pexels.
type StockProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewUnsplashProvider(baseURL, apiKey string, timeout time.Duration) *StockProvider {
	return &StockProvider{name: "unsplash", baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

func NewPexelsProvider(baseURL, apiKey string, timeout time.Duration) *StockProvider {
	return &StockProvider{name: "pexels", baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

type unsplashResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"results"`
}

type pexelsResponse struct {
	Photos []struct {
		Src struct {
			Large2x string `json:"large2x"`
			Large   string `json:"large"`
		} `json:"src"`
		Photographer string `json:"photographer"`
	} `json:"photos"`
}

func (p *StockProvider) Find(ctx context.Context, query string) (*Image, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", "1")
	params.Set("orientation", "landscape")

	var endpoint, auth string
	if p.name == "unsplash" {
		endpoint = p.baseURL + "/search/photos?" + params.Encode()
		auth = "Client-ID " + p.apiKey
	} else {
		endpoint = p.baseURL + "/search?" + params.Encode()
		auth = p.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", auth)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s API returned status %d: %s", p.name, resp.StatusCode, string(body))
	}

	if p.name == "unsplash" {
		var parsed unsplashResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(parsed.Results) == 0 {
			return nil, ErrNoResult
		}
		r := parsed.Results[0]
		return &Image{URL: r.URLs.Regular, Source: p.name, Attribution: r.User.Name}, nil
	}

	var parsed pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Photos) == 0 {
		return nil, ErrNoResult
	}
	photo := parsed.Photos[0]
	link := photo.Src.Large2x
	if link == "" {
		link = photo.Src.Large
	}
	return &Image{URL: link, Source: p.name, Attribution: photo.Photographer}, nil
}
