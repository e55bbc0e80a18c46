package authority

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerifyValidKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["license_key"] != "KEY-1" || body["product_id"] != "quillflow" {
			t.Errorf("unexpected body: %#v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"valid":true,"expires_at":"2027-01-01T00:00:00Z","plan":"pro"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "quillflow", time.Second)
	v, err := c.Verify(context.Background(), "KEY-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.Valid || v.ExpiresAt == nil || v.ExpiresAt.Year() != 2027 {
		t.Fatalf("unexpected verdict: %#v", v)
	}
	if v.Raw["plan"] != "pro" {
		t.Fatalf("raw payload not kept: %#v", v.Raw)
	}
}

func TestVerifyRejectedKeyIsAVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	v, err := NewHTTPClient(srv.URL, "quillflow", time.Second).Verify(context.Background(), "KEY-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Valid {
		t.Fatalf("forbidden key reported valid")
	}
}

func TestVerifyServerErrorIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewHTTPClient(srv.URL, "quillflow", time.Second).Verify(context.Background(), "KEY-1"); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestVerifyTransientStatusIsAnError(t *testing.T) {
	for _, status := range []int{http.StatusRequestTimeout, http.StatusTooManyRequests} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		v, err := NewHTTPClient(srv.URL, "quillflow", time.Second).Verify(context.Background(), "KEY-1")
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error, got verdict %#v", status, v)
		}
	}
}
