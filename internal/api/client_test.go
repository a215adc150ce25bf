package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient() *Client {
	c := NewClient("test-key", &http.Client{Timeout: 5 * time.Second})
	c.BackoffUnit = time.Millisecond
	return c
}

// TestNewClient tests the API client creation
func TestNewClient(t *testing.T) {
	client := NewClient("test-api-key", nil)

	if client.ApiKey != "test-api-key" {
		t.Errorf("Expected API key test-api-key, got %s", client.ApiKey)
	}
	if client.HttpClient == nil {
		t.Fatal("Expected HTTP client to be initialized")
	}
	if client.HttpClient.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to be 30s, got %v", client.HttpClient.Timeout)
	}
	if client.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected %d retries, got %d", DefaultMaxRetries, client.MaxRetries)
	}
}

// TestRetryableHTTPRequest_Success tests successful HTTP requests
func TestRetryableHTTPRequest_Success(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "success"}`))
	}))
	defer server.Close()

	req, err := http.NewRequest("GET", server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := newTestClient().RetryableHTTPRequest(req)
	if err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if auth != "Bearer test-key" {
		t.Errorf("Expected bearer auth header, got %q", auth)
	}
}

// TestRetryableHTTPRequest_RateLimit tests rate limit handling and body rewinding
func TestRetryableHTTPRequest_RateLimit(t *testing.T) {
	var attemptCount int32
	var lastBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attemptCount, 1)
		body, _ := io.ReadAll(r.Body)
		lastBody = string(body)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, err := http.NewRequest("POST", server.URL, bytes.NewReader([]byte("payload")))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := newTestClient().RetryableHTTPRequest(req)
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	resp.Body.Close()

	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts, got %d", attemptCount)
	}
	if lastBody != "payload" {
		t.Errorf("Expected body to be resent on retry, got %q", lastBody)
	}
}

// TestRetryableHTTPRequest_MaxRetries tests that max retries are respected
func TestRetryableHTTPRequest_MaxRetries(t *testing.T) {
	var attemptCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attemptCount, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL, nil)
	_, err := newTestClient().RetryableHTTPRequest(req)

	if err != ErrRateLimited {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts (max retries), got %d", attemptCount)
	}
}

// TestRetryableHTTPRequest_NonRetryable tests statuses that fail immediately
func TestRetryableHTTPRequest_NonRetryable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, want: ErrUnauthorized},
		{name: "not found", status: http.StatusNotFound, want: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attemptCount int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attemptCount, 1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			req, _ := http.NewRequest("GET", server.URL, nil)
			_, err := newTestClient().RetryableHTTPRequest(req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if attemptCount != 1 {
				t.Errorf("Expected a single attempt, got %d", attemptCount)
			}
		})
	}
}

// TestRetryableHTTPRequest_BadRequest tests that other 4xx carry the body
func TestRetryableHTTPRequest_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Duplicate"}`))
	}))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL, nil)
	_, err := newTestClient().RetryableHTTPRequest(req)
	if err == nil || !strings.Contains(err.Error(), "Duplicate") {
		t.Errorf("Expected error with response body, got %v", err)
	}
}

// TestRetryableHTTPRequest_ServerError tests server error handling
func TestRetryableHTTPRequest_ServerError(t *testing.T) {
	var attemptCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attemptCount, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL, nil)
	_, err := newTestClient().RetryableHTTPRequest(req)

	if !errors.Is(err, ErrServerError) {
		t.Errorf("Expected ErrServerError, got %v", err)
	}
	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts for server error, got %d", attemptCount)
	}
}
