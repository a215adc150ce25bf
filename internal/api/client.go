package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrRateLimited  = errors.New("API rate limit exceeded")
	ErrUnauthorized = errors.New("API request unauthorized (check API key)")
	ErrNotFound     = errors.New("API resource not found")
	ErrServerError  = errors.New("API server error")
)

const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 30 * time.Second
)

// Client performs authenticated REST calls with retry on rate limits and
// server errors.
type Client struct {
	ApiKey     string
	HttpClient *http.Client // Use a shared client
	MaxRetries int
	// BackoffUnit scales the sleep between attempts. Rate limits wait
	// 5 units per attempt, server errors 3.
	BackoffUnit time.Duration
}

// NewClient creates a new API client
func NewClient(apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	log.Debugf("NewClient called (API logging handled by transport if enabled)")

	return &Client{
		ApiKey:      apiKey,
		HttpClient:  httpClient,
		MaxRetries:  DefaultMaxRetries,
		BackoffUnit: time.Second,
	}
}

// RetryableHTTPRequest sends req, retrying on 429 and 5xx. The request body
// is rewound between attempts via req.GetBody. On success the caller owns
// resp.Body.
func (c *Client) RetryableHTTPRequest(req *http.Request) (*http.Response, error) {
	if c.ApiKey != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.ApiKey)
	}

	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("error rewinding request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.HttpClient.Do(req) // Transport will log if enabled
		if err != nil {
			lastErr = fmt.Errorf("http request failed (attempt %d/%d): %w", attempt+1, maxRetries, err)
			if attempt < maxRetries-1 && req.Context().Err() == nil {
				log.WithError(err).Warnf("Retrying (%d/%d)...", attempt+1, maxRetries)
				c.sleep(time.Duration(attempt+1) * 2)
				continue
			}
			return nil, lastErr
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			drain(resp)
			return nil, ErrUnauthorized // Non-retryable auth error
		case resp.StatusCode == http.StatusNotFound:
			drain(resp)
			return nil, ErrNotFound
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w (status code %d)", ErrServerError, resp.StatusCode)
		default:
			// Other client-side errors (4xx) are likely not retryable
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		// Drain and close the body to allow connection reuse for retry
		drain(resp)

		if attempt < maxRetries-1 {
			var units time.Duration
			if resp.StatusCode == http.StatusTooManyRequests {
				// Longer backoff for rate limits
				units = time.Duration(attempt+1) * 5
				log.WithError(lastErr).Warnf("Rate limited. Retrying (%d/%d)...", attempt+1, maxRetries)
			} else { // Server errors (5xx)
				units = time.Duration(attempt+1) * 3
				log.WithError(lastErr).Warnf("Server error. Retrying (%d/%d)...", attempt+1, maxRetries)
			}
			c.sleep(units)
		} else {
			log.WithError(lastErr).Errorf("Request failed after %d attempts with status %d", maxRetries, resp.StatusCode)
		}
	}
	return nil, lastErr
}

func (c *Client) sleep(units time.Duration) {
	unit := c.BackoffUnit
	if unit <= 0 {
		unit = time.Second
	}
	time.Sleep(units * unit)
}

func drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
