package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-image-organizer/internal/api"
	"go-image-organizer/internal/helpers"
	"go-image-organizer/internal/models"
)

// Supabase talks to the Supabase Storage REST API.
type Supabase struct {
	baseURL string
	bucket  string
	key     string
	client  *api.Client
}

// NewSupabase builds a store for cfg.Bucket. transport may be nil, or a
// logging transport when API logging is enabled.
func NewSupabase(cfg models.BlobConfig, transport http.RoundTripper) (*Supabase, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" || cfg.Bucket == "" {
		return nil, errors.New("supabase blob store needs Blob.SupabaseURL, Blob.SupabaseKey and Blob.Bucket")
	}
	if _, err := url.Parse(cfg.SupabaseURL); err != nil {
		return nil, fmt.Errorf("invalid supabase url %q: %w", cfg.SupabaseURL, err)
	}

	timeout := api.DefaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	if transport != nil {
		httpClient.Transport = transport
	}
	client := api.NewClient(cfg.SupabaseKey, httpClient)
	if cfg.MaxRetries > 0 {
		client.MaxRetries = cfg.MaxRetries
	}

	return &Supabase{
		baseURL: strings.TrimRight(cfg.SupabaseURL, "/"),
		bucket:  cfg.Bucket,
		key:     cfg.SupabaseKey,
		client:  client,
	}, nil
}

// SetClient swaps the underlying API client. Tests use it to shorten backoff.
func (s *Supabase) SetClient(c *api.Client) {
	s.client = c
}

func escapeObjectPath(p string) string {
	segments := strings.Split(helpers.SanitizePath(p), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func (s *Supabase) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapeObjectPath(path))
}

func (s *Supabase) do(ctx context.Context, method, endpoint string, body []byte, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, endpoint, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("apikey", s.key)
	return s.client.RetryableHTTPRequest(req)
}

func (s *Supabase) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := s.do(ctx, http.MethodHead, s.objectURL(path), nil, nil)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) || strings.Contains(err.Error(), "status 400") {
			// Storage answers 400 for missing objects on some versions.
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", path, err)
	}
	resp.Body.Close()
	return true, nil
}

func (s *Supabase) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("x-upsert", "true")
	h.Set("Cache-Control", "max-age=3600")
	resp, err := s.do(ctx, http.MethodPost, s.objectURL(path), data, h)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	resp.Body.Close()
	return nil
}

type copyRequest struct {
	BucketID       string `json:"bucketId"`
	SourceKey      string `json:"sourceKey"`
	DestinationKey string `json:"destinationKey"`
}

func (s *Supabase) Copy(ctx context.Context, srcPath, dstPath string) error {
	payload, err := json.Marshal(copyRequest{
		BucketID:       s.bucket,
		SourceKey:      helpers.SanitizePath(srcPath),
		DestinationKey: helpers.SanitizePath(dstPath),
	})
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	resp, err := s.do(ctx, http.MethodPost, s.baseURL+"/storage/v1/object/copy", payload, h)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, srcPath)
		}
		return fmt.Errorf("copying %s to %s: %w", srcPath, dstPath, err)
	}
	resp.Body.Close()
	return nil
}

type deleteRequest struct {
	Prefixes []string `json:"prefixes"`
}

func (s *Supabase) Delete(ctx context.Context, path string) error {
	payload, err := json.Marshal(deleteRequest{Prefixes: []string{helpers.SanitizePath(path)}})
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", s.baseURL, url.PathEscape(s.bucket))
	resp, err := s.do(ctx, http.MethodDelete, endpoint, payload, h)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	resp.Body.Close()
	return nil
}

// URL returns the public URL. It only resolves for public buckets.
func (s *Supabase) URL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapeObjectPath(path))
}
