// Package analyzer asks a vision model to describe an image and propose a
// file name for it.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// Custom analyzer errors
var (
	// ErrModelUnavailable marks a failure that is specific to one model
	// (unknown, retired, overloaded). Only these move a Chain to its next
	// candidate.
	ErrModelUnavailable = errors.New("model unavailable")
	ErrEmptyResponse    = errors.New("analyzer returned no text")
	ErrNoModels         = errors.New("no analyzer models configured")
)

// Request is one image to analyze.
type Request struct {
	Data     []byte
	MimeType string
	// Model, when set, is tried before the configured models.
	Model string
}

// Result is the parsed analyzer output.
type Result struct {
	SuggestedName string
	Title         string
	Description   string
	Tags          []string
	Colors        []string
	Objects       []string
	Category      string
	Subcategory   string
	Style         string
	Mood          string
	Confidence    float64
	// Extra holds fields the response carried that have no typed home.
	Extra map[string]any
	// Model is the model that produced the answer.
	Model string
	// Degraded is set when the response was not valid JSON and only a
	// name could be salvaged from the text.
	Degraded bool
	Raw      string
}

// Analyzer describes images.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// ModelFunc calls a single model and returns its raw text.
type ModelFunc func(ctx context.Context, model string, req Request) (string, error)

// Chain tries candidate models in order. A per-call Request.Model goes
// first; the next candidate is only used when the current one fails with
// an unavailable-class error. Any other error ends the chain.
type Chain struct {
	Models []string
	Call   ModelFunc
}

// Candidates returns the models to try for req, override first, without
// duplicates.
func (c *Chain) Candidates(req Request) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(m string) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		out = append(out, m)
	}
	add(req.Model)
	for _, m := range c.Models {
		add(m)
	}
	return out
}

// Analyze implements Analyzer.
func (c *Chain) Analyze(ctx context.Context, req Request) (*Result, error) {
	candidates := c.Candidates(req)
	if len(candidates) == 0 {
		return nil, ErrNoModels
	}

	var lastErr error
	for i, model := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := c.Call(ctx, model, req)
		if err == nil {
			if strings.TrimSpace(raw) == "" {
				return nil, fmt.Errorf("%w (model %s)", ErrEmptyResponse, model)
			}
			return ParseResponse(raw, model), nil
		}

		if !IsModelUnavailable(err) {
			return nil, fmt.Errorf("model %s: %w", model, err)
		}
		lastErr = err
		log.WithError(err).WithField("model", model).Warnf("Model unavailable, trying next candidate (%d/%d)", i+1, len(candidates))
	}
	return nil, fmt.Errorf("all %d candidate models unavailable, last error: %w", len(candidates), lastErr)
}

// IsModelUnavailable reports whether err means "this model cannot serve
// the request" rather than "this request failed".
func IsModelUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrModelUnavailable) {
		return true
	}
	if apiErr, ok := asAPIError(err); ok {
		switch apiErr.Code {
		case http.StatusNotFound, http.StatusServiceUnavailable:
			return true
		}
		return hasUnavailableMarker(apiErr.Status + " " + apiErr.Message)
	}
	return hasUnavailableMarker(err.Error())
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func hasUnavailableMarker(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"not found", "not_found", "unavailable", "unsupported", "not supported"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
