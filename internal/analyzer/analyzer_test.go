package analyzer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"go-image-organizer/internal/models"
)

type call struct {
	model string
}

func fakeCall(calls *[]call, results map[string]error, text string) ModelFunc {
	return func(_ context.Context, model string, _ Request) (string, error) {
		*calls = append(*calls, call{model: model})
		if err, ok := results[model]; ok && err != nil {
			return "", err
		}
		return text, nil
	}
}

func modelsCalled(calls []call) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.model)
	}
	return out
}

func TestChainCandidates(t *testing.T) {
	c := &Chain{Models: []string{"a", "b", " ", "a"}}
	assert.Equal(t, []string{"a", "b"}, c.Candidates(Request{}))
	assert.Equal(t, []string{"b", "a"}, c.Candidates(Request{Model: "b"}))
	assert.Equal(t, []string{"z", "a", "b"}, c.Candidates(Request{Model: "z"}))
}

func TestChainFallsBackOnlyWhenUnavailable(t *testing.T) {
	text := `{"suggestedName":"red_barn"}`

	t.Run("first model works", func(t *testing.T) {
		var calls []call
		c := &Chain{Models: []string{"a", "b"}, Call: fakeCall(&calls, nil, text)}
		res, err := c.Analyze(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "a", res.Model)
		assert.Equal(t, []string{"a"}, modelsCalled(calls))
	})

	t.Run("unavailable moves on", func(t *testing.T) {
		var calls []call
		results := map[string]error{"a": errors.New("Error 404, Message: models/a is not found, Status: NOT_FOUND")}
		c := &Chain{Models: []string{"a", "b"}, Call: fakeCall(&calls, results, text)}
		res, err := c.Analyze(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "b", res.Model)
		assert.Equal(t, []string{"a", "b"}, modelsCalled(calls))
	})

	t.Run("override tried first", func(t *testing.T) {
		var calls []call
		results := map[string]error{"x": ErrModelUnavailable}
		c := &Chain{Models: []string{"a", "b"}, Call: fakeCall(&calls, results, text)}
		res, err := c.Analyze(context.Background(), Request{Model: "x"})
		require.NoError(t, err)
		assert.Equal(t, "a", res.Model)
		assert.Equal(t, []string{"x", "a"}, modelsCalled(calls))
	})

	t.Run("other errors are terminal", func(t *testing.T) {
		var calls []call
		results := map[string]error{"a": errors.New("Error 400, invalid image")}
		c := &Chain{Models: []string{"a", "b"}, Call: fakeCall(&calls, results, text)}
		_, err := c.Analyze(context.Background(), Request{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid image")
		assert.Equal(t, []string{"a"}, modelsCalled(calls))
	})

	t.Run("all unavailable", func(t *testing.T) {
		var calls []call
		results := map[string]error{"a": ErrModelUnavailable, "b": errors.New("model b unsupported")}
		c := &Chain{Models: []string{"a", "b"}, Call: fakeCall(&calls, results, text)}
		_, err := c.Analyze(context.Background(), Request{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported")
	})

	t.Run("no models", func(t *testing.T) {
		c := &Chain{}
		_, err := c.Analyze(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrNoModels)
	})

	t.Run("empty text", func(t *testing.T) {
		var calls []call
		c := &Chain{Models: []string{"a"}, Call: fakeCall(&calls, nil, "  ")}
		_, err := c.Analyze(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("cancelled context", func(t *testing.T) {
		var calls []call
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := &Chain{Models: []string{"a"}, Call: fakeCall(&calls, nil, text)}
		_, err := c.Analyze(ctx, Request{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, calls)
	})
}

func TestIsModelUnavailable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrModelUnavailable, true},
		{errors.New("Error 404, Message: not found"), true},
		{errors.New("Error 503, Status: UNAVAILABLE"), true},
		{errors.New("mime type not supported by model"), true},
		{errors.New("Error 400, Message: bad request"), false},
		{errors.New("Error 429, quota exceeded"), false},
		{errors.New("request req-404-7f1 failed: deadline exceeded"), false},
		{genai.APIError{Code: 404, Status: "404 Not Found"}, true},
		{fmt.Errorf("generate: %w", genai.APIError{Code: 503}), true},
		{&genai.APIError{Code: 400, Message: "model gemini-x is not supported for this method"}, true},
		{genai.APIError{Code: 400, Message: "invalid argument near byte 404"}, false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsModelUnavailable(tt.err))
		})
	}
}

func TestParseResponse(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		raw := `{"suggestedName":"Golden Gate at Dusk","title":"Bridge","description":"A bridge.",
			"tags":["bridge","sunset"],"colors":"orange","objects":[],"category":"landscape",
			"subcategory":"city","style":"photo","mood":"calm","confidence":0.92,"location":"SF"}`
		res := ParseResponse(raw, "m")
		assert.False(t, res.Degraded)
		assert.Equal(t, "Golden Gate at Dusk", res.SuggestedName)
		assert.Equal(t, []string{"bridge", "sunset"}, res.Tags)
		assert.Equal(t, []string{"orange"}, res.Colors)
		assert.Equal(t, []string{}, res.Objects)
		assert.Equal(t, "landscape", res.Category)
		assert.InDelta(t, 0.92, res.Confidence, 1e-9)
		assert.Equal(t, map[string]any{"location": "SF"}, res.Extra)
		assert.Equal(t, "m", res.Model)
	})

	t.Run("fenced with prose", func(t *testing.T) {
		raw := "Here you go:\n```json\n{\"suggestedName\": \"cat_nap\", \"confidence\": \"80%\"}\n```\nEnjoy"
		res := ParseResponse(raw, "m")
		assert.False(t, res.Degraded)
		assert.Equal(t, "cat_nap", res.SuggestedName)
		assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	})

	t.Run("missing confidence defaults", func(t *testing.T) {
		res := ParseResponse(`{"suggested_name":"x y"}`, "m")
		assert.Equal(t, "x y", res.SuggestedName)
		assert.Equal(t, DefaultConfidence, res.Confidence)
		assert.Equal(t, []string{}, res.Tags)
	})

	t.Run("degraded with name field", func(t *testing.T) {
		res := ParseResponse(`suggestedName: mountain_lake, tags: [broken`, "m")
		assert.True(t, res.Degraded)
		assert.Equal(t, "mountain_lake", res.SuggestedName)
		assert.Equal(t, DefaultConfidence, res.Confidence)
		assert.Equal(t, []string{}, res.Tags)
		assert.Equal(t, []string{}, res.Colors)
	})

	t.Run("degraded free text", func(t *testing.T) {
		res := ParseResponse("A dog running on the beach at noon", "m")
		assert.True(t, res.Degraded)
		assert.Equal(t, "A_dog_running_on", res.SuggestedName)
	})

	t.Run("broken json", func(t *testing.T) {
		res := ParseResponse(`{"suggestedName": "half`, "m")
		assert.True(t, res.Degraded)
		assert.Equal(t, "half", res.SuggestedName)
	})
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "", responseText(nil))
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "{\"a\":"}, {Text: "1}"}}}},
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "ignored"}}}},
		},
	}
	assert.Equal(t, `{"a":1}`, responseText(resp))
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), models.AnalyzerConfig{Provider: "gemini"}, nil)
	assert.Error(t, err)
}
