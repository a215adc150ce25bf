package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"go-image-organizer/internal/models"
)

// DefaultGeminiModels are tried in order when the config names none.
var DefaultGeminiModels = []string{"gemini-2.5-flash", "gemini-2.0-flash"}

// Gemini analyzes images with the Gemini API.
type Gemini struct {
	chain   *Chain
	client  *genai.Client
	timeout time.Duration
}

// NewGemini builds a Gemini analyzer from cfg. transport may be nil, or a
// logging transport when API logging is enabled.
func NewGemini(ctx context.Context, cfg models.AnalyzerConfig, transport http.RoundTripper) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini analyzer needs Analyzer.ApiKey")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if transport != nil {
		clientCfg.HTTPClient = &http.Client{Transport: transport}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	modelList := cfg.Models
	if len(modelList) == 0 {
		modelList = DefaultGeminiModels
	}

	g := &Gemini{client: client}
	if cfg.TimeoutSec > 0 {
		g.timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	g.chain = &Chain{Models: modelList, Call: g.generate}
	return g, nil
}

// Analyze implements Analyzer.
func (g *Gemini) Analyze(ctx context.Context, req Request) (*Result, error) {
	return g.chain.Analyze(ctx, req)
}

func floatPtr(f float32) *float32 {
	return &f
}

func (g *Gemini) generate(ctx context.Context, model string, req Request) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	content := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromBytes(req.Data, mimeType),
			genai.NewPartFromText(Prompt),
		},
	}

	log.WithFields(log.Fields{"model": model, "bytes": len(req.Data)}).Debug("Calling Gemini")
	result, err := g.client.Models.GenerateContent(ctx, model, []*genai.Content{content}, &genai.GenerateContentConfig{
		Temperature:      floatPtr(0.2),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return responseText(result), nil
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	return sb.String()
}
