package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Finish reasons that mean the backend withheld content.
var geminiRefusalReasons = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
	"IMAGE_SAFETY":       true,
	"OTHER":              true,
	"LANGUAGE":           true,
}

// GeminiGenerator calls the Google AI Studio (Gemini) API through the genai SDK.
type GeminiGenerator struct {
	models *genai.Models
	model  string
	config GenerationConfig
}

// NewGeminiGenerator constructs a generator with the provided API key.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, cfg GenerationConfig) (*GeminiGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: 90 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	model = normalizeModel(model)
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiGenerator{models: client.Models, model: model, config: cfg.WithDefaults()}, nil
}

func (g *GeminiGenerator) Model() string { return g.model }

// Generate sends the prompt and inline image bytes in a single user turn.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, img Image) Outcome {
	if len(img.Data) == 0 {
		return FailedOutcome(fmt.Errorf("gemini generate: empty image"))
	}
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(img.Data, img.MIMEType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, geminiContentConfig(g.config))
	if err != nil {
		return FailedOutcome(fmt.Errorf("gemini generate: %w", err))
	}
	return geminiOutcome(resp)
}

func geminiContentConfig(cfg GenerationConfig) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		Temperature:     ptr(cfg.Temperature),
		TopP:            ptr(cfg.TopP),
		MaxOutputTokens: int32(cfg.MaxOutputTokens),
	}
	if cfg.TopK > 0 {
		out.TopK = ptr(float32(cfg.TopK))
	}
	return out
}

// geminiOutcome prefers the structured block/finish reasons over the text.
func geminiOutcome(resp *genai.GenerateContentResponse) Outcome {
	if resp == nil {
		return EmptyOutcome()
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return RefusedOutcome(string(fb.BlockReason))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return EmptyOutcome()
	}
	candidate := resp.Candidates[0]
	var sb strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	text := sb.String()
	reason := strings.ToUpper(string(candidate.FinishReason))
	if strings.TrimSpace(text) == "" {
		if geminiRefusalReasons[reason] {
			return RefusedOutcome(reason)
		}
		return EmptyOutcome()
	}
	if geminiRefusalReasons[reason] && reason != "OTHER" {
		// Partial text cut off by a safety stop is not shown to users.
		return RefusedOutcome(reason)
	}
	return TextOutcome(text)
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "models/")
	return model
}

func ptr[T any](v T) *T { return &v }
