package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// OllamaGenerator wraps OllamaClient with a fixed vision model
// using the Ollama /api/chat endpoint.
type OllamaGenerator struct {
	client *OllamaClient
	model  string
	config GenerationConfig
}

// NewOllamaGenerator builds an Ollama-based VisionGenerator.
func NewOllamaGenerator(client *OllamaClient, model string, cfg GenerationConfig) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: strings.TrimSpace(model), config: cfg.WithDefaults()}
}

func (g *OllamaGenerator) Model() string { return g.model }

// Generate implements VisionGenerator using Ollama /api/chat with base64 images.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, img Image) Outcome {
	if g.model == "" {
		return FailedOutcome(fmt.Errorf("ollama generation model required"))
	}
	reqBody := ollamaChatRequest{
		Model: g.model,
		Messages: []ollamaChatMessage{{
			Role:    "user",
			Content: prompt,
			Images:  []string{base64.StdEncoding.EncodeToString(img.Data)},
		}},
		Stream: false,
		Options: ollamaOptions{
			Temperature: g.config.Temperature,
			TopP:        g.config.TopP,
			TopK:        g.config.TopK,
			NumPredict:  g.config.MaxOutputTokens,
		},
	}
	var resp ollamaChatResponse
	if err := g.client.post(ctx, "/api/chat", reqBody, &resp); err != nil {
		return FailedOutcome(fmt.Errorf("ollama generate: %w", err))
	}
	return TextOutcome(resp.Message.Content)
}

// Ollama /api/chat request/response types.

type ollamaChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaOptions       `json:"options"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}
