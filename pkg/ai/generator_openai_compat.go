package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatGenerator talks to any /chat/completions endpoint that accepts
// image_url parts (vLLM, LiteLLM, OpenRouter and the like).
type OpenAICompatGenerator struct {
	endpoint   string
	apiKey     string
	model      string
	config     GenerationConfig
	httpClient *http.Client
}

// NewOpenAICompatGenerator expects baseURL with its version prefix, for
// example http://localhost:8000/v1. Local servers may need no key.
func NewOpenAICompatGenerator(baseURL, apiKey, model string, cfg GenerationConfig) *OpenAICompatGenerator {
	return &OpenAICompatGenerator{
		endpoint:   strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/chat/completions",
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		config:     cfg.WithDefaults(),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *OpenAICompatGenerator) Model() string { return g.model }

// Generate sends the prompt and the image as a data URI in one user message.
func (g *OpenAICompatGenerator) Generate(ctx context.Context, prompt string, img Image) Outcome {
	if g.model == "" {
		return FailedOutcome(errors.New("openai-compat generation model required"))
	}
	payload, err := json.Marshal(g.completionRequest(prompt, img))
	if err != nil {
		return FailedOutcome(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return FailedOutcome(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return FailedOutcome(fmt.Errorf("openai-compat request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return FailedOutcome(completionError(resp))
	}
	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return FailedOutcome(fmt.Errorf("openai-compat decode: %w", err))
	}
	return out.outcome()
}

func (g *OpenAICompatGenerator) completionRequest(prompt string, img Image) completionRequest {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	return completionRequest{
		Model: g.model,
		Messages: []completionMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			},
		}},
		Temperature: g.config.Temperature,
		TopP:        g.config.TopP,
		MaxTokens:   g.config.MaxOutputTokens,
	}
}

func completionError(resp *http.Response) error {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		return fmt.Errorf("openai-compat api error: %s", body.Error.Message)
	}
	return fmt.Errorf("openai-compat api error: %s", resp.Status)
}

type imageURL struct {
	URL string `json:"url"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type completionMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type completionRequest struct {
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	Temperature float32             `json:"temperature"`
	TopP        float32             `json:"top_p,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// outcome reads the first choice; structured refusals win over text.
func (r completionResponse) outcome() Outcome {
	if len(r.Choices) == 0 {
		return EmptyOutcome()
	}
	choice := r.Choices[0]
	switch {
	case choice.FinishReason == "content_filter":
		return RefusedOutcome("CONTENT_FILTER")
	case strings.TrimSpace(choice.Message.Refusal) != "":
		return RefusedOutcome("REFUSAL")
	}
	return TextOutcome(strings.TrimSpace(choice.Message.Content))
}
