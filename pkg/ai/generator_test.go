package ai

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

func TestTextOutcomeBlankIsEmpty(t *testing.T) {
	if got := TextOutcome("  \n "); got.Kind != OutcomeEmpty {
		t.Fatalf("blank text kind = %v, want empty", got.Kind)
	}
	if got := TextOutcome("ok"); got.Kind != OutcomeText || got.Text != "ok" {
		t.Fatalf("unexpected outcome: %+v", got)
	}
}

func TestRefusedOutcomeNormalizesReason(t *testing.T) {
	if got := RefusedOutcome(" safety "); got.Reason != "SAFETY" {
		t.Fatalf("reason = %q, want SAFETY", got.Reason)
	}
	if got := RefusedOutcome(""); got.Reason != "OTHER" {
		t.Fatalf("reason = %q, want OTHER", got.Reason)
	}
}

func TestFailedOutcomeAlwaysCarriesError(t *testing.T) {
	if got := FailedOutcome(nil); got.Err == nil {
		t.Fatalf("expected a non-nil error")
	}
	cause := errors.New("boom")
	if got := FailedOutcome(cause); !errors.Is(got.Err, cause) {
		t.Fatalf("cause lost: %v", got.Err)
	}
}

func TestGenerationConfigWithDefaults(t *testing.T) {
	got := GenerationConfig{}.WithDefaults()
	want := DefaultGenerationConfig()
	if got != want {
		t.Fatalf("WithDefaults() = %+v, want %+v", got, want)
	}
	partial := GenerationConfig{Temperature: -1, TopK: -3}.WithDefaults()
	if partial != want {
		t.Fatalf("invalid fields not replaced: %+v", partial)
	}
	custom := GenerationConfig{Temperature: 0.2, TopP: 0.5, TopK: 40, MaxOutputTokens: 800}.WithDefaults()
	if custom.MaxOutputTokens != 800 || custom.TopK != 40 {
		t.Fatalf("explicit values overwritten: %+v", custom)
	}
}

func TestGenerationConfigKeepsZeroTemperature(t *testing.T) {
	got := GenerationConfig{Temperature: 0, TopP: 0.9, MaxOutputTokens: 600}.WithDefaults()
	if got.Temperature != 0 {
		t.Fatalf("temperature = %v, want 0", got.Temperature)
	}
	if got.TopP != 0.9 || got.MaxOutputTokens != 600 {
		t.Fatalf("explicit values overwritten: %+v", got)
	}
}

func TestGeminiOutcomeMapping(t *testing.T) {
	cases := []struct {
		name   string
		resp   *genai.GenerateContentResponse
		kind   OutcomeKind
		text   string
		reason string
	}{
		{name: "nil", resp: nil, kind: OutcomeEmpty},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"},
			},
			kind:   OutcomeRefused,
			reason: "SAFETY",
		},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, kind: OutcomeEmpty},
		{
			name: "text",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content:      &genai.Content{Parts: []*genai.Part{{Text: "Линия "}, {Text: "жизни"}}},
				FinishReason: "STOP",
			}}},
			kind: OutcomeText,
			text: "Линия жизни",
		},
		{
			name: "thoughts skipped",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "thinking", Thought: true}, {Text: "answer"}}},
			}}},
			kind: OutcomeText,
			text: "answer",
		},
		{
			name:   "safety stop without text",
			resp:   &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: "SAFETY"}}},
			kind:   OutcomeRefused,
			reason: "SAFETY",
		},
		{
			name: "safety stop with partial text",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content:      &genai.Content{Parts: []*genai.Part{{Text: "partial"}}},
				FinishReason: "SAFETY",
			}}},
			kind:   OutcomeRefused,
			reason: "SAFETY",
		},
		{
			name: "stop without text",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: "STOP"}}},
			kind: OutcomeEmpty,
		},
		{
			name: "max tokens keeps text",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content:      &genai.Content{Parts: []*genai.Part{{Text: "long"}}},
				FinishReason: "MAX_TOKENS",
			}}},
			kind: OutcomeText,
			text: "long",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := geminiOutcome(tc.resp)
			if got.Kind != tc.kind || got.Text != tc.text || got.Reason != tc.reason {
				t.Fatalf("geminiOutcome() = %+v, want kind=%v text=%q reason=%q", got, tc.kind, tc.text, tc.reason)
			}
		})
	}
}

func TestGeminiContentConfigOmitsUnsetTopK(t *testing.T) {
	cfg := geminiContentConfig(DefaultGenerationConfig())
	if cfg.TopK != nil {
		t.Fatalf("TopK should be unset when 0")
	}
	if cfg.MaxOutputTokens != DefaultMaxOutputTokens {
		t.Fatalf("MaxOutputTokens = %d, want %d", cfg.MaxOutputTokens, DefaultMaxOutputTokens)
	}
	cfg = geminiContentConfig(GenerationConfig{Temperature: 0.7, TopP: 0.9, TopK: 32, MaxOutputTokens: 500})
	if cfg.TopK == nil || *cfg.TopK != 32 {
		t.Fatalf("TopK = %v, want 32", cfg.TopK)
	}
}

func TestNewVisionGeneratorValidatesProvider(t *testing.T) {
	ctx := context.Background()
	if _, err := NewVisionGenerator(ctx, ProviderConfig{Provider: "gemini"}); err == nil {
		t.Fatalf("expected error for missing gemini key")
	}
	if _, err := NewVisionGenerator(ctx, ProviderConfig{Provider: "openai-compat", Model: "m"}); err == nil {
		t.Fatalf("expected error for missing base URL")
	}
	if _, err := NewVisionGenerator(ctx, ProviderConfig{Provider: "ollama"}); err == nil {
		t.Fatalf("expected error for missing ollama model")
	}
	if _, err := NewVisionGenerator(ctx, ProviderConfig{Provider: "nope"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	gen, err := NewVisionGenerator(ctx, ProviderConfig{Provider: "ollama", Model: "llava"})
	if err != nil {
		t.Fatalf("ollama generator: %v", err)
	}
	if gen.Model() != "llava" {
		t.Fatalf("model = %q, want llava", gen.Model())
	}
}
