package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxOutputTokens caps the length of a generated reading.
const DefaultMaxOutputTokens = 1024

// GenerationConfig holds sampling parameters fixed per deployment.
type GenerationConfig struct {
	Temperature     float32 `yaml:"temperature"`
	TopP            float32 `yaml:"topP"`
	TopK            int     `yaml:"topK"`
	MaxOutputTokens int     `yaml:"maxOutputTokens"`
}

// DefaultGenerationConfig returns the parameters the bot ships with.
// TopK 0 leaves the candidate pool to the backend.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            0,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
}

// WithDefaults returns DefaultGenerationConfig for a zero value and otherwise
// fills fields that have no valid zero. Temperature 0 is kept as greedy decoding.
func (c GenerationConfig) WithDefaults() GenerationConfig {
	def := DefaultGenerationConfig()
	if c == (GenerationConfig{}) {
		return def
	}
	if c.Temperature < 0 {
		c.Temperature = def.Temperature
	}
	if c.TopP <= 0 {
		c.TopP = def.TopP
	}
	if c.TopK < 0 {
		c.TopK = 0
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = def.MaxOutputTokens
	}
	return c
}

// Metadata renders the parameters for the reading log.
func (c GenerationConfig) Metadata(model string) map[string]string {
	return map[string]string{
		"model":             model,
		"temperature":       strconv.FormatFloat(float64(c.Temperature), 'f', -1, 32),
		"top_p":             strconv.FormatFloat(float64(c.TopP), 'f', -1, 32),
		"top_k":             strconv.Itoa(c.TopK),
		"max_output_tokens": strconv.Itoa(c.MaxOutputTokens),
	}
}

// Image is an encoded picture handed to a generator.
type Image struct {
	Data     []byte
	MIMEType string
}

// OutcomeKind tells how a generation call ended.
type OutcomeKind int

const (
	OutcomeText OutcomeKind = iota
	OutcomeRefused
	OutcomeEmpty
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeText:
		return "text"
	case OutcomeRefused:
		return "refused"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the normalized result of one generation call.
// Refusals are outcomes, not errors; Err is set only for OutcomeFailed.
type Outcome struct {
	Kind   OutcomeKind
	Text   string
	Reason string
	Err    error
}

// TextOutcome wraps generated text; blank text becomes an empty outcome.
func TextOutcome(text string) Outcome {
	if strings.TrimSpace(text) == "" {
		return EmptyOutcome()
	}
	return Outcome{Kind: OutcomeText, Text: text}
}

// RefusedOutcome records a backend refusal with its machine-readable reason.
func RefusedOutcome(reason string) Outcome {
	reason = strings.ToUpper(strings.TrimSpace(reason))
	if reason == "" {
		reason = "OTHER"
	}
	return Outcome{Kind: OutcomeRefused, Reason: reason}
}

func EmptyOutcome() Outcome { return Outcome{Kind: OutcomeEmpty} }

// FailedOutcome records a call that errored.
func FailedOutcome(err error) Outcome {
	if err == nil {
		err = fmt.Errorf("generation failed")
	}
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// VisionGenerator produces commentary for a prompt and an image.
// Gemini, Ollama and OpenAI-compatible backends implement this interface.
type VisionGenerator interface {
	Generate(ctx context.Context, prompt string, img Image) Outcome
	// Model names the backend model for the reading log.
	Model() string
}
