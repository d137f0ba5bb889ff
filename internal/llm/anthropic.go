package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicGenerator generates completions via the Anthropic Messages API.
type AnthropicGenerator struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropicGenerator creates a generator using the given API key.
func NewAnthropicGenerator(apiKey, model string, maxTokens int, temperature float64) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &AnthropicGenerator{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

// Generate sends the prompt as a single user message and concatenates the
// text blocks of the response.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if g.temperature > 0 {
		params.Temperature = anthropic.Float(g.temperature)
	}
	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return strings.TrimSpace(b.String()), nil
}

// ModelName returns the configured model.
func (g *AnthropicGenerator) ModelName() string {
	return g.model
}

// Close is a no-op for AnthropicGenerator.
func (g *AnthropicGenerator) Close() error {
	return nil
}
