package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaGenerator generates completions via a local Ollama server.
type OllamaGenerator struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewOllamaGenerator creates a generator talking to the Ollama server at
// baseURL. Zero values get defaults (localhost:11434, llama3.2, 60s timeout).
func NewOllamaGenerator(baseURL, model string, maxTokens int, temperature float64, timeout time.Duration) *OllamaGenerator {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaGenerator{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Generate sends the prompt to /api/generate and returns the full response.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
	}
	options := map[string]interface{}{}
	if g.maxTokens > 0 {
		options["num_predict"] = g.maxTokens
	}
	if g.temperature > 0 {
		options["temperature"] = g.temperature
	}
	if len(options) > 0 {
		reqBody.Options = options
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("generate failed: %s", out.Error)
	}
	return strings.TrimSpace(out.Response), nil
}

// ModelName returns the configured model.
func (g *OllamaGenerator) ModelName() string {
	return g.model
}

// Close is a no-op for OllamaGenerator.
func (g *OllamaGenerator) Close() error {
	return nil
}
