// Package openaicompat implements papyrus.Generator and
// papyrus.EmbeddingProvider for any OpenAI-compatible API.
//
// Works with OpenAI, OpenRouter, Groq, Together, Fireworks, DeepSeek, Mistral,
// Ollama, vLLM, LM Studio, Azure OpenAI, and any other provider that implements
// the OpenAI chat completions and embeddings APIs.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	papyrus "github.com/fzimmer/papyrus"
)

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithName sets the provider name reported by Name (default "openai").
func WithName(name string) GeneratorOption {
	return func(g *Generator) { g.name = name }
}

// WithTemperature sets the sampling temperature for every request.
func WithTemperature(t float64) GeneratorOption {
	return func(g *Generator) { g.temperature = &t }
}

// WithMaxTokens caps the completion length for every request.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) { g.maxTokens = &n }
}

// WithHTTPClient replaces the default http.Client, e.g. to set timeouts.
func WithHTTPClient(c *http.Client) GeneratorOption {
	return func(g *Generator) { g.client = c }
}

// Generator implements papyrus.Generator against an OpenAI-compatible
// chat completions endpoint.
type Generator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string

	temperature *float64
	maxTokens   *int
}

var _ papyrus.Generator = (*Generator)(nil)

// NewGenerator creates an OpenAI-compatible chat generator.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "https://api.groq.com/openai/v1", "http://localhost:11434/v1").
// The /chat/completions path is appended automatically.
func NewGenerator(apiKey, model, baseURL string, opts ...GeneratorOption) *Generator {
	g := &Generator{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the provider name (default "openai", configurable via WithName).
func (g *Generator) Name() string { return g.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message *chatMessage `json:"message,omitempty"`
		Delta   *chatMessage `json:"delta,omitempty"`
	} `json:"choices"`
}

// Generate sends a non-streaming chat request and returns the complete text.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.sendHTTP(ctx, g.buildBody(prompt, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", g.httpErr(resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", g.name, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		return "", fmt.Errorf("%s: response has no choices", g.name)
	}
	return parsed.Choices[0].Message.Content, nil
}

// GenerateStream streams text fragments into ch as they arrive and closes ch
// when the stream ends. A non-nil return reports a failure that may have
// occurred mid-stream, after fragments were already delivered.
func (g *Generator) GenerateStream(ctx context.Context, prompt string, ch chan<- string) error {
	resp, err := g.sendHTTP(ctx, g.buildBody(prompt, true))
	if err != nil {
		close(ch)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return g.httpErr(resp)
	}

	// streamSSE closes ch when done.
	return streamSSE(ctx, resp.Body, ch)
}

func (g *Generator) buildBody(prompt string, stream bool) chatRequest {
	return chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Stream:      stream,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
}

// sendHTTP marshals the request body and sends it to the chat completions endpoint.
func (g *Generator) sendHTTP(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", g.name, err)
	}

	url := g.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", g.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	return g.client.Do(httpReq)
}

func (g *Generator) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s: http %d: %s", g.name, resp.StatusCode, string(body))
}
