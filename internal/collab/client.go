package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scenecraft/internal/logging"

	"google.golang.org/genai"
)

// LLMClient is the minimal completion interface the Gemini collaborators
// are built on. Kept narrow so tests can substitute a canned client.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults. A single flash-lite model is
// enough for both classification and planning.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		Model:   "gemini-2.5-flash-lite",
		Timeout: 60 * time.Second,
	}
}

// GeminiClient implements LLMClient on the Google GenAI API.
type GeminiClient struct {
	model   string
	timeout time.Duration

	mu     sync.Mutex
	client *genai.Client
	apiKey string
}

// NewGeminiClient creates a Gemini client. The underlying API client is
// created lazily on first use so construction never needs a context.
func NewGeminiClient(config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := config.Model
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiClient{model: model, timeout: timeout, apiKey: config.APIKey}, nil
}

func (c *GeminiClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	c.client = client
	return client, nil
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system instruction. Responses are
// requested as JSON since every collaborator parses structured output.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	timer := logging.StartTimer(logging.CategoryAPI, "GenerateContent")
	resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), cfg)
	timer.StopWithThreshold(10 * time.Second)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}

	logging.APIDebug("gemini response: %d bytes", len(text))
	return text, nil
}
