// Package titles shortens product titles through an OpenAI-compatible chat
// completions endpoint. Rewriting is best effort: every failure yields the
// original title.
package titles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maltedev/priceguess-ingest/internal/config"
)

const (
	systemPrompt = "You are a helpful assistant that shortens product titles while preserving all key attributes like brand, color, size, material, and important features. Keep the title concise but informative. Return only the rewritten title, nothing else."
	userPrompt   = "Shorten this product title while keeping all important details: %q"
)

type Rewriter interface {
	Rewrite(ctx context.Context, title string) string
}

// Noop returns titles unchanged. It is used when no API key is configured.
type Noop struct{}

func (Noop) Rewrite(_ context.Context, title string) string {
	return title
}

// New returns an OpenAI rewriter, or Noop when cfg has no API key.
func New(cfg config.TitlesConfig, logger *slog.Logger) Rewriter {
	if cfg.APIKey == "" {
		return Noop{}
	}
	return NewOpenAI(cfg, &http.Client{Timeout: cfg.Timeout}, logger)
}

// OpenAI implements Rewriter using Chat Completions.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

func NewOpenAI(cfg config.TitlesConfig, client *http.Client, logger *slog.Logger) *OpenAI {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-3.5-turbo"
	}

	return &OpenAI{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		http:    client,
		logger:  logger.With("component", "titles"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAI) Rewrite(ctx context.Context, title string) string {
	if strings.TrimSpace(title) == "" {
		return title
	}

	rewritten, err := c.complete(ctx, title)
	if err != nil {
		c.logger.Warn("failed to rewrite title", "title", title, "error", err)
		return title
	}
	return rewritten
}

func (c *OpenAI) complete(ctx context.Context, title string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPrompt, title)},
		},
		MaxTokens:   100,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat completion failed with status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	content := strings.Trim(strings.TrimSpace(parsed.Choices[0].Message.Content), `"`)
	if content == "" {
		return "", errors.New("chat completion returned an empty title")
	}
	return content, nil
}
