package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/askmesh/askmesh/internal/observability"
)

const providerOpenAICompatible = "openai-compatible"

// maxResponseBytes bounds the chat completion body read into memory.
const maxResponseBytes = 4 << 20

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAIClient talks to an OpenAI compatible chat completions endpoint and
// serves both SQL generation and result summaries.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

var (
	_ Generator  = (*OpenAIClient)(nil)
	_ Summarizer = (*OpenAIClient)(nil)
)

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt Prompt) (Result, error) {
	if prompt.Purpose == "" {
		prompt.Purpose = PurposeSQL
	}
	return c.complete(ctx, prompt)
}

func (c *OpenAIClient) Summarize(ctx context.Context, prompt Prompt) (Result, error) {
	if prompt.Purpose == "" {
		prompt.Purpose = PurposeInsight
	}
	return c.complete(ctx, prompt)
}

func (c *OpenAIClient) complete(ctx context.Context, prompt Prompt) (result Result, err error) {
	started := time.Now()
	defer func() {
		observability.ObserveModelCall(prompt.Purpose, err == nil, time.Since(started))
	}()

	body, err := json.Marshal(buildChatPayload(c.model, c.temperature, prompt))
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("empty chat completion choices")
	}

	return Result{
		Raw:      strings.TrimSpace(parsed.Choices[0].Message.Content),
		Provider: providerOpenAICompatible,
		Model:    c.model,
	}, nil
}

func buildChatPayload(model string, temperature float64, prompt Prompt) map[string]any {
	messages := make([]map[string]string, 0, 2)
	if system := strings.TrimSpace(prompt.System); system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt.User})
	return map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": temperature,
	}
}
