package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"franklin/internal/adapters"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4"

	maxTokens   = 300
	temperature = 0.7
)

// FranklinPersona is the system prompt every question is answered under.
const FranklinPersona = `You are Benjamin Franklin, speaking from beyond the grave, expressing concern about the modern U.S. national debt.
You should respond in the first person as Franklin, with an eerily wise and historically-informed voice.
Your answers should be factually accurate about the U.S. national debt, incorporating current statistics and historical context.
Your tone should be slightly ominous but educational - you're warning about fiscal responsibility while drawing parallels to your era.
Keep responses between 80-120 words (about 30 seconds when spoken).
Always end with a wise warning or reflection that connects the founding principles to modern fiscal challenges.`

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = adapters.NewHTTPClient(0)
	}
	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) Generate(ctx context.Context, question string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: FranklinPersona},
			{Role: "user", Content: question},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := adapters.CheckResponse(resp); err != nil {
		return "", err
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("response missing choices")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
