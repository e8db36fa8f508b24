package did

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"franklin/internal/adapters"
	"franklin/internal/domain/usecase"
)

const DefaultBaseURL = "https://api.d-id.com"

type Config struct {
	// APIKey is sent as-is after "Basic ", as D-ID issues it pre-encoded.
	APIKey  string
	BaseURL string
}

type script struct {
	Type     string `json:"type"`
	AudioURL string `json:"audio_url,omitempty"`
	Input    string `json:"input,omitempty"`
}

type talkRequest struct {
	Script    script `json:"script"`
	SourceURL string `json:"source_url"`
}

type talkResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url"`
	Error     *struct {
		Kind        string `json:"kind"`
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = adapters.NewHTTPClient(0)
	}
	return &Client{apiKey: cfg.APIKey, baseURL: strings.TrimRight(cfg.BaseURL, "/"), http: httpClient}
}

func (c *Client) Submit(ctx context.Context, req usecase.VideoRequest) (string, error) {
	body := talkRequest{SourceURL: req.SourceImageURL}
	switch {
	case req.AudioURL != "":
		body.Script = script{Type: "audio", AudioURL: req.AudioURL}
	case req.Text != "":
		body.Script = script{Type: "text", Input: req.Text}
	default:
		return "", errors.New("video request has neither audio nor text")
	}

	var out talkResponse
	if err := c.do(ctx, http.MethodPost, "/talks", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("talk created without an id")
	}
	return out.ID, nil
}

func (c *Client) Status(ctx context.Context, handle string) (usecase.VideoStatus, error) {
	var out talkResponse
	if err := c.do(ctx, http.MethodGet, "/talks/"+url.PathEscape(handle), nil, &out); err != nil {
		return usecase.VideoStatus{}, err
	}

	switch out.Status {
	case "done":
		return usecase.VideoStatus{State: usecase.VideoDone, ResultURL: out.ResultURL}, nil
	case "error", "rejected", "failed":
		reason := "talk " + out.Status
		if out.Error != nil && out.Error.Description != "" {
			reason = out.Error.Description
		}
		return usecase.VideoStatus{State: usecase.VideoFailed, Reason: reason}, nil
	default:
		// created, started
		return usecase.VideoStatus{State: usecase.VideoPending}, nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := adapters.CheckResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
