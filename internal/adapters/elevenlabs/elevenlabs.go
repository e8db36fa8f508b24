package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"franklin/internal/adapters"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io/v1"
	DefaultModel   = "eleven_monolingual_v1"
)

// Uploader stores synthesized audio and returns a URL the video provider can read.
type Uploader interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Config struct {
	APIKey  string
	VoiceID string
	BaseURL string
}

type voiceSettings struct {
	Stability       float32 `json:"stability"`
	SimilarityBoost float32 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type Client struct {
	apiKey   string
	voiceID  string
	baseURL  string
	http     *http.Client
	uploader Uploader
}

func New(cfg Config, uploader Uploader, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = adapters.NewHTTPClient(0)
	}
	return &Client{
		apiKey:   cfg.APIKey,
		voiceID:  cfg.VoiceID,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     httpClient,
		uploader: uploader,
	}
}

// Synthesize renders text to MP3 and uploads it under audio/{jobID}.mp3.
func (c *Client) Synthesize(ctx context.Context, jobID, text string) (string, error) {
	if c.uploader == nil {
		return "", errors.New("no audio storage configured")
	}

	audio, err := c.speech(ctx, text)
	if err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", errors.New("empty audio response")
	}

	url, err := c.uploader.Store(ctx, AudioKey(jobID), audio, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	return url, nil
}

func (c *Client) speech(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: DefaultModel,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.8,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/text-to-speech/" + c.voiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := adapters.CheckResponse(resp); err != nil {
		return nil, err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

func AudioKey(jobID string) string {
	return "audio/" + jobID + ".mp3"
}
