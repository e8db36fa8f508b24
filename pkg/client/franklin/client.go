// Package franklin is a client for the question API. Ask submits a question
// and waits for Franklin's answer, following progress over the socket when
// it is reachable and polling status either way.
package franklin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 300
)

var ErrWaitTimeout = errors.New("timed out waiting for the answer")

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("franklin api: %d %s", e.StatusCode, e.Message)
}

type JobError struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Provider string `json:"provider,omitempty"`
	Stage    string `json:"stage,omitempty"`
}

// JobFailedError is returned by Wait when the job ended in failure.
type JobFailedError struct {
	JobID string
	Err   JobError
}

func (e *JobFailedError) Error() string {
	if e.Err.Details != "" {
		return fmt.Sprintf("job %s failed: %s (%s)", e.JobID, e.Err.Message, e.Err.Details)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Err.Message)
}

type Submission struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	StatusURL string `json:"statusUrl"`
	ResultURL string `json:"resultUrl"`
}

type Status struct {
	JobID       string    `json:"jobId"`
	Status      string    `json:"status"`
	Stage       string    `json:"stage"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	Question    string    `json:"question"`
	Error       *JobError `json:"error"`
	ResultReady bool      `json:"resultReady"`
}

// Terminal reports whether the job will not change again.
func (s Status) Terminal() bool {
	return s.Status == "completed" || s.Status == "failed"
}

type Result struct {
	JobID    string `json:"jobId"`
	Answer   string `json:"answer"`
	AudioURL string `json:"audioUrl,omitempty"`
	VideoURL string `json:"videoUrl"`
}

// Update is one progress observation from either push or poll.
type Update struct {
	JobID    string    `json:"jobId"`
	Stage    string    `json:"stage"`
	Message  string    `json:"message"`
	Progress int       `json:"progress"`
	Status   string    `json:"status"`
	Error    *JobError `json:"error,omitempty"`
}

type Client struct {
	baseURL      string
	http         *http.Client
	dialer       *websocket.Dialer
	pollInterval time.Duration
	maxPolls     int
	push         bool
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithPolling sets the poll cadence. The wait ceiling is interval × maxPolls.
func WithPolling(interval time.Duration, maxPolls int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if maxPolls > 0 {
			c.maxPolls = maxPolls
		}
	}
}

// WithoutPush disables the socket and relies on polling alone.
func WithoutPush() Option { return func(c *Client) { c.push = false } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 30 * time.Second},
		dialer:       websocket.DefaultDialer,
		pollInterval: DefaultPollInterval,
		maxPolls:     DefaultMaxPolls,
		push:         true,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Submit(ctx context.Context, question string) (*Submission, error) {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	var out Submission
	if err := c.do(ctx, http.MethodPost, "/api/v1/question", payload, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/question/"+url.PathEscape(jobID)+"/status", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Result(ctx context.Context, jobID string) (*Result, error) {
	var out Result
	if err := c.do(ctx, http.MethodGet, "/api/v1/question/"+url.PathEscape(jobID)+"/result", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask submits question and waits for the answer. Retrying means calling Ask
// again, which creates a new job.
func (c *Client) Ask(ctx context.Context, question string, onUpdate func(Update)) (*Result, error) {
	sub, err := c.Submit(ctx, question)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, sub.JobID, onUpdate)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, want int, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
