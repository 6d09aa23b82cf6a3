package analysisapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	PathScore      = "/analyze/score"
	PathBasic      = "/analyze/feedback/basic"
	PathCommentary = "/analyze/feedback/chatgpt"

	defaultCallTimeout = 5 * time.Minute
	maxResponseBytes   = 1 << 20
	maxErrorBodyBytes  = 512
)

// Video is one of the two uploads sent with every call. Open is invoked once
// per attempt so a retried call streams the file again from the start.
type Video struct {
	FileName string
	Open     func(ctx context.Context) (io.ReadCloser, error)
}

// Videos is the pair submitted to each endpoint.
type Videos struct {
	Ideal Video
	User  Video
}

// StatusError reports a non-2xx answer from the analysis API.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s: http status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Client talks to the external analysis server.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	callTimeout   time.Duration
	maxRetries    int
	retryInterval time.Duration
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithCallTimeout bounds each attempt of each call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryInterval sets the first backoff delay.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryInterval = d
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("ANALYSIS_API_URL is required")
	}
	c := &Client{
		baseURL:       base,
		httpClient:    &http.Client{},
		callTimeout:   defaultCallTimeout,
		maxRetries:    2,
		retryInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type scoreResponse struct {
	Score *float64 `json:"score"`
}

type basicResponse struct {
	BasicFeedback []string `json:"basic_feedback"`
}

type commentaryResponse struct {
	ChatGPTFeedback *string `json:"chatgpt_feedback"`
}

// Score posts both videos to the scoring endpoint.
func (c *Client) Score(ctx context.Context, v Videos) (float64, error) {
	var out scoreResponse
	if err := c.call(ctx, PathScore, v, &out); err != nil {
		return 0, err
	}
	if out.Score == nil {
		return 0, fmt.Errorf("%s: response missing score", PathScore)
	}
	return *out.Score, nil
}

// BasicFeedback posts both videos to the basic feedback endpoint.
func (c *Client) BasicFeedback(ctx context.Context, v Videos) ([]string, error) {
	var out basicResponse
	if err := c.call(ctx, PathBasic, v, &out); err != nil {
		return nil, err
	}
	if out.BasicFeedback == nil {
		return nil, fmt.Errorf("%s: response missing basic_feedback", PathBasic)
	}
	return out.BasicFeedback, nil
}

// Commentary posts both videos to the commentary endpoint.
func (c *Client) Commentary(ctx context.Context, v Videos) (string, error) {
	var out commentaryResponse
	if err := c.call(ctx, PathCommentary, v, &out); err != nil {
		return "", err
	}
	if out.ChatGPTFeedback == nil {
		return "", fmt.Errorf("%s: response missing chatgpt_feedback", PathCommentary)
	}
	return *out.ChatGPTFeedback, nil
}

func (c *Client) call(ctx context.Context, path string, v Videos, out any) error {
	return c.withRetry(ctx, path, func(attemptCtx context.Context) error {
		return c.do(attemptCtx, path, v, out)
	})
}

func (c *Client) do(ctx context.Context, path string, v Videos, out any) error {
	body, contentType := multipartBody(ctx, v)
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{Endpoint: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{Endpoint: path, Err: err}
	}
	return nil
}

// DecodeError reports a 2xx answer whose body was not the expected JSON.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: invalid JSON response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
