// Package analysis summarizes case notes with an OpenAI-compatible
// chat-completions endpoint.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/config"
	"github.com/atinyakov/casebook/internal/models"
)

// ErrDisabled is returned by Summarize when no API key is configured.
var ErrDisabled = models.ErrAnalysisDisabled

const systemPrompt = "You assist a detective reviewing case notes. Answer in the language of the notes, in plain text without markdown."

// maxBody caps how much of an upstream response is read.
const maxBody = 1 << 20

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client calls POST {BaseURL}/v1/chat/completions.
type Client struct {
	cfg  config.OpenAI
	http *http.Client
	log  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client for cfg. Without an API key the client is disabled.
func New(cfg config.OpenAI, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 120 * time.Second},
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// Summarize sends prompt as a single user message and returns the first
// choice. Transport failures, non-2xx answers and empty choices wrap
// models.ErrCommunication.
func (c *Client) Summarize(ctx context.Context, prompt string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", c.cfg.Organization)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("analysis upstream error", zap.Error(err))
		return "", fmt.Errorf("%w: %v", models.ErrCommunication, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", models.ErrCommunication, err)
	}
	c.log.Debug("analysis upstream response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Int("bytes", len(body)),
	)

	var out chatResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && out.Error != nil {
			msg = out.Error.Message
		}
		c.log.Warn("analysis upstream non-2xx", zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return "", fmt.Errorf("%w: status %d: %s", models.ErrCommunication, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %v", models.ErrCommunication, decodeErr)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", models.ErrCommunication)
	}

	summary := strings.TrimSpace(out.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", models.ErrCommunication)
	}
	return summary, nil
}
