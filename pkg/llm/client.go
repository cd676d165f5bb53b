// Package llm provides the OpenAI-compatible chat-completions client used
// for both the Primary and Shadow model endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shieldllm/ileguard/pkg/model"
)

// EmptyAPIKey is the placeholder credential accepted by open inference
// endpoints (vLLM-style).
const EmptyAPIKey = "EMPTY"

// sharedTransport pools connections across all model clients. Both the
// Primary and Shadow clients reuse TCP connections through it.
var sharedTransport = &http.Transport{
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
}

// UpstreamError reports a failed or contentless model call. Network
// failures wrap the transport error; HTTP failures carry status and body.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: empty completion", e.Service)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// Client talks to one OpenAI-compatible /chat/completions endpoint.
// Safe for concurrent Complete calls.
type Client struct {
	service    string
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Logger
}

// NewClient builds a model client. service names the role (primary/shadow)
// for error messages and logs; baseURL is the API root without the
// /chat/completions suffix.
func NewClient(service, baseURL, modelName, apiKey string, timeout time.Duration, log *logrus.Logger) *Client {
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: sharedTransport,
		},
		log: log,
	}
}

type chatRequest struct {
	Model       string              `json:"model"`
	Messages    []model.ChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion with temperature 0 and returns the
// trimmed generated text. Any transport error, non-2xx status, or missing
// content surfaces as an UpstreamError.
func (c *Client) Complete(ctx context.Context, systemPrompt string, messages []model.ChatMessage, maxTokens int) (string, error) {
	msgs := make([]model.ChatMessage, 0, len(messages)+1)
	msgs = append(msgs, model.ChatMessage{Role: "system", Content: systemPrompt})
	msgs = append(msgs, messages...)

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.WithFields(logrus.Fields{
		"service":  c.service,
		"model":    c.model,
		"base_url": c.baseURL,
	}).Debug("llm call")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Service: c.service, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Bounded read keeps a hostile endpoint from ballooning memory.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &UpstreamError{Service: c.service, StatusCode: resp.StatusCode, Body: string(b)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &UpstreamError{Service: c.service, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &UpstreamError{Service: c.service}
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", &UpstreamError{Service: c.service}
	}
	return content, nil
}
