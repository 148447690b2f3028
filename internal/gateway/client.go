// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Configuration constants for the RedPill gateway API.
const (
	// DefaultBaseURL is the base URL for the RedPill gateway, including the
	// API version prefix.
	DefaultBaseURL = "https://api.redpill.ai/v1"

	// DefaultTimeout is the default timeout for non-streaming API requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response body size for
	// non-streaming responses.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

var (
	// Shared HTTP client with connection pooling for non-streaming requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests. It carries no
	// client-level timeout: lifetime is controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoModel indicates no model identifier was supplied for a request
	// that requires one. Surfaced before any network I/O.
	ErrNoModel = errors.New("no model selected")
)

// RequestError represents a non-2xx response from the gateway.
type RequestError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("gateway request failed (HTTP %d): %s", e.Status, e.Body)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for the RedPill gateway API.
type Client struct {
	apiKey          string
	baseURL         string
	httpClient      *http.Client
	streamingClient *http.Client
}

// New creates a gateway client. An empty apiKey is allowed: requests are then
// sent without an Authorization header, which the gateway accepts for models
// that do not require authentication.
func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:          strings.TrimSpace(apiKey),
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      sharedHTTPClient,
		streamingClient: sharedStreamingClient,
	}
}

// HasAPIKey reports whether the client was configured with an API key.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// BaseURL returns the configured gateway base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// setHeaders applies the common request headers. The Authorization header is
// only sent when an API key is configured.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// postCompletions issues a POST to the chat-completions endpoint and returns
// the raw response. Non-2xx responses are drained and converted to a
// *RequestError; the caller owns resp.Body otherwise.
func (c *Client) postCompletions(ctx context.Context, body []byte, streaming bool) (*http.Response, error) {
	url := c.baseURL + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	client := c.httpClient
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
		client = c.streamingClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		resp.Body.Close()
		return nil, &RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}

	return resp, nil
}

// =============================================================================
// NON-STREAMING COMPLETION
// =============================================================================

// Completion is the result of a non-streaming chat completion.
type Completion struct {
	Text      string
	Reasoning string
	Status    Status
	MessageID string
}

// completionMessage is the assistant message of a single-shot completion.
// Content fields are kept raw so the tolerant extractors can handle the
// string/object/array shapes different providers emit.
type completionMessage struct {
	Content          json.RawMessage `json:"content"`
	OutputText       json.RawMessage `json:"output_text"`
	ReasoningContent json.RawMessage `json:"reasoning_content"`
	Reasoning        json.RawMessage `json:"reasoning"`
}

type completionChoice struct {
	Message      completionMessage `json:"message"`
	Delta        chunkDelta        `json:"delta"`
	OutputText   json.RawMessage   `json:"output_text"`
	Reasoning    json.RawMessage   `json:"reasoning"`
	FinishReason string            `json:"finish_reason"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
}

// parseCompletion decodes a single JSON completion object through the same
// extractors the streaming path uses.
func parseCompletion(data []byte) (*Completion, error) {
	var resp completionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding completion: %w", err)
	}

	result := &Completion{
		MessageID: resp.ID,
		Status:    MapFinishReason("stop"),
	}
	if len(resp.Choices) == 0 {
		return result, nil
	}

	choice := resp.Choices[0]
	result.Text = extractText(firstRaw(
		choice.Message.Content,
		choice.Message.OutputText,
		choice.OutputText,
		choice.Delta.Content,
	))
	result.Reasoning = extractText(firstRaw(
		choice.Message.ReasoningContent,
		choice.Message.Reasoning,
		choice.Reasoning,
		choice.Delta.Reasoning,
	))
	if choice.FinishReason != "" {
		result.Status = MapFinishReason(choice.FinishReason)
	}
	return result, nil
}

// Complete performs a single non-streaming chat completion. Request
// construction and history flattening are identical to ChatStream; only
// stream:false differs.
func (c *Client) Complete(ctx context.Context, req *ChatRequest) (*Completion, error) {
	messages := flattenHistory(req.History, req.SystemPrompt)
	if len(messages) == 0 {
		return &Completion{Status: MapFinishReason("stop")}, nil
	}
	if req.Model == "" {
		return nil, ErrNoModel
	}

	body, err := json.Marshal(buildRequestBody(req, messages, false))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.postCompletions(ctx, body, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading completion: %w", err)
	}
	return parseCompletion(data)
}
