// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// streamReadSize is the read buffer size for the streaming body loop. Kept
// small so consumers see snapshots promptly.
const streamReadSize = 4 * 1024

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Role of a conversation turn.
type Role string

// Conversation roles. Only user and assistant turns carry content to the
// gateway; everything else is dropped during flattening.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation history handed to the adapter.
type Turn struct {
	Role  Role
	Parts []Part
}

// Sampling holds optional sampling parameters. Nil fields are omitted from
// the request body entirely rather than sent as zeros.
type Sampling struct {
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// ChatRequest describes one completion request.
type ChatRequest struct {
	History      []Turn
	SystemPrompt string
	Model        string
	Sampling     Sampling
}

// wireMessage is a flattened message as sent on the wire.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest is the OpenAI-compatible request body.
type chatCompletionRequest struct {
	Model            string        `json:"model"`
	Messages         []wireMessage `json:"messages"`
	Stream           bool          `json:"stream"`
	Temperature      *float64      `json:"temperature,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
}

// flattenTurn joins the text parts of a turn with a blank-line separator.
// Non-text parts (images, tool calls, attachments) do not travel on this
// endpoint.
func flattenTurn(parts []Part) string {
	var texts []string
	for _, p := range parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// flattenHistory converts the conversation history into wire messages.
// Turns that are neither user nor assistant, and turns that flatten to the
// empty string, are dropped. A non-blank system prompt is prepended as a
// single system message.
func flattenHistory(history []Turn, systemPrompt string) []wireMessage {
	var messages []wireMessage
	for _, turn := range history {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			continue
		}
		text := flattenTurn(turn.Parts)
		if text == "" {
			continue
		}
		messages = append(messages, wireMessage{Role: string(turn.Role), Content: text})
	}

	if prompt := strings.TrimSpace(systemPrompt); prompt != "" {
		messages = append([]wireMessage{{Role: string(RoleSystem), Content: prompt}}, messages...)
	}
	return messages
}

// buildRequestBody assembles the completion request body. Sampling fields
// are included only when set.
func buildRequestBody(req *ChatRequest, messages []wireMessage, stream bool) *chatCompletionRequest {
	return &chatCompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		Stream:           stream,
		Temperature:      req.Sampling.Temperature,
		MaxTokens:        req.Sampling.MaxTokens,
		TopP:             req.Sampling.TopP,
		PresencePenalty:  req.Sampling.PresencePenalty,
		FrequencyPenalty: req.Sampling.FrequencyPenalty,
	}
}

// =============================================================================
// STREAMING ADAPTER
// =============================================================================

// ChatStream issues a streaming chat completion and returns a channel of
// incremental snapshots. The channel yields a running snapshot on every
// observable update and exactly one terminal snapshot (mapped finish status
// plus provider metadata), then closes.
//
// Failures before any bytes stream are returned synchronously: ErrNoModel
// when req.Model is empty, *RequestError on a non-2xx response. Failures
// mid-stream arrive as a Snapshot with Err set, after which the channel
// closes. Canceling ctx aborts the in-flight request and stops the stream.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (<-chan Snapshot, error) {
	messages := flattenHistory(req.History, req.SystemPrompt)

	// Nothing to send: yield one immediately-complete empty snapshot
	// without touching the network.
	if len(messages) == 0 {
		snapshots := make(chan Snapshot, 1)
		snapshots <- Snapshot{Status: MapFinishReason("stop")}
		close(snapshots)
		return snapshots, nil
	}

	if req.Model == "" {
		return nil, ErrNoModel
	}

	body, err := json.Marshal(buildRequestBody(req, messages, true))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.postCompletions(ctx, body, true)
	if err != nil {
		return nil, err
	}

	snapshots := make(chan Snapshot, 64)

	// Some deployments answer a stream:true request with a plain JSON
	// completion. Detect that by content type and fall back to the
	// single-shot path.
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		go c.consumeSingle(ctx, resp, req.Model, snapshots)
		return snapshots, nil
	}

	go c.consumeStream(ctx, resp, req.Model, snapshots)
	return snapshots, nil
}

// send delivers a snapshot unless the context is canceled. Reports whether
// the snapshot was delivered.
func send(ctx context.Context, snapshots chan<- Snapshot, snap Snapshot) bool {
	select {
	case snapshots <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

// consumeSingle handles the non-streaming fallback: one JSON completion
// object, one terminal snapshot.
func (c *Client) consumeSingle(ctx context.Context, resp *http.Response, model string, snapshots chan<- Snapshot) {
	defer close(snapshots)
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		send(ctx, snapshots, Snapshot{Err: fmt.Errorf("reading completion: %w", err)})
		return
	}
	completion, err := parseCompletion(data)
	if err != nil {
		send(ctx, snapshots, Snapshot{Err: err})
		return
	}

	send(ctx, snapshots, Snapshot{
		Parts:  assistantParts(completion.Text, completion.Reasoning),
		Status: completion.Status,
		Metadata: &Metadata{
			MessageID: completion.MessageID,
			Model:     model,
		},
	})
}

// consumeStream owns the body read loop: it feeds raw chunks to the frame
// parser, folds payloads through the accumulator, and yields snapshots.
func (c *Client) consumeStream(ctx context.Context, resp *http.Response, model string, snapshots chan<- Snapshot) {
	defer close(snapshots)
	defer resp.Body.Close()

	parser := NewFrameParser()
	var acc Accumulator
	buf := make([]byte, streamReadSize)
	doneStreaming := false

	for !doneStreaming {
		select {
		case <-ctx.Done():
			send(ctx, snapshots, Snapshot{Err: ctx.Err()})
			return
		default:
		}

		n, readErr := resp.Body.Read(buf)
		eof := readErr == io.EOF

		for _, payload := range parser.Feed(buf[:n], eof) {
			updated, done := acc.Apply(payload)
			if updated {
				if !send(ctx, snapshots, Snapshot{Parts: acc.Parts(), Status: Status{Type: StatusRunning}}) {
					return
				}
			}
			if done {
				doneStreaming = true
				break
			}
		}

		if readErr != nil {
			if !eof {
				send(ctx, snapshots, Snapshot{Err: fmt.Errorf("reading stream: %w", readErr)})
				return
			}
			break
		}
	}

	finishReason := acc.FinishReason()
	if finishReason == "" {
		finishReason = "stop"
	}
	send(ctx, snapshots, Snapshot{
		Parts:  acc.Parts(),
		Status: MapFinishReason(finishReason),
		Metadata: &Metadata{
			MessageID: acc.MessageID(),
			Model:     model,
		},
	})
}
