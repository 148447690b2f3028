// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"encoding/json"
	"log"
	"strings"
)

// doneSentinel is the payload that signals the end of the logical stream.
// It is never parsed as JSON.
const doneSentinel = "[DONE]"

// =============================================================================
// SNAPSHOT TYPES
// =============================================================================

// PartType identifies the kind of a message part.
type PartType string

// Message part types.
const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartToolCall  PartType = "tool-call"
	PartImage     PartType = "image"
	PartFile      PartType = "file"
	PartAudio     PartType = "audio"
	PartSource    PartType = "source"
)

// Part is one typed segment of an assistant or user message.
type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text"`
}

// StatusType classifies the state of a streamed message.
type StatusType string

// Snapshot status types.
const (
	StatusRunning        StatusType = "running"
	StatusComplete       StatusType = "complete"
	StatusIncomplete     StatusType = "incomplete"
	StatusRequiresAction StatusType = "requires-action"
)

// Status is the state of a streamed message plus the reason it got there.
type Status struct {
	Type   StatusType
	Reason string
}

// Terminal reports whether the status ends the stream.
func (s Status) Terminal() bool {
	return s.Type != StatusRunning
}

// MapFinishReason maps a provider finish reason to a message status. It is a
/// pure function: unknown or absent reasons map to complete/unknown.
func MapFinishReason(reason string) Status {
	switch reason {
	case "stop":
		return Status{Type: StatusComplete, Reason: "stop"}
	case "length":
		return Status{Type: StatusIncomplete, Reason: "length"}
	case "content_filter":
		return Status{Type: StatusIncomplete, Reason: "content-filter"}
	case "tool_calls":
		return Status{Type: StatusRequiresAction, Reason: "tool-calls"}
	default:
		return Status{Type: StatusComplete, Reason: "unknown"}
	}
}

// Metadata carries provider identifiers attached to the terminal snapshot.
type Metadata struct {
	MessageID string
	Model     string
}

// Snapshot is one incremental view of the assistant message under
// construction. Parts holds the reasoning part (if any) followed by the text
// part (if any). Err is set when the stream fails mid-flight; no further
// snapshots follow one with Err set.
type Snapshot struct {
	Parts    []Part
	Status   Status
	Metadata *Metadata
	Err      error
}

// Text returns the text part content, or "".
func (s *Snapshot) Text() string {
	for _, p := range s.Parts {
		if p.Type == PartText {
			return p.Text
		}
	}
	return ""
}

// Reasoning returns the reasoning part content, or "".
func (s *Snapshot) Reasoning() string {
	for _, p := range s.Parts {
		if p.Type == PartReasoning {
			return p.Text
		}
	}
	return ""
}

// assistantParts builds the ordered part list for a snapshot: reasoning
// first, then text, empty segments omitted.
func assistantParts(text, reasoning string) []Part {
	var parts []Part
	if reasoning != "" {
		parts = append(parts, Part{Type: PartReasoning, Text: reasoning})
	}
	if text != "" {
		parts = append(parts, Part{Type: PartText, Text: text})
	}
	return parts
}

// =============================================================================
// CHUNK WIRE FORMAT
// =============================================================================

// chunkDelta holds the incremental fields of one streamed choice. Providers
// disagree on field names and value shapes, so every candidate is kept raw
// for the tolerant extractors.
type chunkDelta struct {
	Content    json.RawMessage `json:"content"`
	OutputText json.RawMessage `json:"output_text"`
	Text       json.RawMessage `json:"text"`

	ReasoningContent json.RawMessage `json:"reasoning_content"`
	Reasoning        json.RawMessage `json:"reasoning"`
	Thinking         json.RawMessage `json:"thinking"`
	Decision         json.RawMessage `json:"decision"`
}

type streamChoice struct {
	Delta        chunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type streamChunk struct {
	ID      string         `json:"id"`
	Choices []streamChoice `json:"choices"`
}

// rawPresent reports whether a raw JSON field was present and not null.
func rawPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// firstRaw returns the first candidate field that is present and non-null.
func firstRaw(candidates ...json.RawMessage) json.RawMessage {
	for _, c := range candidates {
		if rawPresent(c) {
			return c
		}
	}
	return nil
}

// extractText pulls a text value out of a raw content field. Accepted shapes:
// a plain string, an object with a "text" field, or an array of either;
// array elements concatenate in order. Anything else yields "".
func extractText(raw json.RawMessage) string {
	if !rawPresent(raw) {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			return s
		}
	case []any:
		var b strings.Builder
		for _, item := range t {
			switch it := item.(type) {
			case string:
				b.WriteString(it)
			case map[string]any:
				if s, ok := it["text"].(string); ok {
					b.WriteString(s)
				}
			}
		}
		return b.String()
	}
	return ""
}

// =============================================================================
// DELTA ACCUMULATOR
// =============================================================================

// Accumulator folds decoded frame payloads into growing text and reasoning
// buffers. Buffers are monotonically non-decreasing for the lifetime of one
// stream; they are never truncated or rewritten. A zero Accumulator is ready
// to use.
type Accumulator struct {
	text         strings.Builder
	reasoning    strings.Builder
	finishReason string
	messageID    string
}

// Apply folds one payload. It reports updated when either buffer grew and
// done when the payload was the [DONE] sentinel. Malformed JSON payloads are
// logged and skipped; they never abort the stream.
func (a *Accumulator) Apply(payload string) (updated, done bool) {
	if payload == "" {
		return false, false
	}
	if payload == doneSentinel {
		return false, true
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		log.Printf("gateway: skipping malformed stream chunk: %v", err)
		return false, false
	}

	if chunk.ID != "" {
		a.messageID = chunk.ID
	}
	if len(chunk.Choices) == 0 {
		return false, false
	}
	choice := chunk.Choices[0]

	if choice.FinishReason != "" {
		a.finishReason = choice.FinishReason
	}

	deltaText := extractText(firstRaw(
		choice.Delta.Content,
		choice.Delta.OutputText,
		choice.Delta.Text,
	))
	deltaReasoning := extractText(firstRaw(
		choice.Delta.ReasoningContent,
		choice.Delta.Reasoning,
		choice.Delta.Thinking,
		choice.Delta.Decision,
	))

	if deltaText == "" && deltaReasoning == "" {
		return false, false
	}
	a.text.WriteString(deltaText)
	a.reasoning.WriteString(deltaReasoning)
	return true, false
}

// Text returns the accumulated text buffer.
func (a *Accumulator) Text() string { return a.text.String() }

// Reasoning returns the accumulated reasoning buffer.
func (a *Accumulator) Reasoning() string { return a.reasoning.String() }

// FinishReason returns the most recent non-empty finish reason, or "".
func (a *Accumulator) FinishReason() string { return a.finishReason }

// MessageID returns the most recent non-empty provider message id, or "".
func (a *Accumulator) MessageID() string { return a.messageID }

// Parts returns the current snapshot part list.
func (a *Accumulator) Parts() []Part {
	return assistantParts(a.text.String(), a.reasoning.String())
}
