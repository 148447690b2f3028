// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userTurn(text string) Turn {
	return Turn{Role: RoleUser, Parts: []Part{{Type: PartText, Text: text}}}
}

// sseHandler serves a fixed SSE body for every request.
func sseHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func collect(t *testing.T, snapshots <-chan Snapshot) []Snapshot {
	t.Helper()
	var out []Snapshot
	for snap := range snapshots {
		out = append(out, snap)
	}
	return out
}

func TestChatStreamEndToEnd(t *testing.T) {
	body := "data: {\"id\":\"x\",\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"id\":\"x\",\"choices\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n" +
		"data: [DONE]\n\n"
	server := httptest.NewServer(sseHandler(body))
	defer server.Close()

	client := New(server.URL, "test-key")
	snapshots, err := client.ChatStream(context.Background(), &ChatRequest{
		Model:   "phala/llama-3.3-70b-instruct",
		History: []Turn{userTurn("hi")},
	})
	require.NoError(t, err)

	got := collect(t, snapshots)
	require.Len(t, got, 3)

	assert.Equal(t, StatusRunning, got[0].Status.Type)
	assert.Equal(t, "Hel", got[0].Text())
	assert.Equal(t, StatusRunning, got[1].Status.Type)
	assert.Equal(t, "Hello", got[1].Text())

	terminal := got[2]
	assert.Equal(t, Status{Type: StatusComplete, Reason: "stop"}, terminal.Status)
	assert.Equal(t, "Hello", terminal.Text())
	require.NotNil(t, terminal.Metadata)
	assert.Equal(t, "x", terminal.Metadata.MessageID)
	assert.Equal(t, "phala/llama-3.3-70b-instruct", terminal.Metadata.Model)
}

func TestChatStreamEmptyHistorySkipsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent for empty history")
	}))
	defer server.Close()

	client := New(server.URL, "test-key")
	snapshots, err := client.ChatStream(context.Background(), &ChatRequest{
		Model: "m",
		History: []Turn{
			{Role: RoleUser, Parts: []Part{{Type: PartImage}}}, // flattens to nothing
		},
	})
	require.NoError(t, err)

	got := collect(t, snapshots)
	require.Len(t, got, 1)
	assert.Equal(t, Status{Type: StatusComplete, Reason: "stop"}, got[0].Status)
	assert.Empty(t, got[0].Parts)
}

func TestChatStreamMissingModel(t *testing.T) {
	client := New("http://127.0.0.1:1", "test-key")
	_, err := client.ChatStream(context.Background(), &ChatRequest{
		History: []Turn{userTurn("hi")},
	})
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestChatStreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "test-key")
	_, err := client.ChatStream(context.Background(), &ChatRequest{
		Model:   "m",
		History: []Turn{userTurn("hi")},
	})

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr), "err = %v", err)
	assert.Equal(t, http.StatusNotFound, reqErr.Status)
	assert.Contains(t, reqErr.Body, "model not found")
}

func TestChatStreamNonStreamingFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","choices":[{"message":{"content":"whole answer"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "test-key")
	snapshots, err := client.ChatStream(context.Background(), &ChatRequest{
		Model:   "m",
		History: []Turn{userTurn("hi")},
	})
	require.NoError(t, err)

	got := collect(t, snapshots)
	require.Len(t, got, 1)
	assert.Equal(t, "whole answer", got[0].Text())
	assert.Equal(t, Status{Type: StatusComplete, Reason: "stop"}, got[0].Status)
	require.NotNil(t, got[0].Metadata)
	assert.Equal(t, "cmpl-1", got[0].Metadata.MessageID)
}

func TestChatStreamReasoningParts(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"hmm\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"42\"}}]}\n\n" +
		"data: [DONE]\n\n"
	server := httptest.NewServer(sseHandler(body))
	defer server.Close()

	client := New(server.URL, "")
	snapshots, err := client.ChatStream(context.Background(), &ChatRequest{
		Model:   "m",
		History: []Turn{userTurn("hi")},
	})
	require.NoError(t, err)

	got := collect(t, snapshots)
	require.Len(t, got, 3)

	terminal := got[len(got)-1]
	require.Len(t, terminal.Parts, 2)
	assert.Equal(t, PartReasoning, terminal.Parts[0].Type)
	assert.Equal(t, "hmm", terminal.Parts[0].Text)
	assert.Equal(t, PartText, terminal.Parts[1].Type)
	assert.Equal(t, "42", terminal.Parts[1].Text)
}

func TestChatStreamMalformedChunkSkipped(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n" +
		"data: {broken json\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n\n" +
		"data: [DONE]\n\n"
	server := httptest.NewServer(sseHandler(body))
	defer server.Close()

	client := New(server.URL, "")
	snapshots, err := client.ChatStream(context.Background(), &ChatRequest{
		Model:   "m",
		History: []Turn{userTurn("hi")},
	})
	require.NoError(t, err)

	got := collect(t, snapshots)
	terminal := got[len(got)-1]
	assert.Equal(t, "ok!", terminal.Text())
	assert.Nil(t, terminal.Err)
}

func TestChatStreamTerminalFallbackReason(t *testing.T) {
	// Stream ends without a finish_reason: terminal maps the stop fallback.
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n" +
		"data: [DONE]\n\n"
	server := httptest.NewServer(sseHandler(body))
	defer server.Close()

	client := New(server.URL, "")
	snapshots, err := client.ChatStream(context.Background(), &ChatRequest{
		Model:   "m",
		History: []Turn{userTurn("hi")},
	})
	require.NoError(t, err)

	got := collect(t, snapshots)
	terminal := got[len(got)-1]
	assert.Equal(t, Status{Type: StatusComplete, Reason: "stop"}, terminal.Status)
}

func TestChatStreamEOFWithoutDone(t *testing.T) {
	// Connection closes without the [DONE] sentinel: the accumulated text
	// still terminates cleanly.
	body := "data: {\"id\":\"y\",\"choices\":[{\"delta\":{\"content\":\"cut\"}}]}\n\n"
	server := httptest.NewServer(sseHandler(body))
	defer server.Close()

	client := New(server.URL, "")
	snapshots, err := client.ChatStream(context.Background(), &ChatRequest{
		Model:   "m",
		History: []Turn{userTurn("hi")},
	})
	require.NoError(t, err)

	got := collect(t, snapshots)
	terminal := got[len(got)-1]
	assert.Equal(t, "cut", terminal.Text())
	assert.True(t, terminal.Status.Terminal())
	require.NotNil(t, terminal.Metadata)
	assert.Equal(t, "y", terminal.Metadata.MessageID)
}

func TestFlattenHistory(t *testing.T) {
	history := []Turn{
		{Role: RoleUser, Parts: []Part{
			{Type: PartText, Text: "first"},
			{Type: PartImage, Text: "ignored"},
			{Type: PartText, Text: "second"},
		}},
		{Role: RoleSystem, Parts: []Part{{Type: PartText, Text: "dropped"}}},
		{Role: RoleAssistant, Parts: []Part{{Type: PartReasoning, Text: "only reasoning"}}},
		{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: "reply"}}},
	}

	messages := flattenHistory(history, "  be helpful  ")
	require.Len(t, messages, 3)
	assert.Equal(t, wireMessage{Role: "system", Content: "be helpful"}, messages[0])
	assert.Equal(t, wireMessage{Role: "user", Content: "first\n\nsecond"}, messages[1])
	assert.Equal(t, wireMessage{Role: "assistant", Content: "reply"}, messages[2])
}
