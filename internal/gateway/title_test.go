// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func titleServer(t *testing.T, reply string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Messages  []wireMessage `json:"messages"`
			MaxTokens int           `json:"max_tokens"`
			Stream    bool          `json:"stream"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Stream {
			t.Errorf("title generation must not stream")
		}
		if req.MaxTokens != 30 {
			t.Errorf("max_tokens = %d, want 30", req.MaxTokens)
		}
		if len(req.Messages) == 0 || req.Messages[0].Role != "system" {
			t.Errorf("system prompt missing: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"t1","choices":[{"message":{"content":` + jsonString(reply) + `},"finish_reason":"stop"}]}`))
	}))
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerateTitle(t *testing.T) {
	server := titleServer(t, `"Monads Explained"`)
	defer server.Close()

	gen := NewTitleGenerator(New(server.URL, "key"))
	title := gen.Generate(context.Background(), []TitleMessage{
		{Role: "user", Content: "explain monads"},
		{Role: "assistant", Content: "a monad is..."},
	}, "m")

	// Surrounding quotes are stripped.
	if title != "Monads Explained" {
		t.Errorf("title = %q", title)
	}
}

func TestGenerateTitleEmptyConversation(t *testing.T) {
	gen := NewTitleGenerator(New("http://127.0.0.1:1", "key"))
	if got := gen.Generate(context.Background(), nil, "m"); got != "New Chat" {
		t.Errorf("title = %q, want fallback", got)
	}
}

func TestGenerateTitleNoCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent without credentials")
	}))
	defer server.Close()

	messages := []TitleMessage{{Role: "user", Content: "please summarize the following very long document for me"}}

	// No API key: truncate the first message instead of calling out.
	gen := NewTitleGenerator(New(server.URL, ""))
	got := gen.Generate(context.Background(), messages, "m")
	if got != "please summarize the following" {
		t.Errorf("title = %q", got)
	}
	if len([]rune(got)) != 30 {
		t.Errorf("fallback title length = %d runes, want 30", len([]rune(got)))
	}

	// No model: same local fallback.
	gen = NewTitleGenerator(New(server.URL, "key"))
	if got := gen.Generate(context.Background(), messages, ""); got != "please summarize the following" {
		t.Errorf("title = %q", got)
	}
}

func TestGenerateTitleOverlongResult(t *testing.T) {
	server := titleServer(t, strings.Repeat("x", 80))
	defer server.Close()

	gen := NewTitleGenerator(New(server.URL, "key"))
	if got := gen.Generate(context.Background(), []TitleMessage{{Role: "user", Content: "hi"}}, "m"); got != "New Chat" {
		t.Errorf("title = %q, want fallback for overlong result", got)
	}
}

func TestGenerateTitleRequestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	gen := NewTitleGenerator(New(server.URL, "key"))
	if got := gen.Generate(context.Background(), []TitleMessage{{Role: "user", Content: "hi"}}, "m"); got != "New Chat" {
		t.Errorf("title = %q, want fallback on failure", got)
	}
}

func TestTitleExcerpt(t *testing.T) {
	messages := []TitleMessage{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
		{Role: "assistant", Content: "four"},
		{Role: "user", Content: "five"}, // beyond the context window
	}
	got := titleExcerpt(messages)
	if strings.Contains(got, "five") {
		t.Errorf("excerpt includes message past the context window: %q", got)
	}
	if !strings.HasPrefix(got, "USER: one") {
		t.Errorf("excerpt = %q", got)
	}
	if !strings.Contains(got, "\n\nASSISTANT: two") {
		t.Errorf("excerpt = %q", got)
	}
}
