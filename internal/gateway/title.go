// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/redpill-chat/redpill-cli/internal/util"
)

// =============================================================================
// TITLE GENERATION
// =============================================================================

// TitleGenerationPrompt is the fixed system instruction for title synthesis.
const TitleGenerationPrompt = `You are a conversation title generator. Your job is to generate a title for the following conversation between the USER and the ASSISTANT. Generate a concise, descriptive title (max 15 tokens) for this conversation. Output ONLY the title, nothing else.`

const (
	// titleFallback is returned whenever generation cannot produce a
	// usable title.
	titleFallback = "New Chat"

	// titleContextMessages is how many leading messages feed the prompt.
	titleContextMessages = 4

	// titleContentClip caps each message excerpt, in runes.
	titleContentClip = 500

	// titleMaxTokens caps the completion length.
	titleMaxTokens = 30

	// titleMaxLength is the longest acceptable generated title, in runes.
	titleMaxLength = 50

	// titleFallbackLength is how much of the first message becomes the
	// no-credentials fallback title, in runes.
	titleFallbackLength = 30
)

// TitleMessage is one conversation turn fed to the title generator.
type TitleMessage struct {
	Role    string
	Content string
}

// TitleGenerator synthesizes short chat titles via the completion API.
// Generation is best-effort: every failure path resolves to a fallback title
// and is never surfaced to the caller.
type TitleGenerator struct {
	client  *Client
	limiter *rate.Limiter
}

// NewTitleGenerator creates a title generator backed by the given client.
// Calls are rate limited so bursts of new chats cannot flood the gateway
// with summarization traffic.
func NewTitleGenerator(client *Client) *TitleGenerator {
	return &TitleGenerator{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
}

// Generate returns a short title for the conversation. Without a model or an
// API key it falls back to the first message's leading characters and makes
// no network call. Any request failure, empty result, or over-long result
// yields the literal fallback title.
func (g *TitleGenerator) Generate(ctx context.Context, messages []TitleMessage, model string) string {
	if len(messages) == 0 {
		return titleFallback
	}
	if model == "" || !g.client.HasAPIKey() {
		return util.TruncateRunesNoEllipsis(messages[0].Content, titleFallbackLength)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return titleFallback
	}

	excerpt := titleExcerpt(messages)
	completion, err := g.client.Complete(ctx, &ChatRequest{
		Model:        model,
		SystemPrompt: TitleGenerationPrompt,
		History: []Turn{{
			Role: RoleUser,
			Parts: []Part{{
				Type: PartText,
				Text: "Generate a title for this conversation:\n\n" + excerpt,
			}},
		}},
		Sampling: Sampling{MaxTokens: intPtr(titleMaxTokens)},
	})
	if err != nil {
		log.Printf("gateway: title generation failed: %v", err)
		return titleFallback
	}

	title := strings.TrimSpace(completion.Text)
	title = strings.TrimSpace(strings.Trim(title, `"'`))
	if title == "" || util.RuneLen(title) > titleMaxLength {
		return titleFallback
	}
	return title
}

// titleExcerpt condenses the leading messages into a role-tagged transcript.
func titleExcerpt(messages []TitleMessage) string {
	n := min(titleContextMessages, len(messages))
	lines := make([]string, 0, n)
	for _, msg := range messages[:n] {
		content := util.TruncateRunesNoEllipsis(msg.Content, titleContentClip)
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(msg.Role), content))
	}
	return strings.Join(lines, "\n\n")
}

func intPtr(v int) *int {
	return &v
}
