// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// DATA MODEL
// =============================================================================

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentPart is one typed fragment of a message body. Text and reasoning
// parts carry Text; media parts carry a name and MIME type instead.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Attachment is a file the user attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

// ChatMessage is one turn of a conversation. Content is the flattened text;
// ContentParts, when present, preserves the structured breakdown (reasoning
// next to answer text, media references).
type ChatMessage struct {
	ID           string        `json:"id"`
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	ContentParts []ContentPart `json:"content_parts,omitempty"`
	Attachments  []Attachment  `json:"attachments,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Chat is a conversation as the application works with it.
type Chat struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt string        `json:"updated_at"` // RFC 3339
}

// StoredChat is a Chat plus the bookkeeping fields the store maintains.
// LastAccessedAt and LoadedAt are Unix milliseconds.
type StoredChat struct {
	Chat
	LastAccessedAt int64 `json:"last_accessed_at"`
	LoadedAt       int64 `json:"loaded_at,omitempty"`
	Version        int   `json:"version"`
}

// NewChat creates an empty chat with a fresh id and creation time.
func NewChat(title string) *Chat {
	now := time.Now()
	return &Chat{
		ID:        "chat_" + uuid.NewString(),
		Title:     title,
		Messages:  []ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now.UTC().Format(time.RFC3339Nano),
	}
}

// NewMessage creates a message with a fresh id and the current timestamp.
func NewMessage(role, content string, parts []ContentPart) ChatMessage {
	return ChatMessage{
		ID:           uuid.NewString(),
		Role:         role,
		Content:      content,
		ContentParts: parts,
		Timestamp:    time.Now(),
	}
}

// Touch refreshes the chat's updated-at stamp.
func (c *Chat) Touch() {
	c.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
}

// cloneChat deep-copies a chat so the caller can keep mutating the original
// while the copy sits in the write queue.
func cloneChat(c *Chat) *Chat {
	out := *c
	out.Messages = make([]ChatMessage, len(c.Messages))
	for i, msg := range c.Messages {
		out.Messages[i] = cloneMessage(msg)
	}
	return &out
}

func cloneMessage(m ChatMessage) ChatMessage {
	out := m
	if m.ContentParts != nil {
		out.ContentParts = make([]ContentPart, len(m.ContentParts))
		copy(out.ContentParts, m.ContentParts)
	}
	if m.Attachments != nil {
		out.Attachments = make([]Attachment, len(m.Attachments))
		copy(out.Attachments, m.Attachments)
	}
	return out
}
