// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/redpill-chat/redpill-cli/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders chats as Markdown documents.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export renders a chat to Markdown.
func (e *MarkdownExporter) Export(chat *storage.StoredChat) ([]byte, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat is nil")
	}
	if len(chat.Messages) == 0 {
		return nil, fmt.Errorf("chat has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(chat.Title)))
		sb.WriteString(fmt.Sprintf("date: %s\n", chat.CreatedAt.Format(time.RFC3339)))
		if chat.UpdatedAt != "" {
			sb.WriteString(fmt.Sprintf("updated: %s\n", escapeYAML(chat.UpdatedAt)))
		}
		sb.WriteString(fmt.Sprintf("messages: %d\n", len(chat.Messages)))
		sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().Format(time.RFC3339)))
		sb.WriteString("generator: redpill-cli\n")
		sb.WriteString("---\n\n")
	}

	sb.WriteString(fmt.Sprintf("# %s\n\n", escapeMarkdown(chat.Title)))

	if e.options.IncludeMetadata {
		sb.WriteString(fmt.Sprintf("- **Created**: %s\n", formatTimestamp(chat.CreatedAt)))
		sb.WriteString(fmt.Sprintf("- **Messages**: %d\n", len(chat.Messages)))
		sb.WriteString("\n---\n\n")
	}

	for i, msg := range chat.Messages {
		roleLabel := formatRoleLabel(msg.Role)
		if e.options.IncludeTimestamps {
			sb.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n",
				roleLabel, formatShortTimestamp(msg.Timestamp)))
		} else {
			sb.WriteString(fmt.Sprintf("### %s\n\n", roleLabel))
		}

		if e.options.IncludeReasoning {
			if reasoning := reasoningText(msg); reasoning != "" {
				sb.WriteString("> **Reasoning**\n")
				for _, line := range strings.Split(strings.TrimSpace(reasoning), "\n") {
					sb.WriteString("> " + line + "\n")
				}
				sb.WriteString("\n")
			}
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if len(msg.Attachments) > 0 {
			names := make([]string, len(msg.Attachments))
			for j, a := range msg.Attachments {
				names[j] = a.Name
			}
			sb.WriteString(fmt.Sprintf("<sub>Attachments: %s</sub>\n\n", strings.Join(names, ", ")))
		}

		if i < len(chat.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from redpill-cli on %s*\n",
		time.Now().Format("January 2, 2006 at 3:04 PM")))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func formatRoleLabel(role string) string {
	switch role {
	case storage.RoleUser:
		return "[User]"
	case storage.RoleAssistant:
		return "[Assistant]"
	case "":
		return "Unknown"
	default:
		runes := []rune(role)
		return strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
}

// reasoningText collects the reasoning parts of a message, if any.
func reasoningText(msg storage.ChatMessage) string {
	var parts []string
	for _, p := range msg.ContentParts {
		if p.Type == "reasoning" && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// escapeMarkdown escapes characters that would break headings.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes values carrying YAML-significant characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
