// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/redpill-chat/redpill-cli/internal/gateway"
)

// newMarkdownRenderer builds a glamour renderer wrapped to the terminal.
func newMarkdownRenderer() (*glamour.TermRenderer, error) {
	wrap := GetTerminalWidth()
	if wrap > 100 {
		wrap = 100
	}
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
}

// RenderMarkdown renders markdown for terminal display. On any renderer
// failure, or when stdout is not a TTY, it returns the text unchanged so
// piped output stays clean.
func RenderMarkdown(text string) string {
	if !IsStdoutTTY() {
		return text
	}
	renderer, err := newMarkdownRenderer()
	if err != nil {
		return text
	}
	out, err := renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n") + "\n"
}

// DisplayResponse prints a final assistant response. Reasoning parts are
// shown dimmed before the answer when showReasoning is set.
func DisplayResponse(snap gateway.Snapshot, showReasoning bool) {
	if showReasoning {
		if reasoning := snap.Reasoning(); reasoning != "" {
			fmt.Println(ReasoningStyle.Render(reasoning))
			fmt.Println()
		}
	}
	fmt.Print(RenderMarkdown(snap.Text()))
}
