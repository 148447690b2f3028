// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// init configures lipgloss for the detected terminal. This respects
// NO_COLOR, FORCE_COLOR, and TTY detection before any style renders.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// Shared styles for all CLI output. Commands use these instead of
// defining their own so the palette stays consistent.
var (
	// TitleStyle marks command headers and the chat banner.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")) // Red

	// PromptStyle is the interactive input prompt.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// InfoStyle carries neutral status lines (model name, save notices).
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")) // Blue

	// SuccessStyle confirms completed operations.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// ErrorStyle marks failures.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// WarningStyle marks recoverable problems.
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// DimStyle de-emphasizes hints and secondary detail.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim gray

	// ReasoningStyle renders model reasoning distinct from the answer.
	ReasoningStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("245")) // Light gray

	// CommandStyle highlights slash commands in help output.
	CommandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")) // Bright green
)

// RenderSeparator renders a horizontal rule sized to the terminal.
func RenderSeparator() string {
	width := GetTerminalWidth()
	if width > 80 {
		width = 80
	}
	return DimStyle.Render(strings.Repeat("─", width))
}
