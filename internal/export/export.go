// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes stored chats to portable formats: single-chat
// Markdown files and a ZIP archive of every chat with a summary index.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redpill-chat/redpill-cli/internal/storage"
	"github.com/redpill-chat/redpill-cli/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts one stored chat into a target format.
type Exporter interface {
	// Export renders the chat and returns the file content.
	Export(chat *storage.StoredChat) ([]byte, error)

	// FileExtension returns the output extension (e.g. ".md").
	FileExtension() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written. Default: current directory.
	OutputDir string

	// IncludeMetadata includes a metadata header (dates, message count).
	IncludeMetadata bool

	// IncludeTimestamps includes per-message timestamps.
	IncludeTimestamps bool

	// IncludeReasoning includes the model's reasoning parts when stored.
	IncludeReasoning bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		IncludeReasoning:  false,
	}
}

// =============================================================================
// FILE EXPORT
// =============================================================================

// ExportToFile renders a chat and writes it under the output directory.
// Returns the output file path.
func ExportToFile(chat *storage.StoredChat, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(chat)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	outputPath := filepath.Join(opts.OutputDir, exportFilename(chat, exporter.FileExtension()))
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// exportFilename derives a stable, filesystem-safe name for a chat.
func exportFilename(chat *storage.StoredChat, ext string) string {
	title := util.TruncateRunesNoEllipsis(chat.Title, 50)
	name := util.SanitizeFilename(title)
	if name == "" {
		name = "chat"
	}
	return fmt.Sprintf("%s_%s%s", name, time.Now().Format("20060102_150405"), ext)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
