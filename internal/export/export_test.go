// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"archive/zip"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redpill-chat/redpill-cli/internal/storage"
)

func exportChat(id, title string) *storage.StoredChat {
	return &storage.StoredChat{
		Chat: storage.Chat{
			ID:        id,
			Title:     title,
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			UpdatedAt: "2025-06-01T12:05:00Z",
			Messages: []storage.ChatMessage{
				{
					ID: "m1", Role: storage.RoleUser,
					Content:   "What is a monad?",
					Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
				},
				{
					ID: "m2", Role: storage.RoleAssistant,
					Content: "A monad is a structure for sequencing computations.",
					ContentParts: []storage.ContentPart{
						{Type: "reasoning", Text: "The user wants a short definition."},
						{Type: "text", Text: "A monad is a structure for sequencing computations."},
					},
					Timestamp: time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
				},
			},
		},
		LastAccessedAt: time.Now().UnixMilli(),
	}
}

func TestMarkdownExport(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(exportChat("chat_1", "Monads: Explained"))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	result := string(out)

	if !strings.Contains(result, "# Monads: Explained") {
		t.Errorf("missing title heading")
	}
	if !strings.Contains(result, "[User]") || !strings.Contains(result, "[Assistant]") {
		t.Errorf("missing role labels")
	}
	if !strings.Contains(result, "What is a monad?") {
		t.Errorf("missing message content")
	}
	// YAML frontmatter title with ':' must be quoted.
	if !strings.Contains(result, `title: "Monads: Explained"`) {
		t.Errorf("frontmatter title not quoted:\n%s", result)
	}
	// Reasoning is excluded by default.
	if strings.Contains(result, "short definition") {
		t.Errorf("reasoning leaked into default export")
	}
}

func TestMarkdownExportWithReasoning(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeReasoning = true
	out, err := NewMarkdownExporter(opts).Export(exportChat("chat_1", "Monads"))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(out), "> The user wants a short definition.") {
		t.Errorf("reasoning block missing:\n%s", out)
	}
}

func TestMarkdownExportRejectsEmpty(t *testing.T) {
	chat := exportChat("chat_1", "Empty")
	chat.Messages = nil
	if _, err := NewMarkdownExporter(nil).Export(chat); err == nil {
		t.Errorf("empty chat accepted")
	}
}

func TestExportToFile(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()

	path, err := ExportToFile(exportChat("chat_1", "Tricky/Title: v2"), NewMarkdownExporter(opts), opts)
	if err != nil {
		t.Fatalf("ExportToFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(data), "What is a monad?") {
		t.Errorf("output file missing content")
	}
	base := path[strings.LastIndex(path, "/")+1:]
	if strings.ContainsAny(base, ":/ ") {
		t.Errorf("unsafe filename: %q", base)
	}
}

func TestExportArchive(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()

	chats := []*storage.StoredChat{
		exportChat("chat_1", "First Chat"),
		exportChat("chat_2", "First Chat"), // duplicate title
	}
	empty := exportChat("chat_3", "Broken")
	empty.Messages = nil
	chats = append(chats, empty)

	path, err := ExportArchive(chats, opts)
	if err != nil {
		t.Fatalf("ExportArchive failed: %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names[summaryFilename] {
		t.Errorf("summary missing from archive: %v", names)
	}
	if !names["first_chat.md"] || !names["first_chat_2.md"] {
		t.Errorf("duplicate titles not disambiguated: %v", names)
	}
	// The unrenderable chat is skipped, not fatal.
	if len(zr.File) != 3 {
		t.Errorf("got %d entries, want 3", len(zr.File))
	}
}
