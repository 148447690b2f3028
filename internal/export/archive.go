// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redpill-chat/redpill-cli/internal/storage"
	"github.com/redpill-chat/redpill-cli/internal/util"
)

// =============================================================================
// ZIP ARCHIVE
// =============================================================================

// summaryFilename is the index document at the root of every archive.
const summaryFilename = "chat_summary.md"

// ExportArchive writes every chat to a ZIP archive: one Markdown file per
// chat plus a summary index. Chats that fail to render are listed in the
// summary and skipped. Returns the archive path.
func ExportArchive(chats []*storage.StoredChat, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if len(chats) == 0 {
		return "", fmt.Errorf("no chats to export")
	}

	exporter := NewMarkdownExporter(opts)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var summary strings.Builder
	summary.WriteString("# Chat Export\n\n")
	summary.WriteString(fmt.Sprintf("Exported %s\n\n", time.Now().Format("2006-01-02 15:04:05")))
	summary.WriteString(fmt.Sprintf("Total chats: %d\n\n", len(chats)))

	seen := make(map[string]int)
	for _, chat := range chats {
		name := archiveEntryName(chat, seen)

		content, err := exporter.Export(chat)
		if err != nil {
			summary.WriteString(fmt.Sprintf("- ~~%s~~ (skipped: %v)\n", chat.Title, err))
			continue
		}

		entry, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return "", fmt.Errorf("create archive entry: %w", err)
		}
		if _, err := entry.Write(content); err != nil {
			zw.Close()
			return "", fmt.Errorf("write archive entry: %w", err)
		}

		summary.WriteString(fmt.Sprintf("- **%s** (`%s`) - %d messages, created %s\n",
			chat.Title, name, len(chat.Messages), formatTimestamp(chat.CreatedAt)))
	}

	entry, err := zw.Create(summaryFilename)
	if err != nil {
		zw.Close()
		return "", fmt.Errorf("create summary entry: %w", err)
	}
	if _, err := entry.Write([]byte(summary.String())); err != nil {
		zw.Close()
		return "", fmt.Errorf("write summary entry: %w", err)
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize archive: %w", err)
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	outputPath := filepath.Join(opts.OutputDir,
		fmt.Sprintf("chats_%s.zip", time.Now().Format("20060102_150405")))
	if err := util.AtomicWriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	return outputPath, nil
}

// archiveEntryName derives a unique entry name inside the archive,
// suffixing duplicates with a counter.
func archiveEntryName(chat *storage.StoredChat, seen map[string]int) string {
	base := util.SanitizeFilename(util.TruncateRunesNoEllipsis(chat.Title, 50))
	if base == "" {
		base = "chat"
	}
	seen[base]++
	if n := seen[base]; n > 1 {
		return fmt.Sprintf("%s_%d.md", base, n)
	}
	return base + ".md"
}
