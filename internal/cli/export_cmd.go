// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/redpill-chat/redpill-cli/internal/export"
	"github.com/redpill-chat/redpill-cli/internal/storage"
)

// HandleExport writes one chat as markdown, or all chats as a zip
// archive with --all.
func HandleExport(args *Args) int {
	store, err := openStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}

	opts := export.DefaultOptions()
	opts.OutputDir = args.Option("output", opts.OutputDir)
	opts.IncludeReasoning = args.HasOption("reasoning")

	if args.HasOption("all") {
		return exportAll(store, opts)
	}
	return exportOne(store, args.Query, opts)
}

func exportOne(store *storage.ChatStore, id string, opts *export.Options) int {
	chat, err := store.GetChat(id)
	if err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("No chat with id "+id))
			return 1
		}
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}

	path, err := export.ExportToFile(chat, export.NewMarkdownExporter(opts), opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Export failed: "+err.Error()))
		return 1
	}
	fmt.Println(SuccessStyle.Render("Exported to " + path))
	return 0
}

func exportAll(store *storage.ChatStore, opts *export.Options) int {
	chats, err := store.GetAllChats()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
	if len(chats) == 0 {
		fmt.Println(DimStyle.Render("Nothing to export."))
		return 0
	}

	path, err := export.ExportArchive(chats, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Export failed: "+err.Error()))
		return 1
	}
	fmt.Println(SuccessStyle.Render(fmt.Sprintf("Exported %d chat(s) to %s", len(chats), path)))
	return 0
}
