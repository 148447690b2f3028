// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/redpill-chat/redpill-cli/internal/config"
	"github.com/redpill-chat/redpill-cli/internal/storage"
	"github.com/redpill-chat/redpill-cli/internal/util"
)

// openStore builds a ChatStore at the configured database path.
func openStore() (*storage.ChatStore, error) {
	dbPath, err := config.Global().DatabasePath()
	if err != nil {
		return nil, err
	}
	return storage.NewChatStore(dbPath), nil
}

// HandleList prints stored chats, most recently updated first.
func HandleList(args *Args) int {
	store, err := openStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}

	chats, err := store.GetAllChats()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
	if len(chats) == 0 {
		fmt.Println(DimStyle.Render("No stored chats. Start one with: redpill"))
		return 0
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt > chats[j].UpdatedAt
	})

	fmt.Println(TitleStyle.Render("Stored chats"))
	for _, chat := range chats {
		title := chat.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("  %s  %s\n", CommandStyle.Render(chat.ID), util.TruncateRunes(title, 50))
		fmt.Printf("      %s\n", DimStyle.Render(fmt.Sprintf("%d messages, updated %s",
			len(chat.Messages), humanizeUpdatedAt(chat.UpdatedAt))))
	}
	fmt.Println()
	fmt.Println(DimStyle.Render(fmt.Sprintf("%d chat(s). Export with: redpill export <id>", len(chats))))
	return 0
}

// humanizeUpdatedAt turns the stored RFC 3339 stamp into a local,
// minute-precision display string. Unparsable stamps pass through.
func humanizeUpdatedAt(stamp string) string {
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, stamp); err != nil {
			return stamp
		}
	}
	return t.Local().Format("2006-01-02 15:04")
}

// HandleDelete removes one chat, or every chat with --all.
func HandleDelete(args *Args) int {
	store, err := openStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}

	if args.HasOption("all") {
		if err := store.ClearAll(); err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
			return 1
		}
		fmt.Println(SuccessStyle.Render("All chats deleted."))
		return 0
	}

	// Look the chat up first so a typo'd id gets a clear message
	// instead of a silent no-op.
	if _, err := store.GetChat(args.Query); err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("No chat with id "+args.Query))
			return 1
		}
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
	if err := store.DeleteChat(args.Query); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
	storage.Events.Emit(storage.Event{Reason: storage.ReasonDelete, ChatID: args.Query})
	fmt.Println(SuccessStyle.Render("Deleted " + args.Query))
	return 0
}
