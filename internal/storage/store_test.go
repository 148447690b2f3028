// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *ChatStore {
	t.Helper()
	return NewChatStore(filepath.Join(t.TempDir(), "chats.db"))
}

func testChat(id string, contents ...string) *Chat {
	chat := &Chat{
		ID:        id,
		Title:     "Test Chat",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for i, content := range contents {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		chat.Messages = append(chat.Messages, NewMessage(role, content, nil))
	}
	return chat
}

func TestSaveAndGetChat(t *testing.T) {
	store := testStore(t)

	chat := testChat("chat_1", "hello", "hi there")
	chat.Messages[1].ContentParts = []ContentPart{
		{Type: "reasoning", Text: "thinking"},
		{Type: "text", Text: "hi there"},
	}

	if err := store.SaveChat(chat); err != nil {
		t.Fatalf("SaveChat failed: %v", err)
	}

	got, err := store.GetChat("chat_1")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if got.Title != "Test Chat" {
		t.Errorf("title = %q, want %q", got.Title, "Test Chat")
	}
	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].Content != "hello" || got.Messages[1].Content != "hi there" {
		t.Errorf("message contents not preserved: %+v", got.Messages)
	}
	if got.Messages[0].Role != RoleUser || got.Messages[1].Role != RoleAssistant {
		t.Errorf("message roles not preserved")
	}
	if len(got.Messages[1].ContentParts) != 2 {
		t.Errorf("content parts not preserved: %+v", got.Messages[1].ContentParts)
	}
	if got.LastAccessedAt == 0 {
		t.Errorf("LastAccessedAt not set on first save")
	}

	// Timestamps survive the round trip to millisecond precision.
	want := chat.Messages[0].Timestamp.Truncate(time.Millisecond)
	have := got.Messages[0].Timestamp.Truncate(time.Millisecond)
	if !have.Equal(want) {
		t.Errorf("timestamp = %v, want %v", have, want)
	}
}

func TestSaveChatSkipsEmpty(t *testing.T) {
	store := testStore(t)

	if err := store.SaveChat(testChat("chat_empty")); err != nil {
		t.Fatalf("saving empty chat should be a silent no-op, got: %v", err)
	}
	if _, err := store.GetChat("chat_empty"); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("empty chat was persisted, err = %v", err)
	}
}

func TestGetChatNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.GetChat("chat_missing")
	if !errors.Is(err, ErrChatNotFound) {
		t.Errorf("err = %v, want ErrChatNotFound", err)
	}
}

func TestSaveChatDeepCopies(t *testing.T) {
	store := testStore(t)

	chat := testChat("chat_copy", "original")
	done := store.QueueSave(chat)
	chat.Messages[0].Content = "mutated"
	if err := <-done; err != nil {
		t.Fatalf("QueueSave failed: %v", err)
	}

	got, err := store.GetChat("chat_copy")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if got.Messages[0].Content != "original" {
		t.Errorf("content = %q, want snapshot taken at enqueue time", got.Messages[0].Content)
	}
}

func TestQueuedSavesApplyInOrder(t *testing.T) {
	store := testStore(t)

	var last <-chan error
	for i := 1; i <= 20; i++ {
		last = store.QueueSave(testChat("chat_order", fmt.Sprintf("revision %d", i)))
	}
	if err := <-last; err != nil {
		t.Fatalf("queued save failed: %v", err)
	}

	got, err := store.GetChat("chat_order")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if got.Messages[0].Content != "revision 20" {
		t.Errorf("content = %q, want last enqueued revision", got.Messages[0].Content)
	}
}

func TestGetChatDrainsPendingWrites(t *testing.T) {
	store := testStore(t)

	// No wait on the queued save: the read itself must observe it.
	store.QueueSave(testChat("chat_ryw", "queued"))

	got, err := store.GetChat("chat_ryw")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if got.Messages[0].Content != "queued" {
		t.Errorf("read did not observe pending write")
	}
}

func TestSavePreservesLastAccessedAt(t *testing.T) {
	store := testStore(t)

	chat := testChat("chat_merge", "first")
	if err := store.SaveChat(chat); err != nil {
		t.Fatalf("SaveChat failed: %v", err)
	}
	before, err := store.GetChat("chat_merge")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	chat.Messages = append(chat.Messages, NewMessage(RoleAssistant, "second", nil))
	if err := store.SaveChat(chat); err != nil {
		t.Fatalf("second SaveChat failed: %v", err)
	}

	after, err := store.GetChat("chat_merge")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if after.LastAccessedAt < before.LastAccessedAt {
		t.Errorf("LastAccessedAt went backwards: %d -> %d", before.LastAccessedAt, after.LastAccessedAt)
	}
	if len(after.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(after.Messages))
	}
}

func TestGetAllChatsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chats.db")

	store := NewChatStore(path)
	for _, id := range []string{"chat_b", "chat_a", "chat_c"} {
		if err := store.SaveChat(testChat(id, "msg for "+id)); err != nil {
			t.Fatalf("SaveChat(%s) failed: %v", id, err)
		}
	}

	// A fresh instance over the same file sees everything, ordered by id.
	fresh := NewChatStore(path)
	chats, err := fresh.GetAllChats()
	if err != nil {
		t.Fatalf("GetAllChats failed: %v", err)
	}
	if len(chats) != 3 {
		t.Fatalf("got %d chats, want 3", len(chats))
	}
	for i, want := range []string{"chat_a", "chat_b", "chat_c"} {
		if chats[i].ID != want {
			t.Errorf("chats[%d].ID = %q, want %q", i, chats[i].ID, want)
		}
	}
}

func TestDeleteChat(t *testing.T) {
	store := testStore(t)

	if err := store.SaveChat(testChat("chat_del", "bye")); err != nil {
		t.Fatalf("SaveChat failed: %v", err)
	}
	if err := store.DeleteChat("chat_del"); err != nil {
		t.Fatalf("DeleteChat failed: %v", err)
	}
	if _, err := store.GetChat("chat_del"); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("chat still present after delete, err = %v", err)
	}

	// Deleting an absent id is not an error.
	if err := store.DeleteChat("chat_never"); err != nil {
		t.Errorf("deleting absent id: %v", err)
	}
}

func TestClearAll(t *testing.T) {
	store := testStore(t)

	for i := 0; i < 3; i++ {
		if err := store.SaveChat(testChat(fmt.Sprintf("chat_%d", i), "x")); err != nil {
			t.Fatalf("SaveChat failed: %v", err)
		}
	}
	if err := store.ClearAll(); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	chats, err := store.GetAllChats()
	if err != nil {
		t.Fatalf("GetAllChats failed: %v", err)
	}
	if len(chats) != 0 {
		t.Errorf("got %d chats after clear, want 0", len(chats))
	}
}

func TestParseTimestampFallback(t *testing.T) {
	before := time.Now()
	got := parseTimestamp("not-a-timestamp")
	if got.Before(before) {
		t.Errorf("unparsable timestamp should rehydrate to now, got %v", got)
	}

	want := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	if got := parseTimestamp("2025-03-14T09:26:53Z"); !got.Equal(want) {
		t.Errorf("parseTimestamp = %v, want %v", got, want)
	}
}
