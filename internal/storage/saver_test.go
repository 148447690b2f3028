// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestSaverCoalescesRapidUpdates(t *testing.T) {
	store := testStore(t)
	notifier := NewNotifier()

	var mu sync.Mutex
	saves := 0
	notifier.Subscribe(func(ev Event) {
		mu.Lock()
		saves++
		mu.Unlock()
	})

	saver := NewSaver(store, notifier, 30*time.Millisecond)

	chat := testChat("chat_deb", "draft 1")
	saver.Schedule(chat)
	chat.Messages[0].Content = "draft 2"
	saver.Schedule(chat)
	chat.Messages[0].Content = "draft 3"
	saver.Schedule(chat)

	// One write, carrying the last snapshot.
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	got := saves
	mu.Unlock()
	if got != 1 {
		t.Errorf("saves = %d, want 1", got)
	}

	stored, err := store.GetChat("chat_deb")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if stored.Messages[0].Content != "draft 3" {
		t.Errorf("content = %q, want latest snapshot", stored.Messages[0].Content)
	}
}

func TestSaverFlush(t *testing.T) {
	store := testStore(t)
	saver := NewSaver(store, nil, time.Hour)

	saver.Schedule(testChat("chat_flush", "pending"))
	if _, err := store.GetChat("chat_flush"); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("chat written before debounce elapsed, err = %v", err)
	}

	saver.Flush()

	stored, err := store.GetChat("chat_flush")
	if err != nil {
		t.Fatalf("GetChat after Flush failed: %v", err)
	}
	if stored.Messages[0].Content != "pending" {
		t.Errorf("content = %q", stored.Messages[0].Content)
	}
}

func TestSaverIndependentPerChat(t *testing.T) {
	store := NewChatStore(filepath.Join(t.TempDir(), "chats.db"))
	saver := NewSaver(store, nil, 20*time.Millisecond)

	saver.Schedule(testChat("chat_a", "a"))
	saver.Schedule(testChat("chat_b", "b"))

	time.Sleep(120 * time.Millisecond)

	chats, err := store.GetAllChats()
	if err != nil {
		t.Fatalf("GetAllChats failed: %v", err)
	}
	if len(chats) != 2 {
		t.Errorf("got %d chats, want 2", len(chats))
	}
}
