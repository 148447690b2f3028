// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"testing"
)

func TestNotifierDeliversInOrder(t *testing.T) {
	n := NewNotifier()

	var order []string
	n.Subscribe(func(ev Event) { order = append(order, "first:"+ev.ChatID) })
	n.Subscribe(func(ev Event) { order = append(order, "second:"+ev.ChatID) })

	n.Emit(Event{Reason: ReasonSave, ChatID: "chat_1"})

	if len(order) != 2 || order[0] != "first:chat_1" || order[1] != "second:chat_1" {
		t.Errorf("delivery order = %v", order)
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	n := NewNotifier()

	calls := 0
	unsubscribe := n.Subscribe(func(Event) { calls++ })

	n.Emit(Event{Reason: ReasonSave, ChatID: "chat_1"})
	unsubscribe()
	n.Emit(Event{Reason: ReasonSave, ChatID: "chat_1"})
	unsubscribe() // second call is harmless

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestNotifierContainsPanics(t *testing.T) {
	n := NewNotifier()

	n.Subscribe(func(Event) { panic("listener bug") })
	survived := false
	n.Subscribe(func(Event) { survived = true })

	n.Emit(Event{Reason: ReasonDelete, ChatID: "chat_1"})

	if !survived {
		t.Errorf("panic in one listener starved the next")
	}
}
