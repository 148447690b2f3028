// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"log"
	"sync"
)

// =============================================================================
// CHANGE EVENTS
// =============================================================================

// ChangeReason says what happened to a chat.
type ChangeReason string

const (
	ReasonCreate ChangeReason = "create"
	ReasonSave   ChangeReason = "save"
	ReasonUpdate ChangeReason = "update"
	ReasonDelete ChangeReason = "delete"
)

// Event describes one change to the chat store.
type Event struct {
	Reason ChangeReason
	ChatID string
}

// Listener receives change events. Listeners run synchronously on the
// emitter's goroutine and must not block.
type Listener func(Event)

// Notifier fans change events out to subscribers in subscription order.
// A panicking listener is contained and logged; the remaining listeners
// still run.
type Notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners []subscription
}

type subscription struct {
	id int
	fn Listener
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a listener and returns a function that removes it.
// Unsubscribing twice is harmless.
func (n *Notifier) Subscribe(fn Listener) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners = append(n.listeners, subscription{id: id, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, sub := range n.listeners {
			if sub.id == id {
				n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers the event to every current subscriber, in order.
func (n *Notifier) Emit(ev Event) {
	n.mu.Lock()
	subs := make([]subscription, len(n.listeners))
	copy(subs, n.listeners)
	n.mu.Unlock()

	for _, sub := range subs {
		notify(sub.fn, ev)
	}
}

func notify(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("storage: change listener panicked: %v", r)
		}
	}()
	fn(ev)
}

// Events is the process-wide notifier for chat changes.
var Events = NewNotifier()
