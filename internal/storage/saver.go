// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sync"
	"time"
)

// =============================================================================
// DEBOUNCED SAVER
// =============================================================================

// DefaultSaveDebounce is how long a chat's save is held back waiting for
// further edits.
const DefaultSaveDebounce = 500 * time.Millisecond

// Saver coalesces rapid updates to a chat into a single store write. Each
// Schedule call snapshots the chat and restarts that chat's debounce timer;
// only the latest snapshot is written. A save that lands emits a change
// event on the notifier.
type Saver struct {
	store    *ChatStore
	notifier *Notifier
	delay    time.Duration

	mu      sync.Mutex
	pending map[string]*pendingSave
}

type pendingSave struct {
	timer *time.Timer
	chat  *Chat
}

// NewSaver creates a saver writing through store. A non-positive delay
// falls back to DefaultSaveDebounce.
func NewSaver(store *ChatStore, notifier *Notifier, delay time.Duration) *Saver {
	if delay <= 0 {
		delay = DefaultSaveDebounce
	}
	return &Saver{
		store:    store,
		notifier: notifier,
		delay:    delay,
		pending:  make(map[string]*pendingSave),
	}
}

// Schedule queues a debounced save of the chat. The chat is snapshotted
// now; later mutations need another Schedule call to be picked up.
func (s *Saver) Schedule(chat *Chat) {
	snapshot := cloneChat(chat)
	id := snapshot.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[id]; ok {
		p.chat = snapshot
		p.timer.Reset(s.delay)
		return
	}
	p := &pendingSave{chat: snapshot}
	p.timer = time.AfterFunc(s.delay, func() { s.fire(id) })
	s.pending[id] = p
}

// fire writes the pending snapshot for id, if still pending.
func (s *Saver) fire(id string) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.save(p.chat)
}

// Flush writes every pending snapshot immediately, blocking until all
// writes land. Call on shutdown so a debounce window cannot drop edits.
func (s *Saver) Flush() {
	s.mu.Lock()
	chats := make([]*Chat, 0, len(s.pending))
	for id, p := range s.pending {
		p.timer.Stop()
		chats = append(chats, p.chat)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	for _, chat := range chats {
		s.save(chat)
	}
}

func (s *Saver) save(chat *Chat) {
	if err := s.store.SaveChat(chat); err != nil {
		// Already logged by the store's queue worker.
		return
	}
	if s.notifier != nil && len(chat.Messages) > 0 {
		s.notifier.Emit(Event{Reason: ReasonSave, ChatID: chat.ID})
	}
}
