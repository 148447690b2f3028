// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrChatNotFound is returned when a chat id has no stored record.
var ErrChatNotFound = errors.New("chat not found")

// StorageError wraps a failure in a named store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CHAT STORE
// =============================================================================

const schemaVersion = 1

const createTableSQL = `
CREATE TABLE IF NOT EXISTS chats (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	loaded_at        INTEGER NOT NULL DEFAULT 0,
	version          INTEGER NOT NULL DEFAULT 1,
	messages         TEXT NOT NULL
)`

// writeJob is one queued mutation. done receives the job's outcome exactly
// once and is then closed.
type writeJob struct {
	run  func(db *sql.DB) error
	done chan error
}

// ChatStore persists chats in a SQLite database at a fixed path.
//
// The database opens lazily on first use; a failed open is retried on the
// next operation. Every write goes through an unbounded FIFO queue serviced
// by one worker goroutine, so at most one write transaction is in flight and
// writes apply in submission order. Reads drain the queue first, giving
// read-your-writes within a process.
type ChatStore struct {
	path string

	openMu sync.Mutex
	db     *sql.DB

	queueMu sync.Mutex
	queue   []writeJob
	wake    chan struct{}
	started bool
}

// NewChatStore creates a store for the database at path. No I/O happens
// until the first operation.
func NewChatStore(path string) *ChatStore {
	return &ChatStore{
		path: path,
		wake: make(chan struct{}, 1),
	}
}

// ensureOpen opens the database and creates the schema if needed. Safe to
// call repeatedly; only the first successful call does work.
func (s *ChatStore) ensureOpen() (*sql.DB, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	// One connection sidesteps SQLITE_BUSY between the queue worker and
	// direct reads.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: err}
	}

	s.db = db
	return db, nil
}

// enqueue appends a job to the write queue, starting the worker on first
// use, and returns the job's completion channel.
func (s *ChatStore) enqueue(run func(db *sql.DB) error) <-chan error {
	job := writeJob{run: run, done: make(chan error, 1)}

	s.queueMu.Lock()
	s.queue = append(s.queue, job)
	if !s.started {
		s.started = true
		go s.worker()
	}
	s.queueMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return job.done
}

// worker drains the write queue one job at a time, in order. It runs for
// the life of the process.
func (s *ChatStore) worker() {
	for range s.wake {
		for {
			s.queueMu.Lock()
			if len(s.queue) == 0 {
				s.queueMu.Unlock()
				break
			}
			job := s.queue[0]
			s.queue = s.queue[1:]
			s.queueMu.Unlock()

			job.done <- s.runJob(job)
			close(job.done)
		}
	}
}

func (s *ChatStore) runJob(job writeJob) error {
	db, err := s.ensureOpen()
	if err != nil {
		log.Printf("storage: open failed: %v", err)
		return err
	}
	if err := job.run(db); err != nil {
		log.Printf("storage: queued write failed: %v", err)
		return err
	}
	return nil
}

// barrier blocks until every write enqueued before it has completed. Failed
// writes were already logged by the worker; a barrier never fails.
func (s *ChatStore) barrier() {
	<-s.enqueue(func(*sql.DB) error { return nil })
}

// =============================================================================
// WRITES
// =============================================================================

// SaveChat persists the chat, blocking until the write lands. The chat is
// deep-copied before enqueueing so the caller may keep mutating it. Chats
// with no messages are skipped without error. An existing record's
// last-accessed and loaded-at bookkeeping survives the overwrite.
func (s *ChatStore) SaveChat(chat *Chat) error {
	if len(chat.Messages) == 0 {
		return nil
	}
	return <-s.QueueSave(chat)
}

// QueueSave is SaveChat without the wait: the save is enqueued and the
// returned channel reports its eventual outcome.
func (s *ChatStore) QueueSave(chat *Chat) <-chan error {
	snapshot := cloneChat(chat)
	return s.enqueue(func(db *sql.DB) error {
		return saveChat(db, snapshot)
	})
}

func saveChat(db *sql.DB, chat *Chat) error {
	if len(chat.Messages) == 0 {
		return nil
	}

	messages, err := encodeMessages(chat.Messages)
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}

	tx, err := db.Begin()
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	defer tx.Rollback()

	// Merge with any existing record so access bookkeeping survives
	// a resave of the same chat.
	lastAccessed := time.Now().UnixMilli()
	var loadedAt int64
	err = tx.QueryRow(
		`SELECT last_accessed_at, loaded_at FROM chats WHERE id = ?`, chat.ID,
	).Scan(&lastAccessed, &loadedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return &StorageError{Op: "save", Err: err}
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO chats
			(id, title, created_at, updated_at, last_accessed_at, loaded_at, version, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		chat.ID,
		chat.Title,
		chat.CreatedAt.UTC().Format(time.RFC3339Nano),
		chat.UpdatedAt,
		lastAccessed,
		loadedAt,
		schemaVersion,
		messages,
	)
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

// DeleteChat removes a chat by id. Deleting an absent id is not an error.
func (s *ChatStore) DeleteChat(id string) error {
	s.barrier()
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM chats WHERE id = ?`, id); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// ClearAll removes every stored chat.
func (s *ChatStore) ClearAll() error {
	s.barrier()
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM chats`); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// GetChat returns the stored chat with the given id, or ErrChatNotFound.
// Pending writes are drained first, so a save followed by a load observes
// the saved data. The record's last-accessed time refreshes in the
// background; the returned value carries the pre-refresh stamp.
func (s *ChatStore) GetChat(id string) (*StoredChat, error) {
	s.barrier()
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	row := db.QueryRow(`
		SELECT id, title, created_at, updated_at, last_accessed_at, loaded_at, version, messages
		FROM chats WHERE id = ?`, id)
	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}

	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(
			`UPDATE chats SET last_accessed_at = ? WHERE id = ?`,
			time.Now().UnixMilli(), id,
		)
		return err
	})

	return chat, nil
}

// GetAllChats returns every stored chat ordered by id. Pending writes are
// drained first.
func (s *ChatStore) GetAllChats() ([]*StoredChat, error) {
	s.barrier()
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT id, title, created_at, updated_at, last_accessed_at, loaded_at, version, messages
		FROM chats ORDER BY id`)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var chats []*StoredChat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return chats, nil
}

// =============================================================================
// ROW CODEC
// =============================================================================

// storedMessage is the JSON wire form of a message inside the messages
// column. Timestamps travel as RFC 3339 strings.
type storedMessage struct {
	ID           string        `json:"id"`
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	ContentParts []ContentPart `json:"content_parts,omitempty"`
	Attachments  []Attachment  `json:"attachments,omitempty"`
	Timestamp    string        `json:"timestamp"`
}

func encodeMessages(messages []ChatMessage) (string, error) {
	stored := make([]storedMessage, len(messages))
	for i, msg := range messages {
		stored[i] = storedMessage{
			ID:           msg.ID,
			Role:         msg.Role,
			Content:      msg.Content,
			ContentParts: msg.ContentParts,
			Attachments:  msg.Attachments,
			Timestamp:    msg.Timestamp.UTC().Format(time.RFC3339Nano),
		}
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeMessages(data string) ([]ChatMessage, error) {
	var stored []storedMessage
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, err
	}
	messages := make([]ChatMessage, len(stored))
	for i, msg := range stored {
		messages[i] = ChatMessage{
			ID:           msg.ID,
			Role:         msg.Role,
			Content:      msg.Content,
			ContentParts: msg.ContentParts,
			Attachments:  msg.Attachments,
			Timestamp:    parseTimestamp(msg.Timestamp),
		}
	}
	return messages, nil
}

// parseTimestamp rehydrates a stored timestamp, falling back to the current
// time when the stored value is unparsable. A corrupted stamp should not
// make a whole chat unloadable.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*StoredChat, error) {
	var (
		chat      StoredChat
		createdAt string
		messages  string
	)
	err := row.Scan(
		&chat.ID, &chat.Title, &createdAt, &chat.UpdatedAt,
		&chat.LastAccessedAt, &chat.LoadedAt, &chat.Version, &messages,
	)
	if err != nil {
		return nil, err
	}
	chat.CreatedAt = parseTimestamp(createdAt)
	chat.Messages, err = decodeMessages(messages)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}
