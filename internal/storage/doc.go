// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat conversations to a local SQLite database.
//
// All mutations funnel through a single FIFO write queue inside ChatStore, so
// concurrent saves of the same chat resolve deterministically (last enqueued
// wins) and reads observe every write enqueued before them. A Notifier
// broadcasts change events to interested subscribers, and Saver coalesces
// rapid-fire updates into debounced writes.
package storage
