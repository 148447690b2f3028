// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the redpill-cli
// application: UTF-8 safe string truncation, filename sanitization, and
// crash-safe file writing.
package util
