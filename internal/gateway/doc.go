// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway provides the RedPill gateway integration for confidential
// LLM inference.
//
// The gateway exposes an OpenAI-compatible chat-completions API over
// HTTP/SSE, plus attestation endpoints that prove the serving hardware runs
// inside a confidential-computing enclave. This package implements the
// streaming adapter (frame parsing, delta accumulation, finish-reason
// mapping), the non-streaming completion path, best-effort chat title
// generation, and the attestation/signature fetchers.
//
// # Key Types
//
//   - Client: HTTP client for the gateway API
//   - FrameParser: splits a raw SSE byte stream into data payloads
//   - Accumulator: folds payloads into text/reasoning buffers
//   - Snapshot: one incremental view of the assistant message
//   - TitleGenerator: one-shot conversation title synthesis
//
// # Usage
//
// Stream a completion:
//
//	client := gateway.New(baseURL, apiKey)
//	snapshots, err := client.ChatStream(ctx, req)
//	for snap := range snapshots {
//		render(snap)
//	}
//
// The channel closes after the first terminal snapshot.
package gateway
