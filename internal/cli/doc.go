// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the redpill command-line interface: argument
// parsing, the interactive chat REPL, one-shot queries, chat management
// (list/delete/export), attestation verification, and config commands.
//
// Parsing is deliberately hand-rolled. The surface is small enough that
// a flag framework would cost more than it buys, and hand parsing keeps
// the --flag and --flag=value forms consistent across subcommands.
package cli
