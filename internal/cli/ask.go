// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/redpill-chat/redpill-cli/internal/config"
	"github.com/redpill-chat/redpill-cli/internal/gateway"
)

// HandleAsk answers a single question and exits. When stdout is a TTY
// the full answer is collected and rendered as markdown; piped output
// streams plain text as it arrives.
func HandleAsk(args *Args) int {
	cfg := config.Global()
	client := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	snapshots, err := client.ChatStream(ctx, &gateway.ChatRequest{
		History: []gateway.Turn{{
			Role:  gateway.RoleUser,
			Parts: []gateway.Part{{Type: gateway.PartText, Text: args.Query}},
		}},
		SystemPrompt: args.Option("system", cfg.Chat.SystemPrompt),
		Model:        args.Option("model", cfg.Gateway.Model),
		Sampling:     samplingFromConfig(cfg),
	})
	if err != nil {
		return reportAskError(err)
	}

	if IsStdoutTTY() {
		return askRendered(snapshots, args.HasOption("reasoning"))
	}
	return askPlain(snapshots)
}

// askRendered collects the whole answer and renders it once.
func askRendered(snapshots <-chan gateway.Snapshot, showReasoning bool) int {
	var terminal *gateway.Snapshot
	for snap := range snapshots {
		if snap.Err != nil {
			return reportAskError(snap.Err)
		}
		if snap.Status.Terminal() {
			t := snap
			terminal = &t
		}
	}
	if terminal == nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Stream ended without a response."))
		return 1
	}
	DisplayResponse(*terminal, showReasoning)
	return 0
}

// askPlain streams answer text directly, suitable for pipes.
func askPlain(snapshots <-chan gateway.Snapshot) int {
	printed := 0
	for snap := range snapshots {
		if snap.Err != nil {
			return reportAskError(snap.Err)
		}
		if text := snap.Text(); len(text) > printed {
			fmt.Print(text[printed:])
			printed = len(text)
		}
	}
	fmt.Println()
	return 0
}

func reportAskError(err error) int {
	var reqErr *gateway.RequestError
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, WarningStyle.Render("(interrupted)"))
		return 130
	case errors.Is(err, gateway.ErrNoModel):
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("No model configured. Set one with: redpill config set gateway.model <name>"))
	case errors.As(err, &reqErr):
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(fmt.Sprintf("Gateway error (HTTP %d): %s", reqErr.Status, reqErr.Body)))
	default:
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Request failed: "+err.Error()))
	}
	return 1
}
