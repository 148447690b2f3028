// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/redpill-chat/redpill-cli/internal/config"
	"github.com/redpill-chat/redpill-cli/internal/gateway"
	"github.com/redpill-chat/redpill-cli/internal/storage"
)

// historyFileName under the config directory. Plain text, one line per
// input, written 0600 like everything else in ~/.redpill.
const historyFileName = "chat_history"

// =============================================================================
// LINE EDITOR
// =============================================================================

// ChatCLI wraps liner with persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates the line editor and loads prior input history.
func NewChatCLI() (*ChatCLI, error) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line}
	if dir, err := config.Dir(); err == nil {
		c.historyFile = filepath.Join(dir, historyFileName)
		c.loadHistory()
	}
	return c, nil
}

func (c *ChatCLI) loadHistory() {
	if c.historyFile == "" {
		return
	}
	f, err := os.Open(c.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.ReadHistory(f)
}

// SaveHistory persists input history for the next session.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	if err := config.EnsureDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		log.Printf("cli: saving input history: %v", err)
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// ReadInput prompts for one line and records non-empty input in history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close restores the terminal state.
func (c *ChatCLI) Close() {
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// chatSession holds everything one interactive session needs.
type chatSession struct {
	client        *gateway.Client
	store         *storage.ChatStore
	saver         *storage.Saver
	titles        *gateway.TitleGenerator
	chat          *storage.Chat
	history       []gateway.Turn
	model         string
	systemPrompt  string
	persist       bool
	showReasoning bool
}

// HandleChat runs the interactive REPL. Returns a process exit code.
func HandleChat(args *Args) int {
	cfg := config.Global()

	session := &chatSession{
		client:        gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey),
		model:         args.Option("model", cfg.Gateway.Model),
		systemPrompt:  args.Option("system", cfg.Chat.SystemPrompt),
		persist:       !args.HasOption("no-save"),
		showReasoning: args.HasOption("reasoning"),
		chat:          storage.NewChat("New Chat"),
	}
	session.titles = gateway.NewTitleGenerator(session.client)

	if session.persist {
		dbPath, err := cfg.DatabasePath()
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
			return 1
		}
		session.store = storage.NewChatStore(dbPath)
		debounce := time.Duration(cfg.Chat.SaveDebounceMs) * time.Millisecond
		session.saver = storage.NewSaver(session.store, storage.Events, debounce)
	}

	// Pick up config edits made while the session runs. The watcher
	// refreshes the global config; per-message settings re-read it.
	// The watch needs the config directory to exist.
	_ = config.EnsureDir()
	if watcher, err := config.Watch(func(*config.Config) {
		fmt.Println()
		fmt.Println(DimStyle.Render("(configuration reloaded)"))
	}); err == nil {
		defer watcher.Close()
	}

	editor, err := NewChatCLI()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
	defer editor.Close()

	session.printBanner()
	code := session.repl(editor)

	editor.SaveHistory()
	if session.saver != nil {
		session.saver.Flush()
	}
	session.printSummary()
	return code
}

func (s *chatSession) printBanner() {
	fmt.Println(TitleStyle.Render("redpill chat"))
	fmt.Println(InfoStyle.Render("model: " + s.model))
	if !s.persist {
		fmt.Println(WarningStyle.Render("persistence disabled (--no-save)"))
	}
	fmt.Println(DimStyle.Render("Type /help for commands, /quit or Ctrl+D to exit."))
	fmt.Println()
}

func (s *chatSession) printSummary() {
	if len(s.chat.Messages) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(RenderSeparator())
	fmt.Printf("%s %d messages\n", InfoStyle.Render("Session:"), len(s.chat.Messages))
	if s.persist {
		fmt.Printf("%s %s\n", InfoStyle.Render("Saved as:"), s.chat.ID)
	}
}

// repl is the main input loop. Ctrl+C during a prompt aborts the line;
// Ctrl+D (EOF) ends the session.
func (s *chatSession) repl(editor *ChatCLI) int {
	for {
		input, err := editor.ReadInput(PromptStyle.Render("you> "))
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			fmt.Println(DimStyle.Render("(use /quit or Ctrl+D to exit)"))
			continue
		case errors.Is(err, io.EOF):
			fmt.Println()
			return 0
		case err != nil:
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Input error: "+err.Error()))
			return 1
		}

		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return 0
		}
		if strings.HasPrefix(input, "/") {
			if quit := s.runSlashCommand(input); quit {
				return 0
			}
			continue
		}

		s.processMessage(input)
	}
}

// runSlashCommand handles in-session commands. Returns true to exit.
func (s *chatSession) runSlashCommand(input string) bool {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/help":
		s.printSlashHelp()
	case "/clear":
		s.chat = storage.NewChat("New Chat")
		s.history = nil
		storage.Events.Emit(storage.Event{Reason: storage.ReasonCreate, ChatID: s.chat.ID})
		fmt.Println(SuccessStyle.Render("Started a new chat."))
	case "/model":
		if rest == "" {
			fmt.Println(InfoStyle.Render("model: " + s.model))
		} else {
			s.model = rest
			fmt.Println(SuccessStyle.Render("Switched to " + s.model))
		}
	case "/reasoning":
		s.showReasoning = !s.showReasoning
		fmt.Printf("%s reasoning display %v\n", InfoStyle.Render("Toggled:"), s.showReasoning)
	case "/status":
		s.printStatus()
	case "/history":
		s.printHistory()
	case "/save":
		s.saveNow()
	case "/quit", "/exit":
		return true
	default:
		fmt.Println(WarningStyle.Render("Unknown command: " + cmd + " (try /help)"))
	}
	return false
}

func (s *chatSession) printSlashHelp() {
	rows := [][2]string{
		{"/help", "show this help"},
		{"/clear", "start a new chat"},
		{"/model [name]", "show or switch the model"},
		{"/reasoning", "toggle display of model reasoning"},
		{"/status", "show session status"},
		{"/history", "show the conversation so far"},
		{"/save", "force an immediate save"},
		{"/quit", "exit"},
	}
	for _, row := range rows {
		fmt.Printf("  %s  %s\n", CommandStyle.Render(fmt.Sprintf("%-16s", row[0])), row[1])
	}
}

func (s *chatSession) printStatus() {
	fmt.Printf("  %s %s\n", InfoStyle.Render("chat:"), s.chat.ID)
	fmt.Printf("  %s %s\n", InfoStyle.Render("title:"), s.chat.Title)
	fmt.Printf("  %s %s\n", InfoStyle.Render("model:"), s.model)
	fmt.Printf("  %s %s\n", InfoStyle.Render("gateway:"), s.client.BaseURL())
	fmt.Printf("  %s %d\n", InfoStyle.Render("messages:"), len(s.chat.Messages))
	fmt.Printf("  %s %v\n", InfoStyle.Render("persisting:"), s.persist)
	if !s.client.HasAPIKey() {
		fmt.Println(WarningStyle.Render("  no API key configured (redpill config set gateway.api_key ...)"))
	}
}

func (s *chatSession) printHistory() {
	if len(s.chat.Messages) == 0 {
		fmt.Println(DimStyle.Render("No messages yet."))
		return
	}
	for _, msg := range s.chat.Messages {
		label := "you"
		style := PromptStyle
		if msg.Role == storage.RoleAssistant {
			label = "assistant"
			style = InfoStyle
		}
		fmt.Printf("%s %s\n", style.Render(label+">"), msg.Content)
	}
}

func (s *chatSession) saveNow() {
	if !s.persist || s.store == nil {
		fmt.Println(WarningStyle.Render("Persistence is disabled for this session."))
		return
	}
	if err := s.store.SaveChat(s.chat); err != nil {
		fmt.Println(ErrorStyle.Render("Save failed: " + err.Error()))
		return
	}
	fmt.Println(SuccessStyle.Render("Saved " + s.chat.ID))
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends one user message and streams the reply. Ctrl+C
// while streaming cancels the in-flight request but keeps the session.
func (s *chatSession) processMessage(input string) {
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

	s.history = append(s.history, gateway.Turn{
		Role:  gateway.RoleUser,
		Parts: []gateway.Part{{Type: gateway.PartText, Text: input}},
	})
	s.chat.Messages = append(s.chat.Messages, storage.NewMessage(storage.RoleUser, input, nil))
	s.chat.Touch()
	s.scheduleSave()

	snapshots, err := s.client.ChatStream(ctx, &gateway.ChatRequest{
		History:      s.history,
		SystemPrompt: s.systemPrompt,
		Model:        s.model,
		Sampling:     samplingFromConfig(config.Global()),
	})
	if err != nil {
		s.reportStreamError(err)
		return
	}

	terminal, aborted := streamToTerminal(snapshots, s.showReasoning)
	fmt.Println()
	if aborted {
		fmt.Println(WarningStyle.Render("(interrupted)"))
	}
	if terminal == nil {
		return
	}

	s.recordAssistantTurn(terminal)
	s.maybeGenerateTitle()
}

// streamToTerminal prints snapshot deltas as they arrive and returns the
// terminal snapshot. Reasoning streams dimmed ahead of the answer when
// enabled.
func streamToTerminal(snapshots <-chan gateway.Snapshot, showReasoning bool) (terminal *gateway.Snapshot, aborted bool) {
	var printedReasoning, printedText int
	for snap := range snapshots {
		if snap.Err != nil {
			if errors.Is(snap.Err, context.Canceled) {
				return nil, true
			}
			fmt.Println()
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Stream error: "+snap.Err.Error()))
			return nil, false
		}

		if showReasoning {
			if reasoning := snap.Reasoning(); len(reasoning) > printedReasoning {
				fmt.Print(ReasoningStyle.Render(reasoning[printedReasoning:]))
				printedReasoning = len(reasoning)
			}
		}
		if text := snap.Text(); len(text) > printedText {
			if printedText == 0 && printedReasoning > 0 {
				fmt.Print("\n\n")
			}
			fmt.Print(text[printedText:])
			printedText = len(text)
		}

		if snap.Status.Terminal() {
			t := snap
			terminal = &t
		}
	}
	return terminal, false
}

// recordAssistantTurn appends the reply to both the wire history and the
// persisted chat, then schedules a debounced save.
func (s *chatSession) recordAssistantTurn(snap *gateway.Snapshot) {
	var turnParts []gateway.Part
	var contentParts []storage.ContentPart
	for _, part := range snap.Parts {
		turnParts = append(turnParts, part)
		contentParts = append(contentParts, storage.ContentPart{
			Type: string(part.Type),
			Text: part.Text,
		})
	}
	if len(turnParts) == 0 {
		return
	}
	s.history = append(s.history, gateway.Turn{Role: gateway.RoleAssistant, Parts: turnParts})

	msg := storage.NewMessage(storage.RoleAssistant, snap.Text(), contentParts)
	if snap.Metadata != nil {
		// Keep the provider message id so the signature can be fetched
		// later via `redpill verify`.
		if snap.Metadata.MessageID != "" {
			msg.ID = snap.Metadata.MessageID
		}
	}
	s.chat.Messages = append(s.chat.Messages, msg)
	s.chat.Touch()
	s.scheduleSave()

	if snap.Status.Type == gateway.StatusIncomplete {
		fmt.Println(WarningStyle.Render("(response truncated: " + snap.Status.Reason + ")"))
	}
}

func (s *chatSession) scheduleSave() {
	if s.persist && s.saver != nil {
		s.saver.Schedule(s.chat)
	}
}

// maybeGenerateTitle replaces the placeholder title after the first
// exchange. Generation is synchronous but cheap (30 tokens, rate
// limited) and falls back to a truncated first message offline.
func (s *chatSession) maybeGenerateTitle() {
	if s.chat.Title != "New Chat" || len(s.chat.Messages) < 2 {
		return
	}
	var messages []gateway.TitleMessage
	for _, msg := range s.chat.Messages {
		messages = append(messages, gateway.TitleMessage{Role: msg.Role, Content: msg.Content})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	title := s.titles.Generate(ctx, messages, config.Global().TitleModel())
	if title == "" || title == "New Chat" {
		return
	}
	s.chat.Title = title
	s.scheduleSave()
	storage.Events.Emit(storage.Event{Reason: storage.ReasonUpdate, ChatID: s.chat.ID})
	fmt.Println(DimStyle.Render("chat titled: " + title))
}

func (s *chatSession) reportStreamError(err error) {
	var reqErr *gateway.RequestError
	switch {
	case errors.Is(err, gateway.ErrNoModel):
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("No model configured. Set one with: redpill config set gateway.model <name>"))
	case errors.As(err, &reqErr):
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(fmt.Sprintf("Gateway error (HTTP %d): %s", reqErr.Status, reqErr.Body)))
	case errors.Is(err, context.Canceled):
		fmt.Println(WarningStyle.Render("(interrupted)"))
	default:
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Request failed: "+err.Error()))
	}
}

// samplingFromConfig maps the optional sampling settings onto the
// request. Unset values stay nil and are omitted from the wire body.
func samplingFromConfig(cfg *config.Config) gateway.Sampling {
	return gateway.Sampling{
		Temperature:      cfg.Sampling.Temperature,
		MaxTokens:        cfg.Sampling.MaxTokens,
		TopP:             cfg.Sampling.TopP,
		PresencePenalty:  cfg.Sampling.PresencePenalty,
		FrequencyPenalty: cfg.Sampling.FrequencyPenalty,
	}
}
