// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
)

// Version information, set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies the top-level subcommand selected on the command line.
type Command int

const (
	CmdChat Command = iota // interactive REPL (the default)
	CmdAsk                 // one-shot query
	CmdList                // list stored chats
	CmdDelete              // delete a stored chat
	CmdExport              // export chats to markdown / zip
	CmdVerify              // TEE attestation verification
	CmdConfig              // configuration management
	CmdVersion
	CmdHelp
)

// Args holds the parsed command line.
type Args struct {
	Command    Command
	Query      string // ask: the question; delete/export/verify: the chat id
	Subcommand string // config: show | get | set | path
	ConfigKey  string
	ConfigVal  string
	Options    map[string]string // generic --flag[=value] options
}

// HasOption reports whether a boolean flag like --all was given.
func (a *Args) HasOption(name string) bool {
	_, ok := a.Options[name]
	return ok
}

// Option returns the value of --name=value, or fallback when absent.
func (a *Args) Option(name, fallback string) string {
	if v, ok := a.Options[name]; ok && v != "" {
		return v
	}
	return fallback
}

// =============================================================================
// PARSING
// =============================================================================

// Parse interprets os.Args[1:]. No arguments means interactive chat.
func Parse(argv []string) (*Args, error) {
	args := &Args{Command: CmdChat, Options: map[string]string{}}

	rest, err := parseGlobalFlags(args, argv)
	if err != nil {
		return nil, err
	}
	if args.Command == CmdVersion || args.Command == CmdHelp {
		return args, nil
	}
	if len(rest) == 0 {
		return args, nil
	}

	cmd, rest := rest[0], rest[1:]
	switch cmd {
	case "chat":
		args.Command = CmdChat
		return args, parseFlagsOnly(args, rest)
	case "ask":
		args.Command = CmdAsk
		return args, parseAsk(args, rest)
	case "list", "ls":
		args.Command = CmdList
		return args, parseFlagsOnly(args, rest)
	case "delete", "rm":
		args.Command = CmdDelete
		return args, parseOneArg(args, rest, "delete requires a chat id (or --all)")
	case "export":
		args.Command = CmdExport
		return args, parseExport(args, rest)
	case "verify":
		args.Command = CmdVerify
		return args, parseVerify(args, rest)
	case "config":
		args.Command = CmdConfig
		return args, parseConfig(args, rest)
	case "version":
		args.Command = CmdVersion
		return args, nil
	case "help":
		args.Command = CmdHelp
		return args, nil
	default:
		return nil, fmt.Errorf("unknown command: %s (run 'redpill help')", cmd)
	}
}

// parseGlobalFlags consumes leading --flags that apply to every command
// and returns the remaining positional arguments.
func parseGlobalFlags(args *Args, argv []string) ([]string, error) {
	var rest []string
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "--help" || arg == "-h":
			args.Command = CmdHelp
			return nil, nil
		case arg == "--version" || arg == "-v":
			args.Command = CmdVersion
			return nil, nil
		case strings.HasPrefix(arg, "--"):
			name, value, hasValue := strings.Cut(arg[2:], "=")
			if name == "" {
				return nil, fmt.Errorf("malformed flag: %s", arg)
			}
			if !hasValue && takesValue(name) {
				if i+1 >= len(argv) {
					return nil, fmt.Errorf("--%s requires a value", name)
				}
				i++
				value = argv[i]
			}
			args.Options[name] = value
		default:
			rest = append(rest, argv[i:]...)
			return rest, nil
		}
	}
	return rest, nil
}

// takesValue lists flags that consume the following argument when given
// in the space-separated form (--model llama vs --model=llama).
func takesValue(name string) bool {
	switch name {
	case "model", "system", "output", "temperature", "max-tokens":
		return true
	}
	return false
}

func parseFlagsOnly(args *Args, rest []string) error {
	for _, arg := range rest {
		if !strings.HasPrefix(arg, "--") {
			return fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, _ := strings.Cut(arg[2:], "=")
		args.Options[name] = value
	}
	return nil
}

func parseAsk(args *Args, rest []string) error {
	var words []string
	for _, arg := range rest {
		if strings.HasPrefix(arg, "--") {
			name, value, _ := strings.Cut(arg[2:], "=")
			args.Options[name] = value
			continue
		}
		words = append(words, arg)
	}
	args.Query = strings.TrimSpace(strings.Join(words, " "))
	if args.Query == "" {
		return fmt.Errorf("ask requires a question, e.g. redpill ask \"what is a TEE?\"")
	}
	return nil
}

func parseOneArg(args *Args, rest []string, missing string) error {
	for _, arg := range rest {
		if strings.HasPrefix(arg, "--") {
			name, value, _ := strings.Cut(arg[2:], "=")
			args.Options[name] = value
			continue
		}
		if args.Query != "" {
			return fmt.Errorf("unexpected argument: %s", arg)
		}
		args.Query = arg
	}
	if args.Query == "" && !args.HasOption("all") {
		return fmt.Errorf("%s", missing)
	}
	return nil
}

func parseExport(args *Args, rest []string) error {
	return parseOneArg(args, rest, "export requires a chat id (or --all for a zip archive)")
}

func parseVerify(args *Args, rest []string) error {
	for _, arg := range rest {
		if strings.HasPrefix(arg, "--") {
			name, value, _ := strings.Cut(arg[2:], "=")
			args.Options[name] = value
			continue
		}
		if args.Query != "" {
			return fmt.Errorf("unexpected argument: %s", arg)
		}
		args.Query = arg
	}
	return nil
}

func parseConfig(args *Args, rest []string) error {
	if len(rest) == 0 {
		args.Subcommand = "show"
		return nil
	}
	args.Subcommand = rest[0]
	rest = rest[1:]
	switch args.Subcommand {
	case "show", "path":
		if len(rest) != 0 {
			return fmt.Errorf("config %s takes no arguments", args.Subcommand)
		}
	case "get":
		if len(rest) != 1 {
			return fmt.Errorf("usage: redpill config get <key>")
		}
		args.ConfigKey = rest[0]
	case "set":
		if len(rest) != 2 {
			return fmt.Errorf("usage: redpill config set <key> <value>")
		}
		args.ConfigKey, args.ConfigVal = rest[0], rest[1]
	default:
		return fmt.Errorf("unknown config subcommand: %s", args.Subcommand)
	}
	return nil
}

// =============================================================================
// USAGE / VERSION
// =============================================================================

const usageText = `redpill %s - private AI chat over confidential compute

USAGE:
    redpill [command] [options]

COMMANDS:
    chat                Interactive chat session (default)
    ask <question>      One-shot question, answer to stdout
    list                List stored chats
    delete <id>         Delete a stored chat (--all clears everything)
    export <id>         Export a chat to markdown (--all writes a zip archive)
    verify [id]         Show the TEE attestation report (with an id: message signature)
    config              Show configuration
    config get <key>    Read one value (dot notation, e.g. gateway.model)
    config set <key> <value>
    config path         Print the config file location
    version             Show version information
    help                Show this help

OPTIONS:
    --model <name>      Override the configured model
    --system <prompt>   Override the system prompt (chat, ask)
    --output <dir>      Output directory for export
    --no-save           Do not persist the conversation (chat)
    --reasoning         Include model reasoning in export / output
    --all               Apply to every stored chat (delete, export)

EXAMPLES:
    redpill
    redpill ask "explain remote attestation"
    redpill export chat_4f1f... --output=./notes
    redpill config set gateway.model phala/qwen-2.5-7b-instruct
`

// PrintUsage writes the help text to stdout.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion writes build metadata to stdout.
func PrintVersion() {
	fmt.Printf("redpill %s\n", Version)
	fmt.Printf("  commit: %s\n", GitCommit)
	fmt.Printf("  built:  %s\n", BuildDate)
}
