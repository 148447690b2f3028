// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/redpill-chat/redpill-cli/internal/config"
)

// HandleConfig dispatches the config subcommands: show, get, set, path.
func HandleConfig(args *Args) int {
	switch args.Subcommand {
	case "show", "":
		return configShow()
	case "get":
		return configGet(args.ConfigKey)
	case "set":
		return configSet(args.ConfigKey, args.ConfigVal)
	case "path":
		return configPath()
	default:
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Unknown config subcommand: "+args.Subcommand))
		return 1
	}
}

// configShow prints every known key with its current (redacted) value.
func configShow() int {
	cfg := config.Global().Redacted()
	fmt.Println(TitleStyle.Render("Configuration"))
	for _, key := range config.Keys() {
		value, err := cfg.Get(key)
		if err != nil {
			continue
		}
		display := formatConfigValue(value)
		fmt.Printf("  %s = %s\n", CommandStyle.Render(key), display)
	}
	if path, err := config.Path(); err == nil {
		fmt.Println()
		fmt.Println(DimStyle.Render("file: " + path))
	}
	return 0
}

func configGet(key string) int {
	value, err := config.Global().Get(key)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
	fmt.Println(formatConfigValue(value))
	return 0
}

func configSet(key, value string) int {
	cfg := config.Global()
	if err := cfg.Set(key, value); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Invalid value: "+err.Error()))
		return 1
	}
	if err := config.Save(cfg); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error saving config: "+err.Error()))
		return 1
	}
	config.SetGlobal(cfg)
	fmt.Println(SuccessStyle.Render(fmt.Sprintf("Set %s", key)))
	return 0
}

func configPath() int {
	path, err := config.Path()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
	fmt.Println(path)
	return 0
}

// formatConfigValue renders absent optional values as "(unset)" so the
// sampling section reads naturally.
func formatConfigValue(value any) string {
	switch v := value.(type) {
	case nil:
		return DimStyle.Render("(unset)")
	case string:
		if v == "" {
			return DimStyle.Render("(unset)")
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
