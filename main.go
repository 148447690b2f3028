// redpill - private AI chat over confidential compute, from the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/redpill-chat/redpill-cli/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	args, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		fmt.Fprintln(os.Stderr, "Run 'redpill help' for usage.")
		os.Exit(2)
	}

	switch args.Command {
	case cli.CmdChat:
		os.Exit(cli.HandleChat(args))
	case cli.CmdAsk:
		os.Exit(cli.HandleAsk(args))
	case cli.CmdList:
		os.Exit(cli.HandleList(args))
	case cli.CmdDelete:
		os.Exit(cli.HandleDelete(args))
	case cli.CmdExport:
		os.Exit(cli.HandleExport(args))
	case cli.CmdVerify:
		os.Exit(cli.HandleVerify(args))
	case cli.CmdConfig:
		os.Exit(cli.HandleConfig(args))
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		cli.PrintUsage()
		os.Exit(2)
	}
}
