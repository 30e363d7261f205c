// parley - streaming chat for OpenAI-compatible endpoints.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"github.com/jeranaias/parley/internal/cli"
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
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdChat:
		cli.HandleChat(args)
	case cli.CmdList:
		cli.HandleList(args)
	case cli.CmdNew:
		cli.HandleNew(args)
	case cli.CmdRename:
		cli.HandleRename(args)
	case cli.CmdDelete:
		cli.HandleDelete(args)
	case cli.CmdSetup:
		cli.HandleSetup(args)
	case cli.CmdVersion:
		cli.HandleVersion(args)
	case cli.CmdHelp:
		cli.HandleHelp()
	case cli.CmdUnknown:
		cli.HandleUnknown(args)
	default:
		cli.HandleChat(args)
	}
}
