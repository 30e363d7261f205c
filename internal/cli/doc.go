// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the parley command surface: argument parsing,
// the interactive chat shell, chat management commands, and the setup
// wizard.
//
// # Commands
//
//   - chat: interactive streaming session (the default command)
//   - list, new, rename, delete: chat management
//   - setup: first-run configuration wizard
//   - version, help: metadata
//
// # Key Types
//
//   - Command and Args: the parsed command line, produced by Parse
//   - ArgParser: flag and positional access for handler arguments
//   - ChatCLI: liner-backed input with persistent prompt history
//
// # Usage
//
// main calls Parse, switches on the Command, and dispatches to a
// HandleX function. Handlers come in pairs: HandleX runs
// HandleXCommand and exits with the code GetExitCode maps from its
// error, so the command logic stays testable.
package cli
