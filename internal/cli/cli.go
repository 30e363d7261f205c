// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"
)

// =============================================================================
// VERSION INFO
// =============================================================================

// Version information (set at build time by the main package).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies a CLI command.
type Command int

const (
	CmdChat Command = iota // Interactive chat session (default)
	CmdList                // List saved chats
	CmdNew                 // Create a chat
	CmdRename              // Rename a chat
	CmdDelete              // Delete a chat
	CmdSetup               // First-run configuration wizard
	CmdVersion             // Version information
	CmdHelp                // Usage text
	CmdUnknown             // Unrecognized command word
)

// Args holds parsed command-line arguments.
type Args struct {
	// Global flags
	Quiet   bool // -q, --quiet: suppress the welcome banner
	Verbose bool // --verbose: show raw errors

	// chat
	Chat string // --chat <id>: resume an existing chat

	// Remaining arguments after the command word
	Raw []string
}

// =============================================================================
// USAGE
// =============================================================================

const usageText = `parley %s - streaming chat for OpenAI-compatible endpoints

USAGE:
    parley [command] [flags]

COMMANDS:
    chat        Open an interactive chat session (default)
    list        List saved chats
    new         Create a chat: parley new [title]
    rename      Rename a chat: parley rename <id> <title>
    delete      Delete a chat and its messages: parley delete <id>
    setup       Interactive configuration wizard
    version     Show version information
    help        Show this help

FLAGS:
    --chat <id>     Resume an existing chat (chat command)
    -q, --quiet     Suppress the welcome banner
    --verbose       Show raw errors and request detail

EXAMPLES:
    parley                        Start chatting in a new chat
    parley chat --chat 12         Resume chat 12
    parley new "api design"       Create a titled chat
    parley list                   Show all chats
    parley delete 12 --confirm    Delete without prompting

Inside a session, type /help for the interactive commands.
`

// PrintUsage prints the usage text to stdout.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints the version block to stdout.
func PrintVersion() {
	fmt.Println(TitleStyle.Render("parley " + Version))
	fmt.Println(RenderLabel("Commit", GitCommit))
	fmt.Println(RenderLabel("Built", BuildDate))
}

// =============================================================================
// PARSING
// =============================================================================

// Parse reads os.Args and returns the selected command and its arguments.
func Parse() (Command, Args) {
	return parseArgs(os.Args[1:])
}

func parseArgs(argv []string) (Command, Args) {
	parsed := Args{}
	remaining := parseGlobalFlags(argv, &parsed)

	if len(remaining) == 0 {
		return CmdChat, parsed
	}

	// A leading flag means an implicit chat command: parley --chat 3.
	if strings.HasPrefix(remaining[0], "-") {
		parsed.Raw = remaining
		parseChatArgs(&parsed, remaining)
		return CmdChat, parsed
	}

	cmd := strings.ToLower(remaining[0])
	rest := remaining[1:]
	parsed.Raw = rest

	switch cmd {
	case "chat", "c":
		parseChatArgs(&parsed, rest)
		return CmdChat, parsed
	case "list", "ls":
		return CmdList, parsed
	case "new":
		return CmdNew, parsed
	case "rename":
		return CmdRename, parsed
	case "delete", "rm":
		return CmdDelete, parsed
	case "setup":
		return CmdSetup, parsed
	case "version":
		return CmdVersion, parsed
	case "help":
		return CmdHelp, parsed
	default:
		parsed.Raw = remaining
		return CmdUnknown, parsed
	}
}

// parseGlobalFlags extracts flags that apply to every command and
// returns the remaining arguments.
func parseGlobalFlags(argv []string, parsed *Args) []string {
	var remaining []string
	for _, arg := range argv {
		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "--verbose":
			parsed.Verbose = true
		case "-v", "--version":
			remaining = append(remaining, "version")
		case "-h", "--help":
			remaining = append(remaining, "help")
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining
}

// parseChatArgs extracts chat-command flags. The value of --chat stays
// a string here; the handler validates it so a bad ID gets a real error
// instead of silently opening a new chat.
func parseChatArgs(parsed *Args, args []string) {
	p := NewArgParser(args)
	parsed.Chat = p.FlagOrDefault("chat", "")
}

// =============================================================================
// SMALL HANDLERS
// =============================================================================

// HandleVersion prints version information and exits.
func HandleVersion(args Args) {
	PrintVersion()
	os.Exit(ExitSuccess)
}

// HandleHelp prints usage and exits.
func HandleHelp() {
	PrintUsage()
	os.Exit(ExitSuccess)
}

// HandleUnknown reports an unrecognized command and exits with a usage error.
func HandleUnknown(args Args) {
	name := ""
	if len(args.Raw) > 0 {
		name = args.Raw[0]
	}
	fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
	fmt.Fprintln(os.Stderr, "Run 'parley help' for usage.")
	os.Exit(ExitUsage)
}
