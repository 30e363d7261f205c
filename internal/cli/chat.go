// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for the parley CLI.
//
// STREAMING: Tokens print as they arrive; Ctrl+C stops the response
// USABILITY: Line editing and prompt history via liner
//
// Handles the "parley chat" command, which is also the default when
// parley runs with no command word.
//
// Command: chat
// Short:   Open an interactive chat session
// Aliases: c
//
// Examples:
//   parley                       Start chatting in a new chat
//   parley chat --chat 12        Resume chat 12
//   parley -q chat               Skip the welcome banner
//
// Flags:
//   --chat ID           Resume an existing chat
//   -q, --quiet         Minimal output
//   --verbose           Show raw error detail
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /chats              List all chats
//   /new [title]        Start a fresh chat
//   /switch ID          Move to another chat
//   /title TITLE        Rename the current chat
//   /attach PATH        Queue a file for the next message
//   /drop               Clear queued attachments
//   /history            Replay this chat's saved messages
//   /quit, /q           Exit chat
//   Ctrl+C              Stop the streaming response
//   Ctrl+D              Exit chat
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/attach"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/store"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	// Prompt style
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	// Assistant label style
	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	// Welcome banner style
	welcomeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	// Secondary information style
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// Warning style
	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	// Error style
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// History role header style
	roleHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true)
)

// =============================================================================
// LINE EDITOR
// =============================================================================

// ChatCLI wraps liner with persistent prompt history.
type ChatCLI struct {
	line        *liner.State
	historyPath string
}

// NewChatCLI initializes the line editor and loads prompt history from
// the config directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line}
	if dir, err := config.ConfigDir(); err == nil {
		c.historyPath = filepath.Join(dir, "history")
		if f, err := os.Open(c.historyPath); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}
	return c
}

// ReadInput reads one line of input with history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close restores the terminal and saves prompt history.
// History is written with owner-only permissions; prompts can contain
// anything the user typed.
func (c *ChatCLI) Close() {
	if c.historyPath != "" {
		if f, err := os.OpenFile(c.historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// chatShell holds the state of one interactive session.
type chatShell struct {
	cfg      *config.Config
	store    *store.Store
	client   *api.Client
	preparer *attach.Preparer
	manager  *session.Manager
	input    *ChatCLI

	chat    *model.Chat
	pending []attach.Prepared

	// printed tracks how many bytes of the accumulated response are
	// already on screen; OnPartial delivers the full accumulated text.
	printed int

	// streaming holds the chat ID of an in-flight turn so the signal
	// handler knows what to stop. Zero when idle.
	streaming atomic.Int64

	// configStale flips when the watcher sees a config change; the
	// REPL applies it between turns to keep output and client state
	// off the watcher goroutine.
	configStale atomic.Bool

	verbose   bool
	turns     int
	startTime time.Time
}

// =============================================================================
// COMMAND HANDLER
// =============================================================================

// HandleChat runs the interactive chat session and exits.
func HandleChat(args Args) {
	err := HandleChatCommand(args)
	if err != nil {
		DisplayError(err)
	}
	os.Exit(GetExitCode(err))
}

// HandleChatCommand opens or resumes a chat and runs the REPL until the
// user leaves.
func HandleChatCommand(args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	cfg := config.Global()
	if cfg.APIKey == "" {
		promptForAPIKey(cfg)
	}

	st, err := openStore(cfg)
	if err != nil {
		return NewCommandError("chat", err, ExitConfig)
	}
	defer st.Close()

	client := api.NewClient(cfg.APIKey).
		WithBaseURL(cfg.BaseURL).
		WithModel(cfg.Model).
		WithTemperature(cfg.Temperature).
		WithTopP(cfg.TopP)

	chat, err := resolveChat(st, args.Chat)
	if err != nil {
		return err
	}

	sh := &chatShell{
		cfg:       cfg,
		store:     st,
		client:    client,
		preparer:  attach.NewPreparer(cfg.MaxAttachmentMB),
		chat:      chat,
		verbose:   args.Verbose,
		startTime: time.Now(),
	}
	sh.manager = session.NewManager(st, client, session.Callbacks{
		OnPartial:  sh.onPartial,
		OnComplete: sh.onComplete,
	})

	// Hot-reload config edits while the session runs. Best effort: a
	// missing watcher just means changes need a restart.
	if path, perr := config.ConfigPath(); perr == nil {
		watcher, werr := config.NewWatcher(path, config.DefaultDebounce, func(updated *config.Config) {
			config.SetGlobal(updated)
			sh.configStale.Store(true)
		})
		if werr == nil {
			if startErr := watcher.Watch(); startErr != nil {
				watcher.Close()
			} else {
				defer watcher.Close()
			}
		}
	}

	sh.input = NewChatCLI()
	defer sh.input.Close()

	if !args.Quiet {
		sh.printWelcome()
	}
	if !client.IsConfigured() {
		fmt.Println(warningStyle.Render("No API key configured. Requests will fail until 'parley setup' runs."))
	}

	return sh.run()
}

// promptForAPIKey collects a missing key at session start and writes it
// back to the config file.
func promptForAPIKey(cfg *config.Config) {
	fmt.Println(warningStyle.Render("No API key configured."))
	key, err := promptSecure("API key (input hidden, Enter to skip): ")
	if err != nil || key == "" {
		return
	}
	cfg.APIKey = key
	if err := config.Save(cfg); err != nil {
		fmt.Println(warningStyle.Render("Could not save the key: " + err.Error()))
		return
	}
	config.SetGlobal(cfg)
	fmt.Println(RenderStatus(true, "API key saved."))
}

// resolveChat opens the chat named by --chat, or creates a fresh one.
func resolveChat(st *store.Store, ref string) (*model.Chat, error) {
	if ref == "" {
		chat, err := st.CreateChat("")
		if err != nil {
			return nil, NewCommandError("chat", err, ExitGeneral)
		}
		return chat, nil
	}

	id, err := ParseChatID(ref)
	if err != nil {
		return nil, err
	}
	chat, err := st.GetChat(id)
	if err != nil {
		if errors.Is(err, store.ErrChatNotFound) {
			return nil, NewNotFoundError("chat", ref)
		}
		return nil, NewCommandError("chat", err, ExitGeneral)
	}
	return chat, nil
}

// =============================================================================
// REPL LOOP
// =============================================================================

// run is the interactive loop. Input is read with liner; turns run
// inline on this goroutine so streamed output prints directly.
func (sh *chatShell) run() error {
	// SIGINT only reaches this handler while a turn is streaming; at
	// the prompt, liner has the terminal in raw mode and reports
	// Ctrl+C as ErrPromptAborted instead.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if id := sh.streaming.Load(); id != 0 {
				sh.manager.Stop(id)
			}
		}
	}()

	for {
		sh.applyStaleConfig()

		input, err := sh.input.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				sh.printExitSummary()
				return nil
			}
			return NewCommandError("chat", err, ExitGeneral)
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}

		// exit and quit work without the slash.
		if trimmed == "exit" || trimmed == "quit" {
			sh.printExitSummary()
			return nil
		}

		if strings.HasPrefix(trimmed, "/") {
			cont, err := sh.handleSlashCommand(trimmed)
			if err != nil {
				fmt.Println(errorStyle.Render(err.Error()))
			}
			if !cont {
				sh.printExitSummary()
				return nil
			}
			continue
		}

		sh.sendTurn(trimmed)
	}
}

// applyStaleConfig picks up config file edits between turns.
func (sh *chatShell) applyStaleConfig() {
	if !sh.configStale.Swap(false) {
		return
	}
	cfg := config.Global()
	if cfg.APIKey != sh.cfg.APIKey {
		fmt.Println(dimStyle.Render("API key change takes effect after restart."))
	}
	sh.cfg = cfg
	sh.client.WithBaseURL(cfg.BaseURL).
		WithModel(cfg.Model).
		WithTemperature(cfg.Temperature).
		WithTopP(cfg.TopP)
	fmt.Println(dimStyle.Render("Config reloaded: model " + cfg.Model))
}

// =============================================================================
// TURNS
// =============================================================================

// sendTurn runs one conversation turn inline. Queued attachments ride
// along and are consumed whether or not the turn succeeds; their temp
// files are gone either way.
func (sh *chatShell) sendTurn(text string) {
	atts := sh.pending
	sh.pending = nil
	sh.printed = 0

	sh.streaming.Store(sh.chat.ID)
	err := sh.manager.SendTurn(context.Background(), sh.chat.ID, text, atts)
	sh.streaming.Store(0)

	if err != nil {
		if sh.printed > 0 {
			fmt.Println()
		}
		fmt.Println(errorStyle.Render(FormatTurnError(err)))
		if sh.verbose {
			fmt.Println(dimStyle.Render("detail: " + err.Error()))
		}
		return
	}

	sh.turns++

	// The first turn may have auto-titled the chat.
	if updated, err := sh.store.GetChat(sh.chat.ID); err == nil {
		sh.chat = updated
	}
}

// onPartial streams accumulated text to the terminal, printing only the
// unseen suffix. Runs on the SendTurn goroutine, which is this one.
func (sh *chatShell) onPartial(chatID int64, text string) {
	if sh.printed == 0 {
		fmt.Print(assistantStyle.Render("assistant> "))
	}
	fmt.Print(text[sh.printed:])
	sh.printed = len(text)
}

// onComplete prints whatever the rate-limited partial stream held back.
func (sh *chatShell) onComplete(chatID int64, msg model.Message, truncated bool) {
	if sh.printed == 0 {
		fmt.Print(assistantStyle.Render("assistant> "))
	}
	if len(msg.Content) > sh.printed {
		fmt.Print(msg.Content[sh.printed:])
		sh.printed = len(msg.Content)
	}
	if msg.Content == "" {
		fmt.Print(dimStyle.Render("(empty response)"))
	}
	fmt.Println()
	if truncated {
		fmt.Println(warningStyle.Render("Response hit the model's output limit and was cut off."))
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const chatHelpText = `Interactive commands:
  /help             Show this help
  /chats            List all chats
  /new [title]      Start a fresh chat
  /switch <id>      Move to another chat
  /title <title>    Rename the current chat
  /attach <path>    Queue an image, PDF, or text file for the next message
  /drop             Clear queued attachments
  /history          Replay this chat's saved messages
  /quit             Leave (exit and quit work too)

Ctrl+C stops a streaming response; at the prompt it leaves the session.`

// handleSlashCommand runs a /command. Returns false when the session
// should end.
func (sh *chatShell) handleSlashCommand(input string) (bool, error) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	rest := fields[1:]

	switch cmd {
	case "/help", "/h":
		fmt.Println(chatHelpText)

	case "/chats":
		chats, err := sh.store.ListChats()
		if err != nil {
			return true, err
		}
		printChatTable(chats)

	case "/new":
		chat, err := sh.store.CreateChat(JoinPositionalArgs(rest))
		if err != nil {
			return true, err
		}
		sh.chat = chat
		fmt.Printf("Started chat %d: %s\n", chat.ID, chat.Title)

	case "/switch":
		if len(rest) == 0 {
			return true, errors.New("expected: /switch <id>")
		}
		id, err := ParseChatID(rest[0])
		if err != nil {
			return true, err
		}
		chat, err := sh.store.GetChat(id)
		if err != nil {
			if errors.Is(err, store.ErrChatNotFound) {
				return true, NewNotFoundError("chat", rest[0])
			}
			return true, err
		}
		sh.chat = chat
		fmt.Printf("Switched to chat %d: %s\n", chat.ID, chat.Title)

	case "/title":
		title := JoinPositionalArgs(rest)
		if title == "" {
			return true, errors.New("expected: /title <new title>")
		}
		if err := sh.store.RenameChat(sh.chat.ID, title); err != nil {
			return true, err
		}
		sh.chat.Title = title
		fmt.Printf("Renamed chat %d to %q\n", sh.chat.ID, title)

	case "/attach":
		if len(rest) == 0 {
			return true, errors.New("expected: /attach <path>")
		}
		// Rejoin so paths with spaces survive the field split.
		sh.attachFile(strings.Join(rest, " "))

	case "/drop":
		n := len(sh.pending)
		attach.CleanupTemp(sh.pending)
		sh.pending = nil
		fmt.Printf("Dropped %d attachment(s)\n", n)

	case "/history":
		sh.printHistory()

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command %s (try /help)", cmd)
	}

	return true, nil
}

// attachFile prepares a file and queues it for the next message.
func (sh *chatShell) attachFile(path string) {
	prepared, err := sh.preparer.PrepareFile(path)
	if err != nil {
		fmt.Println(errorStyle.Render(FormatTurnError(err)))
		if sh.verbose {
			fmt.Println(dimStyle.Render("detail: " + err.Error()))
		}
		return
	}

	sh.pending = append(sh.pending, prepared)
	fmt.Printf("Attached %s (%s)\n", filepath.Base(path), prepared.Ref.Kind)
	if n := len(sh.pending); n > 1 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d attachments queued for the next message", n)))
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

func (sh *chatShell) printWelcome() {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("parley " + Version))
	fmt.Println(dimStyle.Render(fmt.Sprintf("model %s | chat %d: %s", sh.cfg.Model, sh.chat.ID, sh.chat.Title)))
	fmt.Println(dimStyle.Render("Type /help for commands, /quit to leave."))

	if msgs, err := sh.store.GetMessages(sh.chat.ID); err == nil && len(msgs) > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d earlier message(s). /history replays them.", len(msgs))))
	}
	fmt.Println()
}

// printHistory replays the persisted conversation, wrapped to the
// terminal width.
func (sh *chatShell) printHistory() {
	msgs, err := sh.store.GetMessages(sh.chat.ID)
	if err != nil {
		fmt.Println(errorStyle.Render("failed to load history: " + err.Error()))
		return
	}
	if len(msgs) == 0 {
		fmt.Println(dimStyle.Render("No messages in this chat yet."))
		return
	}

	width := GetTerminalWidth()
	fmt.Println()
	for _, msg := range msgs {
		header := roleHeaderStyle.Render(msg.Role.DisplayName()) +
			dimStyle.Render("  "+msg.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Println(header)
		fmt.Println(WrapText(msg.Content, width-2))
		for _, ref := range msg.Attachments {
			fmt.Println(dimStyle.Render(fmt.Sprintf("  [%s] %s", ref.Kind, ref.Path)))
		}
		fmt.Println()
	}
}

func (sh *chatShell) printExitSummary() {
	dur := time.Since(sh.startTime).Round(time.Second)
	fmt.Println()
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d turn(s) in %s. Chat %d saved.", sh.turns, dur, sh.chat.ID)))
}
