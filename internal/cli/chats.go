// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/store"
	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// CHAT MANAGEMENT COMMANDS
// =============================================================================
// list, new, rename, delete. Each HandleX wrapper runs the command and
// exits with the mapped code; the HandleXCommand functions hold the
// logic and stay testable.

// HandleList runs the list command and exits.
func HandleList(args Args) {
	err := HandleListCommand(args)
	if err != nil {
		DisplayError(err)
	}
	os.Exit(GetExitCode(err))
}

// HandleNew runs the new command and exits.
func HandleNew(args Args) {
	err := HandleNewCommand(args)
	if err != nil {
		DisplayError(err)
	}
	os.Exit(GetExitCode(err))
}

// HandleRename runs the rename command and exits.
func HandleRename(args Args) {
	err := HandleRenameCommand(args)
	if err != nil {
		DisplayError(err)
	}
	os.Exit(GetExitCode(err))
}

// HandleDelete runs the delete command and exits.
func HandleDelete(args Args) {
	err := HandleDeleteCommand(args)
	if err != nil {
		DisplayError(err)
	}
	os.Exit(GetExitCode(err))
}

// =============================================================================
// STORE ACCESS
// =============================================================================

// openStore opens the chat database from config, creating the config
// directory on first use.
func openStore(cfg *config.Config) (*store.Store, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	path := cfg.DBPath
	if path == "" {
		path = config.DefaultDBPath()
	}
	return store.Open(path)
}

// =============================================================================
// LIST
// =============================================================================

// Column layout for the chat table.
const (
	idColWidth      = 6
	createdColWidth = 16

	// ID + gap + CREATED + gap
	chatTableMetaWidth = idColWidth + 2 + createdColWidth + 2
)

// HandleListCommand lists all chats, newest first.
func HandleListCommand(args Args) error {
	cfg := config.Global()
	s, err := openStore(cfg)
	if err != nil {
		return NewCommandError("list", err, ExitConfig)
	}
	defer s.Close()

	chats, err := s.ListChats()
	if err != nil {
		return NewCommandError("list", err, ExitGeneral)
	}

	if len(chats) == 0 {
		fmt.Println(DimStyle.Render("No chats yet. Run 'parley' to start one."))
		return nil
	}

	printChatTable(chats)
	return nil
}

// printChatTable renders chats in fixed columns sized to the terminal.
func printChatTable(chats []model.Chat) {
	titleWidth := GetTerminalWidth() - chatTableMetaWidth
	if titleWidth < 10 {
		titleWidth = 10
	}

	header := util.PadWidth("ID", idColWidth) + "  " +
		util.PadWidth("CREATED", createdColWidth) + "  TITLE"
	fmt.Println(TitleStyle.Render(header))

	for _, chat := range chats {
		id := util.PadWidth(fmt.Sprintf("%d", chat.ID), idColWidth)
		created := chat.CreatedAt.Format("2006-01-02 15:04")
		title := util.TruncateWidth(chat.Title, titleWidth)
		fmt.Println(id + "  " + DimStyle.Render(util.PadWidth(created, createdColWidth)) + "  " + title)
	}
}

// =============================================================================
// NEW
// =============================================================================

// HandleNewCommand creates a chat. Positional arguments join into the
// title so multi-word titles need no quoting.
func HandleNewCommand(args Args) error {
	cfg := config.Global()
	s, err := openStore(cfg)
	if err != nil {
		return NewCommandError("new", err, ExitConfig)
	}
	defer s.Close()

	p := NewArgParser(args.Raw)
	title := JoinPositionalArgs(p.PositionalFrom(0))

	chat, err := s.CreateChat(title)
	if err != nil {
		return NewCommandError("new", err, ExitGeneral)
	}

	fmt.Printf("Created chat %d: %s\n", chat.ID, chat.Title)
	return nil
}

// =============================================================================
// RENAME
// =============================================================================

// HandleRenameCommand renames a chat: parley rename <id> <title>.
func HandleRenameCommand(args Args) error {
	p := NewArgParser(args.Raw)

	idArg, ok := p.Positional(0)
	if !ok {
		return NewValidationError("arguments", strings.Join(args.Raw, " "),
			"expected: parley rename <id> <title>")
	}
	id, err := ParseChatID(idArg)
	if err != nil {
		return err
	}

	title := JoinPositionalArgs(p.PositionalFrom(1))
	if title == "" {
		return NewValidationError("title", "", "new title cannot be empty")
	}

	cfg := config.Global()
	s, err := openStore(cfg)
	if err != nil {
		return NewCommandError("rename", err, ExitConfig)
	}
	defer s.Close()

	if err := s.RenameChat(id, title); err != nil {
		if errors.Is(err, store.ErrChatNotFound) {
			return NewNotFoundError("chat", idArg)
		}
		return NewCommandError("rename", err, ExitGeneral)
	}

	fmt.Printf("Renamed chat %d to %q\n", id, title)
	return nil
}

// =============================================================================
// DELETE
// =============================================================================

// HandleDeleteCommand deletes a chat and its messages. Prompts for
// confirmation unless --confirm is given.
func HandleDeleteCommand(args Args) error {
	p := NewArgParser(args.Raw)

	idArg, ok := p.Positional(0)
	if !ok {
		return NewValidationError("arguments", strings.Join(args.Raw, " "),
			"expected: parley delete <id>")
	}
	id, err := ParseChatID(idArg)
	if err != nil {
		return err
	}

	cfg := config.Global()
	s, err := openStore(cfg)
	if err != nil {
		return NewCommandError("delete", err, ExitConfig)
	}
	defer s.Close()

	chat, err := s.GetChat(id)
	if err != nil {
		if errors.Is(err, store.ErrChatNotFound) {
			return NewNotFoundError("chat", idArg)
		}
		return NewCommandError("delete", err, ExitGeneral)
	}

	if !p.BoolFlag("confirm") {
		if err := RequiresTTY("delete"); err != nil {
			return fmt.Errorf("%w (use --confirm to skip the prompt)", err)
		}
		fmt.Printf("Delete chat %d %q and all its messages? [y/N]: ", chat.ID, chat.Title)
		if !readConfirmation() {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := s.DeleteChat(id); err != nil {
		return NewCommandError("delete", err, ExitGeneral)
	}

	fmt.Printf("Deleted chat %d\n", id)
	return nil
}

// readConfirmation reads a yes/no answer from stdin. Anything other
// than an explicit yes declines.
func readConfirmation() bool {
	line, err := getInputReader().ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
