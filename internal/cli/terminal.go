// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TERMINAL DETECTION
// =============================================================================

// IsTTY reports whether stdin is attached to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY reports whether stdout is attached to a terminal.
// Piped output (parley list | grep ...) should skip ANSI styling.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsStderrTTY reports whether stderr is attached to a terminal.
func IsStderrTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// GetTerminalWidth returns the current terminal width in columns.
// Falls back to 80 when stdout is not a terminal or the size is unavailable.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// GetTerminalSize returns the terminal width and height in cells.
// Falls back to 80x24 when the size is unavailable.
func GetTerminalSize() (width, height int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 || height <= 0 {
		return 80, 24
	}
	return width, height
}

// =============================================================================
// COLOR SUPPORT
// =============================================================================

var (
	colorsOnce    sync.Once
	colorsEnabled bool
)

// ColorsEnabled reports whether output should use ANSI colors.
//
// Honors the NO_COLOR convention (https://no-color.org) and FORCE_COLOR
// for CI systems that want styled output without a TTY. The result is
// computed once per process.
func ColorsEnabled() bool {
	colorsOnce.Do(func() {
		if os.Getenv("NO_COLOR") != "" {
			colorsEnabled = false
			return
		}
		if os.Getenv("FORCE_COLOR") != "" {
			colorsEnabled = true
			return
		}
		if os.Getenv("TERM") == "dumb" {
			colorsEnabled = false
			return
		}
		colorsEnabled = IsStdoutTTY()
	})
	return colorsEnabled
}

// GetColorProfile returns the termenv profile matching the current terminal.
// Returns Ascii when colors are disabled so styled strings degrade to plain text.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// =============================================================================
// TEXT WRAPPING
// =============================================================================

// WrapText wraps text to the given width, breaking on word boundaries.
// Words longer than the width are left intact on their own line.
func WrapText(text string, width int) string {
	if width <= 0 {
		return text
	}

	var result strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			result.WriteString("\n")
		}
		result.WriteString(wrapLine(line, width))
	}
	return result.String()
}

// wrapLine wraps a single line of text at word boundaries.
func wrapLine(line string, width int) string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return line
	}

	var result strings.Builder
	lineLen := 0
	for i, word := range words {
		wordLen := len([]rune(word))
		if i == 0 {
			result.WriteString(word)
			lineLen = wordLen
			continue
		}
		if lineLen+1+wordLen > width {
			result.WriteString("\n")
			result.WriteString(word)
			lineLen = wordLen
		} else {
			result.WriteString(" ")
			result.WriteString(word)
			lineLen += 1 + wordLen
		}
	}
	return result.String()
}

// =============================================================================
// INTERACTIVE REQUIREMENTS
// =============================================================================

// TTYRequiredError indicates a command needs an interactive terminal.
type TTYRequiredError struct {
	Command string
}

func (e *TTYRequiredError) Error() string {
	return fmt.Sprintf("'%s' requires an interactive terminal", e.Command)
}

// CanPrompt reports whether interactive prompts are possible.
func CanPrompt() bool {
	return IsTTY() && IsStdoutTTY()
}

// RequiresTTY returns an error when the named command cannot run
// because stdin is not a terminal.
func RequiresTTY(command string) error {
	if !IsTTY() {
		return &TTYRequiredError{Command: command}
	}
	return nil
}
