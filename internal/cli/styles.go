// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// SHARED STYLES
// =============================================================================
// Styles shared across command output. Interactive chat keeps its own
// prompt styles in chat.go; everything else renders through these.

func init() {
	// Pin lipgloss to the detected profile so styled output degrades to
	// plain text under NO_COLOR, dumb terminals, and pipes.
	lipgloss.SetColorProfile(GetColorProfile())
}

var (
	// TitleStyle is used for headers and section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	// LabelStyle is used for field names in key/value output.
	LabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	// ValueStyle is used for field values in key/value output.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// SuccessStyle is used for success indicators.
	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	// ErrorStyle is used for error messages.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	// WarningStyle is used for warnings and cautions.
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	// DimStyle is used for secondary information like timestamps.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// SeparatorStyle is used for horizontal rules.
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// =============================================================================
// RENDER HELPERS
// =============================================================================

// RenderSeparator returns a horizontal rule of the given width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 60
	}
	return SeparatorStyle.Render(strings.Repeat("-", width))
}

// RenderStatus renders a status line with an ok/fail marker.
func RenderStatus(ok bool, text string) string {
	if ok {
		return SuccessStyle.Render("[ok] ") + text
	}
	return ErrorStyle.Render("[fail] ") + text
}

// RenderLabel renders a "Label: value" pair with shared styling.
func RenderLabel(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value)
}
