// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared across the store, the
// session manager, and shells: chats, messages, roles, and attachment
// references.
package model

import (
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a persisted message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether the role is one of the two persisted roles.
// Stop notices and errors are surfaced through callbacks, never stored,
// so nothing else is valid at the storage boundary.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single persisted message within a chat.
//
// Messages are immutable once appended. Seq is the zero-based, gapless
// position of the message inside its chat; ID is the database rowid and is
// never reused, so the two advance independently.
type Message struct {
	ID          int64           `json:"id"`
	ChatID      int64           `json:"chat_id"`
	Seq         int             `json:"seq"`
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message carries no content and no attachments.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && len(m.Attachments) == 0
}

// EstimateTokens gives a rough estimate of token count.
// Uses the approximation of ~4 characters per token.
func (m *Message) EstimateTokens() int {
	return (len(m.Content) + 3) / 4
}
