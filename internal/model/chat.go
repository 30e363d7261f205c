// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"strings"
	"time"
)

// DefaultChatTitle is the title a chat carries from creation until its first
// turn derives a real one.
const DefaultChatTitle = "New Chat"

// titleMaxRunes is how many leading runes of the first turn become the title.
const titleMaxRunes = 30

// Chat is a persisted conversation container. Messages reference it by ID
// and are removed with it.
type Chat struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// DeriveTitle builds a chat title from the first turn.
//
// Text wins when present: the first 30 runes, with "..." appended when
// truncated. An attachment-only turn titles as "N Attachment(s)". A turn
// with neither keeps the default title.
func DeriveTitle(text string, attachmentCount int) string {
	text = strings.TrimSpace(text)
	if text != "" {
		runes := []rune(text)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes]) + "..."
		}
		return text
	}
	if attachmentCount > 0 {
		return strconv.Itoa(attachmentCount) + " Attachment(s)"
	}
	return DefaultChatTitle
}
