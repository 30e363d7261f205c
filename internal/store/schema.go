// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1
)

// SQLite schema for chat persistence
const Schema = `
-- Chats table: one row per conversation
CREATE TABLE IF NOT EXISTS chats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL -- Unix timestamp
);

-- Messages table: ordered turns within a chat
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,        -- Zero-based position within the chat
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    attachments TEXT NOT NULL,   -- JSON array of attachment refs, '[]' when none
    created_at INTEGER NOT NULL, -- Unix timestamp
    FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE,
    UNIQUE(chat_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, seq);
`
