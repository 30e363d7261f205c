// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists chats and messages in a local SQLite database.
//
// Messages are append-only: each carries a gapless, zero-based sequence
// number within its chat, assigned inside the insert transaction. Deleting
// a chat removes its messages through a foreign key cascade.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrChatNotFound indicates the referenced chat does not exist
	ErrChatNotFound = errors.New("chat not found")

	// ErrInvalidRole indicates a message role outside the persisted set
	ErrInvalidRole = errors.New("invalid message role")
)

// =============================================================================
// STORE
// =============================================================================

// Store wraps the SQLite database holding chats and messages.
// It is safe for concurrent use; SQLite access is serialized through a
// single connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the chat database at path, creating the file and schema as
// needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}

	// Create database directory if needed
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // No lifetime limit

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",   // Enable foreign key constraints
		"PRAGMA busy_timeout=5000", // Wait up to 5s on a locked database
		fmt.Sprintf("PRAGMA user_version=%d", SchemaVersion),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// CreateChat creates a new chat. A blank title becomes the default title.
func (s *Store) CreateChat(title string) (*model.Chat, error) {
	if strings.TrimSpace(title) == "" {
		title = model.DefaultChatTitle
	}

	now := time.Now().Unix()
	result, err := s.db.Exec("INSERT INTO chats (title, created_at) VALUES (?, ?)", title, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat id: %w", err)
	}

	return &model.Chat{
		ID:        id,
		Title:     title,
		CreatedAt: time.Unix(now, 0),
	}, nil
}

// GetChat returns a single chat by ID.
func (s *Store) GetChat(chatID int64) (*model.Chat, error) {
	var chat model.Chat
	var createdAt int64
	err := s.db.QueryRow("SELECT id, title, created_at FROM chats WHERE id = ?", chatID).
		Scan(&chat.ID, &chat.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	chat.CreatedAt = time.Unix(createdAt, 0)
	return &chat, nil
}

// ListChats returns all chats, newest first.
func (s *Store) ListChats() ([]model.Chat, error) {
	rows, err := s.db.Query(`
		SELECT id, title, created_at FROM chats
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []model.Chat
	for rows.Next() {
		var chat model.Chat
		var createdAt int64
		if err := rows.Scan(&chat.ID, &chat.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chat.CreatedAt = time.Unix(createdAt, 0)
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// RenameChat sets a chat's title.
func (s *Store) RenameChat(chatID int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("chat title cannot be empty")
	}

	result, err := s.db.Exec("UPDATE chats SET title = ? WHERE id = ?", title, chatID)
	if err != nil {
		return fmt.Errorf("failed to rename chat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rename result: %w", err)
	}
	if affected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// DeleteChat removes a chat and, through the cascade, all its messages.
func (s *Store) DeleteChat(chatID int64) error {
	result, err := s.db.Exec("DELETE FROM chats WHERE id = ?", chatID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AppendMessage appends a message to a chat, assigning the next sequence
// number. The chat existence check and the insert share one transaction so
// sequence numbers stay gapless under concurrent appends.
func (s *Store) AppendMessage(chatID int64, role model.Role, content string, attachments []model.AttachmentRef) (*model.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	encoded, err := model.EncodeAttachments(attachments)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM chats WHERE id = ?", chatID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check chat: %w", err)
	}
	if exists == 0 {
		return nil, ErrChatNotFound
	}

	now := time.Now().Unix()
	result, err := tx.Exec(`
		INSERT INTO messages (chat_id, seq, role, content, attachments, created_at)
		SELECT ?, COALESCE(MAX(seq) + 1, 0), ?, ?, ?, ?
		FROM messages WHERE chat_id = ?
	`, chatID, role.String(), content, encoded, now, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}

	var seq int
	if err := tx.QueryRow("SELECT seq FROM messages WHERE id = ?", id).Scan(&seq); err != nil {
		return nil, fmt.Errorf("failed to read message seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &model.Message{
		ID:          id,
		ChatID:      chatID,
		Seq:         seq,
		Role:        role,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   time.Unix(now, 0),
	}, nil
}

// GetMessages returns all messages of a chat in sequence order.
func (s *Store) GetMessages(chatID int64) ([]model.Message, error) {
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chats WHERE id = ?", chatID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check chat: %w", err)
	}
	if exists == 0 {
		return nil, ErrChatNotFound
	}

	rows, err := s.db.Query(`
		SELECT id, seq, role, content, attachments, created_at
		FROM messages WHERE chat_id = ?
		ORDER BY seq ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		var role, attachments string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.Seq, &role, &msg.Content, &attachments, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.ChatID = chatID
		msg.Role = model.Role(role)
		msg.CreatedAt = time.Unix(createdAt, 0)

		refs, err := model.DecodeAttachments(attachments)
		if err != nil {
			return nil, err
		}
		msg.Attachments = refs

		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
