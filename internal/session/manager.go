// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session orchestrates conversation turns: it assembles history and
// the new multimodal user message, streams the assistant response, delivers
// progress through callbacks, and persists both sides of the exchange.
//
// One turn runs per chat at a time; different chats proceed concurrently.
// SendTurn is synchronous, so shells decide the goroutine boundary: a
// terminal shell calls it inline and cancels through Stop, a GUI would run
// it on a worker.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/attach"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/store"
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager coordinates turns between the store, the API client, and a shell.
type Manager struct {
	store  *store.Store
	client *api.Client
	cb     Callbacks

	mu     sync.Mutex
	active map[int64]*turnState
}

// turnState tracks one in-flight turn.
type turnState struct {
	cancel context.CancelFunc
}

// NewManager creates a session manager.
func NewManager(st *store.Store, client *api.Client, cb Callbacks) *Manager {
	return &Manager{
		store:  st,
		client: client,
		cb:     cb,
		active: make(map[int64]*turnState),
	}
}

// IsBusy reports whether a chat has a turn in flight.
func (m *Manager) IsBusy(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.active[chatID]
	return busy
}

// Stop cancels the in-flight turn on a chat, if any. The stopped turn
// surfaces as a canceled error event; its partial output is not persisted.
func (m *Manager) Stop(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.active[chatID]
	if ok {
		state.cancel()
	}
	return ok
}

// =============================================================================
// SEND TURN
// =============================================================================

// SendTurn runs one conversation turn on a chat: the user message (text
// plus prepared attachments) is persisted, the request streams, and the
// assistant reply is persisted when the stream completes.
//
// The turn's temporary attachment files are removed on every exit path,
// including validation failures and busy rejection. Failures are reported
// through OnError and returned.
func (m *Manager) SendTurn(ctx context.Context, chatID int64, text string, atts []attach.Prepared) error {
	// Temp files die with the turn, however it ends
	defer attach.CleanupTemp(atts)

	text = strings.TrimSpace(text)
	if text == "" && len(atts) == 0 {
		return m.fail(chatID, ErrEmptyTurn)
	}

	turnCtx, cancel, err := m.acquire(ctx, chatID)
	if err != nil {
		return m.fail(chatID, err)
	}
	defer m.release(chatID)
	defer cancel()

	if err := m.runTurn(turnCtx, chatID, text, atts); err != nil {
		return m.fail(chatID, err)
	}
	return nil
}

// acquire marks a chat busy and derives the turn's cancellable context.
// The busy check happens before any store access, so a rejected call
// leaves no trace.
func (m *Manager) acquire(ctx context.Context, chatID int64) (context.Context, context.CancelFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.active[chatID]; busy {
		return nil, nil, fmt.Errorf("%w: chat %d", ErrBusy, chatID)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	m.active[chatID] = &turnState{cancel: cancel}
	return turnCtx, cancel, nil
}

// release clears a chat's busy state.
func (m *Manager) release(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, chatID)
}

// fail reports a turn failure through OnError and returns the error.
func (m *Manager) fail(chatID int64, err error) error {
	if m.cb.OnError != nil {
		m.cb.OnError(chatID, Classify(err), err)
	}
	return err
}

// runTurn executes the acquired turn.
func (m *Manager) runTurn(ctx context.Context, chatID int64, text string, atts []attach.Prepared) error {
	// History is read before the user message is appended: prior turns
	// travel as plain strings, the new turn as structured parts.
	history, err := m.store.GetMessages(chatID)
	if err != nil {
		return err
	}

	// The first turn titles the chat
	if len(history) == 0 {
		m.autoTitle(chatID, text, len(atts))
	}

	// The user message persists before the request goes out, so a failed
	// or stopped turn never loses what the user typed.
	if _, err := m.store.AppendMessage(chatID, model.RoleUser, text, persistedRefs(atts)); err != nil {
		return err
	}

	payload := buildPayload(history, text, atts)

	buf := newPartialBuffer(partialNotifyRate)
	var finishReason string

	err = m.client.ChatStream(ctx, payload, func(chunk api.StreamChunk) {
		if content := chunk.GetContent(); content != "" {
			if accumulated, notify := buf.Append(content); notify && m.cb.OnPartial != nil {
				m.cb.OnPartial(chatID, accumulated)
			}
		}
		if chunk.IsDone() {
			finishReason = chunk.GetFinishReason()
		}
	})
	if err != nil {
		// The partial assistant buffer is discarded, never persisted
		return err
	}

	truncated := finishReason == api.FinishLength

	msg, err := m.store.AppendMessage(chatID, model.RoleAssistant, buf.Text(), nil)
	if err != nil {
		return err
	}

	if m.cb.OnComplete != nil {
		m.cb.OnComplete(chatID, *msg, truncated)
	}
	return nil
}

// autoTitle renames a still-untitled chat from its first turn.
func (m *Manager) autoTitle(chatID int64, text string, attachmentCount int) {
	chat, err := m.store.GetChat(chatID)
	if err != nil || chat.Title != model.DefaultChatTitle {
		return
	}

	title := model.DeriveTitle(text, attachmentCount)
	if title == model.DefaultChatTitle {
		return
	}

	// Non-fatal, the turn proceeds untitled
	_ = m.store.RenameChat(chatID, title)
}

// =============================================================================
// PAYLOAD ASSEMBLY
// =============================================================================

// buildPayload assembles the request messages: persisted turns as plain
// text, then the new turn as structured content parts.
func buildPayload(history []model.Message, text string, atts []attach.Prepared) []api.ChatMessage {
	messages := make([]api.ChatMessage, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, api.ChatMessage{Role: msg.Role.String(), Content: msg.Content})
	}
	messages = append(messages, api.NewUserParts(buildParts(text, atts)))
	return messages
}

// buildParts merges the turn text and attachment payloads into content
// parts. Adjacent text runs (typed text, .txt content, extracted PDF text)
// coalesce into one part, flushed whenever an image intervenes. Attachments
// with no payload (a PDF with no extractable text) contribute nothing.
func buildParts(text string, atts []attach.Prepared) []api.ContentPart {
	var parts []api.ContentPart
	var pending []string

	flush := func() {
		if len(pending) > 0 {
			parts = append(parts, api.TextPart(strings.Join(pending, "\n")))
			pending = nil
		}
	}

	if text != "" {
		pending = append(pending, text)
	}
	for _, att := range atts {
		switch {
		case att.DataURL != "":
			flush()
			parts = append(parts, api.ImagePart(att.DataURL))
		case att.Text != "":
			pending = append(pending, att.Text)
		}
	}
	flush()

	return parts
}

// persistedRefs collects the storable references of non-temporary
// attachments. Pasted images are one-send temp files and never persist.
func persistedRefs(atts []attach.Prepared) []model.AttachmentRef {
	var refs []model.AttachmentRef
	for _, att := range atts {
		if att.Temp {
			continue
		}
		refs = append(refs, att.Ref)
	}
	return refs
}
