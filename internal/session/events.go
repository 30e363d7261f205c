// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/url"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/attach"
	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// CALLBACKS
// =============================================================================

// Callbacks deliver turn progress to a shell. All fields are optional;
// nil callbacks are skipped. Callbacks fire on the turn's goroutine, so
// shells with their own event loop marshal onto it themselves.
type Callbacks struct {
	// OnPartial receives the accumulated assistant text so far.
	// Notifications are coalesced; not every token produces one.
	OnPartial func(chatID int64, text string)

	// OnComplete receives the persisted assistant message. truncated is
	// true when the model stopped at its output limit.
	OnComplete func(chatID int64, msg model.Message, truncated bool)

	// OnError receives classified turn failures.
	OnError func(chatID int64, kind ErrorKind, err error)
}

// =============================================================================
// ERROR TYPES
// =============================================================================

var (
	// ErrEmptyTurn indicates a turn with no text and no attachments
	ErrEmptyTurn = errors.New("turn has no text and no attachments")

	// ErrBusy indicates the chat already has a turn in flight
	ErrBusy = errors.New("chat is busy with another turn")
)

// ErrorKind categorizes turn failures for presentation.
type ErrorKind int

const (
	ErrKindUnknown ErrorKind = iota
	ErrKindUnsupportedAttachment
	ErrKindAttachmentTooLarge
	ErrKindAuth
	ErrKindRateLimited
	ErrKindModelNotFound
	ErrKindNetwork
	ErrKindProtocol
	ErrKindBusy
	ErrKindCanceled
)

// String returns a short human-readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindUnsupportedAttachment:
		return "unsupported attachment"
	case ErrKindAttachmentTooLarge:
		return "attachment too large"
	case ErrKindAuth:
		return "authentication"
	case ErrKindRateLimited:
		return "rate limited"
	case ErrKindModelNotFound:
		return "model not found"
	case ErrKindNetwork:
		return "network"
	case ErrKindProtocol:
		return "protocol"
	case ErrKindBusy:
		return "busy"
	case ErrKindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify maps an error from a turn (or from attachment preparation) to
// its presentation kind. Shells that consume SendTurn's return value use
// this for the same mapping OnError applies.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrKindUnknown
	case errors.Is(err, ErrBusy):
		return ErrKindBusy
	case errors.Is(err, context.Canceled):
		return ErrKindCanceled
	case errors.Is(err, attach.ErrUnsupportedType):
		return ErrKindUnsupportedAttachment
	case errors.Is(err, attach.ErrTooLarge):
		return ErrKindAttachmentTooLarge
	case errors.Is(err, api.ErrNotConfigured), errors.Is(err, api.ErrAuthFailed):
		return ErrKindAuth
	case errors.Is(err, api.ErrRateLimited):
		return ErrKindRateLimited
	case errors.Is(err, api.ErrModelNotFound):
		return ErrKindModelNotFound
	case errors.Is(err, api.ErrContentFiltered):
		// A filtered response is a protocol-level stop; the error detail
		// keeps the distinction visible.
		return ErrKindProtocol
	case errors.Is(err, context.DeadlineExceeded):
		return ErrKindNetwork
	case isNetworkError(err):
		return ErrKindNetwork
	case isProtocolError(err):
		return ErrKindProtocol
	default:
		return ErrKindUnknown
	}
}

// isNetworkError reports transport-level failures.
func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}

// isProtocolError reports endpoint responses that violate the expected
// shape: structured API errors and malformed JSON payloads.
func isProtocolError(err error) bool {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return true
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}
