// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/store"
)

// =============================================================================
// EXIT CODES
// =============================================================================

// Exit codes returned to the shell. Scripts branch on these, so the
// mapping is part of the command-line contract.
const (
	ExitSuccess     = 0
	ExitGeneral     = 1
	ExitUsage       = 2
	ExitConfig      = 3
	ExitAuth        = 4
	ExitNetwork     = 5
	ExitNotFound    = 6
	ExitRateLimited = 7
	ExitCanceled    = 130 // 128 + SIGINT
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// CommandError wraps a command failure with the exit code it should produce.
type CommandError struct {
	Command string
	Err     error
	Code    int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a CommandError for the named command.
func NewCommandError(command string, err error, code int) *CommandError {
	return &CommandError{Command: command, Err: err, Code: code}
}

// ValidationError reports invalid user input for a flag or argument.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s '%s': %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// NotFoundError reports a missing resource such as a chat ID.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to its process exit code.
//
// Structured CLI errors carry their own codes; everything else goes
// through the session error classifier so turn failures and command
// failures exit consistently.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return ExitUsage
	}

	var nfErr *NotFoundError
	if errors.As(err, &nfErr) {
		return ExitNotFound
	}

	var ttyErr *TTYRequiredError
	if errors.As(err, &ttyErr) {
		return ExitUsage
	}

	if errors.Is(err, store.ErrChatNotFound) {
		return ExitNotFound
	}

	switch session.Classify(err) {
	case session.ErrKindAuth:
		return ExitAuth
	case session.ErrKindNetwork:
		return ExitNetwork
	case session.ErrKindRateLimited:
		return ExitRateLimited
	case session.ErrKindModelNotFound:
		return ExitNotFound
	case session.ErrKindCanceled:
		return ExitCanceled
	default:
		return ExitGeneral
	}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError prints an error to stderr with shared styling.
func DisplayError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
}

// FormatTurnError turns a failed conversation turn into an actionable
// message for the user. The raw error stays available for verbose mode.
func FormatTurnError(err error) string {
	switch session.Classify(err) {
	case session.ErrKindAuth:
		return "Authentication failed. Check your API key or run 'parley setup'."
	case session.ErrKindRateLimited:
		var rle *api.RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > 0 {
			return fmt.Sprintf("Rate limited by the API. Retry in %v.", rle.RetryAfter)
		}
		return "Rate limited by the API. Wait a moment and try again."
	case session.ErrKindModelNotFound:
		return "Model not found. Check the model name in your config or run 'parley setup'."
	case session.ErrKindNetwork:
		return "Network error reaching the API. Check your connection and endpoint URL."
	case session.ErrKindUnsupportedAttachment:
		return "Unsupported attachment type. Images, PDFs, and text files are accepted."
	case session.ErrKindAttachmentTooLarge:
		return "Attachment exceeds the size limit. Raise max_attachment_mb in your config to allow larger files."
	case session.ErrKindBusy:
		return "A response is already streaming for this chat. Wait for it to finish or press Ctrl+C."
	case session.ErrKindCanceled:
		return "Canceled."
	case session.ErrKindProtocol:
		return fmt.Sprintf("The API rejected the request: %v", err)
	default:
		return fmt.Sprintf("Request failed: %v", err)
	}
}
