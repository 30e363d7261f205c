// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

// STREAMING: Server-sent events processing for real-time token delivery

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxEventSize limits a single SSE event to prevent memory issues
	MaxEventSize = 64 * 1024 // 64KB
)

// Finish reasons reported by the chat completions API.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
)

// =============================================================================
// STREAM TYPES
// =============================================================================

// StreamChunk represents a single chunk from the streaming API
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GetContent returns the content delta from the chunk
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// GetRole returns the role from the chunk delta, if present
func (c *StreamChunk) GetRole() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Role
	}
	return ""
}

// IsDone returns true if this chunk carries a finish reason.
func (c *StreamChunk) IsDone() bool {
	if len(c.Choices) > 0 {
		return c.Choices[0].FinishReason != ""
	}
	return false
}

// GetFinishReason returns the finish reason, or empty string.
func (c *StreamChunk) GetFinishReason() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].FinishReason
	}
	return ""
}

// StreamCallback is called for each chunk received during streaming.
// STREAMING: Callbacks run on the streaming goroutine; keep them fast.
type StreamCallback func(chunk StreamChunk)

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader reads Server-Sent Events from a stream
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent reads the next SSE event from the stream.
// Returns the event type and joined data lines, or an error.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	var total int

	for {
		// ReadBytes hands back a partial line together with io.EOF, so
		// the line is processed before the error is acted on.
		line, err := s.reader.ReadBytes('\n')

		total += len(line)
		if total > MaxEventSize {
			return "", nil, fmt.Errorf("SSE event exceeds %d bytes", MaxEventSize)
		}

		trimmed := bytes.TrimRight(line, "\r\n")
		switch {
		case len(line) > 0 && len(trimmed) == 0:
			// Empty line signals end of event
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
		case bytes.HasPrefix(trimmed, []byte("event:")):
			eventType = string(bytes.TrimSpace(trimmed[6:]))
		case bytes.HasPrefix(trimmed, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(trimmed[5:]))
		}
		// Other fields (id:, retry:, comments) are ignored

		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, err
		}
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream sends a chat request and streams the response through callback.
// The stream runs until the model finishes, the context is canceled, or an
// error occurs. Cancellation surfaces as the context's error.
func (c *Client) ChatStream(ctx context.Context, messages []ChatMessage, callback StreamCallback) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	request := c.newChatRequest(messages, true)

	bodyBytes, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	c.logRequest(req)

	startTime := time.Now()
	resp, err := sharedStreamingClient.Do(req)

	// SECURITY: Clear Authorization header immediately after request
	req.Header.Del("Authorization")

	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logResponse(resp, time.Since(startTime))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return c.handleErrorResponse(resp, body)
	}

	return c.processStream(ctx, resp.Body, callback)
}

// processStream reads SSE events and delivers parsed chunks to the callback.
func (c *Client) processStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// Cancellation closes the body; report it as the context's
			// error rather than the transport's read error.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		// Check for [DONE] signal
		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var chunk StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed chunks
			continue
		}

		// A content filter stop aborts the stream; the blocking chunk
		// is not delivered.
		if chunk.GetFinishReason() == FinishContentFilter {
			return fmt.Errorf("%w: model stopped with finish_reason=%q", ErrContentFiltered, FinishContentFilter)
		}

		callback(chunk)

		if chunk.IsDone() {
			return nil
		}
	}
}
