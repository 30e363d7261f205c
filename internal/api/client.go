// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

// API: Secure logging, size-capped reads, and typed error mapping

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-pro-exp-03-25"

	// DefaultTemperature is the sampling temperature sent with every request.
	DefaultTemperature = 0.1

	// DefaultTopP is the nucleus sampling parameter sent with every request.
	DefaultTopP = 1.0

	// DefaultTimeout for non-streaming API requests
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize limits response body size to prevent memory exhaustion
	// SECURITY: Prevents DoS from maliciously large responses
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// =============================================================================
// SHARED HTTP CLIENTS
// =============================================================================

// PERFORMANCE: Shared HTTP clients with connection pooling.
// Reusing transports avoids per-request TLS handshakes.
var (
	// sharedHTTPClient handles non-streaming requests with a hard timeout.
	sharedHTTPClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: newTransport(),
	}

	// sharedStreamingClient handles streaming requests.
	// No timeout for streaming - controlled via context
	sharedStreamingClient = &http.Client{
		Transport: newTransport(),
	}
)

// newTransport builds the pooled transport shared by both clients.
// SECURITY: Enforces TLS 1.2+ on every connection.
func newTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: false,
		},
	}
}

// =============================================================================
// ERROR TYPES
// =============================================================================

var (
	// ErrNotConfigured indicates the API key is missing
	ErrNotConfigured = errors.New("API key not configured")

	// ErrAuthFailed indicates authentication failure (401/403)
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates rate limiting (429)
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model doesn't exist (404)
	ErrModelNotFound = errors.New("model not found")

	// ErrContentFiltered indicates the provider's safety filter blocked the
	// response before the model finished.
	ErrContentFiltered = errors.New("response blocked by content filter")
)

// APIError represents a structured error from the chat completions endpoint.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

// RateLimitError carries the server's requested backoff from a 429 response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
	}
	return "rate limited"
}

// Is allows errors.Is(err, ErrRateLimited) to match
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// apiErrorResponse is the JSON error payload from the endpoint
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// ChatMessage represents a single message in a conversation.
//
// Content is either a plain string or a []ContentPart. History messages
// travel as plain strings; a freshly composed turn with attachments is
// sent as structured parts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// NewUserMessage creates a user message with plain text content.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant message with plain text content.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// NewSystemMessage creates a system message with plain text content.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// NewUserParts creates a user message with structured content parts.
func NewUserParts(parts []ContentPart) ChatMessage {
	return ChatMessage{Role: "user", Content: parts}
}

// ContentPart is one element of a structured message body.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference, typically a base64 data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// TextPart creates a "text" content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart creates an "image_url" content part from a data URL.
func ImagePart(dataURL string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: dataURL}}
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	N           int           `json:"n,omitempty"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// GetContent returns the content of the first choice, or empty string.
func (r *ChatResponse) GetContent() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

// GetFinishReason returns the finish reason of the first choice.
func (r *ChatResponse) GetFinishReason() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].FinishReason
	}
	return ""
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is an HTTP client for an OpenAI-compatible chat completions API.
// Configure it with the With* chain before issuing requests; reconfiguring
// while a request is in flight is not safe.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	topP        float64
}

// NewClient creates a new API client with default settings.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:      strings.TrimSpace(apiKey),
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		topP:        DefaultTopP,
	}
}

// WithBaseURL sets a custom base URL (for proxies or other providers)
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithModel sets the model for chat requests. Empty keeps the default.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithTemperature sets the sampling temperature.
func (c *Client) WithTemperature(temp float64) *Client {
	c.temperature = temp
	return c
}

// WithTopP sets the nucleus sampling parameter.
func (c *Client) WithTopP(topP float64) *Client {
	c.topP = topP
	return c
}

// GetModel returns the model used for chat requests.
func (c *Client) GetModel() string {
	return c.model
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns a masked version of the API key for display.
// SECURITY: Uses a SHA-256 fingerprint rather than a key prefix so no
// key material is disclosed.
func (c *Client) APIKeyMasked() string {
	if c.apiKey == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(c.apiKey), keyFingerprint(c.apiKey))
}

// keyFingerprint returns a short SHA-256 fingerprint of the key.
// This allows key identification without exposing any key material.
func keyFingerprint(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h[:4])
}

// =============================================================================
// SECURE LOGGING
// =============================================================================

// logRequest logs API requests without sensitive data.
// SECURITY: Never logs API keys, auth headers, or request bodies.
func (c *Client) logRequest(req *http.Request) {
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
	// Don't log headers (may contain auth)
	// Don't log body (may contain conversation content)
}

// logResponse logs API responses without sensitive data
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("API Response: %d %s (%v)", resp.StatusCode, resp.Status, duration)
}

// =============================================================================
// CHAT COMPLETIONS
// =============================================================================

// Chat sends a chat completion request and returns the full response.
// Requests are single-shot; the caller decides whether a failed turn
// is retried.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	request := c.newChatRequest(messages, false)

	bodyBytes, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	c.logRequest(req)

	startTime := time.Now()
	resp, err := sharedHTTPClient.Do(req)

	// SECURITY: Clear Authorization header immediately after request
	req.Header.Del("Authorization")

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logResponse(resp, time.Since(startTime))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp, body)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &chatResp, nil
}

// newChatRequest assembles a request body with the client's sampling settings.
func (c *Client) newChatRequest(messages []ChatMessage, stream bool) ChatRequest {
	return ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Stream:      stream,
		Temperature: c.temperature,
		TopP:        c.topP,
		N:           1,
	}
}

// setHeaders sets required headers for API requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "parley/0.1.0")
}

// readResponse reads a response body with size limits.
// SECURITY: Prevents memory exhaustion from unbounded responses.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if len(body) >= MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}

	return body, nil
}

// handleErrorResponse converts HTTP error responses to typed Go errors.
func (c *Client) handleErrorResponse(resp *http.Response, body []byte) error {
	statusCode := resp.StatusCode

	// Try to parse a structured error payload
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		e := &APIError{
			Code:    apiErr.Error.Code,
			Message: apiErr.Error.Message,
			Status:  statusCode,
		}

		switch statusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrAuthFailed, e.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrModelNotFound, e.Message)
		case http.StatusTooManyRequests:
			return c.rateLimitError(resp)
		default:
			return e
		}
	}

	// Fallback for unparseable error bodies
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusTooManyRequests:
		return c.rateLimitError(resp)
	default:
		return &APIError{
			Message: string(body),
			Status:  statusCode,
		}
	}
}

// rateLimitError builds a rate limit error, honoring Retry-After when present.
// The header value is either seconds or an HTTP date.
func (c *Client) rateLimitError(resp *http.Response) error {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return ErrRateLimited
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return &RateLimitError{RetryAfter: time.Duration(seconds) * time.Second}
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		return &RateLimitError{RetryAfter: time.Until(t)}
	}

	return ErrRateLimited
}
