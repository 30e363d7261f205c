// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// minimalResponse is a valid chat completion body for tests that only need
// a well-formed reply.
const minimalResponse = `{
	"id": "test-id",
	"model": "test-model",
	"choices": [{
		"message": {"role": "assistant", "content": "test response"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
}`

// =============================================================================
// CLIENT CONFIGURATION TESTS
// =============================================================================

// TestNewClient verifies client initialization and defaults.
func TestNewClient(t *testing.T) {
	client := NewClient("test-key")

	if !client.IsConfigured() {
		t.Error("Client should be configured with an API key")
	}
	if client.baseURL != DefaultBaseURL {
		t.Errorf("Default base URL should be %q, got %q", DefaultBaseURL, client.baseURL)
	}
	if client.GetModel() != DefaultModel {
		t.Errorf("Default model should be %q, got %q", DefaultModel, client.GetModel())
	}
	if client.temperature != DefaultTemperature {
		t.Errorf("Default temperature should be %v, got %v", DefaultTemperature, client.temperature)
	}
	if client.topP != DefaultTopP {
		t.Errorf("Default top_p should be %v, got %v", DefaultTopP, client.topP)
	}

	emptyClient := NewClient("")
	if emptyClient.IsConfigured() {
		t.Error("Client with empty API key should not be configured")
	}

	spacedClient := NewClient("   ")
	if spacedClient.IsConfigured() {
		t.Error("Client with whitespace-only API key should not be configured")
	}
}

// TestClientMethodChaining verifies the fluent API for client configuration.
func TestClientMethodChaining(t *testing.T) {
	client := NewClient("test-key").
		WithBaseURL("https://custom.api.com/v1/").
		WithModel("custom-model").
		WithTemperature(0.7).
		WithTopP(0.9)

	if client.baseURL != "https://custom.api.com/v1" {
		t.Errorf("WithBaseURL should trim trailing slash, got %q", client.baseURL)
	}
	if client.GetModel() != "custom-model" {
		t.Errorf("Expected model 'custom-model', got %q", client.GetModel())
	}
	if client.temperature != 0.7 {
		t.Errorf("Expected temperature 0.7, got %v", client.temperature)
	}
	if client.topP != 0.9 {
		t.Errorf("Expected top_p 0.9, got %v", client.topP)
	}

	// Empty model keeps the previous value
	client.WithModel("")
	if client.GetModel() != "custom-model" {
		t.Errorf("WithModel(\"\") should keep previous model, got %q", client.GetModel())
	}
}

// TestAPIKeyMasked verifies API key masking for display.
func TestAPIKeyMasked(t *testing.T) {
	tests := []struct {
		name           string
		apiKey         string
		expectedPrefix string
	}{
		{
			name:           "empty key",
			apiKey:         "",
			expectedPrefix: "[not set]",
		},
		{
			name:           "normal key",
			apiKey:         "AIzaSyTest12345",
			expectedPrefix: "[REDACTED, length=15, fingerprint=",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := NewClient(tc.apiKey)
			masked := client.APIKeyMasked()

			if !strings.HasPrefix(masked, tc.expectedPrefix) {
				t.Errorf("Expected masked key to start with %q, got %q", tc.expectedPrefix, masked)
			}
			if tc.apiKey != "" && strings.Contains(masked, tc.apiKey) {
				t.Errorf("Masked key should not contain the original key, got %q", masked)
			}
		})
	}
}

// =============================================================================
// MESSAGE TYPE TESTS
// =============================================================================

// TestChatMessageHelpers verifies message creation helpers.
func TestChatMessageHelpers(t *testing.T) {
	userMsg := NewUserMessage("user content")
	if userMsg.Role != "user" || userMsg.Content != "user content" {
		t.Errorf("NewUserMessage incorrect: got role=%s, content=%v", userMsg.Role, userMsg.Content)
	}

	assistantMsg := NewAssistantMessage("assistant content")
	if assistantMsg.Role != "assistant" || assistantMsg.Content != "assistant content" {
		t.Errorf("NewAssistantMessage incorrect: got role=%s, content=%v", assistantMsg.Role, assistantMsg.Content)
	}

	systemMsg := NewSystemMessage("system content")
	if systemMsg.Role != "system" || systemMsg.Content != "system content" {
		t.Errorf("NewSystemMessage incorrect: got role=%s, content=%v", systemMsg.Role, systemMsg.Content)
	}

	partsMsg := NewUserParts([]ContentPart{TextPart("hi")})
	if partsMsg.Role != "user" {
		t.Errorf("NewUserParts role incorrect: got %s", partsMsg.Role)
	}
	parts, ok := partsMsg.Content.([]ContentPart)
	if !ok || len(parts) != 1 || parts[0].Text != "hi" {
		t.Errorf("NewUserParts content incorrect: got %v", partsMsg.Content)
	}
}

// TestChatRequest_WireFormat pins the JSON shape of a mixed-content request.
// History messages carry plain string content; the current turn carries an
// array of typed parts.
func TestChatRequest_WireFormat(t *testing.T) {
	request := ChatRequest{
		Model: "test-model",
		Messages: []ChatMessage{
			NewAssistantMessage("prior"),
			NewUserParts([]ContentPart{
				TextPart("describe this"),
				ImagePart("data:image/png;base64,AAAA"),
			}),
		},
		Stream:      true,
		Temperature: 0.1,
		TopP:        1.0,
		N:           1,
	}

	data, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	body := string(data)

	for _, want := range []string{
		`"content":"prior"`,
		`"type":"text"`,
		`"text":"describe this"`,
		`"type":"image_url"`,
		`"image_url":{"url":"data:image/png;base64,AAAA"}`,
		`"temperature":0.1`,
		`"top_p":1`,
		`"n":1`,
		`"stream":true`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Request body missing %s:\n%s", want, body)
		}
	}

	// Image parts must not carry an empty text field
	if strings.Contains(body, `"text":""`) {
		t.Errorf("Image part should omit empty text field:\n%s", body)
	}
}

// TestChatResponseGetContent verifies response content extraction.
func TestChatResponseGetContent(t *testing.T) {
	var resp ChatResponse
	if err := json.Unmarshal([]byte(minimalResponse), &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if resp.GetContent() != "test response" {
		t.Errorf("GetContent() = %q, expected 'test response'", resp.GetContent())
	}
	if resp.GetFinishReason() != "stop" {
		t.Errorf("GetFinishReason() = %q, expected 'stop'", resp.GetFinishReason())
	}
	if resp.Usage.TotalTokens != 30 {
		t.Errorf("Usage.TotalTokens = %d, expected 30", resp.Usage.TotalTokens)
	}

	emptyResp := &ChatResponse{}
	if emptyResp.GetContent() != "" {
		t.Errorf("GetContent() on empty response = %q, expected empty string", emptyResp.GetContent())
	}
}

// =============================================================================
// CHAT COMPLETION TESTS
// =============================================================================

// TestClient_NotConfigured verifies that requests fail fast without a key.
func TestClient_NotConfigured(t *testing.T) {
	client := NewClient("")

	_, err := client.Chat(context.Background(), []ChatMessage{NewUserMessage("hi")})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Chat without key: expected ErrNotConfigured, got %v", err)
	}

	err = client.ChatStream(context.Background(), []ChatMessage{NewUserMessage("hi")}, func(StreamChunk) {})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ChatStream without key: expected ErrNotConfigured, got %v", err)
	}
}

// TestClient_Chat verifies a full request/response round trip, including
// the headers and body shape sent to the server.
func TestClient_Chat(t *testing.T) {
	var gotAuth, gotContentType, gotPath string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(minimalResponse))
	}))
	defer server.Close()

	client := NewClient("test-key").WithBaseURL(server.URL).WithModel("test-model")

	resp, err := client.Chat(context.Background(), []ChatMessage{NewUserMessage("hello")})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if resp.GetContent() != "test response" {
		t.Errorf("Expected content 'test response', got %q", resp.GetContent())
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected Authorization 'Bearer test-key', got %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", gotContentType)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("Expected path /chat/completions, got %q", gotPath)
	}

	var sent map[string]any
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("Request body is not valid JSON: %v", err)
	}
	if sent["model"] != "test-model" {
		t.Errorf("Expected model 'test-model', got %v", sent["model"])
	}
	if sent["stream"] != false {
		t.Errorf("Expected stream false, got %v", sent["stream"])
	}
	if sent["temperature"] != 0.1 {
		t.Errorf("Expected temperature 0.1, got %v", sent["temperature"])
	}
	if sent["top_p"] != 1.0 {
		t.Errorf("Expected top_p 1.0, got %v", sent["top_p"])
	}
	if sent["n"] != float64(1) {
		t.Errorf("Expected n=1, got %v", sent["n"])
	}
}

// =============================================================================
// ERROR HANDLING TESTS
// =============================================================================

// TestAPIError verifies error formatting.
func TestAPIError(t *testing.T) {
	errWithCode := &APIError{
		Code:    "invalid_api_key",
		Message: "API key is invalid",
		Status:  401,
	}
	expected := "API error [invalid_api_key] (HTTP 401): API key is invalid"
	if errWithCode.Error() != expected {
		t.Errorf("Error() = %q, expected %q", errWithCode.Error(), expected)
	}

	errNoCode := &APIError{
		Message: "Server error",
		Status:  500,
	}
	expected = "API error (HTTP 500): Server error"
	if errNoCode.Error() != expected {
		t.Errorf("Error() = %q, expected %q", errNoCode.Error(), expected)
	}
}

// TestClient_ErrorMapping verifies HTTP status to sentinel error mapping.
func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "auth failed 401",
			status:  http.StatusUnauthorized,
			body:    `{"error":{"code":"invalid_api_key","message":"bad key"}}`,
			wantErr: ErrAuthFailed,
		},
		{
			name:    "auth failed 403 plain body",
			status:  http.StatusForbidden,
			body:    `forbidden`,
			wantErr: ErrAuthFailed,
		},
		{
			name:    "model not found",
			status:  http.StatusNotFound,
			body:    `{"error":{"code":"model_not_found","message":"no such model"}}`,
			wantErr: ErrModelNotFound,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"message":"slow down"}}`,
			wantErr: ErrRateLimited,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient("test-key").WithBaseURL(server.URL)
			_, err := client.Chat(context.Background(), []ChatMessage{NewUserMessage("hi")})
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

// TestClient_ServerErrorPreservesStatus verifies that unmapped statuses
// surface as *APIError with the original status and message.
func TestClient_ServerErrorPreservesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer server.Close()

	client := NewClient("test-key").WithBaseURL(server.URL)
	_, err := client.Chat(context.Background(), []ChatMessage{NewUserMessage("hi")})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", apiErr.Status)
	}
	if apiErr.Message != "boom" {
		t.Errorf("Expected message 'boom', got %q", apiErr.Message)
	}
}

// TestClient_RetryAfterHeader verifies Retry-After parsing on 429 responses.
func TestClient_RetryAfterHeader(t *testing.T) {
	t.Run("seconds", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
		}))
		defer server.Close()

		client := NewClient("test-key").WithBaseURL(server.URL)
		_, err := client.Chat(context.Background(), []ChatMessage{NewUserMessage("hi")})

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			t.Fatalf("Expected *RateLimitError, got %T: %v", err, err)
		}
		if rle.RetryAfter != 7*time.Second {
			t.Errorf("Expected RetryAfter 7s, got %v", rle.RetryAfter)
		}
		if !errors.Is(err, ErrRateLimited) {
			t.Errorf("RateLimitError should match ErrRateLimited, got %v", err)
		}
	})

	t.Run("http date", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", time.Now().Add(time.Minute).UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
		}))
		defer server.Close()

		client := NewClient("test-key").WithBaseURL(server.URL)
		_, err := client.Chat(context.Background(), []ChatMessage{NewUserMessage("hi")})

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			t.Fatalf("Expected *RateLimitError, got %T: %v", err, err)
		}
		if rle.RetryAfter <= 0 {
			t.Errorf("Expected positive RetryAfter from HTTP date, got %v", rle.RetryAfter)
		}
	})
}

// =============================================================================
// CONCURRENT ACCESS TESTS
// =============================================================================

// TestClient_ConcurrentChat verifies that concurrent Chat calls are safe.
// The client is configured once up front and never reconfigured, so calls
// share it freely.
func TestClient_ConcurrentChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(minimalResponse))
	}))
	defer server.Close()

	client := NewClient("test-key").WithBaseURL(server.URL)

	var wg sync.WaitGroup
	errChan := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := client.Chat(ctx, []ChatMessage{NewUserMessage("hello")}); err != nil {
				errChan <- err
			}
		}()
	}
	wg.Wait()
	close(errChan)

	for err := range errChan {
		t.Errorf("Concurrent Chat error: %v", err)
	}
}
