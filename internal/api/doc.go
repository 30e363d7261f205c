// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides a client for OpenAI-compatible chat completions.
//
// The client targets any endpoint that speaks the OpenAI chat completions
// protocol; the default is Gemini's OpenAI-compatible surface. Responses
// can be fetched whole or streamed token by token over Server-Sent Events.
//
// # Key Types
//
//   - Client: HTTP client with TLS enforcement and typed error mapping
//   - ChatMessage: message carrying plain text or multimodal content parts
//   - StreamChunk: one SSE delta from a streaming response
//
// # Usage
//
// Create a client and stream a chat response:
//
//	client := api.NewClient(apiKey).WithModel("gemini-2.5-pro-exp-03-25")
//	err := client.ChatStream(ctx, messages, func(chunk api.StreamChunk) {
//	    fmt.Print(chunk.GetContent())
//	})
//
// # Security
//
// API keys are never logged, response bodies are size-capped, and all
// connections require TLS 1.2+.
package api
