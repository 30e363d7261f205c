// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		attachments int
		want        string
	}{
		{
			name: "short text kept as-is",
			text: "hello world",
			want: "hello world",
		},
		{
			name: "exactly thirty runes kept as-is",
			text: strings.Repeat("a", 30),
			want: strings.Repeat("a", 30),
		},
		{
			name: "long text truncated to thirty runes plus ellipsis",
			text: strings.Repeat("a", 31),
			want: strings.Repeat("a", 30) + "...",
		},
		{
			name: "truncation counts runes not bytes",
			text: strings.Repeat("日", 31),
			want: strings.Repeat("日", 30) + "...",
		},
		{
			name: "surrounding whitespace trimmed before measuring",
			text: "  hi  ",
			want: "hi",
		},
		{
			name:        "attachments only",
			text:        "",
			attachments: 2,
			want:        "2 Attachment(s)",
		},
		{
			name:        "text wins over attachments",
			text:        "notes",
			attachments: 3,
			want:        "notes",
		},
		{
			name: "empty turn keeps default",
			text: "",
			want: DefaultChatTitle,
		},
		{
			name: "whitespace-only text counts as empty",
			text: "   \n\t",
			want: DefaultChatTitle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTitle(tt.text, tt.attachments)
			if got != tt.want {
				t.Errorf("DeriveTitle(%q, %d) = %q, want %q", tt.text, tt.attachments, got, tt.want)
			}
		})
	}
}

func TestRoleValid(t *testing.T) {
	if !RoleUser.Valid() || !RoleAssistant.Valid() {
		t.Error("user and assistant roles should be valid")
	}
	for _, r := range []Role{"system", "tool", "error", ""} {
		if r.Valid() {
			t.Errorf("role %q should not be valid", r)
		}
	}
}

func TestRoleDisplayName(t *testing.T) {
	if got := RoleUser.DisplayName(); got != "You" {
		t.Errorf("RoleUser.DisplayName() = %q, want %q", got, "You")
	}
	if got := RoleAssistant.DisplayName(); got != "Assistant" {
		t.Errorf("RoleAssistant.DisplayName() = %q, want %q", got, "Assistant")
	}
	if got := Role("weird").DisplayName(); got != "weird" {
		t.Errorf("unknown role DisplayName() = %q, want %q", got, "weird")
	}
}

func TestMessagePreview(t *testing.T) {
	msg := &Message{Content: "this is a longer piece of content"}

	if got := msg.Preview(100); got != msg.Content {
		t.Errorf("Preview(100) = %q, want full content", got)
	}

	got := msg.Preview(10)
	if len([]rune(got)) != 10 {
		t.Errorf("Preview(10) has %d runes, want 10", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Preview(10) = %q, want ellipsis suffix", got)
	}
}

func TestMessageIsEmpty(t *testing.T) {
	empty := &Message{}
	if !empty.IsEmpty() {
		t.Error("message without content or attachments should be empty")
	}

	withText := &Message{Content: "x"}
	if withText.IsEmpty() {
		t.Error("message with content should not be empty")
	}

	withAtt := &Message{Attachments: []AttachmentRef{{Kind: AttachmentImage, Path: "/p.png"}}}
	if withAtt.IsEmpty() {
		t.Error("message with attachments should not be empty")
	}
}

func TestEncodeAttachmentsEmpty(t *testing.T) {
	got, err := EncodeAttachments(nil)
	if err != nil {
		t.Fatalf("EncodeAttachments(nil) error: %v", err)
	}
	if got != "[]" {
		t.Errorf("EncodeAttachments(nil) = %q, want %q", got, "[]")
	}
}

func TestDecodeAttachmentsEmpty(t *testing.T) {
	for _, in := range []string{"", "[]"} {
		refs, err := DecodeAttachments(in)
		if err != nil {
			t.Fatalf("DecodeAttachments(%q) error: %v", in, err)
		}
		if refs != nil {
			t.Errorf("DecodeAttachments(%q) = %v, want nil", in, refs)
		}
	}
}

func TestAttachmentRefsRoundTrip(t *testing.T) {
	refs := []AttachmentRef{
		{Kind: AttachmentImage, Path: "/home/u/фото.png", MIME: "image/png"},
		{Kind: AttachmentPDF, Path: "/home/u/paper.pdf", MIME: "application/pdf"},
		{Kind: AttachmentText, Path: "/home/u/notes.txt"},
	}

	encoded, err := EncodeAttachments(refs)
	if err != nil {
		t.Fatalf("EncodeAttachments error: %v", err)
	}

	decoded, err := DecodeAttachments(encoded)
	if err != nil {
		t.Fatalf("DecodeAttachments error: %v", err)
	}
	if len(decoded) != len(refs) {
		t.Fatalf("decoded %d refs, want %d", len(decoded), len(refs))
	}
	for i := range refs {
		if decoded[i] != refs[i] {
			t.Errorf("ref %d = %+v, want %+v", i, decoded[i], refs[i])
		}
	}
}

func TestDecodeAttachmentsMalformed(t *testing.T) {
	if _, err := DecodeAttachments("{not json"); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
