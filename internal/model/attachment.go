// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// ATTACHMENT REFERENCES
// =============================================================================

// AttachmentKind classifies an attachment by how it travels to the API:
// images as data URLs, text and PDFs as inlined text parts.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentPDF   AttachmentKind = "pdf"
	AttachmentText  AttachmentKind = "text"
)

// String returns the string representation of the kind.
func (k AttachmentKind) String() string {
	return string(k)
}

// AttachmentRef is a persisted reference to a file supplied with a user
// message. Only the reference is stored; the file bytes are read again at
// send time. Temporary files (pasted images) are never recorded here.
type AttachmentRef struct {
	Kind AttachmentKind `json:"kind"`
	Path string         `json:"path"`
	MIME string         `json:"mime,omitempty"`
}

// EncodeAttachments serializes refs into the JSON stored in the messages
// table. A nil or empty slice encodes as "[]" so the column is never NULL.
func EncodeAttachments(refs []AttachmentRef) (string, error) {
	if len(refs) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("failed to encode attachment refs: %w", err)
	}
	return string(data), nil
}

// DecodeAttachments parses the JSON attachment column back into refs.
// Empty input and "[]" both yield nil.
func DecodeAttachments(s string) ([]AttachmentRef, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var refs []AttachmentRef
	if err := json.Unmarshal([]byte(s), &refs); err != nil {
		return nil, fmt.Errorf("failed to decode attachment refs: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}
	return refs, nil
}
