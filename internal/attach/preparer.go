// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach validates and converts user-picked files and pasted images
// into the payload parts a chat completions request carries.
//
// Supported attachment types:
//   - Images (.png, .jpg, .jpeg, .webp): base64-encoded into data URLs
//   - Text files (.txt): content inlined as a text part
//   - PDF documents (.pdf): page text extracted and inlined as a text part
package attach

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// ERRORS AND LIMITS
// =============================================================================

var (
	// ErrUnsupportedType indicates the file extension is not an accepted
	// attachment type.
	ErrUnsupportedType = errors.New("unsupported attachment type")

	// ErrTooLarge indicates the file exceeds the per-attachment size ceiling.
	ErrTooLarge = errors.New("attachment too large")
)

// DefaultMaxMB is the per-attachment size ceiling in megabytes.
const DefaultMaxMB = 20

// extKinds maps accepted file extensions to their attachment kind and MIME type.
var extKinds = map[string]struct {
	kind model.AttachmentKind
	mime string
}{
	".png":  {model.AttachmentImage, "image/png"},
	".jpg":  {model.AttachmentImage, "image/jpeg"},
	".jpeg": {model.AttachmentImage, "image/jpeg"},
	".webp": {model.AttachmentImage, "image/webp"},
	".txt":  {model.AttachmentText, "text/plain"},
	".pdf":  {model.AttachmentPDF, "application/pdf"},
}

// =============================================================================
// PREPARED ATTACHMENTS
// =============================================================================

// Prepared is an attachment converted into its request payload form.
//
// Exactly one of Text and DataURL is set: inlined content for text and PDF
// attachments, a base64 data URL for images.
type Prepared struct {
	// Ref identifies the source file for persistence and display.
	Ref model.AttachmentRef

	// Text carries inlined file content for text and PDF attachments.
	Text string

	// DataURL carries a data:<mime>;base64,... URL for image attachments.
	DataURL string

	// Temp marks files owned by this process (pasted images). Only these are
	// removed by CleanupTemp, and they are excluded from persistence.
	Temp bool
}

// CleanupTemp removes the temp files behind pasted attachments. Removal is
// best-effort; user-picked files are never touched.
func CleanupTemp(atts []Prepared) {
	for _, a := range atts {
		if !a.Temp {
			continue
		}
		_ = os.Remove(a.Ref.Path)
	}
}

// =============================================================================
// PREPARER
// =============================================================================

// Preparer validates attachments and converts them into payload parts.
type Preparer struct {
	maxBytes int64
	tempDir  string
}

// NewPreparer creates a Preparer with the given size ceiling in megabytes.
// Values below 1 fall back to DefaultMaxMB.
func NewPreparer(maxMB int) *Preparer {
	if maxMB < 1 {
		maxMB = DefaultMaxMB
	}
	return &Preparer{
		maxBytes: int64(maxMB) * 1024 * 1024,
		tempDir:  os.TempDir(),
	}
}

// PrepareFile validates a user-picked file and converts it into a payload
// part. The extension decides the handling; unsupported extensions fail
// before any read beyond the size stat.
func (p *Preparer) PrepareFile(path string) (Prepared, error) {
	ext := strings.ToLower(filepath.Ext(path))
	entry, ok := extKinds[ext]
	if !ok {
		return Prepared{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Prepared{}, fmt.Errorf("failed to stat attachment: %w", err)
	}
	if info.Size() > p.maxBytes {
		return Prepared{}, fmt.Errorf("%w: %s is %.1f MB (limit %d MB)",
			ErrTooLarge, filepath.Base(path),
			float64(info.Size())/(1024*1024), p.maxBytes/(1024*1024))
	}

	ref := model.AttachmentRef{Kind: entry.kind, Path: path, MIME: entry.mime}

	switch entry.kind {
	case model.AttachmentImage:
		data, err := os.ReadFile(path)
		if err != nil {
			return Prepared{}, fmt.Errorf("failed to read attachment: %w", err)
		}
		return Prepared{Ref: ref, DataURL: encodeDataURL(entry.mime, data)}, nil

	case model.AttachmentText:
		data, err := os.ReadFile(path)
		if err != nil {
			return Prepared{}, fmt.Errorf("failed to read attachment: %w", err)
		}
		return Prepared{Ref: ref, Text: string(data)}, nil

	case model.AttachmentPDF:
		text, err := extractPDFText(path)
		if err != nil {
			return Prepared{}, fmt.Errorf("failed to extract PDF text: %w", err)
		}
		return Prepared{Ref: ref, Text: text}, nil
	}

	return Prepared{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
}

// PreparePastedImage writes clipboard PNG bytes to a temp file and prepares
// it like a picked image. The returned Prepared is marked Temp so the file
// is removed once the turn concludes.
func (p *Preparer) PreparePastedImage(png []byte) (Prepared, error) {
	if len(png) == 0 {
		return Prepared{}, errors.New("empty image data")
	}
	if int64(len(png)) > p.maxBytes {
		return Prepared{}, fmt.Errorf("%w: pasted image is %.1f MB (limit %d MB)",
			ErrTooLarge, float64(len(png))/(1024*1024), p.maxBytes/(1024*1024))
	}

	path := filepath.Join(p.tempDir, "pasted_image_"+uuid.NewString()+".png")
	if err := os.WriteFile(path, png, 0600); err != nil {
		return Prepared{}, fmt.Errorf("failed to write pasted image: %w", err)
	}

	ref := model.AttachmentRef{Kind: model.AttachmentImage, Path: path, MIME: "image/png"}
	return Prepared{Ref: ref, DataURL: encodeDataURL("image/png", png), Temp: true}, nil
}

// encodeDataURL builds a data:<mime>;base64,... URL from raw file bytes.
func encodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
