// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"bytes"
	"fmt"
	"strings"

	"rsc.io/pdf"
)

// extractPDFText pulls the plain text out of every page of a PDF document.
// A document with no extractable text (scanned pages, pure images) yields an
// empty string, not an error; the caller decides whether to skip the part.
func extractPDFText(path string) (text string, err error) {
	// The parser panics on some malformed files; treat that as a read error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, t := range p.Content().Text {
			buf.WriteString(t.S)
			buf.WriteString(" ")
		}
	}

	return strings.TrimSpace(buf.String()), nil
}
